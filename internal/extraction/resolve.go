package extraction

import (
	"strings"

	"github.com/google/uuid"
)

// TitleRef pairs a task title with its ID for resolution lookups.
type TitleRef struct {
	ID    uuid.UUID
	Title string
}

// ResolveTaskID resolves a free-text dependency title to a task ID.
// Tiers, in order:
//
//  1. exact case-insensitive match within the current extraction batch
//  2. exact match against existing non-terminal tasks
//  3. substring match within the batch
//  4. substring match against existing tasks
//
// Substring matching accepts containment in either direction. Returns
// false when no tier resolves; unresolved edges are dropped, not
// retried. Kept as a pure function so the tier precedence is
// independently verifiable.
func ResolveTaskID(candidateTitle string, batch, existing []TitleRef) (uuid.UUID, bool) {
	candidate := strings.ToLower(strings.TrimSpace(candidateTitle))
	if candidate == "" {
		return uuid.Nil, false
	}

	if id, ok := exactMatch(candidate, batch); ok {
		return id, true
	}
	if id, ok := exactMatch(candidate, existing); ok {
		return id, true
	}
	if id, ok := substringMatch(candidate, batch); ok {
		return id, true
	}
	if id, ok := substringMatch(candidate, existing); ok {
		return id, true
	}

	return uuid.Nil, false
}

func exactMatch(candidate string, refs []TitleRef) (uuid.UUID, bool) {
	for _, ref := range refs {
		if strings.ToLower(strings.TrimSpace(ref.Title)) == candidate {
			return ref.ID, true
		}
	}
	return uuid.Nil, false
}

func substringMatch(candidate string, refs []TitleRef) (uuid.UUID, bool) {
	for _, ref := range refs {
		title := strings.ToLower(strings.TrimSpace(ref.Title))
		if title == "" {
			continue
		}
		if strings.Contains(title, candidate) || strings.Contains(candidate, title) {
			return ref.ID, true
		}
	}
	return uuid.Nil, false
}
