package extraction

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"time"

	"github.com/phrazzld/triage-api/internal/domain"
)

// Placeholders substituted during log normalization.
const (
	placeholderTimestamp = "<TS>"
	placeholderUUID      = "<UUID>"
	placeholderNumber    = "<NUM>"
	placeholderIP        = "<IP>"
	placeholderPath      = "<PATH>"
)

// Normalization patterns. Near-identical error messages differ only in
// these volatile fragments; replacing them makes duplicates hash equal.
// Order matters: timestamps and UUIDs contain digit runs, so they are
// substituted before the bare-number pattern.
var (
	logTimestampRegex = regexp.MustCompile(
		`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`,
	)
	logUUIDRegex = regexp.MustCompile(
		`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`,
	)
	logIPRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}(?::\d+)?\b`)
	logPathRegex   = regexp.MustCompile(`(/[\w.-]+){2,}`)
	logNumberRegex = regexp.MustCompile(`\b\d{3,}\b`)
)

// NormalizeLogMessage replaces timestamps, UUIDs, IPs, absolute paths,
// and numbers of three or more digits with placeholders so near-identical
// messages normalize to the same string.
func NormalizeLogMessage(message string) string {
	result := logTimestampRegex.ReplaceAllString(message, placeholderTimestamp)
	result = logUUIDRegex.ReplaceAllString(result, placeholderUUID)
	result = logIPRegex.ReplaceAllString(result, placeholderIP)
	result = logPathRegex.ReplaceAllString(result, placeholderPath)
	result = logNumberRegex.ReplaceAllString(result, placeholderNumber)
	return result
}

// HashLogMessage returns the group key for a message: the hex SHA-256 of
// its normalized form.
func HashLogMessage(message string) string {
	sum := sha256.Sum256([]byte(NormalizeLogMessage(message)))
	return hex.EncodeToString(sum[:])
}

// LogGroup is a set of near-identical error-log entries collapsed to one
// representative. Only the representative is sent for extraction; the
// whole group's IDs are marked processed together regardless of how many
// tasks the representative produces.
type LogGroup struct {
	Representative domain.SourceItem
	Count          int
	FirstSeen      time.Time
	LastSeen       time.Time
	SourceIDs      []string
}

// GroupLogItems buckets entries by normalized-message hash, preserving
// first-occurrence order. The earliest entry in each bucket is the
// representative.
func GroupLogItems(items []domain.SourceItem) []LogGroup {
	index := make(map[string]int)
	var groups []LogGroup

	for _, item := range items {
		key := HashLogMessage(item.Text)

		i, seen := index[key]
		if !seen {
			index[key] = len(groups)
			groups = append(groups, LogGroup{
				Representative: item,
				Count:          1,
				FirstSeen:      item.Timestamp,
				LastSeen:       item.Timestamp,
				SourceIDs:      []string{item.ID},
			})
			continue
		}

		g := &groups[i]
		g.Count++
		g.SourceIDs = append(g.SourceIDs, item.ID)
		if item.Timestamp.Before(g.FirstSeen) {
			g.FirstSeen = item.Timestamp
		}
		if item.Timestamp.After(g.LastSeen) {
			g.LastSeen = item.Timestamp
		}
	}

	return groups
}
