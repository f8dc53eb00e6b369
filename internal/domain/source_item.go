package domain

import "time"

// SourceItem is one raw input fetched from an external source (a chat
// message, review comment, note, error-log entry, or transcript chunk)
// awaiting extraction. Items travel inside extraction job payloads; they
// are not persisted on their own.
type SourceItem struct {
	ID        string    `json:"id"`
	Author    string    `json:"author,omitempty"`
	Text      string    `json:"text"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
