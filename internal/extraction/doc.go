// Package extraction turns raw source items (chat messages, code-review
// comments, notes, error logs) into pending tasks and dependency edges.
//
// The pipeline is idempotent per source item: before any external call,
// input IDs are filtered through the extraction log, and every consumed
// input is recorded there afterwards. Failed extraction calls leave
// their inputs unrecorded so a later run picks them up again.
//
// Error-log inputs get one extra step: near-identical messages are
// collapsed into groups by normalized-message hash, and only each
// group's representative is sent to the model.
package extraction
