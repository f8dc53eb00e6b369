// Package service implements the task state machine and its side
// effects. Status transitions are validated against the domain's
// transition table; acceptance dispatches a side effect keyed by the
// task's source type (profile mutation, vocabulary insert, prompt
// rewrite, project creation, or the merge algorithm), and rejection
// cascades onto the linked suggestion record.
//
// Side effects and the status write happen inside one transaction so a
// crash mid-acceptance leaves the task pending rather than half-applied.
package service
