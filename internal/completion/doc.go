// Package completion suggests which accepted tasks are likely finished.
//
// Evidence sources are evaluated in fixed priority order: code-hosting
// state, then coding-session transcripts, then chat-thread replies, then
// voice transcripts. The waterfall stops at the first positive signal.
// Collaborator failures (judge timeouts, hosting API errors) are treated
// as "no evidence" so a flaky source degrades to fewer suggestions, not
// a failed sweep.
package completion
