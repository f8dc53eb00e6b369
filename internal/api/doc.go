// Package api contains the HTTP handlers for the operator surface:
// task review and lifecycle, manual dependency edits, merge creation,
// queue maintenance, dead-letter inspection, and the completion sweep.
//
// Handlers translate between HTTP and the service layer; they hold no
// business rules. Errors are mapped to status codes and sanitized
// messages centrally so internal details never reach clients.
package api
