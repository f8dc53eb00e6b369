package service

import "errors"

// Service-level errors surfaced to the API layer.
var (
	// ErrTaskTerminal is returned when an operation targets a task in a
	// terminal status (completed or rejected).
	ErrTaskTerminal = errors.New("task is in a terminal status")

	// ErrRejectNotAllowed is returned when rejecting an accepted task
	// whose source type has no linked suggestion record. Only
	// suggestion-linked tasks may be rejected after acceptance.
	ErrRejectNotAllowed = errors.New("accepted task cannot be rejected for this source type")

	// ErrMergeSourceNotAccepted is returned when creating a merge task
	// over a source task that is not in accepted status.
	ErrMergeSourceNotAccepted = errors.New("merge source task is not accepted")

	// ErrMergeTooFewSources is returned when a merge task is created with
	// fewer than two source tasks.
	ErrMergeTooFewSources = errors.New("merge requires at least two source tasks")
)
