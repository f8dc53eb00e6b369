// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidTransition is returned when a task status change is not
	// permitted from the task's current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidJobStatus is returned when a job status is not valid.
	ErrInvalidJobStatus = errors.New("invalid job status")

	// ErrInvalidTaskStatus is returned when a task status is not valid.
	ErrInvalidTaskStatus = errors.New("invalid task status")

	// ErrInvalidDependencyType is returned when a dependency type is not
	// one of the supported kinds.
	ErrInvalidDependencyType = errors.New("invalid dependency type")

	// ErrSelfDependency is returned when a task would depend on itself.
	ErrSelfDependency = errors.New("task cannot depend on itself")

	// ErrEmptyContent is returned when required content is empty.
	ErrEmptyContent = errors.New("content cannot be empty")
)
