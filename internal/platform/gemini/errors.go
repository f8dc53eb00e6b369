package gemini

import "errors"

// Errors returned by the Gemini-backed collaborators.
var (
	// ErrInvalidConfig indicates the client configuration is unusable
	// (missing API key or model name).
	ErrInvalidConfig = errors.New("invalid gemini configuration")

	// ErrTransientFailure indicates the API call failed after exhausting
	// retries; the operation may succeed later.
	ErrTransientFailure = errors.New("transient gemini failure")

	// ErrContentBlocked indicates the reply was blocked by safety
	// filters. Permanent for the given prompt; never retried.
	ErrContentBlocked = errors.New("content blocked by safety filters")

	// ErrEmptyResponse indicates the API returned no usable candidates.
	ErrEmptyResponse = errors.New("empty gemini response")
)
