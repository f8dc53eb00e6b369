// Package gemini implements the two LLM collaborators over Google's
// Gemini API: the extraction boundary (raw source text in, task-list
// reply out) and the completion judge (evidence in, verdict out).
//
// Both share one Client that owns retry with exponential backoff and
// jitter for transient failures. Safety-blocked and empty replies are
// permanent errors and never retried.
package gemini
