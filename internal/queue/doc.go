// Package queue implements the durable, crash-recoverable job queue
// shared by the inbound-fetch and AI-extraction pipelines.
//
// Jobs live as rows in a shared store; each DurableQueue instance owns
// the rows matching its name. The pending -> processing claim is the
// only atomic step (a conditional update on the row's current status);
// retries use exponential backoff starting at 30 seconds, and jobs that
// exhaust their budget are mirrored into the dead-letter surface.
//
// The queue guarantees at-least-once processing. Exactly-once external
// side effects are out of scope: a crash after an external call commits
// but before the ack lands re-runs the job.
package queue
