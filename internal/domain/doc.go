// Package domain defines the core business entities of the triage
// system: queued jobs with retry bookkeeping, tasks with a branching
// lifecycle, dependency edges between tasks, the extraction idempotency
// log, and the suggestion records dispatched when tasks are accepted.
//
// Entities here carry validation and pure state-machine rules only.
// Persistence lives in internal/store and internal/platform/postgres;
// orchestration lives in internal/service and internal/queue.
package domain
