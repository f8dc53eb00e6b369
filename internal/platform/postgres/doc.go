// Package postgres provides PostgreSQL implementations of the store
// interfaces defined in internal/store. All access goes through the
// store.DBTX abstraction so each store works against either a connection
// pool or an open transaction.
//
// Concurrency note: the only operation requiring atomicity is the job
// claim (pending -> processing), implemented as a single conditional
// UPDATE keyed on the row's current status. Everything else is plain
// read-then-write under the single-logical-writer assumption.
package postgres
