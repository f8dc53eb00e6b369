// Package store defines the persistence interfaces and shared error
// taxonomy used by the rest of the application. Implementations live in
// internal/platform/postgres; tests substitute in-memory fakes.
//
// Every interface exposes WithTx so services can compose multiple store
// operations inside a single transaction via RunInTransaction.
package store
