// Package store persists candidates, queue entries and publish records.
//
// It is an explicit dependency injected into the scheduler and publisher,
// never ambient state. Two drivers:
//   - "sqlite": durable database file (modernc.org/sqlite, WAL)
//   - "memory": process-local map, for tests and dry runs
//
// Every status transition goes through UpdateEntry, which is a single atomic
// compare-and-swap on the previous status. That is the only write-side
// guarantee the single-writer daemon needs.
package store
