// Package storage persists scheduled posts.
//
// A single SQLite table holds every planned post. Rows are inserted once
// (insert-if-absent keyed by id), flipped to posted exactly once, and never
// deleted. Every call is serialized by a process-wide mutex and retried on
// SQLITE_BUSY / SQLITE_LOCKED through a RetryPolicy.
package storage
