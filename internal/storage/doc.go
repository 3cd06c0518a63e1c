// Package storage is the dispatch journal: an append-only record of worker
// epochs and of what each joined worker sent.
//
// Drivers:
//   - "sqlite": modernc.org/sqlite database file
//   - "file":   JSON Lines, dependency-free
//
// The journal is write-mostly history. The daemon never restores its
// schedule from it.
package storage
