// Package storage persists reminder records.
//
// Every backend stores the whole ID-keyed collection and is driven through
// Store, which serializes load/save pairs behind one mutex so concurrent
// read-modify-write cycles never overwrite each other.
//
// Drivers:
//   - "file": one pretty-printed JSON object keyed by ID (default)
//   - "sqlite": an embedded SQLite database (modernc.org/sqlite, no cgo)
package storage
