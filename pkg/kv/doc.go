// Package kv defines the key-value persistence collaborator used by the
// credential vault, the settings manager and the session tracker.
//
// Backends live in subpackages:
//   - memory: process-local map, the default and the test backend
//   - file: a single JSON file with atomic replacement
//   - postgres: pgx/v5 pool with embedded migrations
//   - sqlite: gorm on the pure-Go modernc.org/sqlite driver
//
// [WriteAll] applies a group of writes so that either all of them or none
// of them persist. Backends implementing [Batcher] do this natively;
// otherwise WriteAll snapshots the affected keys and restores them when a
// write fails.
package kv
