// Package storage is the relational store the lifecycle engine runs against.
//
// It supports two drivers behind database/sql:
//   - "sqlite": modernc.org/sqlite, a single file (default; used by tests)
//   - "postgres": jackc/pgx/v5 stdlib driver
//
// Both share one set of queries written with "?" placeholders; the postgres
// dialect rebinds them to $n. Timestamps are stored as unix milliseconds so the
// same predicates evaluate identically on both engines.
//
// Every transition batch is a single conditional statement ("UPDATE ... WHERE
// <predicate> RETURNING id") or a single transaction, never a read-then-write
// round trip, so overlapping sweeps can at worst redo an idempotent no-op.
package storage
