package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrOpenExtensionExists is returned when a reservation already has a
	// pending or paid extension request.
	ErrOpenExtensionExists = errors.New("open extension request exists")
	// ErrStaleTransition is returned when a conditional status update matched no row.
	ErrStaleTransition = errors.New("row not in expected state")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL at DSN
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// OpError wraps a store failure with the operation that failed.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }
func (e *OpError) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
	}
	return &OpError{Op: op, Err: err}
}

func ms(t time.Time) int64 { return t.UnixMilli() }

func fromMS(v int64) time.Time { return time.UnixMilli(v).UTC() }

func nullMS(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMS(v.Int64)
	return &t
}
