package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"strings"

	logx "estatecron/pkg/logx"
)

//go:embed migrations_sqlite.sql migrations_postgres.sql
var migrationsFS embed.FS

// Store is the database handle shared by every job and the extension workflow.
// Callers depend on the narrow interfaces they declare, not on Store itself.
type Store struct {
	db      *sql.DB
	dialect dialect
	log     logx.Logger
}

// Open connects to the configured database and applies migrations.
func Open(ctx context.Context, cfg Config, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))

	var (
		db  *sql.DB
		d   dialect
		err error
	)
	switch driver {
	case "", "sqlite", "sqlite3":
		db, err = openSQLite(ctx, cfg)
		d = dialectSQLite
	case "postgres", "postgresql", "pgx":
		db, err = openPostgres(ctx, cfg)
		d = dialectPostgres
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, dialect: d, log: log.With(logx.String("comp", "storage"), logx.String("driver", d.name()))}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies the idempotent schema for the active driver.
func (s *Store) Migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile(s.dialect.migrationsFile())
	if err != nil {
		return err
	}
	// pgx's extended protocol rejects multi-statement strings, so statements
	// are applied one at a time on both drivers.
	for _, stmt := range splitStatements(string(b)) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return wrap("migrate", err)
		}
	}
	s.log.Debug("migrations applied")
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the connection is usable.
func (s *Store) Ping(ctx context.Context) error {
	return wrap("ping", s.db.PingContext(ctx))
}

func splitStatements(src string) []string {
	var out []string
	var b strings.Builder
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			if stmt := strings.TrimSpace(b.String()); stmt != ";" {
				out = append(out, stmt)
			}
			b.Reset()
		}
	}
	if stmt := strings.TrimSpace(b.String()); stmt != "" {
		out = append(out, stmt)
	}
	return out
}
