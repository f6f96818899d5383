// Package sqlstore implements the persistence repositories on database/sql.
//
// Two dialects are supported: SQLite through modernc.org/sqlite (the default,
// pure Go) and PostgreSQL through github.com/lib/pq. Queries are written with
// "?" placeholders and rebound per dialect. Schema changes ship as embedded
// golang-migrate migrations.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/example/gymflex/internal/persistence"
)

// timestampLayout is fixed width so stored timestamps compare lexically.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// Options tunes the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Logger          *slog.Logger
}

// Store implements the persistence repositories for one database.
type Store struct {
	db      *sql.DB
	dialect dialect
	mapper  *ErrorMapper
	logger  *slog.Logger
}

var (
	_ persistence.UserRepository         = (*Store)(nil)
	_ persistence.SessionRepository      = (*Store)(nil)
	_ persistence.NoteRepository         = (*Store)(nil)
	_ persistence.RefreshTokenRepository = (*Store)(nil)
)

// Open connects to the database identified by driver ("sqlite" or "postgres") and dsn.
func Open(ctx context.Context, driver, dsn string, opts Options) (*Store, error) {
	name := strings.ToLower(strings.TrimSpace(driver))
	if name == "" {
		name = DialectSQLite
	}
	if name != DialectSQLite && name != DialectPostgres {
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlstore: dsn is required")
	}

	if name == DialectSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", name, err)
	}

	if name == DialectSQLite {
		// One connection serializes writers so booking transactions never
		// interleave and never hit SQLITE_BUSY on lock upgrade.
		db.SetMaxOpenConns(1)
	} else if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: ping %s: %w", name, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		db:      db,
		dialect: dialect{name: name},
		mapper:  NewErrorMapper(),
		logger:  logger.With("component", "sqlstore"),
	}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) exec(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, q querier, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, q querier, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTransaction runs fn inside a transaction, rolling back on error or panic.
func (s *Store) withTransaction(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", s.mapper.MapError(err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", s.mapper.MapError(err))
	}
	return nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, value)
	if err != nil {
		// Rows written by hand may carry plain RFC 3339.
		return time.Parse(time.RFC3339Nano, value)
	}
	return t, nil
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
