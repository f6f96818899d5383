package sqlstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFiles embed.FS

// MigrationStatus reports the schema version after Migrate returns.
type MigrationStatus struct {
	Version uint
	Dirty   bool
	Applied bool
}

// Migrate applies every pending embedded migration for the store's dialect.
func (s *Store) Migrate(ctx context.Context) (status MigrationStatus, err error) {
	if s == nil || s.db == nil {
		return MigrationStatus{}, errors.New("sqlstore: store is not open")
	}

	logger := s.logger.With("dialect", s.dialect.name)
	logger.InfoContext(ctx, "applying database migrations")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "database migrations failed", "error", err)
			return
		}
		logger.InfoContext(ctx, "database migrations completed",
			"version", status.Version,
			"applied", status.Applied,
		)
	}()

	source, err := iofs.New(migrationFiles, "migrations/"+s.dialect.name)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("open migration source: %w", err)
	}
	defer source.Close()

	var driver database.Driver
	switch s.dialect.name {
	case DialectPostgres:
		driver, err = migratepostgres.WithInstance(s.db, &migratepostgres.Config{})
	default:
		driver, err = migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	}
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("open migration driver: %w", err)
	}

	// The migrate instance is not closed: closing it would close the shared *sql.DB.
	m, err := migrate.NewWithInstance("iofs", source, s.dialect.name, driver)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("initialise migrations: %w", err)
	}
	m.Log = migrateLogger{logger: logger}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return MigrationStatus{}, fmt.Errorf("apply migrations: %w", err)
		}
	} else {
		status.Applied = true
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, fmt.Errorf("read schema version: %w", err)
	}
	status.Version = version
	status.Dirty = dirty
	return status, nil
}

type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func (l migrateLogger) Verbose() bool {
	return false
}
