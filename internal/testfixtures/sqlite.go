package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/gymflex/internal/persistence"
	"github.com/example/gymflex/internal/persistence/sqlstore"
)

// SQLiteHarness provides repository access backed by a migrated SQLite file
// in a temporary directory.
type SQLiteHarness struct {
	Store         *sqlstore.Store
	Users         persistence.UserRepository
	Sessions      persistence.SessionRepository
	Notes         persistence.NoteRepository
	RefreshTokens persistence.RefreshTokenRepository
	DSN           string

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// SQLiteDSN returns a DSN for a database file at path with the pragmas the
// service relies on.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
}

// NewSQLiteHarness opens and migrates a fresh database. Close is registered
// with tb.Cleanup.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	dsn := SQLiteDSN(filepath.Join(tb.TempDir(), "gymflex.db"))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := sqlstore.Open(ctx, sqlstore.DialectSQLite, dsn, sqlstore.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	if _, err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Store:         store,
		Users:         store,
		Sessions:      store,
		Notes:         store,
		RefreshTokens: store,
		DSN:           dsn,
		cleanup: func() {
			_ = store.Close()
		},
	}
	tb.Cleanup(harness.Close)
	return harness
}

// SeedUser stores fixture and returns the stored record.
func (h *SQLiteHarness) SeedUser(tb testing.TB, fixture UserFixture) persistence.User {
	tb.Helper()
	user := fixture.Persistence()
	if err := h.Users.CreateUser(context.Background(), user); err != nil {
		tb.Fatalf("failed to seed user %s: %v", user.Username, err)
	}
	return user
}

// SeedSession stores fixture and books each of attendeeIDs onto it.
func (h *SQLiteHarness) SeedSession(tb testing.TB, fixture SessionFixture, attendeeIDs ...string) persistence.Session {
	tb.Helper()
	ctx := context.Background()
	session := fixture.Persistence()
	if err := h.Sessions.CreateSession(ctx, session); err != nil {
		tb.Fatalf("failed to seed session %s: %v", session.ID, err)
	}
	if len(attendeeIDs) == 0 {
		return session
	}

	err := h.Sessions.WithSessionLock(ctx, session.ID, func(tx persistence.SessionTx) error {
		for i, userID := range attendeeIDs {
			if err := tx.InsertAttendee(ctx, persistence.Attendee{
				ID:        session.ID + "-att-" + string(rune('a'+i)),
				SessionID: session.ID,
				UserID:    userID,
				Attended:  true,
				CreatedAt: referenceTime,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		tb.Fatalf("failed to book session %s: %v", session.ID, err)
	}

	stored, err := h.Sessions.GetSession(ctx, session.ID)
	if err != nil {
		tb.Fatalf("failed to reload session %s: %v", session.ID, err)
	}
	return stored
}
