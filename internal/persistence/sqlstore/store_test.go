package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/example/gymflex/internal/persistence"
)

var baseTime = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "gym.db") +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	store, err := Open(context.Background(), DialectSQLite, dsn, Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	status, err := store.Migrate(context.Background())
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if status.Version != 2 || status.Dirty {
		t.Fatalf("unexpected migration status %+v", status)
	}
	return store
}

func seedUser(t *testing.T, store *Store, id, username string, staff bool) persistence.User {
	t.Helper()
	user := persistence.User{
		ID:           id,
		Username:     username,
		PasswordHash: "hash",
		IsStaff:      staff,
		CreatedAt:    baseTime,
		UpdatedAt:    baseTime,
	}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
	return user
}

func seedSession(t *testing.T, store *Store, id, trainerID, date string, capacity int) persistence.Session {
	t.Helper()
	session := persistence.Session{
		ID:              id,
		ActivityType:    "yoga",
		TrainerID:       trainerID,
		Date:            date,
		StartTime:       "09:00",
		DurationMinutes: 60,
		Capacity:        capacity,
		CreatedAt:       baseTime,
		UpdatedAt:       baseTime,
	}
	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("create session %s: %v", id, err)
	}
	return session
}

func book(ctx context.Context, store *Store, sessionID, userID string) error {
	return store.WithSessionLock(ctx, sessionID, func(tx persistence.SessionTx) error {
		return tx.InsertAttendee(ctx, persistence.Attendee{
			ID:        sessionID + "-" + userID,
			UserID:    userID,
			Attended:  true,
			CreatedAt: baseTime,
		})
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	status, err := store.Migrate(context.Background())
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if status.Applied || status.Version != 2 {
		t.Fatalf("expected no-op migration at version 2, got %+v", status)
	}
}

func TestOpenCompletesBareSQLitePath(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bare.db")
	store, err := Open(ctx, DialectSQLite, path, Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	var enabled int
	if err := store.db.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&enabled); err != nil {
		t.Fatalf("read pragma: %v", err)
	}
	if enabled != 1 {
		t.Fatalf("expected foreign keys to be enforced, got %d", enabled)
	}

	// An immediate transaction takes the write lock at BEGIN, so another
	// connection cannot write while it is open.
	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	other, err := sql.Open(DialectSQLite, "file:"+path+"?_pragma=busy_timeout(0)")
	if err != nil {
		t.Fatalf("open second handle: %v", err)
	}
	defer func() { _ = other.Close() }()
	if _, err := other.ExecContext(ctx, `CREATE TABLE lock_check (x INTEGER)`); err == nil {
		t.Fatalf("expected the open transaction to hold the write lock")
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	seedUser(t, store, "u1", " Alice ", false)
	seedUser(t, store, "t1", "coach", true)

	t.Run("lookup by id and username", func(t *testing.T) {
		user, err := store.GetUser(ctx, "u1")
		if err != nil {
			t.Fatalf("GetUser: %v", err)
		}
		if user.Username != "alice" || !user.CreatedAt.Equal(baseTime) {
			t.Fatalf("unexpected user %+v", user)
		}
		byName, err := store.GetUserByUsername(ctx, "ALICE")
		if err != nil || byName.ID != "u1" {
			t.Fatalf("GetUserByUsername = %+v, %v", byName, err)
		}
	})

	t.Run("duplicate username", func(t *testing.T) {
		err := store.CreateUser(ctx, persistence.User{ID: "u2", Username: "alice", PasswordHash: "x", CreatedAt: baseTime, UpdatedAt: baseTime})
		if !errors.Is(err, persistence.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("missing user", func(t *testing.T) {
		if _, err := store.GetUser(ctx, "nope"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("list staff", func(t *testing.T) {
		staff, err := store.ListStaff(ctx)
		if err != nil {
			t.Fatalf("ListStaff: %v", err)
		}
		if len(staff) != 1 || staff[0].ID != "t1" || !staff[0].IsStaff {
			t.Fatalf("unexpected staff %+v", staff)
		}
	})
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	seedUser(t, store, "t1", "coach", true)
	seedUser(t, store, "t2", "coach2", true)
	seedUser(t, store, "m1", "member", false)
	seedSession(t, store, "s1", "t1", "2025-03-10", 5)
	seedSession(t, store, "s2", "t2", "2025-03-11", 5)
	seedSession(t, store, "s3", "t1", "2025-03-12", 5)

	if err := book(ctx, store, "s2", "m1"); err != nil {
		t.Fatalf("book: %v", err)
	}

	t.Run("get includes trainer and attendees", func(t *testing.T) {
		session, err := store.GetSession(ctx, "s2")
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if session.TrainerUsername != "coach2" {
			t.Fatalf("unexpected trainer %q", session.TrainerUsername)
		}
		if len(session.Attendees) != 1 || session.Attendees[0].Username != "member" || !session.Attendees[0].Attended {
			t.Fatalf("unexpected attendees %+v", session.Attendees)
		}
	})

	t.Run("filters", func(t *testing.T) {
		cases := []struct {
			name   string
			filter persistence.SessionFilter
			want   []string
		}{
			{name: "all", want: []string{"s1", "s2", "s3"}},
			{name: "date range", filter: persistence.SessionFilter{FromDate: "2025-03-11", ToDate: "2025-03-12"}, want: []string{"s2", "s3"}},
			{name: "trainer", filter: persistence.SessionFilter{TrainerID: "t1"}, want: []string{"s1", "s3"}},
			{name: "attendee", filter: persistence.SessionFilter{AttendeeID: "m1"}, want: []string{"s2"}},
			{name: "empty", filter: persistence.SessionFilter{FromDate: "2026-01-01"}, want: []string{}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				sessions, err := store.ListSessions(ctx, tc.filter)
				if err != nil {
					t.Fatalf("ListSessions: %v", err)
				}
				if len(sessions) != len(tc.want) {
					t.Fatalf("expected %d sessions, got %d", len(tc.want), len(sessions))
				}
				for i, id := range tc.want {
					if sessions[i].ID != id {
						t.Fatalf("position %d: expected %s, got %s", i, id, sessions[i].ID)
					}
				}
			})
		}
	})

	t.Run("duplicate booking", func(t *testing.T) {
		err := store.WithSessionLock(ctx, "s2", func(tx persistence.SessionTx) error {
			return tx.InsertAttendee(ctx, persistence.Attendee{ID: "other", UserID: "m1", Attended: true, CreatedAt: baseTime})
		})
		if !errors.Is(err, persistence.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("locked mutations", func(t *testing.T) {
		err := store.WithSessionLock(ctx, "s2", func(tx persistence.SessionTx) error {
			session := tx.Session()
			if err := tx.SetAttended(ctx, session.Attendees[0].ID, false); err != nil {
				return err
			}
			if err := tx.SetAttended(ctx, "missing", true); !errors.Is(err, persistence.ErrNotFound) {
				return fmt.Errorf("expected ErrNotFound for unknown attendee, got %v", err)
			}
			session.Capacity = 3
			session.UpdatedAt = baseTime.Add(time.Hour)
			return tx.UpdateSession(ctx, session)
		})
		if err != nil {
			t.Fatalf("WithSessionLock: %v", err)
		}
		session, _ := store.GetSession(ctx, "s2")
		if session.Capacity != 3 || session.Attendees[0].Attended {
			t.Fatalf("mutations not persisted: %+v", session)
		}
	})

	t.Run("delete attendee", func(t *testing.T) {
		var removed, again bool
		err := store.WithSessionLock(ctx, "s2", func(tx persistence.SessionTx) error {
			var err error
			if removed, err = tx.DeleteAttendee(ctx, "m1"); err != nil {
				return err
			}
			again, err = tx.DeleteAttendee(ctx, "m1")
			return err
		})
		if err != nil || !removed || again {
			t.Fatalf("DeleteAttendee removed=%v again=%v err=%v", removed, again, err)
		}
	})

	t.Run("rollback on error", func(t *testing.T) {
		sentinel := errors.New("abort")
		err := store.WithSessionLock(ctx, "s1", func(tx persistence.SessionTx) error {
			if err := tx.InsertAttendee(ctx, persistence.Attendee{ID: "a", UserID: "m1", Attended: true, CreatedAt: baseTime}); err != nil {
				return err
			}
			return sentinel
		})
		if !errors.Is(err, sentinel) {
			t.Fatalf("expected sentinel, got %v", err)
		}
		session, _ := store.GetSession(ctx, "s1")
		if len(session.Attendees) != 0 {
			t.Fatalf("expected rollback, got %+v", session.Attendees)
		}
	})

	t.Run("lock on missing session", func(t *testing.T) {
		err := store.WithSessionLock(ctx, "missing", func(persistence.SessionTx) error { return nil })
		if !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("delete session", func(t *testing.T) {
		if err := book(ctx, store, "s3", "m1"); err != nil {
			t.Fatalf("book: %v", err)
		}
		if err := store.DeleteSession(ctx, "s3"); err != nil {
			t.Fatalf("DeleteSession: %v", err)
		}
		if err := store.DeleteSession(ctx, "s3"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, err := store.GetSession(ctx, "s3"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected session to be gone, got %v", err)
		}
	})
}

func TestWithSessionLockSerializesLastSlot(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	seedUser(t, store, "t1", "coach", true)
	seedSession(t, store, "s1", "t1", "2025-03-10", 2)

	const members = 10
	for i := 0; i < members; i++ {
		seedUser(t, store, fmt.Sprintf("m%d", i), fmt.Sprintf("member%d", i), false)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		booked int
		full   int
	)
	for i := 0; i < members; i++ {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			err := store.WithSessionLock(ctx, "s1", func(tx persistence.SessionTx) error {
				session := tx.Session()
				if len(session.Attendees) >= session.Capacity {
					mu.Lock()
					full++
					mu.Unlock()
					return nil
				}
				if err := tx.InsertAttendee(ctx, persistence.Attendee{ID: "a-" + userID, UserID: userID, Attended: true, CreatedAt: baseTime}); err != nil {
					return err
				}
				mu.Lock()
				booked++
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("booking for %s failed: %v", userID, err)
			}
		}(fmt.Sprintf("m%d", i))
	}
	wg.Wait()

	if booked != 2 || full != members-2 {
		t.Fatalf("expected 2 booked and %d full, got %d and %d", members-2, booked, full)
	}
	session, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(session.Attendees) != 2 {
		t.Fatalf("expected 2 attendees, got %d", len(session.Attendees))
	}
}

func TestNotes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedUser(t, store, "u1", "alice", false)
	seedUser(t, store, "u2", "bob", false)

	for i, title := range []string{"first", "second"} {
		note := persistence.Note{ID: fmt.Sprintf("n%d", i), AuthorID: "u1", Title: title, CreatedAt: baseTime.Add(time.Duration(i) * time.Minute), UpdatedAt: baseTime}
		if err := store.CreateNote(ctx, note); err != nil {
			t.Fatalf("CreateNote: %v", err)
		}
	}

	notes, err := store.ListNotesByAuthor(ctx, "u1")
	if err != nil {
		t.Fatalf("ListNotesByAuthor: %v", err)
	}
	if len(notes) != 2 || notes[0].Title != "second" {
		t.Fatalf("unexpected notes %+v", notes)
	}
	if others, _ := store.ListNotesByAuthor(ctx, "u2"); len(others) != 0 {
		t.Fatalf("expected no notes for bob, got %+v", others)
	}

	if err := store.DeleteNote(ctx, "n0", "u2"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting another user's note, got %v", err)
	}
	if err := store.DeleteNote(ctx, "n0", "u1"); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}

	long := make([]byte, 101)
	for i := range long {
		long[i] = 'x'
	}
	err = store.CreateNote(ctx, persistence.Note{ID: "n9", AuthorID: "u1", Title: string(long), CreatedAt: baseTime, UpdatedAt: baseTime})
	if !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation for long title, got %v", err)
	}
}

func TestRefreshTokens(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedUser(t, store, "u1", "alice", false)

	save := func(id string, expires time.Time) {
		t.Helper()
		if err := store.SaveRefreshToken(ctx, persistence.RefreshToken{ID: id, UserID: "u1", ExpiresAt: expires, CreatedAt: baseTime}); err != nil {
			t.Fatalf("SaveRefreshToken: %v", err)
		}
	}
	save("live", baseTime.Add(time.Hour))
	save("stale", baseTime.Add(-time.Minute))
	save("old", baseTime.Add(-time.Hour))

	token, err := store.ConsumeRefreshToken(ctx, "live", baseTime)
	if err != nil || token.UserID != "u1" {
		t.Fatalf("ConsumeRefreshToken = %+v, %v", token, err)
	}
	if _, err := store.ConsumeRefreshToken(ctx, "live", baseTime); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected second consume to fail, got %v", err)
	}
	if _, err := store.ConsumeRefreshToken(ctx, "stale", baseTime); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}

	if err := store.DeleteExpiredRefreshTokens(ctx, baseTime); err != nil {
		t.Fatalf("DeleteExpiredRefreshTokens: %v", err)
	}
	if _, err := store.ConsumeRefreshToken(ctx, "old", baseTime.Add(-2*time.Hour)); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected purged token, got %v", err)
	}
}

func TestCreateSessionsIsAtomic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	trainer := seedUser(t, store, "staff-1", "coach", true)

	batch := func(ids ...string) []persistence.Session {
		sessions := make([]persistence.Session, 0, len(ids))
		for i, id := range ids {
			sessions = append(sessions, persistence.Session{
				ID:              id,
				ActivityType:    "hiit",
				TrainerID:       trainer.ID,
				Date:            fmt.Sprintf("2025-03-%02d", 10+i),
				StartTime:       "09:00",
				DurationMinutes: 60,
				Capacity:        10,
				CreatedAt:       baseTime,
				UpdatedAt:       baseTime,
			})
		}
		return sessions
	}

	if err := store.CreateSessions(ctx, nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}

	err := store.CreateSessions(ctx, batch("s-1", "s-2", "s-1"))
	if !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	listed, err := store.ListSessions(ctx, persistence.SessionFilter{})
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected failed batch to roll back, found %d sessions", len(listed))
	}

	if err := store.CreateSessions(ctx, batch("s-1", "s-2", "s-3")); err != nil {
		t.Fatalf("create batch: %v", err)
	}
	listed, err = store.ListSessions(ctx, persistence.SessionFilter{TrainerID: trainer.ID})
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(listed))
	}
}
