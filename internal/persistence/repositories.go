package persistence

import (
	"context"
	"time"
)

// UserRepository stores user accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	ListStaff(ctx context.Context) ([]User, error)
}

// SessionFilter narrows session listings. Dates are inclusive "2006-01-02" bounds.
type SessionFilter struct {
	FromDate   string
	ToDate     string
	TrainerID  string
	AttendeeID string
}

// SessionRepository stores sessions and their attendance rows.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) error
	// CreateSessions inserts every session or none of them.
	CreateSessions(ctx context.Context, sessions []Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error)
	DeleteSession(ctx context.Context, id string) error
	// WithSessionLock runs fn inside a transaction that holds an exclusive
	// lock on the session row. The transaction commits when fn returns nil.
	WithSessionLock(ctx context.Context, id string, fn func(tx SessionTx) error) error
}

// SessionTx exposes the mutations allowed while a session is locked.
type SessionTx interface {
	// Session returns the locked session with its attendees as read at lock time.
	Session() Session
	UpdateSession(ctx context.Context, session Session) error
	InsertAttendee(ctx context.Context, attendee Attendee) error
	DeleteAttendee(ctx context.Context, userID string) (bool, error)
	SetAttended(ctx context.Context, attendeeID string, attended bool) error
}

// NoteRepository stores private notes.
type NoteRepository interface {
	CreateNote(ctx context.Context, note Note) error
	ListNotesByAuthor(ctx context.Context, authorID string) ([]Note, error)
	DeleteNote(ctx context.Context, id, authorID string) error
}

// RefreshTokenRepository stores refresh tokens that have not yet been exchanged.
type RefreshTokenRepository interface {
	SaveRefreshToken(ctx context.Context, token RefreshToken) error
	// ConsumeRefreshToken removes the token and returns it when it was present and unexpired.
	ConsumeRefreshToken(ctx context.Context, id string, now time.Time) (RefreshToken, error)
	DeleteExpiredRefreshTokens(ctx context.Context, reference time.Time) error
}
