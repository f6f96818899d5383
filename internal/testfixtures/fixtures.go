package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/gymflex/internal/application"
	"github.com/example/gymflex/internal/persistence"
)

var (
	userCounter    uint64
	sessionCounter uint64
)

// referenceTime is a Monday morning; classes are placed relative to it.
var referenceTime = time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserFixture is a deterministic member or staff account.
type UserFixture struct {
	ID           string
	Username     string
	PasswordHash string
	IsStaff      bool
	IsSuperuser  bool
	CreatedAt    time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a member fixture with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	fixture := UserFixture{
		ID:           fmt.Sprintf("user-%03d", idx),
		Username:     fmt.Sprintf("member%03d", idx),
		PasswordHash: fmt.Sprintf("hash-%03d", idx),
		CreatedAt:    referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) { f.ID = id }
}

// WithUsername overrides the generated username.
func WithUsername(username string) UserOption {
	return func(f *UserFixture) { f.Username = username }
}

// WithPasswordHash stores hash as the account's password hash.
func WithPasswordHash(hash string) UserOption {
	return func(f *UserFixture) { f.PasswordHash = hash }
}

// AsStaff marks the account as a trainer.
func AsStaff() UserOption {
	return func(f *UserFixture) { f.IsStaff = true }
}

// AsSuperuser marks the account as an administrator with staff rights.
func AsSuperuser() UserOption {
	return func(f *UserFixture) {
		f.IsStaff = true
		f.IsSuperuser = true
	}
}

// WithUserCreatedAt sets the creation timestamp, which orders staff listings.
func WithUserCreatedAt(t time.Time) UserOption {
	return func(f *UserFixture) { f.CreatedAt = t }
}

// Persistence returns the fixture as a persistence.User value.
func (f UserFixture) Persistence() persistence.User {
	return persistence.User{
		ID:           f.ID,
		Username:     f.Username,
		PasswordHash: f.PasswordHash,
		IsStaff:      f.IsStaff,
		IsSuperuser:  f.IsSuperuser,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.CreatedAt,
	}
}

// Application returns the fixture as an application.User value.
func (f UserFixture) Application() application.User {
	return application.User{
		ID:          f.ID,
		Username:    f.Username,
		IsStaff:     f.IsStaff,
		IsSuperuser: f.IsSuperuser,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.CreatedAt,
	}
}

// Principal returns the identity acting as this user.
func (f UserFixture) Principal() application.Principal {
	return application.PrincipalFor(f.Application())
}

// ---------------------------- Session fixtures ----------------------------

// SessionFixture is a deterministic class.
type SessionFixture struct {
	ID              string
	ActivityType    string
	TrainerID       string
	Start           time.Time
	DurationMinutes int
	Capacity        int
}

// SessionOption configures the generated session fixture.
type SessionOption func(*SessionFixture)

// NewSessionFixture returns a one hour class starting a day after
// ReferenceTime, with optional overrides. The trainer must be set before the
// fixture is stored.
func NewSessionFixture(opts ...SessionOption) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	fixture := SessionFixture{
		ID:              fmt.Sprintf("session-%03d", idx),
		ActivityType:    string(application.ActivityYoga),
		Start:           referenceTime.Add(24 * time.Hour),
		DurationMinutes: application.DefaultDurationMinutes,
		Capacity:        application.DefaultCapacity,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) SessionOption {
	return func(f *SessionFixture) { f.ID = id }
}

// WithTrainer assigns the class to trainerID.
func WithTrainer(trainerID string) SessionOption {
	return func(f *SessionFixture) { f.TrainerID = trainerID }
}

// WithStart sets the start instant. The wall clock is stored in the instant's location.
func WithStart(start time.Time) SessionOption {
	return func(f *SessionFixture) { f.Start = start }
}

// WithCapacity overrides the number of slots.
func WithCapacity(capacity int) SessionOption {
	return func(f *SessionFixture) { f.Capacity = capacity }
}

// WithActivity overrides the activity type.
func WithActivity(activity application.ActivityType) SessionOption {
	return func(f *SessionFixture) { f.ActivityType = string(activity) }
}

// Persistence returns the fixture as a persistence.Session without attendees.
func (f SessionFixture) Persistence() persistence.Session {
	return persistence.Session{
		ID:              f.ID,
		ActivityType:    f.ActivityType,
		TrainerID:       f.TrainerID,
		Date:            f.Start.Format(application.DateLayout),
		StartTime:       f.Start.Format(application.TimeLayout),
		DurationMinutes: f.DurationMinutes,
		Capacity:        f.Capacity,
		CreatedAt:       referenceTime,
		UpdatedAt:       referenceTime,
	}
}
