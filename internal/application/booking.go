package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/gymflex/internal/persistence"
)

// DefaultCancellationLockout is the period before a class starts during which
// members may no longer cancel.
const DefaultCancellationLockout = 30 * time.Minute

// BookingStatus is the business outcome of a booking engine operation.
// Values double as the status strings returned to clients.
type BookingStatus string

const (
	StatusBooked        BookingStatus = "Booked"
	StatusUnbooked      BookingStatus = "Unbooked"
	StatusFull          BookingStatus = "Full"
	StatusPast          BookingStatus = "past"
	StatusTooLate       BookingStatus = "too_late"
	StatusRemoved       BookingStatus = "removed"
	StatusNotBooked     BookingStatus = "not_booked"
	StatusFutureSession BookingStatus = "future_session"
	StatusUpdated       BookingStatus = "updated"
)

// Succeeded reports whether the status represents an applied change.
func (s BookingStatus) Succeeded() bool {
	switch s {
	case StatusBooked, StatusUnbooked, StatusRemoved, StatusUpdated:
		return true
	default:
		return false
	}
}

// AttendanceResult is returned by MarkAttendance.
type AttendanceResult struct {
	Status   BookingStatus
	Attended bool
	UserID   string
	Username string
}

// SessionLocker runs fn with exclusive access to one session. The store
// commits when fn returns nil and rolls back otherwise.
type SessionLocker interface {
	WithSessionLock(ctx context.Context, sessionID string, fn func(LockedSession) error) error
}

// LockedSession exposes the mutations allowed while a session is locked.
type LockedSession interface {
	Session() Session
	UpdateSession(ctx context.Context, session Session) error
	AddAttendee(ctx context.Context, attendee Attendee) error
	RemoveAttendee(ctx context.Context, userID string) (bool, error)
	SetAttended(ctx context.Context, attendeeID string, attended bool) error
}

// UserDirectory resolves user accounts by id.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (User, error)
}

// BookingObserver receives every business outcome produced by the engine.
type BookingObserver interface {
	ObserveBooking(operation string, status BookingStatus)
}

// BookingPolicy holds the tunable rules of the booking engine.
type BookingPolicy struct {
	// Location interprets session dates and times. Nil means UTC.
	Location *time.Location
	// CancellationLockout is applied verbatim; zero disables the lockout.
	CancellationLockout time.Duration
	Observer            BookingObserver
}

// errBookingRace aborts the transaction when the uniqueness constraint
// rejects an insert that the locked read allowed.
var errBookingRace = errors.New("application: booking lost race")

// BookingEngine owns the booking toggle, staff removal and attendance marking.
type BookingEngine struct {
	sessions    SessionLocker
	users       UserDirectory
	idGenerator func() string
	now         func() time.Time
	policy      BookingPolicy
	logger      *slog.Logger
}

// NewBookingEngine wires dependencies for the booking engine.
func NewBookingEngine(sessions SessionLocker, users UserDirectory, idGenerator func() string, now func() time.Time, policy BookingPolicy) *BookingEngine {
	return NewBookingEngineWithLogger(sessions, users, idGenerator, now, policy, nil)
}

// NewBookingEngineWithLogger wires dependencies for the booking engine with a specified logger.
func NewBookingEngineWithLogger(sessions SessionLocker, users UserDirectory, idGenerator func() string, now func() time.Time, policy BookingPolicy, logger *slog.Logger) *BookingEngine {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	if policy.CancellationLockout < 0 {
		policy.CancellationLockout = 0
	}
	return &BookingEngine{
		sessions:    sessions,
		users:       users,
		idGenerator: idGenerator,
		now:         now,
		policy:      policy,
		logger:      defaultLogger(logger),
	}
}

func (e *BookingEngine) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, e.logger, "BookingEngine", operation, attrs...)
}

func (e *BookingEngine) observe(operation string, status BookingStatus) {
	if e.policy.Observer != nil && status != "" {
		e.policy.Observer.ObserveBooking(operation, status)
	}
}

// ToggleBooking books the principal onto the session, or cancels an existing
// booking. The first failing rule wins: a started session is Past whatever
// the direction; a new booking needs a free slot; a cancellation by a
// non-staff member inside the lockout window is TooLate.
func (e *BookingEngine) ToggleBooking(ctx context.Context, principal Principal, sessionID string) (status BookingStatus, err error) {
	if e == nil {
		err = fmt.Errorf("BookingEngine is nil")
		return
	}

	logger := e.loggerWith(ctx, "ToggleBooking",
		"principal_id", principal.UserID,
		"session_id", sessionID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "booking toggle failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		e.observe("toggle", status)
		logger.InfoContext(ctx, "booking toggle evaluated", "status", string(status))
	}()

	if !principal.Authenticated() {
		err = ErrUnauthorized
		return
	}

	now := e.now()
	err = e.sessions.WithSessionLock(ctx, sessionID, func(tx LockedSession) error {
		session := tx.Session()
		start, err := session.StartIn(e.policy.Location)
		if err != nil {
			return err
		}
		if !start.After(now) {
			status = StatusPast
			return nil
		}

		if _, booked := session.AttendeeFor(principal.UserID); booked {
			if !principal.IsStaff && start.Sub(now) <= e.policy.CancellationLockout {
				status = StatusTooLate
				return nil
			}
			if _, err := tx.RemoveAttendee(ctx, principal.UserID); err != nil {
				return err
			}
			status = StatusUnbooked
			return nil
		}

		if len(session.Attendees) >= session.Capacity {
			status = StatusFull
			return nil
		}
		err = tx.AddAttendee(ctx, Attendee{
			ID:        e.idGenerator(),
			UserID:    principal.UserID,
			Username:  principal.Username,
			Attended:  true,
			CreatedAt: now,
		})
		if errors.Is(err, persistence.ErrDuplicate) || errors.Is(err, ErrAlreadyExists) {
			return errBookingRace
		}
		if err != nil {
			return err
		}
		status = StatusBooked
		return nil
	})
	if errors.Is(err, errBookingRace) {
		status, err = StatusFull, nil
		return
	}
	if err != nil {
		status = ""
		err = mapSessionRepoError(err)
	}
	return
}

// RemoveAttendee cancels targetUserID's booking on behalf of staff. There is
// no time window restriction.
func (e *BookingEngine) RemoveAttendee(ctx context.Context, principal Principal, sessionID, targetUserID string) (status BookingStatus, err error) {
	if e == nil {
		err = fmt.Errorf("BookingEngine is nil")
		return
	}

	targetUserID = strings.TrimSpace(targetUserID)
	logger := e.loggerWith(ctx, "RemoveAttendee",
		"principal_id", principal.UserID,
		"session_id", sessionID,
		"target_user_id", targetUserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "attendee removal failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		e.observe("remove_attendee", status)
		logger.InfoContext(ctx, "attendee removal evaluated", "status", string(status))
	}()

	if !principal.Authenticated() {
		err = ErrUnauthorized
		return
	}
	if !principal.IsStaff {
		err = ErrForbidden
		return
	}
	if targetUserID == "" {
		err = newValidationError("user_id", "user_id is required")
		return
	}

	// Resolved before locking: the locked unit must only use its transaction.
	if e.users != nil {
		if _, err = e.users.GetUser(ctx, targetUserID); err != nil {
			if isNotFoundError(err) {
				err = ErrUserNotFound
			}
			return
		}
	}

	err = e.sessions.WithSessionLock(ctx, sessionID, func(tx LockedSession) error {
		removed, err := tx.RemoveAttendee(ctx, targetUserID)
		if err != nil {
			return err
		}
		if removed {
			status = StatusRemoved
		} else {
			status = StatusNotBooked
		}
		return nil
	})
	if err != nil {
		status = ""
		err = mapSessionRepoError(err)
	}
	return
}

// MarkAttendance records whether the holder of attendanceID turned up. Only
// sessions that have started may be marked.
func (e *BookingEngine) MarkAttendance(ctx context.Context, principal Principal, sessionID, attendanceID string, attended bool) (result AttendanceResult, err error) {
	if e == nil {
		err = fmt.Errorf("BookingEngine is nil")
		return
	}

	attendanceID = strings.TrimSpace(attendanceID)
	logger := e.loggerWith(ctx, "MarkAttendance",
		"principal_id", principal.UserID,
		"session_id", sessionID,
		"attendance_id", attendanceID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "attendance marking failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		e.observe("mark_attendance", result.Status)
		logger.InfoContext(ctx, "attendance marking evaluated", "status", string(result.Status), "attended", result.Attended)
	}()

	if !principal.Authenticated() {
		err = ErrUnauthorized
		return
	}
	if !principal.IsStaff {
		err = ErrForbidden
		return
	}
	if attendanceID == "" {
		err = newValidationError("attendance_id", "attendance_id is required")
		return
	}

	now := e.now()
	err = e.sessions.WithSessionLock(ctx, sessionID, func(tx LockedSession) error {
		session := tx.Session()
		start, err := session.StartIn(e.policy.Location)
		if err != nil {
			return err
		}
		if start.After(now) {
			result = AttendanceResult{Status: StatusFutureSession}
			return nil
		}

		var (
			record Attendee
			found  bool
		)
		for _, a := range session.Attendees {
			if a.ID == attendanceID {
				record, found = a, true
				break
			}
		}
		if !found {
			return ErrAttendanceNotFound
		}

		if err := tx.SetAttended(ctx, record.ID, attended); err != nil {
			if isNotFoundError(err) {
				return ErrAttendanceNotFound
			}
			return err
		}
		result = AttendanceResult{
			Status:   StatusUpdated,
			Attended: attended,
			UserID:   record.UserID,
			Username: record.Username,
		}
		return nil
	})
	if err != nil {
		result = AttendanceResult{}
		err = mapSessionRepoError(err)
	}
	return
}

func mapSessionRepoError(err error) error {
	if err == nil {
		return nil
	}
	// Scoped application errors pass through unchanged.
	if errors.Is(err, ErrNotFound) {
		return err
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrSessionNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		return newValidationError("session", "values violate session constraints")
	}
	if errors.Is(err, persistence.ErrForeignKeyViolation) {
		return newValidationError("trainer_id", "trainer does not exist")
	}
	return err
}

func isNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound)
}
