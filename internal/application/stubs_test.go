package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/gymflex/internal/persistence"
)

// sessionStore is an in-memory SessionRepository, SessionLocker and
// UserDirectory. Locked units work on a copy that is committed only when the
// callback succeeds.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	users    map[string]User

	createErr error
	listErr   error
	lockCalls int
}

func newSessionStore(users ...User) *sessionStore {
	s := &sessionStore{sessions: map[string]Session{}, users: map[string]User{}}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *sessionStore) put(session Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = cloneTestSession(session)
}

func (s *sessionStore) get(id string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTestSession(s.sessions[id])
}

func (s *sessionStore) CreateSession(ctx context.Context, session Session) error {
	return s.CreateSessions(ctx, []Session{session})
}

func (s *sessionStore) CreateSessions(ctx context.Context, sessions []Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	for _, session := range sessions {
		if _, ok := s.sessions[session.ID]; ok {
			return persistence.ErrDuplicate
		}
	}
	for _, session := range sessions {
		s.sessions[session.ID] = cloneTestSession(session)
	}
	return nil
}

func (s *sessionStore) GetSession(ctx context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return Session{}, persistence.ErrNotFound
	}
	return cloneTestSession(session), nil
}

func (s *sessionStore) ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]Session, 0)
	for _, session := range s.sessions {
		if filter.FromDate != "" && session.Date < filter.FromDate {
			continue
		}
		if filter.ToDate != "" && session.Date > filter.ToDate {
			continue
		}
		if filter.TrainerID != "" && session.TrainerID != filter.TrainerID {
			continue
		}
		if filter.AttendeeID != "" {
			if _, ok := session.AttendeeFor(filter.AttendeeID); !ok {
				continue
			}
		}
		out = append(out, cloneTestSession(session))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *sessionStore) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *sessionStore) GetUser(ctx context.Context, id string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return User{}, persistence.ErrNotFound
	}
	return user, nil
}

func (s *sessionStore) WithSessionLock(ctx context.Context, id string, fn func(LockedSession) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockCalls++
	session, ok := s.sessions[id]
	if !ok {
		return persistence.ErrNotFound
	}
	tx := &lockedStub{session: cloneTestSession(session)}
	if err := fn(tx); err != nil {
		return err
	}
	s.sessions[id] = tx.session
	return nil
}

type lockedStub struct {
	session Session
	addErr  error
}

func (l *lockedStub) Session() Session { return cloneTestSession(l.session) }

func (l *lockedStub) UpdateSession(ctx context.Context, session Session) error {
	attendees := l.session.Attendees
	l.session = cloneTestSession(session)
	l.session.Attendees = attendees
	return nil
}

func (l *lockedStub) AddAttendee(ctx context.Context, attendee Attendee) error {
	if l.addErr != nil {
		return l.addErr
	}
	if _, ok := l.session.AttendeeFor(attendee.UserID); ok {
		return persistence.ErrDuplicate
	}
	l.session.Attendees = append(l.session.Attendees, attendee)
	return nil
}

func (l *lockedStub) RemoveAttendee(ctx context.Context, userID string) (bool, error) {
	for i, a := range l.session.Attendees {
		if a.UserID == userID {
			l.session.Attendees = append(l.session.Attendees[:i:i], l.session.Attendees[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (l *lockedStub) SetAttended(ctx context.Context, attendeeID string, attended bool) error {
	for i, a := range l.session.Attendees {
		if a.ID == attendeeID {
			l.session.Attendees[i].Attended = attended
			return nil
		}
	}
	return persistence.ErrNotFound
}

func cloneTestSession(session Session) Session {
	out := session
	if session.Attendees != nil {
		out.Attendees = append([]Attendee(nil), session.Attendees...)
	}
	return out
}

// sequentialIDs returns a generator yielding prefix-1, prefix-2, ...
func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var (
	testNow     = time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC) // Wednesday
	staffUser   = User{ID: "staff-1", Username: "coach", IsStaff: true}
	memberUser  = User{ID: "member-1", Username: "alice"}
	otherMember = User{ID: "member-2", Username: "bob"}
)

func sessionAt(id string, start time.Time, capacity int, attendees ...Attendee) Session {
	return Session{
		ID:              id,
		ActivityType:    ActivityYoga,
		TrainerID:       staffUser.ID,
		TrainerUsername: staffUser.Username,
		Date:            start.Format(DateLayout),
		StartTime:       start.Format(TimeLayout),
		DurationMinutes: 60,
		Capacity:        capacity,
		Attendees:       append([]Attendee{}, attendees...),
	}
}

func attendeeFor(user User, id string) Attendee {
	return Attendee{ID: id, UserID: user.ID, Username: user.Username, Attended: true}
}
