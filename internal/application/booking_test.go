package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/gymflex/internal/persistence"
)

type observerStub struct {
	mu     sync.Mutex
	events []string
}

func (o *observerStub) ObserveBooking(operation string, status BookingStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, operation+":"+string(status))
}

func newTestEngine(store *sessionStore, now time.Time, observer BookingObserver) *BookingEngine {
	return NewBookingEngine(store, store, sequentialIDs("att"), fixedClock(now), BookingPolicy{
		CancellationLockout: DefaultCancellationLockout,
		Observer:            observer,
	})
}

func TestBookingEngine_ToggleBooking(t *testing.T) {
	ctx := context.Background()
	member := PrincipalFor(memberUser)

	t.Run("books a free slot and cancels it again", func(t *testing.T) {
		store := newSessionStore(staffUser, memberUser)
		store.put(sessionAt("s1", testNow.Add(2*time.Hour), 2))
		observer := &observerStub{}
		engine := newTestEngine(store, testNow, observer)

		status, err := engine.ToggleBooking(ctx, member, "s1")
		if err != nil || status != StatusBooked {
			t.Fatalf("expected Booked, got %q, %v", status, err)
		}
		stored := store.get("s1")
		attendee, ok := stored.AttendeeFor(memberUser.ID)
		if !ok || !attendee.Attended || attendee.ID != "att-1" {
			t.Fatalf("unexpected attendee row %+v (found=%v)", attendee, ok)
		}

		status, err = engine.ToggleBooking(ctx, member, "s1")
		if err != nil || status != StatusUnbooked {
			t.Fatalf("expected Unbooked, got %q, %v", status, err)
		}
		if len(store.get("s1").Attendees) != 0 {
			t.Fatalf("expected booking to be removed")
		}
		if len(observer.events) != 2 || observer.events[0] != "toggle:Booked" || observer.events[1] != "toggle:Unbooked" {
			t.Fatalf("unexpected observed events %v", observer.events)
		}
	})

	t.Run("reports Full when every slot is taken", func(t *testing.T) {
		store := newSessionStore(staffUser, memberUser, otherMember)
		store.put(sessionAt("s1", testNow.Add(2*time.Hour), 1, attendeeFor(otherMember, "a1")))
		engine := newTestEngine(store, testNow, nil)

		status, err := engine.ToggleBooking(ctx, member, "s1")
		if err != nil || status != StatusFull {
			t.Fatalf("expected Full, got %q, %v", status, err)
		}
		if len(store.get("s1").Attendees) != 1 {
			t.Fatalf("expected attendees to be untouched")
		}
	})

	t.Run("zero capacity sessions are always full", func(t *testing.T) {
		store := newSessionStore(staffUser, memberUser)
		store.put(sessionAt("s1", testNow.Add(2*time.Hour), 0))
		engine := newTestEngine(store, testNow, nil)

		if status, _ := engine.ToggleBooking(ctx, member, "s1"); status != StatusFull {
			t.Fatalf("expected Full, got %q", status)
		}
	})

	t.Run("started sessions are past in both directions", func(t *testing.T) {
		store := newSessionStore(staffUser, memberUser)
		store.put(sessionAt("booked", testNow.Add(-time.Minute), 5, attendeeFor(memberUser, "a1")))
		store.put(sessionAt("starting", testNow, 5))
		engine := newTestEngine(store, testNow, nil)

		for _, id := range []string{"booked", "starting"} {
			status, err := engine.ToggleBooking(ctx, member, id)
			if err != nil || status != StatusPast {
				t.Fatalf("%s: expected past, got %q, %v", id, status, err)
			}
		}
		if len(store.get("booked").Attendees) != 1 {
			t.Fatalf("expected booking on started session to be kept")
		}
	})

	t.Run("members cannot cancel inside the lockout", func(t *testing.T) {
		store := newSessionStore(staffUser, memberUser)
		store.put(sessionAt("s1", testNow.Add(30*time.Minute), 5, attendeeFor(memberUser, "a1")))
		engine := newTestEngine(store, testNow, nil)

		status, err := engine.ToggleBooking(ctx, member, "s1")
		if err != nil || status != StatusTooLate {
			t.Fatalf("expected too_late, got %q, %v", status, err)
		}
		if len(store.get("s1").Attendees) != 1 {
			t.Fatalf("expected booking to remain")
		}
	})

	t.Run("members can cancel just outside the lockout", func(t *testing.T) {
		store := newSessionStore(staffUser, memberUser)
		store.put(sessionAt("s1", testNow.Add(31*time.Minute), 5, attendeeFor(memberUser, "a1")))
		engine := newTestEngine(store, testNow, nil)

		if status, _ := engine.ToggleBooking(ctx, member, "s1"); status != StatusUnbooked {
			t.Fatalf("expected Unbooked, got %q", status)
		}
	})

	t.Run("staff are exempt from the lockout", func(t *testing.T) {
		store := newSessionStore(staffUser)
		store.put(sessionAt("s1", testNow.Add(5*time.Minute), 5, attendeeFor(staffUser, "a1")))
		engine := newTestEngine(store, testNow, nil)

		if status, _ := engine.ToggleBooking(ctx, PrincipalFor(staffUser), "s1"); status != StatusUnbooked {
			t.Fatalf("expected Unbooked, got %q", status)
		}
	})

	t.Run("booking inside the lockout is allowed", func(t *testing.T) {
		store := newSessionStore(staffUser, memberUser)
		store.put(sessionAt("s1", testNow.Add(10*time.Minute), 5))
		engine := newTestEngine(store, testNow, nil)

		if status, _ := engine.ToggleBooking(ctx, member, "s1"); status != StatusBooked {
			t.Fatalf("expected Booked, got %q", status)
		}
	})

	t.Run("a lost uniqueness race is reported as Full", func(t *testing.T) {
		store := newSessionStore(staffUser, memberUser)
		session := sessionAt("s1", testNow.Add(2*time.Hour), 5)
		locker := lockerFunc(func(ctx context.Context, id string, fn func(LockedSession) error) error {
			return fn(&lockedStub{session: session, addErr: persistence.ErrDuplicate})
		})
		engine := NewBookingEngine(locker, store, nil, fixedClock(testNow), BookingPolicy{})

		status, err := engine.ToggleBooking(ctx, member, "s1")
		if err != nil || status != StatusFull {
			t.Fatalf("expected Full, got %q, %v", status, err)
		}
	})

	t.Run("rejects anonymous callers and unknown sessions", func(t *testing.T) {
		store := newSessionStore(staffUser, memberUser)
		engine := newTestEngine(store, testNow, nil)

		if _, err := engine.ToggleBooking(ctx, Principal{}, "s1"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if store.lockCalls != 0 {
			t.Fatalf("expected no lock for anonymous caller")
		}
		if _, err := engine.ToggleBooking(ctx, member, "missing"); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound, got %v", err)
		}
	})
}

type lockerFunc func(ctx context.Context, id string, fn func(LockedSession) error) error

func (f lockerFunc) WithSessionLock(ctx context.Context, id string, fn func(LockedSession) error) error {
	return f(ctx, id, fn)
}

func TestBookingEngine_ConcurrentBookingsNeverOverfill(t *testing.T) {
	const (
		capacity = 3
		members  = 20
	)
	store := newSessionStore(staffUser)
	store.put(sessionAt("s1", testNow.Add(24*time.Hour), capacity))
	engine := newTestEngine(store, testNow, nil)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts = map[BookingStatus]int{}
	)
	for i := 0; i < members; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			principal := Principal{UserID: sequentialName("m", i), Username: sequentialName("member", i)}
			status, err := engine.ToggleBooking(context.Background(), principal, "s1")
			if err != nil {
				t.Errorf("toggle: %v", err)
				return
			}
			mu.Lock()
			counts[status]++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if counts[StatusBooked] != capacity || counts[StatusFull] != members-capacity {
		t.Fatalf("unexpected outcomes %v", counts)
	}
	if got := len(store.get("s1").Attendees); got != capacity {
		t.Fatalf("expected %d attendees, got %d", capacity, got)
	}
}

func sequentialName(prefix string, i int) string {
	return prefix + "-" + string(rune('a'+i))
}

func TestBookingEngine_RemoveAttendee(t *testing.T) {
	ctx := context.Background()
	staff := PrincipalFor(staffUser)

	t.Run("requires staff", func(t *testing.T) {
		store := newSessionStore(staffUser, memberUser)
		engine := newTestEngine(store, testNow, nil)

		if _, err := engine.RemoveAttendee(ctx, Principal{}, "s1", memberUser.ID); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if _, err := engine.RemoveAttendee(ctx, PrincipalFor(memberUser), "s1", memberUser.ID); !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("validates the target", func(t *testing.T) {
		store := newSessionStore(staffUser, memberUser)
		store.put(sessionAt("s1", testNow.Add(time.Hour), 5))
		engine := newTestEngine(store, testNow, nil)

		_, err := engine.RemoveAttendee(ctx, staff, "s1", "  ")
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["user_id"] != "user_id is required" {
			t.Fatalf("expected user_id validation error, got %v", err)
		}
		if _, err := engine.RemoveAttendee(ctx, staff, "s1", "ghost"); !errors.Is(err, ErrUserNotFound) {
			t.Fatalf("expected ErrUserNotFound, got %v", err)
		}
		if _, err := engine.RemoveAttendee(ctx, staff, "missing", memberUser.ID); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("removes regardless of timing", func(t *testing.T) {
		store := newSessionStore(staffUser, memberUser)
		store.put(sessionAt("s1", testNow.Add(-time.Hour), 5, attendeeFor(memberUser, "a1")))
		observer := &observerStub{}
		engine := newTestEngine(store, testNow, observer)

		status, err := engine.RemoveAttendee(ctx, staff, "s1", memberUser.ID)
		if err != nil || status != StatusRemoved {
			t.Fatalf("expected removed, got %q, %v", status, err)
		}
		if len(store.get("s1").Attendees) != 0 {
			t.Fatalf("expected attendee to be gone")
		}

		status, err = engine.RemoveAttendee(ctx, staff, "s1", memberUser.ID)
		if err != nil || status != StatusNotBooked {
			t.Fatalf("expected not_booked, got %q, %v", status, err)
		}
		if len(observer.events) != 2 || observer.events[1] != "remove_attendee:not_booked" {
			t.Fatalf("unexpected observed events %v", observer.events)
		}
	})
}

func TestBookingEngine_MarkAttendance(t *testing.T) {
	ctx := context.Background()
	staff := PrincipalFor(staffUser)

	t.Run("only staff may mark attendance", func(t *testing.T) {
		engine := newTestEngine(newSessionStore(), testNow, nil)
		if _, err := engine.MarkAttendance(ctx, PrincipalFor(memberUser), "s1", "a1", false); !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("future sessions cannot be marked", func(t *testing.T) {
		store := newSessionStore(staffUser, memberUser)
		store.put(sessionAt("s1", testNow.Add(time.Minute), 5, attendeeFor(memberUser, "a1")))
		engine := newTestEngine(store, testNow, nil)

		result, err := engine.MarkAttendance(ctx, staff, "s1", "a1", false)
		if err != nil || result.Status != StatusFutureSession {
			t.Fatalf("expected future_session, got %+v, %v", result, err)
		}
		if a, _ := store.get("s1").AttendeeFor(memberUser.ID); !a.Attended {
			t.Fatalf("expected attendance to be untouched")
		}
	})

	t.Run("marks a no-show on a started session", func(t *testing.T) {
		store := newSessionStore(staffUser, memberUser)
		store.put(sessionAt("s1", testNow.Add(-10*time.Minute), 5, attendeeFor(memberUser, "a1")))
		engine := newTestEngine(store, testNow, nil)

		result, err := engine.MarkAttendance(ctx, staff, "s1", "a1", false)
		if err != nil {
			t.Fatalf("MarkAttendance returned error: %v", err)
		}
		want := AttendanceResult{Status: StatusUpdated, Attended: false, UserID: memberUser.ID, Username: memberUser.Username}
		if result != want {
			t.Fatalf("unexpected result %+v", result)
		}
		if a, _ := store.get("s1").AttendeeFor(memberUser.ID); a.Attended {
			t.Fatalf("expected attendance to be stored as false")
		}
	})

	t.Run("unknown attendance ids are not found", func(t *testing.T) {
		store := newSessionStore(staffUser, memberUser)
		store.put(sessionAt("s1", testNow.Add(-10*time.Minute), 5, attendeeFor(memberUser, "a1")))
		engine := newTestEngine(store, testNow, nil)

		if _, err := engine.MarkAttendance(ctx, staff, "s1", "other", true); !errors.Is(err, ErrAttendanceNotFound) {
			t.Fatalf("expected ErrAttendanceNotFound, got %v", err)
		}
		if _, err := engine.MarkAttendance(ctx, staff, "s1", "", true); !errors.As(err, new(*ValidationError)) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestBookingStatus_Succeeded(t *testing.T) {
	t.Parallel()

	for status, want := range map[BookingStatus]bool{
		StatusBooked:        true,
		StatusUnbooked:      true,
		StatusRemoved:       true,
		StatusUpdated:       true,
		StatusFull:          false,
		StatusPast:          false,
		StatusTooLate:       false,
		StatusNotBooked:     false,
		StatusFutureSession: false,
	} {
		if got := status.Succeeded(); got != want {
			t.Fatalf("%s.Succeeded() = %v, want %v", status, got, want)
		}
	}
}
