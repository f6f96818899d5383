package application

import (
	"fmt"
	"time"
)

// Layouts of the wall-clock date and time stored for each session.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Principal represents the identity invoking a service method. The zero value
// is the anonymous viewer.
type Principal struct {
	UserID      string
	Username    string
	IsStaff     bool
	IsSuperuser bool
}

// Authenticated reports whether the principal carries an identity.
func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

// PrincipalFor builds the principal acting as user.
func PrincipalFor(user User) Principal {
	return Principal{UserID: user.ID, Username: user.Username, IsStaff: user.IsStaff, IsSuperuser: user.IsSuperuser}
}

// User represents a member or staff account exposed by the application services.
type User struct {
	ID          string
	Username    string
	IsStaff     bool
	IsSuperuser bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserCredentials pairs a user with the stored password hash.
type UserCredentials struct {
	User         User
	PasswordHash string
}

// ActivityType enumerates the kinds of class a session can be.
type ActivityType string

const (
	ActivityCardio  ActivityType = "cardio"
	ActivityWeights ActivityType = "weights"
	ActivityYoga    ActivityType = "yoga"
	ActivityHIIT    ActivityType = "hiit"
	ActivityPilates ActivityType = "pilates"
)

// ActivityTypes lists the accepted activity types in display order.
var ActivityTypes = []ActivityType{ActivityCardio, ActivityWeights, ActivityYoga, ActivityHIIT, ActivityPilates}

// Valid reports whether a is one of the known activity types.
func (a ActivityType) Valid() bool {
	for _, known := range ActivityTypes {
		if a == known {
			return true
		}
	}
	return false
}

// Session defaults applied when a field is omitted on creation.
const (
	DefaultActivityType    = ActivityCardio
	DefaultDurationMinutes = 60
	DefaultCapacity        = 10
)

// Session represents a scheduled class with its current attendance rows.
type Session struct {
	ID              string
	ActivityType    ActivityType
	TrainerID       string
	TrainerUsername string
	Date            string
	StartTime       string
	DurationMinutes int
	Capacity        int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Attendees       []Attendee
}

// Attendee is a booking held by a user on a session.
type Attendee struct {
	ID        string
	UserID    string
	Username  string
	Attended  bool
	CreatedAt time.Time
}

// StartIn combines the session's date and time in loc.
func (s Session) StartIn(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation(DateLayout+" "+TimeLayout, s.Date+" "+s.StartTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("session %s has invalid start %q %q: %w", s.ID, s.Date, s.StartTime, err)
	}
	return start, nil
}

// EndIn returns the instant the session finishes in loc.
func (s Session) EndIn(loc *time.Location) (time.Time, error) {
	start, err := s.StartIn(loc)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(time.Duration(s.DurationMinutes) * time.Minute), nil
}

// AttendeeFor returns the booking userID holds on the session, if any.
func (s Session) AttendeeFor(userID string) (Attendee, bool) {
	if userID == "" {
		return Attendee{}, false
	}
	for _, a := range s.Attendees {
		if a.UserID == userID {
			return a, true
		}
	}
	return Attendee{}, false
}

// SessionInput captures caller provided session fields. Nil pointers mean
// "not supplied": defaults apply on create and the stored value is kept on a
// partial update.
type SessionInput struct {
	ActivityType    *string
	TrainerID       *string
	Date            *string
	StartTime       *string
	DurationMinutes *int
	Capacity        *int
}

// ConflictWarning describes a trainer double-booking surfaced alongside a
// write. SessionID is the written session, ConflictingSessionID the session
// it overlaps.
type ConflictWarning struct {
	SessionID            string
	ConflictingSessionID string
	Type                 string
	TrainerID            string
}

// ListPeriod identifies the range preset requested for session listings.
type ListPeriod string

const (
	// ListPeriodNone indicates no preset; caller supplied explicit bounds.
	ListPeriodNone ListPeriod = ""
	// ListPeriodDay constrains results to a single day.
	ListPeriodDay ListPeriod = "day"
	// ListPeriodWeek constrains results to the Monday-start week containing the reference date.
	ListPeriodWeek ListPeriod = "week"
	// ListPeriodMonth constrains results to the month containing the reference date.
	ListPeriodMonth ListPeriod = "month"
)

// ListSessionsParams wraps the filters accepted by session listings.
type ListSessionsParams struct {
	Principal       Principal
	Period          ListPeriod
	PeriodReference string
	FromDate        string
	ToDate          string
	TrainerID       string
	BookedOnly      bool
}

// SessionFilter narrows repository listings. Dates are inclusive bounds.
type SessionFilter struct {
	FromDate   string
	ToDate     string
	TrainerID  string
	AttendeeID string
}

// SeriesInput describes a recurring class to expand into sessions.
type SeriesInput struct {
	ActivityType    string
	TrainerID       string
	Frequency       string
	Weekdays        []string
	StartsOn        string
	EndsOn          string
	StartTime       string
	DurationMinutes *int
	Capacity        *int
}

// Note is a private memo owned by one user.
type Note struct {
	ID        string
	AuthorID  string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	Access           string
	Refresh          string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
