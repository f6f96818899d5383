package persistence

import "time"

// User represents a gym member or staff account.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	IsStaff      bool
	IsSuperuser  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session represents a scheduled class. Date and StartTime are wall-clock
// values ("2006-01-02" and "15:04") in the gym's time zone.
type Session struct {
	ID              string
	ActivityType    string
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

// Attendee is the join row linking a user to a session they booked.
type Attendee struct {
	ID        string
	SessionID string
	UserID    string
	Username  string
	Attended  bool
	CreatedAt time.Time
}

// Note is a private memo owned by a single user.
type Note struct {
	ID        string
	AuthorID  string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RefreshToken tracks an issued refresh token that may still be exchanged.
type RefreshToken struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
