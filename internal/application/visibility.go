package application

import "time"

// UndisclosedTrainer replaces the trainer name for viewers without a booking.
const UndisclosedTrainer = "TBA"

// Audience tags which projection a viewer received.
type Audience string

const (
	AudienceStaff  Audience = "staff"
	AudienceBooked Audience = "booked"
	AudiencePublic Audience = "public"
)

// AttendeeView is an attendee as shown to staff. Attended and AttendanceID
// are only set once the session has started.
type AttendeeView struct {
	UserID       string
	Username     string
	Attended     *bool
	AttendanceID string
}

// SessionView is the viewer specific projection of a session.
//
// Exactly one attendee representation is populated, chosen by Audience:
// staff get StaffAttendees, a booked member gets their own id in
// OwnAttendeeID, everybody else sees no attendees.
type SessionView struct {
	Audience        Audience
	ID              string
	ActivityType    ActivityType
	TrainerUsername string
	Date            string
	StartTime       string
	DurationMinutes int
	Capacity        int
	AttendeesCount  int
	AvailableSlots  int
	BookedByViewer  bool
	HasStarted      bool
	StaffAttendees  []AttendeeView
	OwnAttendeeID   string
}

// Projector shapes sessions for viewers. It holds no mutable state and is
// safe for concurrent use.
type Projector struct {
	location *time.Location
}

// NewProjector returns a projector that interprets session times in loc.
func NewProjector(loc *time.Location) Projector {
	if loc == nil {
		loc = time.UTC
	}
	return Projector{location: loc}
}

// Project renders session for viewer at now.
func (p Projector) Project(session Session, viewer Principal, now time.Time) SessionView {
	loc := p.location
	if loc == nil {
		loc = time.UTC
	}

	count := len(session.Attendees)
	_, booked := session.AttendeeFor(viewer.UserID)

	view := SessionView{
		ID:              session.ID,
		ActivityType:    session.ActivityType,
		Date:            session.Date,
		StartTime:       session.StartTime,
		DurationMinutes: session.DurationMinutes,
		Capacity:        session.Capacity,
		AttendeesCount:  count,
		AvailableSlots:  session.Capacity - count,
		BookedByViewer:  booked,
	}
	if start, err := session.StartIn(loc); err == nil {
		view.HasStarted = start.Before(now)
	}

	switch {
	case viewer.Authenticated() && viewer.IsStaff:
		view.Audience = AudienceStaff
		view.TrainerUsername = session.TrainerUsername
		view.StaffAttendees = make([]AttendeeView, 0, count)
		for _, a := range session.Attendees {
			av := AttendeeView{UserID: a.UserID, Username: a.Username}
			if view.HasStarted {
				attended := a.Attended
				av.Attended = &attended
				av.AttendanceID = a.ID
			}
			view.StaffAttendees = append(view.StaffAttendees, av)
		}
	case booked:
		view.Audience = AudienceBooked
		view.TrainerUsername = session.TrainerUsername
		view.OwnAttendeeID = viewer.UserID
	default:
		view.Audience = AudiencePublic
		view.TrainerUsername = UndisclosedTrainer
	}

	return view
}

// ProjectAll renders every session for viewer with a single clock sample.
func (p Projector) ProjectAll(sessions []Session, viewer Principal, now time.Time) []SessionView {
	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, p.Project(session, viewer, now))
	}
	return views
}
