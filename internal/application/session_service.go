package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/gymflex/internal/recurrence"
	"github.com/example/gymflex/internal/scheduler"
)

// SessionRepository captures the persistence operations needed by the session service.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) error
	CreateSessions(ctx context.Context, sessions []Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// SessionService orchestrates validation, authorization and persistence for
// the class catalogue. Every read is passed through the Projector.
type SessionService struct {
	sessions    SessionRepository
	locker      SessionLocker
	users       UserDirectory
	projector   Projector
	recurrence  *recurrence.Engine
	location    *time.Location
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewSessionService wires dependencies for the session service.
func NewSessionService(sessions SessionRepository, locker SessionLocker, users UserDirectory, idGenerator func() string, now func() time.Time, loc *time.Location) *SessionService {
	return NewSessionServiceWithLogger(sessions, locker, users, idGenerator, now, loc, nil)
}

// NewSessionServiceWithLogger wires dependencies for the session service with a specified logger.
func NewSessionServiceWithLogger(sessions SessionRepository, locker SessionLocker, users UserDirectory, idGenerator func() string, now func() time.Time, loc *time.Location, logger *slog.Logger) *SessionService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SessionService{
		sessions:    sessions,
		locker:      locker,
		users:       users,
		projector:   NewProjector(loc),
		recurrence:  recurrence.NewEngine(loc),
		location:    loc,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *SessionService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SessionService", operation, attrs...)
}

// ListSessions returns the sessions matching params projected for the principal.
func (s *SessionService) ListSessions(ctx context.Context, params ListSessionsParams) (views []SessionView, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListSessions",
		"principal_id", params.Principal.UserID,
		"period", string(params.Period),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list sessions", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "sessions listed", "count", len(views))
	}()

	if !params.Principal.Authenticated() {
		err = ErrUnauthorized
		return
	}

	now := s.now()
	var filter SessionFilter
	filter, err = s.buildListFilter(params, now)
	if err != nil {
		return
	}

	var sessions []Session
	sessions, err = s.sessions.ListSessions(ctx, filter)
	if err != nil {
		err = mapSessionRepoError(err)
		return
	}

	views = s.projector.ProjectAll(sessions, params.Principal, now)
	return
}

// GetSession returns one session projected for the principal.
func (s *SessionService) GetSession(ctx context.Context, principal Principal, sessionID string) (view SessionView, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}
	if !principal.Authenticated() {
		err = ErrUnauthorized
		return
	}

	var session Session
	session, err = s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		err = mapSessionRepoError(err)
		s.loggerWith(ctx, "GetSession", "session_id", sessionID).
			ErrorContext(ctx, "failed to load session", "error", err, "error_kind", ErrorKind(err))
		return
	}
	view = s.projector.Project(session, principal, s.now())
	return
}

// CreateSession validates input and persists a new session for staff. The
// trainer defaults to the acting staff member.
func (s *SessionService) CreateSession(ctx context.Context, principal Principal, input SessionInput) (view SessionView, warnings []ConflictWarning, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateSession",
		"principal_id", principal.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"session_id", view.ID,
			"warning_count", len(warnings),
		).InfoContext(ctx, "session created")
	}()

	if err = requireStaff(principal); err != nil {
		return
	}

	session := Session{
		ActivityType:    DefaultActivityType,
		DurationMinutes: DefaultDurationMinutes,
		Capacity:        DefaultCapacity,
	}
	vErr := applySessionInput(&session, input, true)

	var trainer User
	trainer, err = s.resolveTrainer(ctx, principal, input.TrainerID, vErr)
	if err != nil {
		return
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	session.ID = s.idGenerator()
	session.TrainerID = trainer.ID
	session.TrainerUsername = trainer.Username
	session.CreatedAt = now
	session.UpdatedAt = now
	session.Attendees = []Attendee{}

	if err = s.sessions.CreateSession(ctx, session); err != nil {
		err = mapSessionRepoError(err)
		return
	}

	warnings = s.trainerConflicts(ctx, []Session{session})
	view = s.projector.Project(session, principal, now)
	return
}

// UpdateSession changes a session under its lock. With partial false the
// date and time are required; omitted optional fields keep their values.
// Capacity may not drop below the number of current bookings.
func (s *SessionService) UpdateSession(ctx context.Context, principal Principal, sessionID string, input SessionInput, partial bool) (view SessionView, warnings []ConflictWarning, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateSession",
		"principal_id", principal.UserID,
		"session_id", sessionID,
		"partial", partial,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("warning_count", len(warnings)).InfoContext(ctx, "session updated")
	}()

	if err = requireStaff(principal); err != nil {
		return
	}

	// Trainer lookups happen before locking; the locked unit only uses its transaction.
	vErr := &ValidationError{}
	var trainer *User
	if input.TrainerID != nil {
		var resolved User
		resolved, err = s.resolveTrainer(ctx, principal, input.TrainerID, vErr)
		if err != nil {
			return
		}
		trainer = &resolved
	}

	now := s.now()
	err = s.locker.WithSessionLock(ctx, sessionID, func(tx LockedSession) error {
		session := tx.Session()
		updated := session

		fieldErrs := applySessionInput(&updated, input, !partial)
		fieldErrs.merge(vErr)
		if updated.Capacity < len(session.Attendees) && !fieldErrs.HasErrors() {
			fieldErrs.add("capacity", fmt.Sprintf("capacity cannot be lower than the %d booked attendees", len(session.Attendees)))
		}
		if fieldErrs.HasErrors() {
			return fieldErrs
		}

		if trainer != nil {
			updated.TrainerID = trainer.ID
			updated.TrainerUsername = trainer.Username
		}
		updated.UpdatedAt = now
		return tx.UpdateSession(ctx, updated)
	})
	if err != nil {
		err = mapSessionRepoError(err)
		return
	}

	var session Session
	session, err = s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		err = mapSessionRepoError(err)
		return
	}

	warnings = s.trainerConflicts(ctx, []Session{session})
	view = s.projector.Project(session, principal, now)
	return
}

// DeleteSession removes a session and its bookings for staff.
func (s *SessionService) DeleteSession(ctx context.Context, principal Principal, sessionID string) (err error) {
	if s == nil {
		return fmt.Errorf("SessionService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteSession",
		"principal_id", principal.UserID,
		"session_id", sessionID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session deleted")
	}()

	if err = requireStaff(principal); err != nil {
		return
	}
	if err = s.sessions.DeleteSession(ctx, sessionID); err != nil {
		err = mapSessionRepoError(err)
	}
	return
}

// CreateSeries expands a recurring slot into individual sessions and stores
// them atomically.
func (s *SessionService) CreateSeries(ctx context.Context, principal Principal, input SeriesInput) (views []SessionView, warnings []ConflictWarning, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateSeries",
		"principal_id", principal.UserID,
		"frequency", input.Frequency,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create session series", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"session_count", len(views),
			"warning_count", len(warnings),
		).InfoContext(ctx, "session series created")
	}()

	if err = requireStaff(principal); err != nil {
		return
	}

	template := Session{
		ActivityType:    DefaultActivityType,
		DurationMinutes: DefaultDurationMinutes,
		Capacity:        DefaultCapacity,
	}
	startsOn := strings.TrimSpace(input.StartsOn)
	startTime := strings.TrimSpace(input.StartTime)
	activity := strings.TrimSpace(input.ActivityType)
	var activityPtr *string
	if activity != "" {
		activityPtr = &activity
	}
	vErr := applySessionInput(&template, SessionInput{
		ActivityType:    activityPtr,
		Date:            &startsOn,
		StartTime:       &startTime,
		DurationMinutes: input.DurationMinutes,
		Capacity:        input.Capacity,
	}, true)
	if field, ok := vErr.FieldErrors["date"]; ok {
		delete(vErr.FieldErrors, "date")
		vErr.add("starts_on", strings.Replace(field, "date", "starts_on", 1))
	}

	rule, endsOn := s.parseSeriesRule(input, vErr)

	var trainer User
	var trainerID *string
	if id := strings.TrimSpace(input.TrainerID); id != "" {
		trainerID = &id
	}
	trainer, err = s.resolveTrainer(ctx, principal, trainerID, vErr)
	if err != nil {
		return
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	baseStart, _ := template.StartIn(s.location)
	baseEnd, _ := template.EndIn(s.location)
	rule.StartsOn = baseStart
	rule.EndsOn = &endsOn

	now := s.now()
	var occurrences []recurrence.Occurrence
	occurrences, err = s.recurrence.GenerateOccurrences(rule, baseStart, baseEnd, recurrence.GenerateOptions{
		RangeStart: &now,
	})
	if err != nil {
		err = newValidationError("ends_on", err.Error())
		return
	}

	sessions := make([]Session, 0, len(occurrences))
	for _, occ := range occurrences {
		// Classes earlier today that already started could never be booked.
		if !occ.Start.After(now) {
			continue
		}
		session := template
		session.ID = s.idGenerator()
		session.TrainerID = trainer.ID
		session.TrainerUsername = trainer.Username
		session.Date = occ.Start.Format(DateLayout)
		session.StartTime = occ.Start.Format(TimeLayout)
		session.CreatedAt = now
		session.UpdatedAt = now
		session.Attendees = []Attendee{}
		sessions = append(sessions, session)
	}
	if len(sessions) == 0 {
		err = newValidationError("weekdays", "the series does not produce any upcoming sessions")
		return
	}

	if err = s.sessions.CreateSessions(ctx, sessions); err != nil {
		err = mapSessionRepoError(err)
		return
	}

	warnings = s.trainerConflicts(ctx, sessions)
	views = s.projector.ProjectAll(sessions, principal, now)
	return
}

func (s *SessionService) parseSeriesRule(input SeriesInput, vErr *ValidationError) (recurrence.Rule, time.Time) {
	var rule recurrence.Rule

	freq, ok := recurrence.ParseFrequency(strings.ToLower(strings.TrimSpace(input.Frequency)))
	if !ok {
		vErr.add("frequency", "frequency must be daily or weekly")
	}
	rule.Frequency = freq

	for _, raw := range input.Weekdays {
		day, ok := parseWeekday(raw)
		if !ok {
			vErr.add("weekdays", fmt.Sprintf("unknown weekday %q", raw))
			continue
		}
		rule.Weekdays = append(rule.Weekdays, day)
	}
	if freq == recurrence.FrequencyWeekly && len(input.Weekdays) == 0 {
		vErr.add("weekdays", "weekly series require at least one weekday")
	}

	endsOn, err := time.ParseInLocation(DateLayout, strings.TrimSpace(input.EndsOn), s.location)
	if err != nil {
		vErr.add("ends_on", "ends_on must be a YYYY-MM-DD date")
	} else if startsOn, err := time.ParseInLocation(DateLayout, strings.TrimSpace(input.StartsOn), s.location); err == nil && endsOn.Before(startsOn) {
		vErr.add("ends_on", "ends_on must not be before starts_on")
	}
	return rule, endsOn
}

// resolveTrainer returns the acting principal when id is unset, otherwise the
// named user, who must be staff. Lookup failures other than not found are
// returned as errors; invalid choices are recorded on vErr.
func (s *SessionService) resolveTrainer(ctx context.Context, principal Principal, id *string, vErr *ValidationError) (User, error) {
	if id == nil || strings.TrimSpace(*id) == "" || strings.TrimSpace(*id) == principal.UserID {
		return User{ID: principal.UserID, Username: principal.Username, IsStaff: principal.IsStaff}, nil
	}
	if s.users == nil {
		return User{}, fmt.Errorf("user directory not configured")
	}

	user, err := s.users.GetUser(ctx, strings.TrimSpace(*id))
	if err != nil {
		if isNotFoundError(err) {
			vErr.add("trainer_id", "trainer does not exist")
			return User{}, nil
		}
		return User{}, err
	}
	if !user.IsStaff {
		vErr.add("trainer_id", "trainer must be a staff member")
		return User{}, nil
	}
	return user, nil
}

// trainerConflicts reports overlaps between the written sessions and the rest
// of their trainer's timetable. Failures are logged and yield no warnings.
func (s *SessionService) trainerConflicts(ctx context.Context, written []Session) []ConflictWarning {
	if len(written) == 0 {
		return nil
	}

	trainerID := written[0].TrainerID
	from, to := written[0].Date, written[0].Date
	for _, session := range written[1:] {
		from = min(from, session.Date)
		to = max(to, session.Date)
	}
	// A class late the previous day can run past midnight.
	if day, err := time.ParseInLocation(DateLayout, from, s.location); err == nil {
		from = day.AddDate(0, 0, -1).Format(DateLayout)
	}

	existing, err := s.sessions.ListSessions(ctx, SessionFilter{FromDate: from, ToDate: to, TrainerID: trainerID})
	if err != nil {
		s.loggerWith(ctx, "trainerConflicts", "trainer_id", trainerID).
			WarnContext(ctx, "failed to load trainer timetable", "error", err)
		return nil
	}

	slots := make([]scheduler.Slot, 0, len(existing))
	for _, session := range existing {
		if slot, ok := s.toSlot(session); ok {
			slots = append(slots, slot)
		}
	}

	warnings := make([]ConflictWarning, 0)
	for _, session := range written {
		candidate, ok := s.toSlot(session)
		if !ok {
			continue
		}
		for _, conflict := range scheduler.DetectConflicts(slots, candidate) {
			warnings = append(warnings, ConflictWarning{
				SessionID:            session.ID,
				ConflictingSessionID: conflict.WithSlotID,
				Type:                 string(conflict.Type),
				TrainerID:            conflict.TrainerID,
			})
		}
	}
	return warnings
}

func (s *SessionService) toSlot(session Session) (scheduler.Slot, bool) {
	start, err := session.StartIn(s.location)
	if err != nil {
		return scheduler.Slot{}, false
	}
	end, _ := session.EndIn(s.location)
	return scheduler.Slot{
		ID:        session.ID,
		TrainerID: session.TrainerID,
		Start:     start,
		End:       end,
	}, true
}

func requireStaff(principal Principal) error {
	if !principal.Authenticated() {
		return ErrUnauthorized
	}
	if !principal.IsStaff {
		return ErrForbidden
	}
	return nil
}

// applySessionInput copies supplied fields onto session and validates the
// result. With requireSchedule set, date and time must be supplied.
func applySessionInput(session *Session, input SessionInput, requireSchedule bool) *ValidationError {
	vErr := &ValidationError{}

	if input.ActivityType != nil {
		activity := ActivityType(strings.ToLower(strings.TrimSpace(*input.ActivityType)))
		if !activity.Valid() {
			vErr.add("activity_type", "activity_type must be one of cardio, weights, yoga, hiit, pilates")
		} else {
			session.ActivityType = activity
		}
	}

	if input.Date != nil {
		session.Date = strings.TrimSpace(*input.Date)
	} else if requireSchedule {
		session.Date = ""
	}
	if session.Date == "" {
		vErr.add("date", "date is required")
	} else if _, err := time.Parse(DateLayout, session.Date); err != nil {
		vErr.add("date", "date must be a YYYY-MM-DD date")
	}

	if input.StartTime != nil {
		session.StartTime = normalizeClock(*input.StartTime)
	} else if requireSchedule {
		session.StartTime = ""
	}
	if session.StartTime == "" {
		vErr.add("time", "time is required")
	} else if _, err := time.Parse(TimeLayout, session.StartTime); err != nil {
		vErr.add("time", "time must be an HH:MM time")
	}

	if input.DurationMinutes != nil {
		session.DurationMinutes = *input.DurationMinutes
	}
	if session.DurationMinutes <= 0 {
		vErr.add("duration_minutes", "duration_minutes must be positive")
	}

	if input.Capacity != nil {
		session.Capacity = *input.Capacity
	}
	if session.Capacity < 0 {
		vErr.add("capacity", "capacity must not be negative")
	}

	return vErr
}

// normalizeClock accepts "HH:MM" or "HH:MM:SS" and keeps the minutes.
func normalizeClock(value string) string {
	value = strings.TrimSpace(value)
	if t, err := time.Parse("15:04:05", value); err == nil {
		return t.Format(TimeLayout)
	}
	return value
}

func parseWeekday(value string) (time.Weekday, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	for day := time.Sunday; day <= time.Saturday; day++ {
		name := strings.ToLower(day.String())
		if v == name || v == name[:3] {
			return day, true
		}
	}
	return 0, false
}

func (s *SessionService) buildListFilter(params ListSessionsParams, now time.Time) (SessionFilter, error) {
	vErr := &ValidationError{}
	filter := SessionFilter{
		FromDate:  strings.TrimSpace(params.FromDate),
		ToDate:    strings.TrimSpace(params.ToDate),
		TrainerID: strings.TrimSpace(params.TrainerID),
	}

	for field, value := range map[string]string{"from": filter.FromDate, "to": filter.ToDate} {
		if value == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, value); err != nil {
			vErr.add(field, field+" must be a YYYY-MM-DD date")
		}
	}

	if params.Period != ListPeriodNone {
		reference := now.In(s.location)
		if ref := strings.TrimSpace(params.PeriodReference); ref != "" {
			parsed, err := time.ParseInLocation(DateLayout, ref, s.location)
			if err != nil {
				vErr.add("date", "date must be a YYYY-MM-DD date")
			}
			reference = parsed
		}
		first, last, ok := computePeriodRange(params.Period, reference)
		if !ok {
			vErr.add("period", "period must be day, week or month")
		}
		if filter.FromDate == "" {
			filter.FromDate = first.Format(DateLayout)
		}
		if filter.ToDate == "" {
			filter.ToDate = last.Format(DateLayout)
		}
	}

	if vErr.HasErrors() {
		return SessionFilter{}, vErr
	}
	if params.BookedOnly {
		filter.AttendeeID = params.Principal.UserID
	}
	return filter, nil
}

// computePeriodRange returns the first and last calendar day of the period
// containing reference. Weeks start on Monday.
func computePeriodRange(period ListPeriod, reference time.Time) (time.Time, time.Time, bool) {
	switch period {
	case ListPeriodDay:
		start := startOfDay(reference)
		return start, start, true
	case ListPeriodWeek:
		start := startOfWeek(reference)
		return start, start.AddDate(0, 0, 6), true
	case ListPeriodMonth:
		start := startOfMonth(reference)
		return start, start.AddDate(0, 1, -1), true
	default:
		return time.Time{}, time.Time{}, false
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func startOfWeek(t time.Time) time.Time {
	start := startOfDay(t)
	// Monday == 1, Sunday == 0.
	offset := (int(start.Weekday()) + 6) % 7
	return start.AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
