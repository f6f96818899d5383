package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// StaffDirectory lists staff accounts ordered by creation.
type StaffDirectory interface {
	ListStaff(ctx context.Context) ([]User, error)
}

// SeedSlot is one daily class created by the demo seeder.
type SeedSlot struct {
	ActivityType ActivityType
	StartTime    string
}

// DefaultSeedSlots are the classes created for each seeded day.
var DefaultSeedSlots = []SeedSlot{
	{ActivityType: ActivityPilates, StartTime: "08:00"},
	{ActivityType: ActivityHIIT, StartTime: "09:00"},
	{ActivityType: ActivityYoga, StartTime: "12:00"},
	{ActivityType: ActivityCardio, StartTime: "17:00"},
	{ActivityType: ActivityWeights, StartTime: "18:00"},
}

// SeedWindowDays is how many days either side of today are seeded.
const SeedWindowDays = 3

// SeedResult summarises a seeding run.
type SeedResult struct {
	TrainerID string
	Created   int
	Skipped   int
}

// Seeder fills the timetable with demo classes around today. Runs are
// idempotent: a slot that already has a class for the trainer is skipped.
type Seeder struct {
	staff    StaffDirectory
	sessions SessionRepository
	slots    []SeedSlot
	location *time.Location
	idGen    func() string
	now      func() time.Time
	logger   *slog.Logger
}

// NewSeeder wires dependencies for the demo seeder.
func NewSeeder(staff StaffDirectory, sessions SessionRepository, idGenerator func() string, now func() time.Time, loc *time.Location, logger *slog.Logger) *Seeder {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Seeder{
		staff:    staff,
		sessions: sessions,
		slots:    DefaultSeedSlots,
		location: loc,
		idGen:    idGenerator,
		now:      now,
		logger:   defaultLogger(logger),
	}
}

// Seed creates the missing demo sessions. Without a staff account it does nothing.
func (s *Seeder) Seed(ctx context.Context) (result SeedResult, err error) {
	logger := serviceLogger(ctx, s.logger, "Seeder", "Seed")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "seeding failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "seeding finished",
			"trainer_id", result.TrainerID,
			"created", result.Created,
			"skipped", result.Skipped,
		)
	}()

	var staff []User
	staff, err = s.staff.ListStaff(ctx)
	if err != nil {
		err = fmt.Errorf("list staff: %w", err)
		return
	}
	if len(staff) == 0 {
		logger.WarnContext(ctx, "no staff user found; create an admin first")
		return
	}
	trainer := staff[0]
	result.TrainerID = trainer.ID

	now := s.now()
	today := startOfDay(now.In(s.location))
	from := today.AddDate(0, 0, -SeedWindowDays)
	to := today.AddDate(0, 0, SeedWindowDays)

	var existing []Session
	existing, err = s.sessions.ListSessions(ctx, SessionFilter{
		FromDate:  from.Format(DateLayout),
		ToDate:    to.Format(DateLayout),
		TrainerID: trainer.ID,
	})
	if err != nil {
		err = fmt.Errorf("list existing sessions: %w", err)
		return
	}
	taken := make(map[string]struct{}, len(existing))
	for _, session := range existing {
		taken[session.Date+" "+session.StartTime] = struct{}{}
	}

	var pending []Session
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		date := day.Format(DateLayout)
		for _, slot := range s.slots {
			if _, ok := taken[date+" "+slot.StartTime]; ok {
				result.Skipped++
				continue
			}
			pending = append(pending, Session{
				ID:              s.idGen(),
				ActivityType:    slot.ActivityType,
				TrainerID:       trainer.ID,
				TrainerUsername: trainer.Username,
				Date:            date,
				StartTime:       slot.StartTime,
				DurationMinutes: DefaultDurationMinutes,
				Capacity:        DefaultCapacity,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
		}
	}

	if len(pending) == 0 {
		return
	}
	if err = s.sessions.CreateSessions(ctx, pending); err != nil {
		err = fmt.Errorf("create sessions: %w", err)
		return
	}
	result.Created = len(pending)
	return
}
