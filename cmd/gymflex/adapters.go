package main

import (
	"context"

	"github.com/example/gymflex/internal/application"
	"github.com/example/gymflex/internal/persistence"
)

type userRepositoryAdapter struct {
	repo persistence.UserRepository
}

func newUserRepositoryAdapter(repo persistence.UserRepository) *userRepositoryAdapter {
	return &userRepositoryAdapter{repo: repo}
}

func (a *userRepositoryAdapter) CreateUser(ctx context.Context, user application.User, passwordHash string) error {
	return a.repo.CreateUser(ctx, toPersistenceUser(user, passwordHash))
}

func (a *userRepositoryAdapter) GetUser(ctx context.Context, id string) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *userRepositoryAdapter) GetUserCredentials(ctx context.Context, username string) (application.UserCredentials, error) {
	stored, err := a.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return application.UserCredentials{}, err
	}
	return application.UserCredentials{
		User:         toApplicationUser(stored),
		PasswordHash: stored.PasswordHash,
	}, nil
}

func (a *userRepositoryAdapter) ListStaff(ctx context.Context) ([]application.User, error) {
	models, err := a.repo.ListStaff(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]application.User, 0, len(models))
	for _, model := range models {
		users = append(users, toApplicationUser(model))
	}
	return users, nil
}

type sessionRepositoryAdapter struct {
	repo persistence.SessionRepository
}

func newSessionRepositoryAdapter(repo persistence.SessionRepository) *sessionRepositoryAdapter {
	return &sessionRepositoryAdapter{repo: repo}
}

func (a *sessionRepositoryAdapter) CreateSession(ctx context.Context, session application.Session) error {
	return a.repo.CreateSession(ctx, toPersistenceSession(session))
}

func (a *sessionRepositoryAdapter) CreateSessions(ctx context.Context, sessions []application.Session) error {
	models := make([]persistence.Session, 0, len(sessions))
	for _, session := range sessions {
		models = append(models, toPersistenceSession(session))
	}
	return a.repo.CreateSessions(ctx, models)
}

func (a *sessionRepositoryAdapter) GetSession(ctx context.Context, id string) (application.Session, error) {
	stored, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) ListSessions(ctx context.Context, filter application.SessionFilter) ([]application.Session, error) {
	models, err := a.repo.ListSessions(ctx, persistence.SessionFilter{
		FromDate:   filter.FromDate,
		ToDate:     filter.ToDate,
		TrainerID:  filter.TrainerID,
		AttendeeID: filter.AttendeeID,
	})
	if err != nil {
		return nil, err
	}
	sessions := make([]application.Session, 0, len(models))
	for _, model := range models {
		sessions = append(sessions, toApplicationSession(model))
	}
	return sessions, nil
}

func (a *sessionRepositoryAdapter) DeleteSession(ctx context.Context, id string) error {
	return a.repo.DeleteSession(ctx, id)
}

// WithSessionLock adapts the store transaction to the booking engine's view
// of a locked session.
func (a *sessionRepositoryAdapter) WithSessionLock(ctx context.Context, sessionID string, fn func(application.LockedSession) error) error {
	return a.repo.WithSessionLock(ctx, sessionID, func(tx persistence.SessionTx) error {
		return fn(lockedSessionAdapter{tx: tx, sessionID: sessionID})
	})
}

type lockedSessionAdapter struct {
	tx        persistence.SessionTx
	sessionID string
}

func (l lockedSessionAdapter) Session() application.Session {
	return toApplicationSession(l.tx.Session())
}

func (l lockedSessionAdapter) UpdateSession(ctx context.Context, session application.Session) error {
	return l.tx.UpdateSession(ctx, toPersistenceSession(session))
}

func (l lockedSessionAdapter) AddAttendee(ctx context.Context, attendee application.Attendee) error {
	return l.tx.InsertAttendee(ctx, persistence.Attendee{
		ID:        attendee.ID,
		SessionID: l.sessionID,
		UserID:    attendee.UserID,
		Attended:  attendee.Attended,
		CreatedAt: attendee.CreatedAt,
	})
}

func (l lockedSessionAdapter) RemoveAttendee(ctx context.Context, userID string) (bool, error) {
	return l.tx.DeleteAttendee(ctx, userID)
}

func (l lockedSessionAdapter) SetAttended(ctx context.Context, attendeeID string, attended bool) error {
	return l.tx.SetAttended(ctx, attendeeID, attended)
}

type noteRepositoryAdapter struct {
	repo persistence.NoteRepository
}

func newNoteRepositoryAdapter(repo persistence.NoteRepository) *noteRepositoryAdapter {
	return &noteRepositoryAdapter{repo: repo}
}

func (a *noteRepositoryAdapter) CreateNote(ctx context.Context, note application.Note) error {
	return a.repo.CreateNote(ctx, persistence.Note{
		ID:        note.ID,
		AuthorID:  note.AuthorID,
		Title:     note.Title,
		CreatedAt: note.CreatedAt,
		UpdatedAt: note.UpdatedAt,
	})
}

func (a *noteRepositoryAdapter) ListNotesByAuthor(ctx context.Context, authorID string) ([]application.Note, error) {
	models, err := a.repo.ListNotesByAuthor(ctx, authorID)
	if err != nil {
		return nil, err
	}
	notes := make([]application.Note, 0, len(models))
	for _, model := range models {
		notes = append(notes, application.Note{
			ID:        model.ID,
			AuthorID:  model.AuthorID,
			Title:     model.Title,
			CreatedAt: model.CreatedAt,
			UpdatedAt: model.UpdatedAt,
		})
	}
	return notes, nil
}

func (a *noteRepositoryAdapter) DeleteNote(ctx context.Context, id, authorID string) error {
	return a.repo.DeleteNote(ctx, id, authorID)
}

func toApplicationUser(model persistence.User) application.User {
	return application.User{
		ID:          model.ID,
		Username:    model.Username,
		IsStaff:     model.IsStaff,
		IsSuperuser: model.IsSuperuser,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

func toPersistenceUser(user application.User, passwordHash string) persistence.User {
	return persistence.User{
		ID:           user.ID,
		Username:     user.Username,
		PasswordHash: passwordHash,
		IsStaff:      user.IsStaff,
		IsSuperuser:  user.IsSuperuser,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
}

func toApplicationSession(model persistence.Session) application.Session {
	attendees := make([]application.Attendee, 0, len(model.Attendees))
	for _, a := range model.Attendees {
		attendees = append(attendees, application.Attendee{
			ID:        a.ID,
			UserID:    a.UserID,
			Username:  a.Username,
			Attended:  a.Attended,
			CreatedAt: a.CreatedAt,
		})
	}
	return application.Session{
		ID:              model.ID,
		ActivityType:    application.ActivityType(model.ActivityType),
		TrainerID:       model.TrainerID,
		TrainerUsername: model.TrainerUsername,
		Date:            model.Date,
		StartTime:       model.StartTime,
		DurationMinutes: model.DurationMinutes,
		Capacity:        model.Capacity,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
		Attendees:       attendees,
	}
}

func toPersistenceSession(session application.Session) persistence.Session {
	return persistence.Session{
		ID:              session.ID,
		ActivityType:    string(session.ActivityType),
		TrainerID:       session.TrainerID,
		TrainerUsername: session.TrainerUsername,
		Date:            session.Date,
		StartTime:       session.StartTime,
		DurationMinutes: session.DurationMinutes,
		Capacity:        session.Capacity,
		CreatedAt:       session.CreatedAt,
		UpdatedAt:       session.UpdatedAt,
	}
}
