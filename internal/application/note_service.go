package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

const maxNoteTitleLength = 100

// NoteRepository captures the persistence operations needed by the note service.
type NoteRepository interface {
	CreateNote(ctx context.Context, note Note) error
	ListNotesByAuthor(ctx context.Context, authorID string) ([]Note, error)
	DeleteNote(ctx context.Context, id, authorID string) error
}

// NoteService manages private notes. Every operation is scoped to the principal.
type NoteService struct {
	notes       NoteRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewNoteService wires dependencies for the note service.
func NewNoteService(notes NoteRepository, idGenerator func() string, now func() time.Time) *NoteService {
	return NewNoteServiceWithLogger(notes, idGenerator, now, nil)
}

// NewNoteServiceWithLogger wires dependencies for the note service with a specified logger.
func NewNoteServiceWithLogger(notes NoteRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *NoteService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &NoteService{notes: notes, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *NoteService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "NoteService", operation, attrs...)
}

// ListNotes returns the principal's notes, newest first.
func (s *NoteService) ListNotes(ctx context.Context, principal Principal) ([]Note, error) {
	if s == nil {
		return nil, fmt.Errorf("NoteService is nil")
	}
	if !principal.Authenticated() {
		return nil, ErrUnauthorized
	}
	notes, err := s.notes.ListNotesByAuthor(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	return notes, nil
}

// CreateNote stores a note owned by the principal.
func (s *NoteService) CreateNote(ctx context.Context, principal Principal, title string) (note Note, err error) {
	if s == nil {
		err = fmt.Errorf("NoteService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateNote", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create note", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("note_id", note.ID).InfoContext(ctx, "note created")
	}()

	if !principal.Authenticated() {
		err = ErrUnauthorized
		return
	}

	title = strings.TrimSpace(title)
	switch {
	case title == "":
		err = newValidationError("title", "title is required")
		return
	case utf8.RuneCountInString(title) > maxNoteTitleLength:
		err = newValidationError("title", fmt.Sprintf("title must be at most %d characters", maxNoteTitleLength))
		return
	}

	now := s.now()
	note = Note{
		ID:        s.idGenerator(),
		AuthorID:  principal.UserID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = s.notes.CreateNote(ctx, note); err != nil {
		note = Note{}
	}
	return
}

// DeleteNote removes one of the principal's notes. Notes owned by someone
// else report ErrNoteNotFound so their existence is not revealed.
func (s *NoteService) DeleteNote(ctx context.Context, principal Principal, noteID string) (err error) {
	if s == nil {
		return fmt.Errorf("NoteService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteNote", "principal_id", principal.UserID, "note_id", noteID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete note", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "note deleted")
	}()

	if !principal.Authenticated() {
		err = ErrUnauthorized
		return
	}
	if err = s.notes.DeleteNote(ctx, noteID, principal.UserID); err != nil && isNotFoundError(err) {
		err = ErrNoteNotFound
	}
	return
}
