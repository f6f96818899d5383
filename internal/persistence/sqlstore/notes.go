package sqlstore

import (
	"context"
	"fmt"

	"github.com/example/gymflex/internal/persistence"
)

// CreateNote inserts a note.
func (s *Store) CreateNote(ctx context.Context, note persistence.Note) error {
	_, err := s.exec(ctx, s.db,
		`INSERT INTO notes (id, author_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		note.ID, note.AuthorID, note.Title, formatTimestamp(note.CreatedAt), formatTimestamp(note.UpdatedAt))
	if err != nil {
		return s.mapper.MapError(err)
	}
	return nil
}

// ListNotesByAuthor returns the author's notes, newest first.
func (s *Store) ListNotesByAuthor(ctx context.Context, authorID string) ([]persistence.Note, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT id, author_id, title, created_at, updated_at FROM notes WHERE author_id = ? ORDER BY created_at DESC, id`,
		authorID)
	if err != nil {
		return nil, s.mapper.MapError(err)
	}
	defer rows.Close()

	notes := []persistence.Note{}
	for rows.Next() {
		var (
			note      persistence.Note
			createdAt string
			updatedAt string
		)
		if err := rows.Scan(&note.ID, &note.AuthorID, &note.Title, &createdAt, &updatedAt); err != nil {
			return nil, s.mapper.MapError(err)
		}
		if note.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, fmt.Errorf("parse note created_at: %w", err)
		}
		if note.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
			return nil, fmt.Errorf("parse note updated_at: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapper.MapError(err)
	}
	return notes, nil
}

// DeleteNote removes a note owned by authorID. Notes owned by someone else
// report ErrNotFound.
func (s *Store) DeleteNote(ctx context.Context, id, authorID string) error {
	result, err := s.exec(ctx, s.db, `DELETE FROM notes WHERE id = ? AND author_id = ?`, id, authorID)
	if err != nil {
		return s.mapper.MapError(err)
	}
	return requireAffected(result)
}
