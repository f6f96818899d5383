package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/gymflex/internal/persistence"
)

const sessionSelect = `SELECT s.id, s.activity_type, s.trainer_id, u.username, s.date, s.start_time,
	s.duration_minutes, s.capacity, s.created_at, s.updated_at
	FROM sessions s JOIN users u ON u.id = s.trainer_id`

const attendeeSelect = `SELECT a.id, a.session_id, a.user_id, u.username, a.attended, a.created_at
	FROM session_attendees a JOIN users u ON u.id = a.user_id`

// attendeeBatchSize bounds the IN list used when loading attendees for a listing.
const attendeeBatchSize = 500

// CreateSession inserts a session. Attendees on the record are ignored.
func (s *Store) CreateSession(ctx context.Context, session persistence.Session) error {
	return s.insertSession(ctx, s.db, session)
}

// CreateSessions inserts all sessions in one transaction.
func (s *Store) CreateSessions(ctx context.Context, sessions []persistence.Session) error {
	if len(sessions) == 0 {
		return nil
	}
	return s.withTransaction(ctx, func(tx *sql.Tx) error {
		for _, session := range sessions {
			if err := s.insertSession(ctx, tx, session); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) insertSession(ctx context.Context, q querier, session persistence.Session) error {
	if session.ID == "" || session.TrainerID == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := s.exec(ctx, q,
		`INSERT INTO sessions (id, activity_type, trainer_id, date, start_time, duration_minutes, capacity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.ActivityType,
		session.TrainerID,
		session.Date,
		session.StartTime,
		session.DurationMinutes,
		session.Capacity,
		formatTimestamp(session.CreatedAt),
		formatTimestamp(session.UpdatedAt),
	)
	if err != nil {
		return s.mapper.MapError(err)
	}
	return nil
}

// GetSession retrieves a session together with its attendees.
func (s *Store) GetSession(ctx context.Context, id string) (persistence.Session, error) {
	return s.loadSession(ctx, s.db, id)
}

// ListSessions returns sessions matching filter ordered by date and start time.
func (s *Store) ListSessions(ctx context.Context, filter persistence.SessionFilter) ([]persistence.Session, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.FromDate != "" {
		clauses = append(clauses, "s.date >= ?")
		args = append(args, filter.FromDate)
	}
	if filter.ToDate != "" {
		clauses = append(clauses, "s.date <= ?")
		args = append(args, filter.ToDate)
	}
	if filter.TrainerID != "" {
		clauses = append(clauses, "s.trainer_id = ?")
		args = append(args, filter.TrainerID)
	}
	if filter.AttendeeID != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM session_attendees sa WHERE sa.session_id = s.id AND sa.user_id = ?)")
		args = append(args, filter.AttendeeID)
	}

	query := sessionSelect
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY s.date, s.start_time, s.id"

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, s.mapper.MapError(err)
	}
	defer rows.Close()

	var sessions []persistence.Session
	for rows.Next() {
		session, err := s.scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapper.MapError(err)
	}
	if len(sessions) == 0 {
		return []persistence.Session{}, nil
	}

	if err := s.attachAttendees(ctx, s.db, sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// DeleteSession removes a session and its attendance rows.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.withTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, `DELETE FROM session_attendees WHERE session_id = ?`, id); err != nil {
			return s.mapper.MapError(err)
		}
		result, err := s.exec(ctx, tx, `DELETE FROM sessions WHERE id = ?`, id)
		if err != nil {
			return s.mapper.MapError(err)
		}
		return requireAffected(result)
	})
}

// WithSessionLock pins the session row for the lifetime of fn. On PostgreSQL
// the row is selected FOR UPDATE; on SQLite the single connection and the
// immediate transaction mode give the same exclusion.
//
// fn must only touch the database through the SessionTx it receives.
func (s *Store) WithSessionLock(ctx context.Context, id string, fn func(tx persistence.SessionTx) error) error {
	return s.withTransaction(ctx, func(tx *sql.Tx) error {
		var locked string
		err := s.queryRow(ctx, tx, `SELECT id FROM sessions WHERE id = ?`+s.dialect.lockSuffix(), id).Scan(&locked)
		if err != nil {
			return s.mapper.MapError(err)
		}

		session, err := s.loadSession(ctx, tx, id)
		if err != nil {
			return err
		}
		return fn(&sessionTx{store: s, tx: tx, session: session})
	})
}

type sessionTx struct {
	store   *Store
	tx      *sql.Tx
	session persistence.Session
}

func (t *sessionTx) Session() persistence.Session {
	return cloneSession(t.session)
}

func (t *sessionTx) UpdateSession(ctx context.Context, session persistence.Session) error {
	result, err := t.store.exec(ctx, t.tx,
		`UPDATE sessions SET activity_type = ?, trainer_id = ?, date = ?, start_time = ?,
		duration_minutes = ?, capacity = ?, updated_at = ? WHERE id = ?`,
		session.ActivityType,
		session.TrainerID,
		session.Date,
		session.StartTime,
		session.DurationMinutes,
		session.Capacity,
		formatTimestamp(session.UpdatedAt),
		t.session.ID,
	)
	if err != nil {
		return t.store.mapper.MapError(err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}

	previous := t.session
	t.session = session
	t.session.ID = previous.ID
	t.session.CreatedAt = previous.CreatedAt
	t.session.Attendees = previous.Attendees
	return nil
}

func (t *sessionTx) InsertAttendee(ctx context.Context, attendee persistence.Attendee) error {
	attendee.SessionID = t.session.ID
	_, err := t.store.exec(ctx, t.tx,
		`INSERT INTO session_attendees (id, session_id, user_id, attended, created_at) VALUES (?, ?, ?, ?, ?)`,
		attendee.ID,
		attendee.SessionID,
		attendee.UserID,
		attendee.Attended,
		formatTimestamp(attendee.CreatedAt),
	)
	if err != nil {
		return t.store.mapper.MapError(err)
	}
	t.session.Attendees = append(t.session.Attendees, attendee)
	return nil
}

func (t *sessionTx) DeleteAttendee(ctx context.Context, userID string) (bool, error) {
	result, err := t.store.exec(ctx, t.tx,
		`DELETE FROM session_attendees WHERE session_id = ? AND user_id = ?`, t.session.ID, userID)
	if err != nil {
		return false, t.store.mapper.MapError(err)
	}
	if err := requireAffected(result); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	kept := t.session.Attendees[:0:0]
	for _, a := range t.session.Attendees {
		if a.UserID != userID {
			kept = append(kept, a)
		}
	}
	t.session.Attendees = kept
	return true, nil
}

func (t *sessionTx) SetAttended(ctx context.Context, attendeeID string, attended bool) error {
	result, err := t.store.exec(ctx, t.tx,
		`UPDATE session_attendees SET attended = ? WHERE id = ? AND session_id = ?`,
		attended, attendeeID, t.session.ID)
	if err != nil {
		return t.store.mapper.MapError(err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}
	for i := range t.session.Attendees {
		if t.session.Attendees[i].ID == attendeeID {
			t.session.Attendees[i].Attended = attended
		}
	}
	return nil
}

func (s *Store) loadSession(ctx context.Context, q querier, id string) (persistence.Session, error) {
	session, err := s.scanSession(s.queryRow(ctx, q, sessionSelect+` WHERE s.id = ?`, id))
	if err != nil {
		return persistence.Session{}, err
	}
	sessions := []persistence.Session{session}
	if err := s.attachAttendees(ctx, q, sessions); err != nil {
		return persistence.Session{}, err
	}
	return sessions[0], nil
}

// attachAttendees loads attendees for every session in place, batching the IN list.
func (s *Store) attachAttendees(ctx context.Context, q querier, sessions []persistence.Session) error {
	index := make(map[string]int, len(sessions))
	for i := range sessions {
		index[sessions[i].ID] = i
		sessions[i].Attendees = []persistence.Attendee{}
	}

	for start := 0; start < len(sessions); start += attendeeBatchSize {
		end := min(start+attendeeBatchSize, len(sessions))
		args := make([]any, 0, end-start)
		for _, session := range sessions[start:end] {
			args = append(args, session.ID)
		}

		rows, err := s.query(ctx, q,
			attendeeSelect+` WHERE a.session_id IN (`+placeholders(len(args))+`) ORDER BY a.created_at, a.id`, args...)
		if err != nil {
			return s.mapper.MapError(err)
		}
		for rows.Next() {
			var (
				attendee  persistence.Attendee
				createdAt string
			)
			if err := rows.Scan(&attendee.ID, &attendee.SessionID, &attendee.UserID, &attendee.Username, &attendee.Attended, &createdAt); err != nil {
				rows.Close()
				return s.mapper.MapError(err)
			}
			if attendee.CreatedAt, err = parseTimestamp(createdAt); err != nil {
				rows.Close()
				return fmt.Errorf("parse attendee created_at: %w", err)
			}
			i := index[attendee.SessionID]
			sessions[i].Attendees = append(sessions[i].Attendees, attendee)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return s.mapper.MapError(err)
		}
	}
	return nil
}

func (s *Store) scanSession(row rowScanner) (persistence.Session, error) {
	var (
		session   persistence.Session
		createdAt string
		updatedAt string
	)
	err := row.Scan(
		&session.ID,
		&session.ActivityType,
		&session.TrainerID,
		&session.TrainerUsername,
		&session.Date,
		&session.StartTime,
		&session.DurationMinutes,
		&session.Capacity,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Session{}, s.mapper.MapError(err)
	}
	if session.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.Session{}, fmt.Errorf("parse session created_at: %w", err)
	}
	if session.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return persistence.Session{}, fmt.Errorf("parse session updated_at: %w", err)
	}
	return session, nil
}

func cloneSession(session persistence.Session) persistence.Session {
	clone := session
	if session.Attendees != nil {
		clone.Attendees = append([]persistence.Attendee(nil), session.Attendees...)
	}
	return clone
}
