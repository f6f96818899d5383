package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/example/gymflex/internal/persistence"
)

const userColumns = "id, username, password_hash, is_staff, is_superuser, created_at, updated_at"

// CreateUser inserts a new user. Usernames are stored lower-cased.
func (s *Store) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := s.exec(ctx, s.db,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		normalizeUsername(user.Username),
		user.PasswordHash,
		user.IsStaff,
		user.IsSuperuser,
		formatTimestamp(user.CreatedAt),
		formatTimestamp(user.UpdatedAt),
	)
	if err != nil {
		return s.mapper.MapError(err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (persistence.User, error) {
	row := s.queryRow(ctx, s.db, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return s.scanUser(row)
}

// GetUserByUsername retrieves a user by case-insensitive username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (persistence.User, error) {
	row := s.queryRow(ctx, s.db, `SELECT `+userColumns+` FROM users WHERE username = ?`, normalizeUsername(username))
	return s.scanUser(row)
}

// ListStaff returns staff accounts ordered by creation time.
func (s *Store) ListStaff(ctx context.Context) ([]persistence.User, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT `+userColumns+` FROM users WHERE is_staff = ? ORDER BY created_at, id`, true)
	if err != nil {
		return nil, s.mapper.MapError(err)
	}
	defer rows.Close()

	var users []persistence.User
	for rows.Next() {
		user, err := s.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapper.MapError(err)
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanUser(row rowScanner) (persistence.User, error) {
	var (
		user      persistence.User
		createdAt string
		updatedAt string
	)
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.IsStaff,
		&user.IsSuperuser,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return persistence.User{}, persistence.ErrNotFound
		}
		return persistence.User{}, s.mapper.MapError(err)
	}
	if user.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.User{}, fmt.Errorf("parse user created_at: %w", err)
	}
	if user.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return persistence.User{}, fmt.Errorf("parse user updated_at: %w", err)
	}
	return user, nil
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
