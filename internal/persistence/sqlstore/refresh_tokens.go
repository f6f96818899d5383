package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/gymflex/internal/persistence"
)

// SaveRefreshToken records an issued refresh token.
func (s *Store) SaveRefreshToken(ctx context.Context, token persistence.RefreshToken) error {
	_, err := s.exec(ctx, s.db,
		`INSERT INTO refresh_tokens (id, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		token.ID, token.UserID, formatTimestamp(token.ExpiresAt), formatTimestamp(token.CreatedAt))
	if err != nil {
		return s.mapper.MapError(err)
	}
	return nil
}

// ConsumeRefreshToken deletes the token and returns it. Expired or unknown
// tokens report ErrNotFound; an expired row is still removed.
func (s *Store) ConsumeRefreshToken(ctx context.Context, id string, now time.Time) (persistence.RefreshToken, error) {
	var token persistence.RefreshToken
	err := s.withTransaction(ctx, func(tx *sql.Tx) error {
		var expiresAt, createdAt string
		err := s.queryRow(ctx, tx,
			`SELECT id, user_id, expires_at, created_at FROM refresh_tokens WHERE id = ?`+s.dialect.lockSuffix(), id).
			Scan(&token.ID, &token.UserID, &expiresAt, &createdAt)
		if err != nil {
			return s.mapper.MapError(err)
		}
		if token.ExpiresAt, err = parseTimestamp(expiresAt); err != nil {
			return fmt.Errorf("parse refresh token expires_at: %w", err)
		}
		if token.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return fmt.Errorf("parse refresh token created_at: %w", err)
		}

		result, err := s.exec(ctx, tx, `DELETE FROM refresh_tokens WHERE id = ?`, id)
		if err != nil {
			return s.mapper.MapError(err)
		}
		return requireAffected(result)
	})
	if err != nil {
		return persistence.RefreshToken{}, err
	}
	if !token.ExpiresAt.After(now) {
		return persistence.RefreshToken{}, persistence.ErrNotFound
	}
	return token, nil
}

// DeleteExpiredRefreshTokens purges tokens that expired at or before reference.
func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context, reference time.Time) error {
	_, err := s.exec(ctx, s.db, `DELETE FROM refresh_tokens WHERE expires_at <= ?`, formatTimestamp(reference))
	if err != nil {
		return s.mapper.MapError(err)
	}
	return nil
}
