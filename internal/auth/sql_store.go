package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/example/gymflex/internal/application"
	"github.com/example/gymflex/internal/persistence"
)

// SQLRefreshStore keeps refresh tokens in the relational store. It is used
// when no Redis address is configured.
type SQLRefreshStore struct {
	repo persistence.RefreshTokenRepository
	now  func() time.Time
}

var _ application.RefreshStore = (*SQLRefreshStore)(nil)

// NewSQLRefreshStore wraps repo.
func NewSQLRefreshStore(repo persistence.RefreshTokenRepository, now func() time.Time) *SQLRefreshStore {
	if now == nil {
		now = time.Now
	}
	return &SQLRefreshStore{repo: repo, now: now}
}

// Save purges expired tokens and records the new one.
func (s *SQLRefreshStore) Save(ctx context.Context, id, userID string, expiresAt time.Time) error {
	now := s.now()
	if err := s.repo.DeleteExpiredRefreshTokens(ctx, now); err != nil {
		return fmt.Errorf("purge refresh tokens: %w", err)
	}
	return s.repo.SaveRefreshToken(ctx, persistence.RefreshToken{
		ID:        id,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	})
}

// Consume removes the token and returns its owner. Unknown and expired tokens
// report persistence.ErrNotFound.
func (s *SQLRefreshStore) Consume(ctx context.Context, id string) (string, error) {
	token, err := s.repo.ConsumeRefreshToken(ctx, id, s.now())
	if err != nil {
		return "", err
	}
	return token.UserID, nil
}
