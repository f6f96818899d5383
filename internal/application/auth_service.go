package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// TokenClaims are the verified contents of a token.
type TokenClaims struct {
	ID        string
	UserID    string
	Username  string
	IsStaff   bool
	Kind      TokenKind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenIssuer signs and verifies tokens. Parse must reject tokens of another
// kind, bad signatures and expired tokens with ErrTokenInvalid.
type TokenIssuer interface {
	Issue(user User, kind TokenKind, id string, issuedAt time.Time) (token string, expiresAt time.Time, err error)
	Parse(token string, kind TokenKind) (TokenClaims, error)
}

// RefreshStore tracks refresh tokens that may still be exchanged. Consume
// removes the token and reports a not found error when it is unknown or expired.
type RefreshStore interface {
	Save(ctx context.Context, id, userID string, expiresAt time.Time) error
	Consume(ctx context.Context, id string) (userID string, err error)
}

// AuthService coordinates login, token rotation, logout and request authentication.
type AuthService struct {
	users          UserRepository
	tokens         TokenIssuer
	refresh        RefreshStore
	verifyPassword PasswordVerifier
	idGenerator    func() string
	now            func() time.Time
	logger         *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(users UserRepository, tokens TokenIssuer, refresh RefreshStore, verify PasswordVerifier, idGenerator func() string, now func() time.Time) *AuthService {
	return NewAuthServiceWithLogger(users, tokens, refresh, verify, idGenerator, now, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(users UserRepository, tokens TokenIssuer, refresh RefreshStore, verify PasswordVerifier, idGenerator func() string, now func() time.Time, logger *slog.Logger) *AuthService {
	if verify == nil {
		verify = VerifyPassword
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		users:          users,
		tokens:         tokens,
		refresh:        refresh,
		verifyPassword: verify,
		idGenerator:    idGenerator,
		now:            now,
		logger:         defaultLogger(logger),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// IssueTokens validates credentials and issues an access/refresh pair. The
// username is matched case-insensitively.
func (s *AuthService) IssueTokens(ctx context.Context, username, password string) (pair TokenPair, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	username = normalizeUsername(username)
	logger := s.loggerWith(ctx, "IssueTokens", "username", username)
	var user User
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "token issuance failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID).InfoContext(ctx, "tokens issued")
	}()

	if username == "" || password == "" {
		err = ErrInvalidCredentials
		return
	}

	var creds UserCredentials
	creds, err = s.users.GetUserCredentials(ctx, username)
	if err != nil {
		if isNotFoundError(err) {
			_ = s.verifyPassword(unknownUserHash(), password)
			err = ErrInvalidCredentials
		}
		return
	}
	if verr := s.verifyPassword(creds.PasswordHash, password); verr != nil {
		err = ErrInvalidCredentials
		return
	}

	user = creds.User
	pair, err = s.issuePair(ctx, user)
	return
}

// RefreshTokens exchanges a refresh token for a new pair. The presented
// token is consumed and cannot be used again.
func (s *AuthService) RefreshTokens(ctx context.Context, refreshToken string) (pair TokenPair, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	logger := s.loggerWith(ctx, "RefreshTokens")
	var claims TokenClaims
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "token refresh failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", claims.UserID).InfoContext(ctx, "tokens refreshed")
	}()

	claims, err = s.tokens.Parse(strings.TrimSpace(refreshToken), TokenRefresh)
	if err != nil {
		err = ErrTokenInvalid
		return
	}

	var owner string
	owner, err = s.refresh.Consume(ctx, claims.ID)
	if err != nil {
		if isNotFoundError(err) {
			err = ErrTokenInvalid
		}
		return
	}
	if owner != claims.UserID {
		err = ErrTokenInvalid
		return
	}

	var user User
	user, err = s.users.GetUser(ctx, claims.UserID)
	if err != nil {
		if isNotFoundError(err) {
			err = ErrTokenInvalid
		}
		return
	}

	pair, err = s.issuePair(ctx, user)
	return
}

// RevokeToken consumes a refresh token so it can no longer be exchanged.
// Revoking an already consumed token succeeds.
func (s *AuthService) RevokeToken(ctx context.Context, refreshToken string) error {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}

	claims, err := s.tokens.Parse(strings.TrimSpace(refreshToken), TokenRefresh)
	if err != nil {
		return ErrTokenInvalid
	}

	logger := s.loggerWith(ctx, "RevokeToken", "user_id", claims.UserID)
	if _, err := s.refresh.Consume(ctx, claims.ID); err != nil && !isNotFoundError(err) {
		logger.ErrorContext(ctx, "failed to revoke refresh token", "error", err)
		return err
	}
	logger.InfoContext(ctx, "refresh token revoked")
	return nil
}

// Authenticate validates an access token and reloads its user, so role
// changes apply to tokens issued before them.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (principal Principal, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	trimmed := strings.TrimSpace(accessToken)
	if trimmed == "" {
		err = ErrUnauthorized
		return
	}

	claims, perr := s.tokens.Parse(trimmed, TokenAccess)
	if perr != nil {
		err = ErrUnauthorized
		return
	}

	user, uerr := s.users.GetUser(ctx, claims.UserID)
	if uerr != nil {
		if isNotFoundError(uerr) {
			err = ErrUnauthorized
			return
		}
		err = uerr
		s.loggerWith(ctx, "Authenticate", "user_id", claims.UserID).
			ErrorContext(ctx, "failed to load token owner", "error", err)
		return
	}

	principal = PrincipalFor(user)
	return
}

func (s *AuthService) issuePair(ctx context.Context, user User) (TokenPair, error) {
	now := s.now()

	access, accessExp, err := s.tokens.Issue(user, TokenAccess, s.idGenerator(), now)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}

	refreshID := s.idGenerator()
	refresh, refreshExp, err := s.tokens.Issue(user, TokenRefresh, refreshID, now)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	if err := s.refresh.Save(ctx, refreshID, user.ID, refreshExp); err != nil {
		return TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}

	return TokenPair{
		Access:           access,
		Refresh:          refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}
