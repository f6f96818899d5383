// Package auth provides the token issuer and refresh token stores used by the
// application's AuthService.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/gymflex/internal/application"
)

// MinSecretLength is the shortest HMAC secret accepted by NewIssuer.
const MinSecretLength = 32

// ErrWeakSecret is returned when the signing secret is too short.
var ErrWeakSecret = errors.New("auth: signing secret must be at least 32 bytes")

// Claims is the JWT payload of access and refresh tokens.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsStaff  bool   `json:"is_staff"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

// Issuer signs HS256 tokens and verifies them. It implements
// application.TokenIssuer.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	parser     *jwt.Parser
}

var _ application.TokenIssuer = (*Issuer)(nil)

// NewIssuer builds an Issuer. now drives expiry checks and defaults to time.Now.
func NewIssuer(secret string, accessTTL, refreshTTL time.Duration, now func() time.Time) (*Issuer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, fmt.Errorf("auth: token lifetimes must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithTimeFunc(now),
		),
	}, nil
}

// Issue signs a token of the given kind for user.
func (i *Issuer) Issue(user application.User, kind application.TokenKind, id string, issuedAt time.Time) (string, time.Time, error) {
	ttl, err := i.ttl(kind)
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt := issuedAt.Add(ttl)

	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		IsStaff:  user.IsStaff,
		Type:     string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, expiresAt, nil
}

// Parse verifies the signature, expiry and kind of token.
func (i *Issuer) Parse(token string, kind application.TokenKind) (application.TokenClaims, error) {
	var claims Claims
	parsed, err := i.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil {
		return application.TokenClaims{}, fmt.Errorf("%w: %v", application.ErrTokenInvalid, err)
	}
	if !parsed.Valid || claims.Type != string(kind) || claims.UserID == "" || claims.ID == "" {
		return application.TokenClaims{}, fmt.Errorf("%w: unexpected claims", application.ErrTokenInvalid)
	}

	out := application.TokenClaims{
		ID:       claims.ID,
		UserID:   claims.UserID,
		Username: claims.Username,
		IsStaff:  claims.IsStaff,
		Kind:     kind,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func (i *Issuer) ttl(kind application.TokenKind) (time.Duration, error) {
	switch kind {
	case application.TokenAccess:
		return i.accessTTL, nil
	case application.TokenRefresh:
		return i.refreshTTL, nil
	default:
		return 0, fmt.Errorf("auth: unknown token kind %q", kind)
	}
}
