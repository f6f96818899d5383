package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/gymflex/internal/persistence"
)

const (
	maxUsernameLength = 150
	minPasswordLength = 8
	maxPasswordLength = 128
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// UserRepository captures the persistence operations needed by the user service.
type UserRepository interface {
	CreateUser(ctx context.Context, user User, passwordHash string) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserCredentials(ctx context.Context, username string) (UserCredentials, error)
}

// RegisterParams carries the fields of a sign up request.
type RegisterParams struct {
	Username string
	Password string
}

// UserService orchestrates validation and persistence for user accounts.
type UserService struct {
	users       UserRepository
	hash        PasswordHasher
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewUserService wires dependencies for the user service.
func NewUserService(users UserRepository, hash PasswordHasher, idGenerator func() string, now func() time.Time) *UserService {
	return NewUserServiceWithLogger(users, hash, idGenerator, now, nil)
}

// NewUserServiceWithLogger wires dependencies for the user service with a specified logger.
func NewUserServiceWithLogger(users UserRepository, hash PasswordHasher, idGenerator func() string, now func() time.Time, logger *slog.Logger) *UserService {
	if hash == nil {
		hash = HashPassword
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &UserService{users: users, hash: hash, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *UserService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "UserService", operation, attrs...)
}

// Register creates a member account. Usernames are stored lower-cased.
func (s *UserService) Register(ctx context.Context, params RegisterParams) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}

	username := normalizeUsername(params.Username)
	logger := s.loggerWith(ctx, "Register", "username", username)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "registration failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID).InfoContext(ctx, "user registered")
	}()

	user, err = s.create(ctx, username, params.Password, false)
	return
}

// Me returns the current state of the principal's account.
func (s *UserService) Me(ctx context.Context, principal Principal) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("UserService is nil")
	}
	if !principal.Authenticated() {
		return User{}, ErrUnauthorized
	}

	user, err := s.users.GetUser(ctx, principal.UserID)
	if err != nil {
		if isNotFoundError(err) {
			return User{}, ErrUnauthorized
		}
		return User{}, err
	}
	return user, nil
}

// CreateAdmin creates a staff superuser unless the username is taken, in
// which case the existing account is returned untouched and created is false.
func (s *UserService) CreateAdmin(ctx context.Context, params RegisterParams) (user User, created bool, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}

	username := normalizeUsername(params.Username)
	logger := s.loggerWith(ctx, "CreateAdmin", "username", username)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "admin creation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID, "created", created).InfoContext(ctx, "admin account ensured")
	}()

	var existing UserCredentials
	existing, err = s.users.GetUserCredentials(ctx, username)
	switch {
	case err == nil:
		user = existing.User
		return
	case !isNotFoundError(err):
		return
	}

	user, err = s.create(ctx, username, params.Password, true)
	if err != nil {
		return
	}
	created = true
	return
}

func (s *UserService) create(ctx context.Context, username, password string, admin bool) (User, error) {
	if vErr := validateCredentials(username, password); vErr.HasErrors() {
		return User{}, vErr
	}

	hash, err := s.hash(password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := User{
		ID:          s.idGenerator(),
		Username:    username,
		IsStaff:     admin,
		IsSuperuser: admin,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.users.CreateUser(ctx, user, hash); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) || errors.Is(err, ErrAlreadyExists) {
			return User{}, newValidationError("username", "a user with that username already exists")
		}
		return User{}, err
	}
	return user, nil
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func validateCredentials(username, password string) *ValidationError {
	vErr := &ValidationError{}

	switch {
	case username == "":
		vErr.add("username", "username is required")
	case utf8.RuneCountInString(username) > maxUsernameLength:
		vErr.add("username", fmt.Sprintf("username must be at most %d characters", maxUsernameLength))
	case !usernamePattern.MatchString(username):
		vErr.add("username", "username may only contain letters, digits and @/./+/-/_")
	}

	n := utf8.RuneCountInString(password)
	switch {
	case password == "":
		vErr.add("password", "password is required")
	case n < minPasswordLength:
		vErr.add("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	case n > maxPasswordLength:
		vErr.add("password", fmt.Sprintf("password must be at most %d characters", maxPasswordLength))
	}

	return vErr
}
