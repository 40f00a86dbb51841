package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/event-board/internal/persistence"
)

const minPasswordLength = 8

// UserRepository captures the persistence operations needed by the user service.
type UserRepository interface {
	CreateUser(ctx context.Context, user User, passwordHash string) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
}

// PasswordHashFunc derives the stored hash of a password.
type PasswordHashFunc func(password string) (string, error)

// UserService orchestrates validation and persistence for accounts.
type UserService struct {
	users       UserRepository
	hash        PasswordHashFunc
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewUserService wires dependencies for the user service.
func NewUserService(users UserRepository, hash PasswordHashFunc, idGenerator func() string, now func() time.Time) *UserService {
	return NewUserServiceWithLogger(users, hash, idGenerator, now, nil)
}

// NewUserServiceWithLogger wires dependencies for the user service with a logger.
func NewUserServiceWithLogger(users UserRepository, hash PasswordHashFunc, idGenerator func() string, now func() time.Time, logger *slog.Logger) *UserService {
	if hash == nil {
		hash = NewPasswordHasher(DefaultArgon2idParams).Hash
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &UserService{users: users, hash: hash, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

// Register validates a self-registration and stores the new account.
func (s *UserService) Register(ctx context.Context, params RegisterUserParams) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user repository not configured")
		return
	}

	email := strings.ToLower(strings.TrimSpace(params.Email))
	displayName := strings.TrimSpace(params.DisplayName)

	logger := serviceLogger(ctx, s.logger, "UserService", "Register", "email", email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "registration failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID).InfoContext(ctx, "user registered")
	}()

	vErr := &ValidationError{}
	if email == "" {
		vErr.add("email", "email is required")
	} else if _, parseErr := mail.ParseAddress(email); parseErr != nil {
		vErr.add("email", "email is invalid")
	}
	if displayName == "" {
		vErr.add("display_name", "display name is required")
	}
	if utf8.RuneCountInString(params.Password) < minPasswordLength {
		vErr.add("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var hashed string
	hashed, err = s.hash(params.Password)
	if err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}

	now := s.now()
	candidate := User{
		ID:          s.idGenerator(),
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	user, err = s.users.CreateUser(ctx, candidate, hashed)
	if errors.Is(err, persistence.ErrDuplicate) {
		err = ErrAlreadyExists
	}
	return
}

// GetUser returns the account of the calling principal or, for
// administrators, any account.
func (s *UserService) GetUser(ctx context.Context, principal Principal, userID string) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("UserService is nil")
	}
	if s.users == nil {
		return User{}, fmt.Errorf("user repository not configured")
	}
	if principal.UserID == "" {
		return User{}, ErrUnauthorized
	}
	if userID != principal.UserID && !principal.IsAdmin {
		return User{}, ErrForbidden
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}
