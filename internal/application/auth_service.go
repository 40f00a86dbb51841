package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// CredentialStore exposes user credential lookup operations required by the auth service.
type CredentialStore interface {
	GetUserCredentialsByEmail(ctx context.Context, email string) (UserCredentials, error)
	GetUser(ctx context.Context, id string) (User, error)
}

// SessionRepository captures the persistence interactions for issued sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) (int64, error)
}

// PasswordVerifier compares a stored hash with a candidate password.
type PasswordVerifier func(hashedPassword, password string) error

// AuthConfig carries the token signing settings.
type AuthConfig struct {
	Secret   []byte
	TokenTTL time.Duration
	Issuer   string
}

// AuthService issues HS256 access tokens backed by persisted sessions. The
// token id (jti) is the session token so a logout revokes it server side.
type AuthService struct {
	credentials    CredentialStore
	sessions       SessionRepository
	verifyPassword PasswordVerifier
	idGenerator    func() string
	now            func() time.Time
	cfg            AuthConfig
	logger         *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(credentials CredentialStore, sessions SessionRepository, verify PasswordVerifier, idGenerator func() string, now func() time.Time, cfg AuthConfig) *AuthService {
	return NewAuthServiceWithLogger(credentials, sessions, verify, idGenerator, now, cfg, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(credentials CredentialStore, sessions SessionRepository, verify PasswordVerifier, idGenerator func() string, now func() time.Time, cfg AuthConfig, logger *slog.Logger) *AuthService {
	if verify == nil {
		verify = NewPasswordHasher(DefaultArgon2idParams).Verify
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "event-board"
	}
	return &AuthService{
		credentials:    credentials,
		sessions:       sessions,
		verifyPassword: verify,
		idGenerator:    idGenerator,
		now:            now,
		cfg:            cfg,
		logger:         defaultLogger(logger),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// Authenticate validates credentials, persists a session and signs an access token for it.
func (s *AuthService) Authenticate(ctx context.Context, params AuthenticateParams) (result AuthenticateResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.credentials == nil || s.sessions == nil {
		err = fmt.Errorf("auth stores not configured")
		return
	}
	if len(s.cfg.Secret) == 0 {
		err = fmt.Errorf("token secret not configured")
		return
	}

	email := strings.TrimSpace(strings.ToLower(params.Email))
	logger := s.loggerWith(ctx, "Authenticate", "email", email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "authentication failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"user_id", result.User.ID,
			"session_id", result.Session.ID,
		).InfoContext(ctx, "authentication succeeded")
	}()

	if email == "" || params.Password == "" {
		err = ErrInvalidCredentials
		return
	}

	var creds UserCredentials
	creds, err = s.credentials.GetUserCredentialsByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			err = ErrInvalidCredentials
		}
		return
	}
	if err = s.verifyPassword(creds.PasswordHash, params.Password); err != nil {
		err = ErrInvalidCredentials
		return
	}

	now := s.now()
	session := Session{
		ID:          s.idGenerator(),
		UserID:      creds.User.ID,
		Token:       s.idGenerator(),
		Fingerprint: strings.TrimSpace(params.Fingerprint),
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.TokenTTL),
	}
	if session.Token == "" {
		session.Token = session.ID
	}

	session, err = s.sessions.CreateSession(ctx, session)
	if err != nil {
		return
	}

	var signed string
	signed, err = s.sign(creds.User.ID, session, now)
	if err != nil {
		return
	}

	result = AuthenticateResult{User: creds.User, Session: session, AccessToken: signed}
	return
}

func (s *AuthService) sign(userID string, session Session, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    s.cfg.Issuer,
		Subject:   userID,
		ID:        session.Token,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies an access token and the session it was issued for.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (principal Principal, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.sessions == nil || s.credentials == nil {
		err = fmt.Errorf("auth stores not configured")
		return
	}

	trimmed := strings.TrimSpace(token)
	logger := s.loggerWith(ctx, "ValidateToken", "token_provided", trimmed != "")
	defer func() {
		if err != nil {
			logger.DebugContext(ctx, "token rejected", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("principal_id", principal.UserID).DebugContext(ctx, "token accepted")
	}()

	if trimmed == "" {
		err = ErrUnauthorized
		return
	}

	var claims jwt.RegisteredClaims
	_, err = jwt.ParseWithClaims(trimmed, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.cfg.Secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrUnauthorized, err)
		return
	}

	now := s.now()
	if !claims.VerifyExpiresAt(now, true) {
		err = ErrSessionExpired
		return
	}
	if claims.ID == "" || claims.Subject == "" {
		err = ErrUnauthorized
		return
	}

	var session Session
	session, err = s.sessions.GetSession(ctx, claims.ID)
	if err != nil {
		if isNotFound(err) {
			err = ErrUnauthorized
		}
		return
	}
	if session.UserID != claims.Subject {
		err = ErrUnauthorized
		return
	}
	if session.RevokedAt != nil && !session.RevokedAt.IsZero() {
		err = ErrSessionRevoked
		return
	}
	if !session.ExpiresAt.After(now) {
		err = ErrSessionExpired
		return
	}

	var user User
	user, err = s.credentials.GetUser(ctx, session.UserID)
	if err != nil {
		if isNotFound(err) {
			err = ErrUnauthorized
		}
		return
	}

	principal = Principal{UserID: user.ID, SessionID: session.Token, IsAdmin: user.IsAdmin}
	return
}

// RevokeSession invalidates the session the principal authenticated with.
func (s *AuthService) RevokeSession(ctx context.Context, principal Principal) error {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}
	if s.sessions == nil {
		return fmt.Errorf("session repository not configured")
	}
	if principal.SessionID == "" {
		return ErrUnauthorized
	}

	logger := s.loggerWith(ctx, "RevokeSession", "principal_id", principal.UserID)
	if _, err := s.sessions.RevokeSession(ctx, principal.SessionID, s.now()); err != nil {
		if isNotFound(err) {
			err = ErrUnauthorized
		}
		logger.ErrorContext(ctx, "failed to revoke session", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.InfoContext(ctx, "session revoked")
	return nil
}

// PurgeExpiredSessions deletes sessions whose expiry has passed.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("AuthService is nil")
	}
	if s.sessions == nil {
		return 0, fmt.Errorf("session repository not configured")
	}
	removed, err := s.sessions.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.loggerWith(ctx, "PurgeExpiredSessions").InfoContext(ctx, "expired sessions purged", "count", removed)
	}
	return removed, nil
}
