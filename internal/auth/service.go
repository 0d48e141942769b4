package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/feeder-core/internal/infrastructure/config"
)

// Logger is the subset of the structured logger the auth package uses.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// dummyHash is verified against when the username is unknown so that the
// response time does not reveal which usernames exist.
var dummyHash = sync.OnceValue(func() string {
	h, _ := HashPassword("feeder-timing-equaliser") //nolint:errcheck // only rand.Read can fail
	return h
})

// Session is the result of a successful login.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *User     `json:"user"`
}

// Service handles operator accounts and login.
type Service struct {
	users  UserRepository
	cfg    config.JWTConfig
	logger Logger
}

// NewService creates an auth service.
func NewService(users UserRepository, cfg config.JWTConfig, logger Logger) *Service {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Service{users: users, cfg: cfg, logger: logger}
}

// Login checks credentials and issues an access token. Unknown users, wrong
// passwords and inactive accounts all return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.users.GetByUsername(ctx, username)
	switch {
	case errors.Is(err, ErrUserNotFound):
		VerifyPassword(password, dummyHash()) //nolint:errcheck // timing only
		s.logger.Warn("login failed", "username", username, "reason", "unknown user")
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, fmt.Errorf("loading user: %w", err)
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		s.logger.Warn("login failed", "username", username, "reason", "bad password")
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		s.logger.Warn("login failed", "username", username, "reason", "inactive")
		return nil, ErrInvalidCredentials
	}

	ttl := time.Duration(s.cfg.AccessTokenTTL) * time.Minute
	token, expires, err := GenerateAccessToken(user, s.cfg.Secret, ttl)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", "user_id", user.ID, "username", user.Username)
	return &Session{AccessToken: token, TokenType: "Bearer", ExpiresAt: expires, User: user}, nil
}

// Authenticate validates a bearer token and returns its claims.
func (s *Service) Authenticate(token string) (*CustomClaims, error) {
	return ParseToken(token, s.cfg.Secret)
}

// CreateUser hashes password and stores a new active account.
func (s *Service) CreateUser(ctx context.Context, username, displayName, password string, role Role) (*User, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	if displayName == "" {
		displayName = username
	}

	user := &User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user created", "user_id", user.ID, "username", username, "role", string(user.Role))
	return user, nil
}

// SetPassword replaces the password of the named user.
func (s *Service) SetPassword(ctx context.Context, username, password string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, user.ID, hash)
}
