package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Config carries the security settings the service needs.
type Config struct {
	// Secret signs access tokens. It has no default: the service refuses
	// to start without one.
	Secret string

	// AccessTokenTTL is the token lifetime in minutes.
	AccessTokenTTL int

	// PasswordMinLength is the minimum accepted password length.
	PasswordMinLength int
}

// Service orchestrates registration, login, and bearer token resolution.
type Service struct {
	users  UserRepository
	cfg    Config
	logger *slog.Logger
}

// NewService creates the authentication service.
func NewService(users UserRepository, cfg Config, logger *slog.Logger) *Service {
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = defaultAccessTokenTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, cfg: cfg, logger: logger}
}

// RegisterInput is the payload for creating a new account.
type RegisterInput struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

// Validate checks the registration payload.
func (in RegisterInput) Validate(minPasswordLength int) error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username,
			validation.Required,
			validation.Length(1, maxUsernameLength),
			validation.Match(usernamePattern),
		),
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.DisplayName, validation.Length(0, 200)), //nolint:mnd // display name cap
		validation.Field(&in.Password,
			validation.Required,
			validation.Length(minPasswordLength, 128), //nolint:mnd // argon2 input cap
		),
	)
}

// LoginResult is the successful login response.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds
	User        *User  `json:"user"`
}

// Register creates a new account with the user role.
//
// Every self-registered account starts as a regular user; role elevation
// goes through the admin surface only. Returns ErrValidation for bad
// input and ErrUsernameExists/ErrEmailExists for duplicates.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if err := in.Validate(s.cfg.PasswordMinLength); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = in.Username
	}

	user := &User{
		Username:     in.Username,
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         RoleUser,
		IsActive:     true,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("account registered", "user_id", user.ID, "username", user.Username)

	return user.Public(), nil
}

// Login authenticates a username/password pair and issues an access token.
//
// An unknown username, a wrong password, and a deactivated account all
// return ErrInvalidCredentials. The internal log keeps the distinction;
// the caller never learns which check failed.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.logger.Info("login rejected", "username", username, "reason", "unknown user")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		s.logger.Info("login rejected", "username", username, "reason", "password mismatch")
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.logger.Info("login rejected", "username", username, "reason", "inactive account")
		return nil, ErrInvalidCredentials
	}

	token, err := GenerateAccessToken(user, s.cfg.Secret, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}

	s.logger.Info("login succeeded", "user_id", user.ID, "username", user.Username)

	return &LoginResult{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   s.cfg.AccessTokenTTL * 60,
		User:        user.Public(),
	}, nil
}

// Resolve validates a raw bearer token and returns the account it names.
//
// It fails closed: a bad signature, an expired token, an unknown subject,
// and a deactivated account all collapse into ErrTokenInvalid. The
// specific cause is logged at debug level and never reaches the caller.
func (s *Service) Resolve(ctx context.Context, raw string) (*User, error) {
	claims, err := ParseToken(raw, s.cfg.Secret)
	if err != nil {
		s.logger.Debug("token rejected", "reason", err)
		return nil, ErrTokenInvalid
	}

	user, err := s.users.GetByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.logger.Debug("token rejected", "subject", claims.Subject, "reason", "unknown subject")
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("resolving token subject: %w", err)
	}

	if !user.IsActive {
		s.logger.Debug("token rejected", "subject", claims.Subject, "reason", "inactive account")
		return nil, ErrTokenInvalid
	}

	return user.Public(), nil
}

// ChangePassword verifies the current password and stores a new hash.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	if len(next) < s.cfg.PasswordMinLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, s.cfg.PasswordMinLength)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := VerifyPassword(current, user.PasswordHash)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}

	hash, err := HashPassword(next)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	s.logger.Info("password changed", "user_id", userID)
	return nil
}
