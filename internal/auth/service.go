package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-gateway/internal/user"
	"github.com/ovaphlow/pitchfork/service-auth-gateway/internal/user/entity"
)

// CredentialStore is what login and registration need from the user store.
type CredentialStore interface {
	FindByEmailOrUsername(ctx context.Context, key string) (*entity.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, username, email, password string) (*entity.User, error)
	VerifyPassword(candidate, storedHash string) bool
}

// TokenIssuer mints session tokens. *Codec implements it.
type TokenIssuer interface {
	Issue(u *entity.User, mfaSatisfied bool) (string, error)
}

// LoginResult is a successful login.
type LoginResult struct {
	Token string
	// SecondFactorRequired is informational: the token's mfa flag is false
	// until a second factor step exists.
	SecondFactorRequired bool
}

// Service orchestrates login and registration. It is the only caller of Issue.
type Service struct {
	store  CredentialStore
	issuer TokenIssuer
	logger *zap.SugaredLogger
}

func NewService(store CredentialStore, issuer TokenIssuer, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, issuer: issuer, logger: logger}
}

// Login authenticates by email or username. Unknown users and wrong passwords
// both yield ErrInvalidCredentials to avoid user enumeration.
func (s *Service) Login(ctx context.Context, usernameOrEmail, password string) (*LoginResult, error) {
	u, err := s.store.FindByEmailOrUsername(ctx, usernameOrEmail)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			s.store.VerifyPassword(password, "")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !s.store.VerifyPassword(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	token, err := s.issuer.Issue(u, false)
	if err != nil {
		return nil, err
	}
	s.logger.Debugw("login succeeded", "user_id", u.ID)
	return &LoginResult{Token: token, SecondFactorRequired: u.HasSecondFactor()}, nil
}

// Register creates an identity and returns its first session token. Email
// uniqueness is checked before username uniqueness.
func (s *Service) Register(ctx context.Context, username, email, password string) (string, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return "", ErrInvalidRegistration
	}

	taken, err := s.store.ExistsByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("check email: %w", err)
	}
	if taken {
		return "", user.ErrEmailTaken
	}
	taken, err = s.store.ExistsByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("check username: %w", err)
	}
	if taken {
		return "", user.ErrUsernameTaken
	}

	u, err := s.store.Create(ctx, username, email, password)
	if err != nil {
		return "", err
	}
	// a fresh registration has no second factor to satisfy
	token, err := s.issuer.Issue(u, true)
	if err != nil {
		return "", err
	}
	s.logger.Infow("user registered", "user_id", u.ID)
	return token, nil
}
