package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ovaphlow/pitchfork/service-auth-gateway/internal/user"
	"github.com/ovaphlow/pitchfork/service-auth-gateway/internal/user/entity"
)

// IdentityFinder is the part of the credential store the validator needs.
type IdentityFinder interface {
	FindByIDAndUsername(ctx context.Context, id, username string) (*entity.User, error)
}

// Validator turns verified claims into a Principal.
type Validator struct {
	finder IdentityFinder
	now    func() time.Time
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithValidatorClock replaces time.Now, for tests.
func WithValidatorClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.now = now }
}

func NewValidator(finder IdentityFinder, opts ...ValidatorOption) *Validator {
	v := &Validator{finder: finder, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks expiry, binds the claims to a stored identity by id and
// username together, and derives the authorities. The store lookup is the only
// I/O; store failures are returned wrapped and still reject the request.
func (v *Validator) Validate(ctx context.Context, claims *Claims) (*Principal, error) {
	if claims == nil {
		return nil, ErrMalformedToken
	}
	if err := claims.validateRequired(); err != nil {
		return nil, err
	}
	if claims.ExpiresTime().Before(v.now()) {
		return nil, ErrSessionExpired
	}

	u, err := v.finder.FindByIDAndUsername(ctx, claims.UserID, claims.Username)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrUnknownIdentity
		}
		return nil, fmt.Errorf("lookup identity: %w", err)
	}
	if u == nil || u.ID != claims.UserID || u.Username != claims.Username {
		return nil, ErrUnknownIdentity
	}

	return &Principal{
		User:        u,
		Authorities: authorities(u.Roles),
		Claims:      claims,
	}, nil
}

// Authenticator runs token verification and session validation in sequence.
type Authenticator struct {
	codec     *Codec
	validator *Validator
}

func NewAuthenticator(codec *Codec, validator *Validator) *Authenticator {
	return &Authenticator{codec: codec, validator: validator}
}

// Authenticate verifies token and validates its claims.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*Principal, error) {
	claims, err := a.codec.Verify(token)
	if err != nil {
		return nil, err
	}
	return a.validator.Validate(ctx, claims)
}
