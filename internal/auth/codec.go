package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-auth-gateway/internal/user/entity"
)

// MinSecretLen is the HS256 key size.
const MinSecretLen = 32

// DefaultTokenTTL is how long an issued session token stays valid.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Claims is the payload of a session token.
// MFA records that the second factor is satisfied (or that none is configured).
// Expires is epoch millis; the registered exp claim carries the same instant.
type Claims struct {
	Username string `json:"username"`
	UserID   string `json:"userId"`
	MFA      bool   `json:"mfa"`
	Expires  int64  `json:"expiresAt"`
	jwt.RegisteredClaims

	mfaPresent bool
}

// UnmarshalJSON records whether the mfa claim was present; a decoded token
// without it is malformed rather than silently not-satisfied.
func (c *Claims) UnmarshalJSON(b []byte) error {
	type plain Claims
	aux := struct {
		*plain
		MFA *bool `json:"mfa"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	c.mfaPresent = aux.MFA != nil
	if aux.MFA != nil {
		c.MFA = *aux.MFA
	}
	return nil
}

// ExpiresTime returns the expiresAt claim as a time.
func (c *Claims) ExpiresTime() time.Time {
	return time.UnixMilli(c.Expires)
}

func (c *Claims) validateRequired() error {
	if c.Username == "" || c.UserID == "" || c.Expires <= 0 {
		return ErrMalformedToken
	}
	return nil
}

// Codec issues and verifies HS256 session tokens with a single static secret.
// It holds no mutable state and is safe for concurrent use.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) { c.now = now }
}

// NewCodec copies secret; it must be at least MinSecretLen bytes.
// A non-positive ttl means DefaultTokenTTL.
func NewCodec(secret []byte, ttl time.Duration, opts ...CodecOption) (*Codec, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("token secret must be at least %d bytes, got %d", MinSecretLen, len(secret))
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	c := &Codec{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	)
	return c, nil
}

// Issue signs a token for u. The mfa claim is true when u has no second
// factor or mfaSatisfied is set.
func (c *Codec) Issue(u *entity.User, mfaSatisfied bool) (string, error) {
	if u == nil || u.ID == "" || u.Username == "" {
		return "", errors.New("issue token: user id and username required")
	}
	now := c.now()
	exp := now.Add(c.ttl)
	claims := &Claims{
		Username: u.Username,
		UserID:   u.ID,
		MFA:      !u.HasSecondFactor() || mfaSatisfied,
		Expires:  exp.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature over header and claims, then decodes the claims.
// The signature is checked before anything is decoded, so altered claims
// always report ErrInvalidSignature. Segments must be canonical base64url.
// exp and mfa are required; the library exp check also runs, the
// authoritative expiry check is Validator.Validate.
func (c *Codec) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrMalformedToken
	}
	sig, err := c.parser.DecodeSegment(parts[2])
	if err != nil {
		return nil, ErrMalformedToken
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, c.secret); err != nil {
		return nil, ErrInvalidSignature
	}

	claims := &Claims{}
	if _, err := c.parser.ParseWithClaims(token, claims, c.keyFunc); err != nil {
		return nil, mapParseError(err)
	}
	if err := claims.validateRequired(); err != nil {
		return nil, err
	}
	if !claims.mfaPresent {
		return nil, ErrMalformedToken
	}
	return claims, nil
}

func (c *Codec) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return c.secret, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrSessionExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrSignatureInvalid):
		return ErrInvalidSignature
	default:
		return ErrMalformedToken
	}
}
