package auth

import (
	"errors"

	"github.com/ovaphlow/pitchfork/service-auth-gateway/internal/user"
)

// Authentication failures. Each one ends the request with 401; none is retried.
var (
	ErrMissingToken     = errors.New("missing session token")
	ErrMalformedToken   = errors.New("malformed session token")
	ErrInvalidSignature = errors.New("invalid session token signature")
	ErrSessionExpired   = errors.New("session expired")
	ErrUnknownIdentity  = errors.New("invalid session")
)

// Login and registration failures, reported as {success:false}.
var (
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrInvalidRegistration = errors.New("username, email and password are required")
)

// FailureCode maps an authentication error to the stable code sent in the
// 401 body. Unrecognised errors collapse to "unauthorized".
func FailureCode(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return "missing_token"
	case errors.Is(err, ErrMalformedToken):
		return "malformed_token"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, ErrUnknownIdentity):
		return "unknown_identity"
	default:
		return "unauthorized"
	}
}

// failureReason is the client-facing message. Internal errors (store outage)
// are not echoed back.
func failureReason(err error) string {
	if FailureCode(err) == "unauthorized" {
		return "authentication failed"
	}
	return err.Error()
}

// businessMessage is the errorMessage of a failed login/registration.
func businessMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidRegistration),
		errors.Is(err, user.ErrEmailTaken),
		errors.Is(err, user.ErrUsernameTaken):
		return err.Error(), true
	default:
		return "", false
	}
}
