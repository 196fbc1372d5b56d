package auth

import (
	"errors"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/failure"
)

var (
	ErrNoToken          = errors.New("no token provided")
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidIssuer    = errors.New("invalid issuer")
	ErrMissingSub       = errors.New("missing sub claim")
	ErrKeyNotFound      = errors.New("jwks: key not found")
	ErrNotAuthenticated = failure.ErrNotAuthenticated
)

// AuthError is a rejected or failed sign-in. Message is safe to show to the
// user. Temporary is set when the identity provider could not be reached.
type AuthError struct {
	Message   string
	Temporary bool
	Err       error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return "auth: " + e.Message + ": " + e.Err.Error()
	}
	return "auth: " + e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }
