package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports an absent entity. Login paths fold it into
	// ErrAuthFailed; role-management callers see it verbatim.
	ErrNotFound = errors.New("auth: not found")

	// ErrConflict reports a uniqueness violation on registration.
	ErrConflict = errors.New("auth: already exists")

	// ErrInvalidInput reports a malformed request argument.
	ErrInvalidInput = errors.New("auth: invalid input")

	// ErrAuthFailed is the single outcome for failed logins. It deliberately
	// does not distinguish an unknown principal from a wrong secret.
	ErrAuthFailed = errors.New("auth: authentication failed")

	// ErrInvalidToken is the single outcome for every token validation
	// failure: bad signature, malformed value, expiry, revocation.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrForbidden reports an authorization denial for a valid token.
	ErrForbidden = errors.New("auth: forbidden")
)

// IntegrityError marks corrupt stored data (a secret hash or claim set that
// fails to parse). It is fatal for the request, must be logged with full
// detail and is never folded into a verification failure.
type IntegrityError struct {
	Op  string
	Err error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("auth: data integrity: %s: %v", e.Op, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }
