package apikeys

import (
	"errors"
	"fmt"
)

// Validation failures. Returned before any side effect; safe to show to the caller.
var (
	ErrInvalidExpiry = errors.New("expires_on must be in the future")
	ErrForbidden     = errors.New("principal may not act on this key")
)

// MissingFieldError reports a required request field that was empty.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

// InvalidFieldError reports a request field whose value cannot be accepted.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid field %s: %s", e.Field, e.Reason)
}

// Lookup and store faults.
var (
	ErrNotFound       = errors.New("api key not found")
	ErrAlreadyRevoked = errors.New("api key already revoked")
	// ErrDuplicateHash is returned by KeyStore.Insert when key_hash collides with an existing record.
	ErrDuplicateHash = errors.New("duplicate api key hash")
	// ErrCreateFailed means key generation collided twice in a row, which points at a broken random source.
	ErrCreateFailed = errors.New("api key creation failed")
)

// IsValidation reports whether err is a caller-fixable validation failure.
func IsValidation(err error) bool {
	var mf *MissingFieldError
	var inv *InvalidFieldError
	return errors.As(err, &mf) || errors.As(err, &inv) || errors.Is(err, ErrInvalidExpiry) || errors.Is(err, ErrForbidden)
}
