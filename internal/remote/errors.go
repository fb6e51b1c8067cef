package remote

import (
	"errors"
	"fmt"
)

// Sentinel errors for the error classes the sync engine cares about.
// Validation and authorization errors propagate to the caller immediately
// and are never queued; unreachable errors trigger the offline fallback.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrUnreachable  = errors.New("server unreachable")
)

// APIError is the structured error body returned by the server.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// IsRejection reports whether the error is a permanent rejection by the
// server (bad input or missing permission), as opposed to a transient
// failure worth retrying or falling back offline for.
func IsRejection(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrForbidden)
}
