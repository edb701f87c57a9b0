// Package apperr defines the error taxonomy shared by every component.
//
// Components return errors that wrap one of the sentinel kinds below; the
// HTTP layer maps kinds to status codes with errors.Is and never inspects
// messages.
package apperr

import "errors"

// Sentinel error kinds (stable for errors.Is and for mapping to API status codes).
var (
	// ErrValidation marks malformed or inconsistent input (400).
	ErrValidation = errors.New("validation_error")
	// ErrAuth marks a failed authentication: bad signature, unknown identity,
	// consumed or expired challenge, revoked or expired token, bad setup credential (401).
	ErrAuth = errors.New("auth_error")
	// ErrForbidden marks a valid identity lacking the required role (403).
	ErrForbidden = errors.New("authorization_error")
	// ErrConflict marks a uniqueness violation (409).
	ErrConflict = errors.New("conflict")
	// ErrRateLimited marks a request rejected by the rate limiter (429).
	ErrRateLimited = errors.New("rate_limited")
	// ErrNotFound marks a missing resource (404).
	ErrNotFound = errors.New("not_found")
)
