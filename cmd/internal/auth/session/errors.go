package session

import (
	"errors"

	"united/cmd/internal/apperr"
)

var (
	// ErrInvalidToken is returned when an access token fails verification.
	ErrInvalidToken = apperr.OpError{Op: "session.VerifyAccess", Kind: apperr.ErrAuth, Msg: "invalid access token"}

	// ErrRefreshRejected is returned for unknown, expired, revoked or reused refresh tokens.
	// Callers cannot tell the cases apart.
	ErrRefreshRejected = apperr.OpError{Op: "session.Refresh", Kind: apperr.ErrAuth, Msg: "invalid refresh token"}

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("session: invalid config")
)

// Store-level rotation outcomes. They never leave this package.
var (
	errRefreshNotFound = errors.New("refresh token not found")
	errRefreshExpired  = errors.New("refresh token expired")
	errRefreshReused   = errors.New("refresh token already used")
)
