package credential

import "errors"

// Public, stable errors for callers.
var (
	ErrEmptySecret = errors.New("credential: empty secret")
	ErrInvalidHash = errors.New("credential: invalid hash")
)
