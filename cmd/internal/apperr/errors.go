package apperr

import (
	"errors"
	"fmt"
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
// Kind must be one of the sentinel kinds. Msg may carry human-readable context; never secrets.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

// ConflictError reports a uniqueness conflict for a specific logical field
// ("fingerprint", "display_name", ...).
type ConflictError struct {
	Op    string
	Field string
}

func (e ConflictError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrConflict)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrConflict, e.Field)
}

func (e ConflictError) Unwrap() error { return ErrConflict }

// Validation builds an OpError of kind ErrValidation.
func Validation(op, msg string) error { return OpError{Op: op, Kind: ErrValidation, Msg: msg} }

// Auth builds an OpError of kind ErrAuth.
func Auth(op, msg string) error { return OpError{Op: op, Kind: ErrAuth, Msg: msg} }

// Forbidden builds an OpError of kind ErrForbidden.
func Forbidden(op, msg string) error { return OpError{Op: op, Kind: ErrForbidden, Msg: msg} }

// NotFound builds an OpError of kind ErrNotFound.
func NotFound(op, msg string) error { return OpError{Op: op, Kind: ErrNotFound, Msg: msg} }

// ConflictField returns the conflicting field name if err is a ConflictError.
func ConflictField(err error) (string, bool) {
	var ce ConflictError
	if errors.As(err, &ce) {
		return ce.Field, true
	}
	return "", false
}

// Kind returns the sentinel kind err wraps, or nil for unclassified errors.
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrAuth, ErrForbidden, ErrConflict, ErrRateLimited, ErrNotFound} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
