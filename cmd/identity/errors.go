package identity

import (
	"errors"

	"united/cmd/internal/apperr"
)

// Logical conflict fields reported through apperr.ConflictError.
const (
	FieldFingerprint = "fingerprint"
	FieldDisplayName = "display_name"
)

// ErrOwnerTaken is returned by Store.Insert when an owner insert loses against
// an existing owner. The Registry handles it; it never reaches callers.
var ErrOwnerTaken = errors.New("identity: owner already exists")

func invalid(op, msg string) error {
	return apperr.Validation(op, msg)
}

func notFound(op string) error {
	return apperr.NotFound(op, "identity not found")
}

func conflict(op, field string) error {
	return apperr.ConflictError{Op: op, Field: field}
}

func forbidden(op, msg string) error {
	return apperr.Forbidden(op, msg)
}
