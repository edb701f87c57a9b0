package invite

import "united/cmd/internal/apperr"

// errInvalid is returned for unknown, expired or already used codes. The
// three cases are deliberately indistinguishable to callers.
func errInvalid(op string) error {
	return apperr.Forbidden(op, "invalid or expired invite code")
}
