package ids

import "github.com/google/uuid"

// NewUserID returns a time-ordered UUIDv7 in canonical 36-char form.
func NewUserID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// IsUserID reports whether s is a canonical UUID string.
func IsUserID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
