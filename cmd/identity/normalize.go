package identity

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxDisplayNameRunes bounds display names after normalization.
const MaxDisplayNameRunes = 64

// NormalizeDisplayName trims and NFC-normalizes a display name. Comparison
// stays case-sensitive; only the Unicode composition form is canonicalized so
// visually identical names cannot register twice.
func NormalizeDisplayName(s string) (string, error) {
	const op = "identity.NormalizeDisplayName"

	if !utf8.ValidString(s) {
		return "", invalid(op, "display_name must be valid UTF-8")
	}
	n := norm.NFC.String(strings.TrimSpace(s))
	if n == "" {
		return "", invalid(op, "display_name is required")
	}
	if utf8.RuneCountInString(n) > MaxDisplayNameRunes {
		return "", invalid(op, "display_name is too long")
	}
	for _, r := range n {
		if unicode.IsControl(r) {
			return "", invalid(op, "display_name contains control characters")
		}
	}
	return n, nil
}
