package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "validation", err: Validation("op", "bad"), want: ErrValidation},
		{name: "auth wrapped", err: fmt.Errorf("verify: %w", Auth("op", "")), want: ErrAuth},
		{name: "forbidden", err: Forbidden("op", "owner only"), want: ErrForbidden},
		{name: "conflict", err: ConflictError{Op: "op", Field: "fingerprint"}, want: ErrConflict},
		{name: "not found", err: NotFound("op", "blob"), want: ErrNotFound},
		{name: "rate limited", err: fmt.Errorf("x: %w", ErrRateLimited), want: ErrRateLimited},
		{name: "internal", err: errors.New("boom"), want: nil},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Kind(tc.err); got != tc.want {
				t.Fatalf("Kind(%v)=%v want=%v", tc.err, got, tc.want)
			}
		})
	}
}

func TestConflictField(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("register: %w", ConflictError{Op: "identity.Register", Field: "display_name"})
	field, ok := ConflictField(err)
	if !ok || field != "display_name" {
		t.Fatalf("ConflictField()=(%q,%v) want=(display_name,true)", field, ok)
	}
	if _, ok := ConflictField(errors.New("other")); ok {
		t.Fatalf("ConflictField on plain error should be false")
	}
	if got := (OpError{Op: "a", Kind: ErrAuth}).Error(); got != "a: auth_error" {
		t.Fatalf("OpError.Error()=%q", got)
	}
}
