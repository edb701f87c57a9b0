package identity

import (
	"context"
	"time"
)

// Store is the identity persistence boundary.
type Store interface {
	// Insert atomically creates rec, enforcing unique fingerprint and unique
	// display name against one consistent snapshot. Uniqueness failures are
	// apperr.ConflictError with FieldFingerprint or FieldDisplayName.
	// When rec.IsOwner is set and an owner already exists, Insert returns
	// ErrOwnerTaken and writes nothing.
	Insert(ctx context.Context, rec Identity) (Identity, error)

	GetByFingerprint(ctx context.Context, fingerprint string) (Identity, error)
	GetByID(ctx context.Context, userID string) (Identity, error)

	// UpdateBlob replaces the encrypted blob; missing users are apperr.ErrNotFound.
	UpdateBlob(ctx context.Context, userID string, blob []byte, now time.Time) error

	HasOwner(ctx context.Context) (bool, error)
}
