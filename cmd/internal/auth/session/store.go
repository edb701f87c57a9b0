package session

import (
	"context"
	"time"
)

// Record is a persisted refresh token. The plain token is never stored.
type Record struct {
	ID          string
	UserID      string
	TokenHash   string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	RotatedFrom *string
	RevokedAt   *time.Time
}

// Store persists refresh tokens.
type Store interface {
	Create(ctx context.Context, rec Record) error

	// Lookup returns the record for tokenHash without changing it.
	Lookup(ctx context.Context, tokenHash string) (Record, bool, error)

	// Rotate atomically revokes the live record identified by oldHash and inserts
	// next as its successor (UserID and RotatedFrom are taken from the old record).
	// Exactly one of any number of concurrent calls for the same oldHash succeeds.
	// A record that is already revoked yields errRefreshReused together with it.
	Rotate(ctx context.Context, oldHash string, now time.Time, next Record) (old Record, err error)

	// RevokeUser revokes every live refresh token of userID.
	RevokeUser(ctx context.Context, userID string, now time.Time) (int, error)

	// Purge deletes records that expired before now.
	Purge(ctx context.Context, now time.Time) (int, error)
}
