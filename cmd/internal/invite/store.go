package invite

import (
	"context"
	"time"
)

// Record is the stored form of an invite.
type Record struct {
	Invite
	CodeHash string
}

// Store is the persistence boundary for invites.
type Store interface {
	Create(ctx context.Context, rec Record) error
	// Consume atomically marks the invite with codeHash used by userID.
	// It fails with found=false when the code is unknown, expired or used.
	Consume(ctx context.Context, codeHash, userID string, now time.Time) (inv Invite, found bool, err error)
	// Release undoes a Consume by userID so the code can be used again.
	Release(ctx context.Context, codeHash, userID string) error
}
