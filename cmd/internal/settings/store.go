package settings

import (
	"context"
	"time"
)

// Store persists the settings singleton.
type Store interface {
	// Get returns the stored row, or found=false when nothing was written yet.
	Get(ctx context.Context) (rec Record, found bool, err error)
	// Apply atomically applies c on top of the stored row, seeding it from
	// defaults when absent, and returns the row as written.
	Apply(ctx context.Context, defaults Record, c Change, now time.Time) (Record, error)
}
