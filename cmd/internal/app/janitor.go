package app

import (
	"context"
	"time"
)

// runJanitor evicts idle rate-limit buckets and deletes expired challenges and
// refresh tokens every interval until ctx is done.
func (a *App) runJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.sweep(ctx)
		}
	}
}

func (a *App) sweep(ctx context.Context) {
	buckets := a.limiter.Sweep()

	challenges, err := a.challenges.Sweep(ctx)
	if err != nil {
		a.log.Error("janitor.challenges.fail", "err", err)
	}
	tokens, err := a.tokens.Purge(ctx)
	if err != nil {
		a.log.Error("janitor.refresh.fail", "err", err)
	}
	if buckets+challenges+tokens > 0 {
		a.log.Debug("janitor.sweep", "buckets", buckets, "challenges", challenges, "refresh_tokens", tokens)
	}
}
