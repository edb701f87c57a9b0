package ratelimit

import (
	"context"
	"sync"
	"time"

	"united/cmd/internal/clock"
)

type key struct {
	client string
	class  Class
}

type bucket struct {
	mu     sync.Mutex
	events []time.Time
	dead   bool
}

// Limiter tracks attempts per (client key, class).
type Limiter struct {
	clock    clock.Clock
	limits   map[Class]Limit
	fallback Limit
	onDeny   func(Class)

	buckets sync.Map // key -> *bucket
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) { l.clock = clock.OrReal(c) }
}

// WithLimit sets the limit for one class.
func WithLimit(class Class, lim Limit) Option {
	return func(l *Limiter) { l.limits[class] = lim.normalized() }
}

// WithFallback sets the limit used for classes without an explicit entry.
func WithFallback(lim Limit) Option {
	return func(l *Limiter) { l.fallback = lim.normalized() }
}

// WithDenyHook registers a callback invoked for every denied attempt.
func WithDenyHook(fn func(Class)) Option {
	return func(l *Limiter) { l.onDeny = fn }
}

// New constructs a Limiter. Unconfigured classes use DefaultLimit.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		clock:    clock.Real(),
		limits:   make(map[Class]Limit),
		fallback: DefaultLimit(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

func (l *Limiter) limitFor(class Class) Limit {
	if lim, ok := l.limits[class]; ok {
		return lim
	}
	return l.fallback
}

// Allow records an attempt for (clientKey, class) and reports whether it is admitted.
func (l *Limiter) Allow(clientKey string, class Class) Decision {
	lim := l.limitFor(class)
	k := key{client: clientKey, class: class}

	for {
		v, _ := l.buckets.LoadOrStore(k, &bucket{})
		b := v.(*bucket)

		b.mu.Lock()
		if b.dead {
			// Evicted between load and lock; pick up the replacement.
			b.mu.Unlock()
			continue
		}
		d := b.record(l.clock.Now(), lim)
		b.mu.Unlock()

		if !d.Allowed && l.onDeny != nil {
			l.onDeny(class)
		}
		return d
	}
}

// record must be called with b.mu held.
func (b *bucket) record(now time.Time, lim Limit) Decision {
	cut := now.Add(-lim.Window)
	dst := b.events[:0]
	for _, t := range b.events {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}
	b.events = dst

	if len(b.events) < lim.Events {
		b.events = append(b.events, now)
		return Decision{Allowed: true}
	}

	// Denied attempts count too. Only the newest lim.Events timestamps can
	// influence a future decision, so older ones are dropped.
	b.events = append(b.events, now)
	if over := len(b.events) - lim.Events; over > 0 {
		b.events = append(b.events[:0], b.events[over:]...)
	}

	retry := b.events[0].Add(lim.Window).Sub(now)
	if retry <= 0 {
		retry = time.Millisecond
	}
	return Decision{Allowed: false, RetryAfter: retry}
}

// Sweep evicts buckets with no attempts inside their window and returns the number removed.
func (l *Limiter) Sweep() int {
	now := l.clock.Now()
	removed := 0
	l.buckets.Range(func(k, v any) bool {
		b := v.(*bucket)
		lim := l.limitFor(k.(key).class)

		b.mu.Lock()
		idle := len(b.events) == 0 || !b.events[len(b.events)-1].After(now.Add(-lim.Window))
		if idle {
			b.dead = true
			l.buckets.Delete(k)
			removed++
		}
		b.mu.Unlock()
		return true
	})
	return removed
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	n := 0
	l.buckets.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// RunJanitor sweeps idle buckets every interval until ctx is done.
func (l *Limiter) RunJanitor(ctx context.Context, interval time.Duration) {
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
			l.Sweep()
		}
	}
}
