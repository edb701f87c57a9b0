// Package challenge issues short-lived, single-use nonces that clients sign
// to prove possession of a private key.
package challenge

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"united/cmd/identity/ids"
	"united/cmd/internal/apperr"
	"united/cmd/internal/clock"
)

const (
	// Bytes is the size of every challenge nonce.
	Bytes = 32
	// DefaultTTL bounds how long an issued challenge can be consumed.
	DefaultTTL = 2 * time.Minute
)

// ErrInvalidChallenge is returned for unknown, expired and already consumed challenges.
var ErrInvalidChallenge = apperr.OpError{Op: "challenge.Consume", Kind: apperr.ErrAuth, Msg: "invalid or expired challenge"}

// Challenge is an issued nonce.
type Challenge struct {
	ID        string
	Bytes     []byte
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Store persists challenges.
type Store interface {
	Put(ctx context.Context, c Challenge) error

	// Consume atomically marks the challenge consumed when it exists, is not
	// consumed and has not expired at now, and returns its bytes. found is
	// false otherwise. Concurrent calls for one id yield at most one success.
	Consume(ctx context.Context, id string, now time.Time) (b []byte, found bool, err error)

	// Sweep deletes challenges that expired before now.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Service issues and consumes challenges.
type Service struct {
	store Store
	ttl   time.Duration
	clock clock.Clock
}

// Option configures the Service.
type Option func(*Service)

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = clock.OrReal(c) }
}

// NewService constructs a Service over store.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("challenge: nil store")
	}
	s := &Service{store: store, ttl: DefaultTTL, clock: clock.Real()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// TTL reports the configured challenge lifetime.
func (s *Service) TTL() time.Duration { return s.ttl }

// Issue creates and persists a fresh challenge.
func (s *Service) Issue(ctx context.Context) (Challenge, error) {
	now := s.clock.Now().UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		return Challenge{}, fmt.Errorf("challenge: id: %w", err)
	}
	b := make([]byte, Bytes)
	if _, err := rand.Read(b); err != nil {
		return Challenge{}, fmt.Errorf("challenge: entropy: %w", err)
	}
	c := Challenge{ID: id, Bytes: b, IssuedAt: now, ExpiresAt: now.Add(s.ttl)}
	if err := s.store.Put(ctx, c); err != nil {
		return Challenge{}, err
	}
	return c, nil
}

// Consume returns the bytes of a live challenge and marks it used.
func (s *Service) Consume(ctx context.Context, id string) ([]byte, error) {
	if !ids.IsULID(id) {
		return nil, ErrInvalidChallenge
	}
	b, found, err := s.store.Consume(ctx, id, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrInvalidChallenge
	}
	return b, nil
}

// Sweep deletes expired challenges.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	return s.store.Sweep(ctx, s.clock.Now().UTC())
}
