// Package invite manages single-use registration invites created by the owner.
package invite

import (
	"context"
	"strings"
	"time"

	"united/cmd/identity/ids"
	"united/cmd/internal/apperr"
	"united/cmd/internal/auth/session"
	"united/cmd/internal/clock"
	"united/cmd/security/token"
)

const (
	defaultCodeBytes = 32
	defaultTTL       = 7 * 24 * time.Hour
	maxTTL           = 30 * 24 * time.Hour
)

// Invite represents an invite row. The plain code is never stored.
type Invite struct {
	ID         string
	CreatedBy  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	ConsumedBy *string
}

// Service manages invite creation and redemption.
type Service struct {
	store     Store
	hasher    token.Hasher
	clock     clock.Clock
	codeBytes int
}

// Option configures the Service.
type Option func(*Service) error

// WithCodeBytes sets the length of generated invite codes in bytes.
func WithCodeBytes(n int) Option {
	return func(s *Service) error {
		if n < 16 {
			return apperr.Validation("invite.WithCodeBytes", "code must be at least 16 bytes")
		}
		s.codeBytes = n
		return nil
	}
}

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(s *Service) error {
		s.clock = clock.OrReal(c)
		return nil
	}
}

// NewService constructs a Service with safe defaults.
func NewService(store Store, hasher token.Hasher, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, apperr.Validation("invite.NewService", "nil store")
	}
	s := &Service{store: store, hasher: hasher, clock: clock.Real(), codeBytes: defaultCodeBytes}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Create issues a new invite. Only the owner may create invites. The plain
// code is returned once and must be handed to the invitee out of band.
func (s *Service) Create(ctx context.Context, claims session.AccessClaims, ttl time.Duration) (string, Invite, error) {
	const op = "invite.Create"

	if !claims.IsOwner {
		return "", Invite{}, apperr.Forbidden(op, "owner privileges required")
	}
	if err := ctx.Err(); err != nil {
		return "", Invite{}, err
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if ttl > maxTTL {
		return "", Invite{}, apperr.Validation(op, "ttl exceeds 30 days")
	}

	now := s.clock.Now()
	code, codeHash, err := s.hasher.NewOpaque(s.codeBytes)
	if err != nil {
		return "", Invite{}, err
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return "", Invite{}, err
	}

	inv := Invite{
		ID:        id,
		CreatedBy: claims.UserID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.store.Create(ctx, Record{Invite: inv, CodeHash: codeHash}); err != nil {
		return "", Invite{}, err
	}
	return code, inv, nil
}

// Redeem consumes code on behalf of userID. Unknown, expired and used codes
// all fail with the same apperr.ErrForbidden error.
func (s *Service) Redeem(ctx context.Context, code, userID string) error {
	const op = "invite.Redeem"

	code = strings.TrimSpace(code)
	if code == "" {
		return apperr.Forbidden(op, "invite code required")
	}
	_, found, err := s.store.Consume(ctx, s.hasher.Hash(code), userID, s.clock.Now())
	if err != nil {
		return err
	}
	if !found {
		return errInvalid(op)
	}
	return nil
}

// Release returns a redeemed code to the pool after the registration it was
// reserved for failed.
func (s *Service) Release(ctx context.Context, code, userID string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil
	}
	return s.store.Release(ctx, s.hasher.Hash(code), userID)
}
