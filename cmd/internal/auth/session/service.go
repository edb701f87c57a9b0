package session

import (
	"context"
	"errors"
	"time"

	"united/cmd/identity/ids"
	"united/cmd/internal/apperr"
	"united/cmd/internal/clock"
	"united/cmd/security/token"
)

// SubjectLoader resolves the current subject for a user when a refresh token
// is rotated, so ownership changes are reflected in new access tokens.
type SubjectLoader interface {
	LoadSubject(ctx context.Context, userID string) (Subject, error)
}

// SubjectLoaderFunc adapts a function to SubjectLoader.
type SubjectLoaderFunc func(ctx context.Context, userID string) (Subject, error)

func (f SubjectLoaderFunc) LoadSubject(ctx context.Context, userID string) (Subject, error) {
	return f(ctx, userID)
}

// Pair is the token pair returned to clients.
type Pair struct {
	Subject          Subject
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Rotation outcomes reported to the observer.
const (
	RotationOK      = "ok"
	RotationUnknown = "unknown"
	RotationExpired = "expired"
	RotationReused  = "reused"
)

// Service issues token pairs and rotates refresh tokens.
type Service struct {
	cfg      Config
	access   AccessTokenManager
	store    Store
	subjects SubjectLoader
	hasher   token.Hasher
	clock    clock.Clock
	observe  func(result string)
}

// Option configures the Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = clock.OrReal(c) }
}

// WithRotationObserver registers a callback invoked with the outcome of every refresh.
func WithRotationObserver(fn func(result string)) Option {
	return func(s *Service) {
		if fn != nil {
			s.observe = fn
		}
	}
}

// NewService wires the token service.
func NewService(cfg Config, store Store, subjects SubjectLoader, hasher token.Hasher, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil || subjects == nil {
		return nil, ErrConfig
	}
	access, err := NewAccessTokenManager(cfg)
	if err != nil {
		return nil, err
	}
	s := &Service{
		cfg:      cfg,
		access:   access,
		store:    store,
		subjects: subjects,
		hasher:   hasher,
		clock:    clock.Real(),
		observe:  func(string) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Format reports the access token encoding in use.
func (s *Service) Format() Format { return s.access.Format() }

// Issue creates a fresh access/refresh pair for sub.
func (s *Service) Issue(ctx context.Context, sub Subject) (Pair, error) {
	const op = "session.Issue"
	if sub.UserID == "" {
		return Pair{}, apperr.Validation(op, "user id is required")
	}

	now := s.clock.Now().UTC()
	rec, plain, err := s.newRecord(now)
	if err != nil {
		return Pair{}, err
	}
	rec.UserID = sub.UserID
	if err := s.store.Create(ctx, rec); err != nil {
		return Pair{}, err
	}
	return s.pair(sub, plain, rec, now)
}

// Refresh consumes a refresh token and returns its successor pair. The
// subject is resolved before the token is consumed, so a failed lookup leaves
// it usable; once rotated, the presented token never works again.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Pair, error) {
	if refreshToken == "" {
		s.observe(RotationUnknown)
		return Pair{}, ErrRefreshRejected
	}
	now := s.clock.Now().UTC()
	oldHash := s.hasher.Hash(refreshToken)

	cur, found, err := s.store.Lookup(ctx, oldHash)
	if err != nil {
		return Pair{}, err
	}
	if !found {
		s.observe(RotationUnknown)
		return Pair{}, ErrRefreshRejected
	}
	if cur.RevokedAt != nil {
		return Pair{}, s.rejectReuse(ctx, cur, now)
	}
	if !cur.ExpiresAt.After(now) {
		s.observe(RotationExpired)
		return Pair{}, ErrRefreshRejected
	}

	sub, err := s.subjects.LoadSubject(ctx, cur.UserID)
	if err != nil {
		if apperr.Kind(err) == apperr.ErrNotFound {
			s.observe(RotationUnknown)
			return Pair{}, ErrRefreshRejected
		}
		return Pair{}, err
	}

	next, plain, err := s.newRecord(now)
	if err != nil {
		return Pair{}, err
	}
	old, err := s.store.Rotate(ctx, oldHash, now, next)
	switch {
	case errors.Is(err, errRefreshReused):
		return Pair{}, s.rejectReuse(ctx, old, now)
	case errors.Is(err, errRefreshExpired):
		s.observe(RotationExpired)
		return Pair{}, ErrRefreshRejected
	case errors.Is(err, errRefreshNotFound):
		s.observe(RotationUnknown)
		return Pair{}, ErrRefreshRejected
	case err != nil:
		return Pair{}, err
	}

	s.observe(RotationOK)
	next.UserID = old.UserID
	return s.pair(sub, plain, next, now)
}

func (s *Service) rejectReuse(ctx context.Context, rec Record, now time.Time) error {
	s.observe(RotationReused)
	if s.cfg.RevokeFamilyOnReuse && rec.UserID != "" {
		if _, err := s.store.RevokeUser(ctx, rec.UserID, now); err != nil {
			return err
		}
	}
	return ErrRefreshRejected
}

// VerifyAccess validates an access token and returns its claims.
func (s *Service) VerifyAccess(accessToken string) (AccessClaims, error) {
	if accessToken == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	return s.access.Verify(accessToken, s.clock.Now().UTC())
}

// RevokeUser revokes every live refresh token of userID.
func (s *Service) RevokeUser(ctx context.Context, userID string) (int, error) {
	return s.store.RevokeUser(ctx, userID, s.clock.Now().UTC())
}

// Purge deletes expired refresh token records.
func (s *Service) Purge(ctx context.Context) (int, error) {
	return s.store.Purge(ctx, s.clock.Now().UTC())
}

func (s *Service) newRecord(now time.Time) (Record, string, error) {
	id, err := ids.NewULID(now)
	if err != nil {
		return Record{}, "", err
	}
	plain, hash, err := s.hasher.NewOpaque(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Record{}, "", err
	}
	return Record{
		ID:        id,
		TokenHash: hash,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}, plain, nil
}

func (s *Service) pair(sub Subject, refreshPlain string, rec Record, now time.Time) (Pair, error) {
	access, exp, err := s.access.Issue(sub, now)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		Subject:          sub,
		AccessToken:      access,
		AccessExpiresAt:  exp,
		RefreshToken:     refreshPlain,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}
