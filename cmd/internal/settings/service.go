package settings

import (
	"context"
	"os"
	"strings"

	"united/cmd/internal/apperr"
	"united/cmd/internal/auth/session"
	"united/cmd/internal/clock"
)

const fallbackName = "UNITED Server"

// Defaults seeds the settings before the first write.
type Defaults struct {
	Name             string
	Description      string
	RegistrationMode Mode
}

// Service exposes settings reads and owner-gated updates.
type Service struct {
	store    Store
	clock    clock.Clock
	defaults Record
	version  string
}

// Option configures the Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = clock.OrReal(c) }
}

// NewService builds a Service. An empty default name falls back to the hostname.
func NewService(store Store, defaults Defaults, version string, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, apperr.Validation("settings.NewService", "nil store")
	}
	name := strings.TrimSpace(defaults.Name)
	if name == "" {
		name = defaultName()
	}
	mode := defaults.RegistrationMode
	if mode == "" {
		mode = ModeOpen
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}

	s := &Service{
		store: store,
		clock: clock.Real(),
		defaults: Record{
			Name:             name,
			Description:      strings.TrimSpace(defaults.Description),
			RegistrationMode: mode,
		},
		version: version,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func defaultName() string {
	h, err := os.Hostname()
	if err != nil || strings.TrimSpace(h) == "" {
		return fallbackName
	}
	return h
}

// Get returns the current settings. It is public.
func (s *Service) Get(ctx context.Context) (ServerSettings, error) {
	rec, found, err := s.store.Get(ctx)
	if err != nil {
		return ServerSettings{}, err
	}
	if !found {
		rec = s.defaults
	}
	return s.view(rec), nil
}

// RegistrationMode returns the mode currently in force.
func (s *Service) RegistrationMode(ctx context.Context) (Mode, error) {
	cur, err := s.Get(ctx)
	if err != nil {
		return "", err
	}
	return cur.RegistrationMode, nil
}

// Update applies p when claims carry the owner flag. Only provided fields change.
func (s *Service) Update(ctx context.Context, claims session.AccessClaims, p Patch) (ServerSettings, error) {
	const op = "settings.Update"

	if !claims.IsOwner {
		return ServerSettings{}, apperr.Forbidden(op, "owner privileges required")
	}
	c, err := p.validate()
	if err != nil {
		return ServerSettings{}, err
	}
	if c.empty() {
		return s.Get(ctx)
	}

	rec, err := s.store.Apply(ctx, s.defaults, c, s.clock.Now())
	if err != nil {
		return ServerSettings{}, err
	}
	return s.view(rec), nil
}

func (s *Service) view(r Record) ServerSettings {
	return ServerSettings{
		Name:             r.Name,
		Description:      r.Description,
		RegistrationMode: r.RegistrationMode,
		Version:          s.version,
		UpdatedAt:        r.UpdatedAt,
	}
}
