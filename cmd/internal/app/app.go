// Package app wires the united server runtime: config, logging, storage,
// the auth components and the HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"united/cmd/identity"
	"united/cmd/internal/api"
	"united/cmd/internal/auth"
	"united/cmd/internal/auth/challenge"
	"united/cmd/internal/auth/session"
	"united/cmd/internal/genesis"
	"united/cmd/internal/invite"
	"united/cmd/internal/metrics"
	"united/cmd/internal/ratelimit"
	"united/cmd/internal/settings"
	"united/cmd/security/token"
)

// Version is the build version reported by /server/info. Set with -ldflags.
var Version = "dev"

// App is the united server runtime.
type App struct {
	cfg  Config
	log  Logger
	back *backends

	metrics    *metrics.Metrics
	limiter    *ratelimit.Limiter
	challenges *challenge.Service
	tokens     *session.Service
	bootstrap  *genesis.Bootstrap

	// generatedCredential is set when the setup credential was generated on this boot.
	generatedCredential string

	handler http.Handler
}

// New constructs a fully wired App. The caller must Close it.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.Log.Level, cfg.Log.Format, nil)
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	back, err := openBackends(ctx, cfg.Storage, cfg.StorageDriver(), log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a, err := build(ctx, cfg, log, back)
	if err != nil {
		_ = back.Close()
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, cfg Config, log Logger, back *backends) (*App, error) {
	m := metrics.New()
	hasher := token.NewHasher(cfg.Security.TokenHMACKey)
	if !hasher.HMACEnabled() {
		log.Warn("token.hash.sha256", "reason", "token_hmac_key is not set")
	}

	if cfg.Session.SigningKeyHex == "" {
		key, err := session.GenerateSigningKeyHex()
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		cfg.Session.SigningKeyHex = key
		log.Warn("session.signing_key.ephemeral", "reason", "signing_key_hex is not set; access tokens are invalidated on restart")
	}

	limiter := ratelimit.New(
		ratelimit.WithFallback(cfg.RateLimit.Default),
		ratelimit.WithLimit(ratelimit.ClassChallenge, cfg.RateLimit.Challenge),
		ratelimit.WithLimit(ratelimit.ClassRegister, cfg.RateLimit.Register),
		ratelimit.WithLimit(ratelimit.ClassVerify, cfg.RateLimit.Verify),
		ratelimit.WithLimit(ratelimit.ClassBlob, cfg.RateLimit.Blob),
		ratelimit.WithDenyHook(func(c ratelimit.Class) { m.RateLimited(string(c)) }),
	)

	boot, generated, err := genesis.Init(ctx, back.identities, genesis.Config{
		Credential: cfg.Genesis.SetupCredential,
		Params:     cfg.Genesis.Argon2,
	}, log)
	if err != nil {
		return nil, err
	}

	mode, err := settings.ParseMode(cfg.Server.RegistrationMode)
	if err != nil {
		return nil, err
	}
	settingsSvc, err := settings.NewService(back.settings, settings.Defaults{
		Name:             cfg.Server.Name,
		Description:      cfg.Server.Description,
		RegistrationMode: mode,
	}, Version)
	if err != nil {
		return nil, err
	}

	invites, err := invite.NewService(back.invites, hasher)
	if err != nil {
		return nil, err
	}

	registry, err := identity.NewRegistry(back.identities,
		identity.WithBootstrap(boot),
		identity.WithModeSource(settingsSvc),
		identity.WithInvites(invites),
	)
	if err != nil {
		return nil, err
	}

	challenges, err := challenge.NewService(back.challenges, challenge.WithTTL(cfg.Challenge.TTL))
	if err != nil {
		return nil, err
	}
	verifier, err := auth.NewVerifier(challenges, registry)
	if err != nil {
		return nil, err
	}

	tokens, err := session.NewService(cfg.Session, back.refresh, subjectLoader(registry), hasher,
		session.WithRotationObserver(m.RefreshRotation),
	)
	if err != nil {
		return nil, err
	}

	h, err := api.NewHandler(log, cfg.API, api.Deps{
		Limiter:    limiter,
		Challenges: challenges,
		Identities: registry,
		Verifier:   verifier,
		Tokens:     tokens,
		Settings:   settingsSvc,
		Invites:    invites,
		Metrics:    m,
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:                 cfg,
		log:                 log,
		back:                back,
		metrics:             m,
		limiter:             limiter,
		challenges:          challenges,
		tokens:              tokens,
		bootstrap:           boot,
		generatedCredential: generated,
	}

	mux := http.NewServeMux()
	a.registerHTTP(mux, h)
	a.handler = WithSecurityHeaders(WithRequestLogging(mux, log, m))
	return a, nil
}

// subjectLoader resolves token subjects from the identity registry.
func subjectLoader(reg *identity.Registry) session.SubjectLoader {
	return session.SubjectLoaderFunc(func(ctx context.Context, userID string) (session.Subject, error) {
		id, err := reg.GetByID(ctx, userID)
		if err != nil {
			return session.Subject{}, err
		}
		return session.Subject{UserID: id.UserID, Fingerprint: id.Fingerprint, IsOwner: id.IsOwner}, nil
	})
}

// GeneratedSetupCredential returns the setup credential generated on this
// boot, or "" when one was configured or an owner already exists.
func (a *App) GeneratedSetupCredential() string { return a.generatedCredential }

// Handler returns the root HTTP handler with middleware applied.
func (a *App) Handler() http.Handler { return a.handler }

// Run serves HTTP on the configured address until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.HTTP.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves HTTP on ln until ctx is cancelled, then shuts down gracefully.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.HTTP.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.HTTP.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.HTTP.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.HTTP.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.HTTP.MaxHeaderBytes, 1<<20),
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go a.runJanitor(janitorCtx, a.cfg.RateLimit.JanitorInterval)

	a.log.Info("server.start",
		"addr", ln.Addr().String(),
		"storage", a.back.driver,
		"token_format", string(a.tokens.Format()),
		"version", Version,
		"owner_claimed", a.bootstrap.Claimed(),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), nonZeroDuration(a.cfg.HTTP.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}
	a.log.Info("server.stopped")
	return nil
}

// Close releases storage resources.
func (a *App) Close() error {
	if err := a.back.Close(); err != nil {
		a.log.Error("store.close.fail", "err", err)
		return err
	}
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
