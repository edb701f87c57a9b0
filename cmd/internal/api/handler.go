package api

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"united/cmd/identity"
	"united/cmd/internal/apperr"
	"united/cmd/internal/auth"
	"united/cmd/internal/auth/challenge"
	"united/cmd/internal/auth/session"
	"united/cmd/internal/invite"
	"united/cmd/internal/metrics"
	"united/cmd/internal/ratelimit"
	"united/cmd/internal/settings"
)

// Limiter admits or rejects attempts per client and endpoint class.
type Limiter interface {
	Allow(clientKey string, class ratelimit.Class) ratelimit.Decision
}

// Challenges issues authentication challenges.
type Challenges interface {
	Issue(ctx context.Context) (challenge.Challenge, error)
}

// Identities registers and looks up identities.
type Identities interface {
	Register(ctx context.Context, in identity.RegisterInput) (identity.Identity, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (identity.Identity, error)
	UpdateBlob(ctx context.Context, userID string, blob []byte) (time.Time, error)
}

// Verifier checks signed challenge responses.
type Verifier interface {
	Verify(ctx context.Context, in auth.VerifyInput) (identity.Identity, error)
}

// Tokens issues, rotates and verifies session tokens.
type Tokens interface {
	Issue(ctx context.Context, sub session.Subject) (session.Pair, error)
	Refresh(ctx context.Context, refreshToken string) (session.Pair, error)
	VerifyAccess(accessToken string) (session.AccessClaims, error)
}

// Settings reads and updates the server settings.
type Settings interface {
	Get(ctx context.Context) (settings.ServerSettings, error)
	Update(ctx context.Context, claims session.AccessClaims, p settings.Patch) (settings.ServerSettings, error)
}

// Invites creates registration invites.
type Invites interface {
	Create(ctx context.Context, claims session.AccessClaims, ttl time.Duration) (string, invite.Invite, error)
}

// Deps lists the components behind the handlers. Invites and Metrics are optional.
type Deps struct {
	Limiter    Limiter
	Challenges Challenges
	Identities Identities
	Verifier   Verifier
	Tokens     Tokens
	Settings   Settings
	Invites    Invites
	Metrics    *metrics.Metrics
}

// Handler wires HTTP endpoints to the auth, identity and settings components.
type Handler struct {
	log *slog.Logger
	cfg Config
	Deps
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, cfg Config, deps Deps) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if deps.Limiter == nil || deps.Challenges == nil || deps.Identities == nil ||
		deps.Verifier == nil || deps.Tokens == nil || deps.Settings == nil {
		return nil, errors.New("api: missing dependency")
	}
	return &Handler{log: log, cfg: cfg.normalized(), Deps: deps}, nil
}

// Register wires routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("GET /server/info", h.handleServerInfo)
	mux.HandleFunc("PUT /server/settings", h.handleSettingsUpdate)

	mux.HandleFunc("POST /auth/challenge", h.handleChallenge)
	mux.HandleFunc("POST /auth/register", h.handleRegister)
	mux.HandleFunc("POST /auth/verify", h.handleVerify)
	mux.HandleFunc("POST /auth/refresh", h.handleRefresh)
	mux.HandleFunc("POST /auth/invites", h.handleInviteCreate)

	mux.HandleFunc("GET /identity/blob/{fingerprint}", h.handleBlobGet)
	mux.HandleFunc("PUT /identity/blob", h.handleBlobUpdate)
}

// ---- handlers ----

func (h *Handler) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	cur, err := h.Settings.Get(r.Context())
	if err != nil {
		h.writeAppError(w, "server.info.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, toServerInfo(cur))
}

func (h *Handler) handleSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req settingsRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	updated, err := h.Settings.Update(r.Context(), claims, settings.Patch{
		Name:             req.Name,
		Description:      req.Description,
		RegistrationMode: req.RegistrationMode,
	})
	if err != nil {
		h.writeAppError(w, "server.settings.update.fail", err)
		return
	}
	h.audit(r, "server.settings.updated", "user_id", claims.UserID)
	writeJSON(w, http.StatusOK, toServerInfo(updated))
}

func (h *Handler) handleChallenge(w http.ResponseWriter, r *http.Request) {
	if !h.admit(w, r, ratelimit.ClassChallenge) {
		return
	}
	c, err := h.Challenges.Issue(r.Context())
	if err != nil {
		h.writeAppError(w, "auth.challenge.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, challengeResponse{
		ChallengeID:    c.ID,
		ChallengeBytes: hex.EncodeToString(c.Bytes),
		ExpiresAt:      c.ExpiresAt,
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	const endpoint = "register"

	if !h.admit(w, r, ratelimit.ClassRegister) {
		h.Metrics.AuthOutcome(endpoint, "rate_limited")
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.Metrics.AuthOutcome(endpoint, "invalid")
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	in, err := req.input()
	if err != nil {
		h.Metrics.AuthOutcome(endpoint, "invalid")
		h.writeAppError(w, "auth.register.fail", err)
		return
	}

	ctx := r.Context()
	id, err := h.Identities.Register(ctx, in)
	if err != nil {
		h.Metrics.AuthOutcome(endpoint, outcome(err))
		h.writeAppError(w, "auth.register.fail", err)
		return
	}

	pair, err := h.Tokens.Issue(ctx, subjectOf(id))
	if err != nil {
		h.writeAppError(w, "auth.register.issue.fail", err)
		return
	}

	h.Metrics.AuthOutcome(endpoint, "ok")
	h.Metrics.Registered(id.IsOwner)
	h.audit(r, "auth.register.success", "user_id", id.UserID, "fingerprint", id.Fingerprint, "owner", id.IsOwner)
	writeJSON(w, http.StatusOK, registerResponse{
		UserID:       id.UserID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		IsOwner:      id.IsOwner,
	})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	const endpoint = "verify"

	if !h.admit(w, r, ratelimit.ClassVerify) {
		h.Metrics.AuthOutcome(endpoint, "rate_limited")
		return
	}

	var req verifyRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.Metrics.AuthOutcome(endpoint, "invalid")
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	in, err := req.input()
	if err != nil {
		h.Metrics.AuthOutcome(endpoint, "invalid")
		h.writeAppError(w, "auth.verify.fail", err)
		return
	}

	ctx := r.Context()
	id, err := h.Verifier.Verify(ctx, in)
	if err != nil {
		h.Metrics.AuthOutcome(endpoint, outcome(err))
		h.writeAppError(w, "auth.verify.fail", err)
		return
	}

	pair, err := h.Tokens.Issue(ctx, subjectOf(id))
	if err != nil {
		h.writeAppError(w, "auth.verify.issue.fail", err)
		return
	}

	h.Metrics.AuthOutcome(endpoint, "ok")
	h.audit(r, "auth.verify.success", "user_id", id.UserID)
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	refreshToken := strings.TrimSpace(req.RefreshToken)
	if refreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	pair, err := h.Tokens.Refresh(r.Context(), refreshToken)
	if err != nil {
		h.Metrics.AuthOutcome("refresh", outcome(err))
		h.writeAppError(w, "auth.refresh.fail", err)
		return
	}
	h.Metrics.AuthOutcome("refresh", "ok")
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (h *Handler) handleInviteCreate(w http.ResponseWriter, r *http.Request) {
	if h.Invites == nil {
		writeError(w, http.StatusNotFound, "not_found", "invites are not enabled")
		return
	}
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req inviteCreateRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
	}
	ttl := h.cfg.InviteTTL
	if req.ExpiresInSeconds > 0 {
		ttl = time.Duration(req.ExpiresInSeconds) * time.Second
	}

	code, inv, err := h.Invites.Create(r.Context(), claims, ttl)
	if err != nil {
		h.writeAppError(w, "auth.invite.create.fail", err)
		return
	}
	h.audit(r, "auth.invite.created", "user_id", claims.UserID, "invite_id", inv.ID)
	writeJSON(w, http.StatusOK, inviteCreateResponse{InviteID: inv.ID, Code: code, ExpiresAt: inv.ExpiresAt})
}

func (h *Handler) handleBlobGet(w http.ResponseWriter, r *http.Request) {
	if !h.admit(w, r, ratelimit.ClassBlob) {
		return
	}
	id, err := h.Identities.GetByFingerprint(r.Context(), r.PathValue("fingerprint"))
	if err != nil {
		h.writeAppError(w, "identity.blob.get.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, blobResponse{
		Fingerprint:   id.Fingerprint,
		EncryptedBlob: hex.EncodeToString(id.EncryptedBlob),
		UpdatedAt:     id.BlobUpdatedAt,
	})
}

func (h *Handler) handleBlobUpdate(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req blobUpdateRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	blob, err := decodeHex("encrypted_blob", req.EncryptedBlob)
	if err != nil {
		h.writeAppError(w, "identity.blob.update.fail", err)
		return
	}
	if _, err := h.Identities.UpdateBlob(r.Context(), claims.UserID, blob); err != nil {
		h.writeAppError(w, "identity.blob.update.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// ---- helpers ----

// admit applies the rate limiter and writes a 429 on denial.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, class ratelimit.Class) bool {
	d := h.Limiter.Allow(clientKey(r, h.cfg.TrustProxy), class)
	if d.Allowed {
		return true
	}
	h.log.Info("auth.rate_limited", "class", string(class), "retry_after_ms", d.RetryAfter.Milliseconds())
	writeRateLimited(w, d.RetryAfter)
	return false
}

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (session.AccessClaims, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return session.AccessClaims{}, false
	}
	claims, err := h.Tokens.VerifyAccess(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return session.AccessClaims{}, false
	}
	return claims, true
}

// audit logs a security-relevant event with the requesting client.
func (h *Handler) audit(r *http.Request, action string, args ...any) {
	args = append(args, "ip", clientKey(r, h.cfg.TrustProxy), "user_agent", strings.TrimSpace(r.UserAgent()))
	h.log.InfoContext(r.Context(), action, args...)
}

func outcome(err error) string {
	if k := apperr.Kind(err); k != nil {
		return k.Error()
	}
	return "error"
}

func subjectOf(id identity.Identity) session.Subject {
	return session.Subject{UserID: id.UserID, Fingerprint: id.Fingerprint, IsOwner: id.IsOwner}
}

func toServerInfo(s settings.ServerSettings) serverInfoResponse {
	return serverInfoResponse{
		Name:             s.Name,
		Description:      s.Description,
		Version:          s.Version,
		RegistrationMode: string(s.RegistrationMode),
	}
}

func decodeHex(field, s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, apperr.Validation("api.decode", field+" must be hex")
	}
	return b, nil
}

func (req registerRequest) input() (identity.RegisterInput, error) {
	pub, err := decodeHex("public_key", req.PublicKey)
	if err != nil {
		return identity.RegisterInput{}, err
	}
	sig, err := decodeHex("genesis_signature", req.GenesisSignature)
	if err != nil {
		return identity.RegisterInput{}, err
	}
	blob, err := decodeHex("encrypted_blob", req.EncryptedBlob)
	if err != nil {
		return identity.RegisterInput{}, err
	}
	cred := req.SetupCredential
	if strings.TrimSpace(cred) == "" {
		cred = req.SetupToken
	}
	return identity.RegisterInput{
		PublicKey:        pub,
		Fingerprint:      req.Fingerprint,
		DisplayName:      req.DisplayName,
		EncryptedBlob:    blob,
		GenesisSignature: sig,
		SetupCredential:  cred,
		InviteCode:       req.InviteCode,
	}, nil
}

func (req verifyRequest) input() (auth.VerifyInput, error) {
	if strings.TrimSpace(req.ChallengeID) == "" {
		return auth.VerifyInput{}, apperr.Validation("api.decode", "challenge_id is required")
	}
	pub, err := decodeHex("public_key", req.PublicKey)
	if err != nil {
		return auth.VerifyInput{}, err
	}
	sig, err := decodeHex("signature", req.Signature)
	if err != nil {
		return auth.VerifyInput{}, err
	}
	return auth.VerifyInput{
		ChallengeID: strings.TrimSpace(req.ChallengeID),
		PublicKey:   pub,
		Signature:   sig,
		Fingerprint: req.Fingerprint,
	}, nil
}
