package identity

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"united/cmd/identity/ids"
	"united/cmd/internal/clock"
	"united/cmd/internal/settings"
)

// Bootstrap validates setup credentials and records a claimed ownership.
type Bootstrap interface {
	Check(ctx context.Context, credential string) (claim bool, err error)
	MarkClaimed(ctx context.Context)
}

// ModeSource reports the current registration mode.
type ModeSource interface {
	RegistrationMode(ctx context.Context) (settings.Mode, error)
}

// InviteRedeemer consumes invite codes on behalf of a registering user.
type InviteRedeemer interface {
	Redeem(ctx context.Context, code, userID string) error
	Release(ctx context.Context, code, userID string) error
}

// RegisterInput carries decoded registration fields.
type RegisterInput struct {
	PublicKey        []byte
	Fingerprint      string
	DisplayName      string
	EncryptedBlob    []byte
	GenesisSignature []byte
	SetupCredential  string
	InviteCode       string
}

// Registry owns identity registration and lookup.
type Registry struct {
	store     Store
	bootstrap Bootstrap
	modes     ModeSource
	invites   InviteRedeemer
	clock     clock.Clock
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithBootstrap enables owner claiming through setup credentials.
func WithBootstrap(b Bootstrap) RegistryOption {
	return func(r *Registry) { r.bootstrap = b }
}

// WithModeSource enables registration mode enforcement. Without it every
// registration is treated as open.
func WithModeSource(m ModeSource) RegistryOption {
	return func(r *Registry) { r.modes = m }
}

// WithInvites sets the redeemer used in invite mode.
func WithInvites(i InviteRedeemer) RegistryOption {
	return func(r *Registry) { r.invites = i }
}

// WithClock overrides the time source.
func WithClock(c clock.Clock) RegistryOption {
	return func(r *Registry) { r.clock = clock.OrReal(c) }
}

// NewRegistry constructs a Registry over store.
func NewRegistry(store Store, opts ...RegistryOption) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("identity: nil store")
	}
	r := &Registry{store: store, clock: clock.Real()}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Register validates in and creates a new identity.
//
// Key material is checked first, then the setup credential, then the
// registration mode, and finally uniqueness inside the store.
func (r *Registry) Register(ctx context.Context, in RegisterInput) (Identity, error) {
	const op = "identity.Register"

	if len(in.PublicKey) != ed25519.PublicKeySize {
		return Identity{}, invalid(op, "public_key must be 32 bytes")
	}
	pub := ed25519.PublicKey(append([]byte(nil), in.PublicKey...))
	fpr := Fingerprint(pub)
	if NormalizeFingerprint(in.Fingerprint) != fpr {
		return Identity{}, invalid(op, "fingerprint does not match public_key")
	}
	if !VerifyGenesis(pub, in.GenesisSignature) {
		return Identity{}, invalid(op, "genesis_signature is invalid")
	}
	name, err := NormalizeDisplayName(in.DisplayName)
	if err != nil {
		return Identity{}, err
	}
	if len(in.EncryptedBlob) > MaxBlobBytes {
		return Identity{}, invalid(op, "encrypted_blob is too large")
	}

	claim := false
	if r.bootstrap != nil {
		if claim, err = r.bootstrap.Check(ctx, in.SetupCredential); err != nil {
			return Identity{}, err
		}
	}

	userID, err := ids.NewUserID()
	if err != nil {
		return Identity{}, fmt.Errorf("%s: user id: %w", op, err)
	}
	now := r.clock.Now().UTC()
	rec := Identity{
		UserID:           userID,
		PublicKey:        pub,
		Fingerprint:      fpr,
		DisplayName:      name,
		EncryptedBlob:    append([]byte(nil), in.EncryptedBlob...),
		BlobUpdatedAt:    now,
		GenesisSignature: append([]byte(nil), in.GenesisSignature...),
		IsOwner:          claim,
		CreatedAt:        now,
	}

	redeemed := false
	if !claim {
		if redeemed, err = r.admit(ctx, in.InviteCode, userID); err != nil {
			return Identity{}, err
		}
	}

	out, err := r.store.Insert(ctx, rec)
	if errors.Is(err, ErrOwnerTaken) {
		// Lost the owner race: register as a regular user under the normal policy.
		rec.IsOwner = false
		if redeemed, err = r.admit(ctx, in.InviteCode, userID); err != nil {
			return Identity{}, err
		}
		out, err = r.store.Insert(ctx, rec)
	}
	if err != nil {
		if redeemed {
			_ = r.invites.Release(context.WithoutCancel(ctx), in.InviteCode, userID)
		}
		return Identity{}, err
	}

	if out.IsOwner && r.bootstrap != nil {
		r.bootstrap.MarkClaimed(ctx)
	}
	return out, nil
}

// admit applies the registration mode to a non-owner registration and reports
// whether an invite code was consumed.
func (r *Registry) admit(ctx context.Context, inviteCode, userID string) (bool, error) {
	const op = "identity.Register"

	if r.modes == nil {
		return false, nil
	}
	mode, err := r.modes.RegistrationMode(ctx)
	if err != nil {
		return false, err
	}
	switch mode {
	case settings.ModeClosed:
		return false, forbidden(op, "registration is closed")
	case settings.ModeInvite:
		if r.invites == nil {
			return false, forbidden(op, "registration requires an invite")
		}
		if err := r.invites.Redeem(ctx, inviteCode, userID); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, nil
	}
}

// GetByFingerprint returns the identity registered under fingerprint.
func (r *Registry) GetByFingerprint(ctx context.Context, fingerprint string) (Identity, error) {
	return r.store.GetByFingerprint(ctx, NormalizeFingerprint(fingerprint))
}

// GetByID returns the identity with userID.
func (r *Registry) GetByID(ctx context.Context, userID string) (Identity, error) {
	return r.store.GetByID(ctx, userID)
}

// UpdateBlob replaces the encrypted blob of userID.
func (r *Registry) UpdateBlob(ctx context.Context, userID string, blob []byte) (time.Time, error) {
	const op = "identity.UpdateBlob"

	if len(blob) > MaxBlobBytes {
		return time.Time{}, invalid(op, "encrypted_blob is too large")
	}
	now := r.clock.Now().UTC()
	if err := r.store.UpdateBlob(ctx, userID, append([]byte(nil), blob...), now); err != nil {
		return time.Time{}, err
	}
	return now, nil
}

// HasOwner reports whether an owner has registered.
func (r *Registry) HasOwner(ctx context.Context) (bool, error) {
	return r.store.HasOwner(ctx)
}
