// Package auth verifies signed challenge responses against registered identities.
package auth

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"united/cmd/identity"
	"united/cmd/internal/apperr"
)

// ErrInvalidCredentials covers wrong signatures, unknown identities and key
// mismatches alike, so callers cannot enumerate registered fingerprints.
var ErrInvalidCredentials = apperr.OpError{Op: "auth.Verify", Kind: apperr.ErrAuth, Msg: "invalid credentials"}

// ChallengeConsumer consumes a single-use challenge.
type ChallengeConsumer interface {
	Consume(ctx context.Context, id string) ([]byte, error)
}

// IdentityLookup finds identities by fingerprint.
type IdentityLookup interface {
	GetByFingerprint(ctx context.Context, fingerprint string) (identity.Identity, error)
}

// VerifyInput is a decoded challenge response.
type VerifyInput struct {
	ChallengeID string
	PublicKey   []byte
	Signature   []byte
	Fingerprint string
}

// Verifier checks challenge responses.
type Verifier struct {
	challenges ChallengeConsumer
	identities IdentityLookup
}

// NewVerifier constructs a Verifier.
func NewVerifier(challenges ChallengeConsumer, identities IdentityLookup) (*Verifier, error) {
	if challenges == nil || identities == nil {
		return nil, fmt.Errorf("auth: nil dependency")
	}
	return &Verifier{challenges: challenges, identities: identities}, nil
}

// Verify consumes the challenge and returns the identity that signed it.
// The challenge is consumed even when verification fails afterwards.
func (v *Verifier) Verify(ctx context.Context, in VerifyInput) (identity.Identity, error) {
	const op = "auth.Verify"

	msg, err := v.challenges.Consume(ctx, in.ChallengeID)
	if err != nil {
		return identity.Identity{}, err
	}

	if len(in.PublicKey) != ed25519.PublicKeySize {
		return identity.Identity{}, apperr.Validation(op, "public_key must be 32 bytes")
	}
	pub := ed25519.PublicKey(in.PublicKey)
	fpr := identity.Fingerprint(pub)
	if identity.NormalizeFingerprint(in.Fingerprint) != fpr {
		return identity.Identity{}, apperr.Validation(op, "fingerprint does not match public_key")
	}

	if len(in.Signature) != ed25519.SignatureSize || !ed25519.Verify(pub, msg, in.Signature) {
		return identity.Identity{}, ErrInvalidCredentials
	}

	id, err := v.identities.GetByFingerprint(ctx, fpr)
	if err != nil {
		if apperr.Kind(err) == apperr.ErrNotFound {
			return identity.Identity{}, ErrInvalidCredentials
		}
		return identity.Identity{}, err
	}
	if !id.PublicKey.Equal(pub) {
		return identity.Identity{}, ErrInvalidCredentials
	}
	return id, nil
}
