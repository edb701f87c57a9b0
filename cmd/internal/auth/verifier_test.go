package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"

	"united/cmd/identity"
	"united/cmd/internal/apperr"
	"united/cmd/internal/auth/challenge"
)

type fixture struct {
	verifier   *Verifier
	challenges *challenge.Service
	pub        ed25519.PublicKey
	priv       ed25519.PrivateKey
	userID     string
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	reg, err := identity.NewRegistry(identity.NewMemoryStore())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	id, err := reg.Register(context.Background(), identity.RegisterInput{
		PublicKey:        pub,
		Fingerprint:      identity.Fingerprint(pub),
		DisplayName:      "grace",
		GenesisSignature: ed25519.Sign(priv, pub),
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	chs, err := challenge.NewService(challenge.NewMemoryStore())
	if err != nil {
		t.Fatalf("challenge.NewService: %v", err)
	}
	v, err := NewVerifier(chs, reg)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return fixture{verifier: v, challenges: chs, pub: pub, priv: priv, userID: id.UserID}
}

func TestVerifier_Verify(t *testing.T) {
	t.Parallel()

	stranger, strangerPriv, _ := ed25519.GenerateKey(rand.Reader)

	tests := []struct {
		name  string
		build func(f fixture, c challenge.Challenge) VerifyInput
		want  error
	}{
		{
			name: "valid",
			build: func(f fixture, c challenge.Challenge) VerifyInput {
				return VerifyInput{c.ID, f.pub, ed25519.Sign(f.priv, c.Bytes), identity.Fingerprint(f.pub)}
			},
		},
		{
			name: "wrong signature",
			build: func(f fixture, c challenge.Challenge) VerifyInput {
				return VerifyInput{c.ID, f.pub, ed25519.Sign(f.priv, []byte("other")), identity.Fingerprint(f.pub)}
			},
			want: ErrInvalidCredentials,
		},
		{
			name: "unknown identity",
			build: func(f fixture, c challenge.Challenge) VerifyInput {
				return VerifyInput{c.ID, stranger, ed25519.Sign(strangerPriv, c.Bytes), identity.Fingerprint(stranger)}
			},
			want: ErrInvalidCredentials,
		},
		{
			name: "fingerprint mismatch",
			build: func(f fixture, c challenge.Challenge) VerifyInput {
				return VerifyInput{c.ID, f.pub, ed25519.Sign(f.priv, c.Bytes), identity.Fingerprint(stranger)}
			},
			want: apperr.ErrValidation,
		},
		{
			name: "short key",
			build: func(f fixture, c challenge.Challenge) VerifyInput {
				return VerifyInput{c.ID, f.pub[:16], nil, identity.Fingerprint(f.pub)}
			},
			want: apperr.ErrValidation,
		},
		{
			name: "unknown challenge",
			build: func(f fixture, c challenge.Challenge) VerifyInput {
				return VerifyInput{"01HZZZZZZZZZZZZZZZZZZZZZZZ", f.pub, ed25519.Sign(f.priv, c.Bytes), identity.Fingerprint(f.pub)}
			},
			want: challenge.ErrInvalidChallenge,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			c, err := f.challenges.Issue(context.Background())
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
			got, err := f.verifier.Verify(context.Background(), tc.build(f, c))
			if tc.want == nil {
				if err != nil || got.UserID != f.userID {
					t.Fatalf("Verify()=(%+v,%v) want user %s", got, err, f.userID)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("Verify(%s) err=%v want=%v", tc.name, err, tc.want)
			}
		})
	}
}

func TestVerifier_ChallengeSingleUse(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	c, _ := f.challenges.Issue(ctx)
	in := VerifyInput{c.ID, f.pub, ed25519.Sign(f.priv, c.Bytes), identity.Fingerprint(f.pub)}

	if _, err := f.verifier.Verify(ctx, in); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if _, err := f.verifier.Verify(ctx, in); !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("second Verify err=%v want ErrAuth", err)
	}
}

func TestVerifier_FailuresLookAlike(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	stranger, strangerPriv, _ := ed25519.GenerateKey(rand.Reader)

	c1, _ := f.challenges.Issue(ctx)
	_, wrongSig := f.verifier.Verify(ctx, VerifyInput{c1.ID, f.pub, ed25519.Sign(f.priv, []byte("x")), identity.Fingerprint(f.pub)})
	c2, _ := f.challenges.Issue(ctx)
	_, unknown := f.verifier.Verify(ctx, VerifyInput{c2.ID, stranger, ed25519.Sign(strangerPriv, c2.Bytes), identity.Fingerprint(stranger)})

	if wrongSig == nil || unknown == nil || wrongSig.Error() != unknown.Error() {
		t.Fatalf("errors differ: %v vs %v", wrongSig, unknown)
	}
}
