package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"united/cmd/internal/apperr"
	"united/cmd/internal/clock"
	"united/cmd/internal/settings"
	"united/cmd/internal/storage/storagetest"
)

func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store {
			st, err := NewSQLiteStore(storagetest.SQLite(t))
			if err != nil {
				t.Fatalf("NewSQLiteStore: %v", err)
			}
			return st
		},
		"postgres": func(t *testing.T) Store {
			pool, schema := storagetest.Postgres(t)
			st, err := NewPostgresStore(pool, WithSchema(schema))
			if err != nil {
				t.Fatalf("NewPostgresStore: %v", err)
			}
			return st
		},
	}
}

type keypair struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
	fpr  string
}

func newKeypair(t *testing.T) keypair {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return keypair{pub: pub, priv: priv, fpr: Fingerprint(pub)}
}

func (k keypair) input(name string) RegisterInput {
	return RegisterInput{
		PublicKey:        k.pub,
		Fingerprint:      k.fpr,
		DisplayName:      name,
		EncryptedBlob:    []byte("blob:" + name),
		GenesisSignature: ed25519.Sign(k.priv, k.pub),
	}
}

type fakeBootstrap struct {
	mu      sync.Mutex
	secret  string
	claimed bool
	marks   int
}

func (b *fakeBootstrap) Check(_ context.Context, cred string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case cred == "":
		return false, nil
	case b.claimed:
		return false, nil
	case cred != b.secret:
		return false, apperr.Auth("test.Check", "invalid setup credential")
	}
	return true, nil
}

func (b *fakeBootstrap) MarkClaimed(context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.claimed = true
	b.marks++
}

type fixedMode settings.Mode

func (m fixedMode) RegistrationMode(context.Context) (settings.Mode, error) {
	return settings.Mode(m), nil
}

type fakeInvites struct {
	mu       sync.Mutex
	codes    map[string]string // code -> consumer
	released []string
}

func (f *fakeInvites) Redeem(_ context.Context, code, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	by, ok := f.codes[code]
	if !ok || by != "" {
		return apperr.Forbidden("test.Redeem", "invalid invite")
	}
	f.codes[code] = userID
	return nil
}

func (f *fakeInvites) Release(_ context.Context, code, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.codes[code] == userID {
		f.codes[code] = ""
		f.released = append(f.released, code)
	}
	return nil
}

func TestRegistry_RegisterValidation(t *testing.T) {
	t.Parallel()

	k := newKeypair(t)
	other := newKeypair(t)

	tests := []struct {
		name   string
		mutate func(*RegisterInput)
		want   error
	}{
		{"short key", func(in *RegisterInput) { in.PublicKey = in.PublicKey[:31] }, apperr.ErrValidation},
		{"fingerprint mismatch", func(in *RegisterInput) { in.Fingerprint = other.fpr }, apperr.ErrValidation},
		{"signature by other key", func(in *RegisterInput) { in.GenesisSignature = ed25519.Sign(other.priv, k.pub) }, apperr.ErrValidation},
		{"signature over other message", func(in *RegisterInput) { in.GenesisSignature = ed25519.Sign(k.priv, []byte("x")) }, apperr.ErrValidation},
		{"empty name", func(in *RegisterInput) { in.DisplayName = "   " }, apperr.ErrValidation},
		{"long name", func(in *RegisterInput) { in.DisplayName = strings.Repeat("é", MaxDisplayNameRunes+1) }, apperr.ErrValidation},
		{"control char", func(in *RegisterInput) { in.DisplayName = "bad\x07name" }, apperr.ErrValidation},
		{"blob too large", func(in *RegisterInput) { in.EncryptedBlob = make([]byte, MaxBlobBytes+1) }, apperr.ErrValidation},
		{"upper-case fingerprint accepted", func(in *RegisterInput) { in.Fingerprint = strings.ToUpper(in.Fingerprint) }, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			reg, err := NewRegistry(NewMemoryStore())
			if err != nil {
				t.Fatalf("NewRegistry: %v", err)
			}
			in := k.input("alice")
			tc.mutate(&in)
			_, err = reg.Register(context.Background(), in)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("Register: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("Register(%s) err=%v want=%v", tc.name, err, tc.want)
			}
		})
	}
}

func TestRegistry_Uniqueness(t *testing.T) {
	t.Parallel()

	for name, mk := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			fc := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
			reg, _ := NewRegistry(mk(t), WithClock(fc))
			ctx := context.Background()

			alice := newKeypair(t)
			got, err := reg.Register(ctx, alice.input("Alice"))
			if err != nil {
				t.Fatalf("Register: %v", err)
			}
			if got.IsOwner || got.Fingerprint != alice.fpr || !got.CreatedAt.Equal(fc.Now()) {
				t.Fatalf("Register()=%+v", got)
			}

			_, err = reg.Register(ctx, alice.input("Alice Again"))
			if field, ok := apperr.ConflictField(err); !ok || field != FieldFingerprint {
				t.Fatalf("duplicate key err=%v want fingerprint conflict", err)
			}

			// The two names differ only in Unicode composition.
			bob := newKeypair(t)
			if _, err := reg.Register(ctx, bob.input("Am\u00e9lie")); err != nil {
				t.Fatalf("Register(bob): %v", err)
			}
			carol := newKeypair(t)
			_, err = reg.Register(ctx, carol.input("Ame\u0301lie"))
			if field, ok := apperr.ConflictField(err); !ok || field != FieldDisplayName {
				t.Fatalf("duplicate name err=%v want display_name conflict", err)
			}

			// Names are case-sensitive.
			if _, err := reg.Register(ctx, carol.input("alice")); err != nil {
				t.Fatalf("Register(carol): %v", err)
			}
		})
	}
}

func TestRegistry_Lookups(t *testing.T) {
	t.Parallel()

	for name, mk := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			fc := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
			reg, _ := NewRegistry(mk(t), WithClock(fc))
			ctx := context.Background()

			k := newKeypair(t)
			created, err := reg.Register(ctx, k.input("dana"))
			if err != nil {
				t.Fatalf("Register: %v", err)
			}

			byFpr, err := reg.GetByFingerprint(ctx, strings.ToUpper(k.fpr))
			if err != nil || byFpr.UserID != created.UserID || !byFpr.PublicKey.Equal(k.pub) {
				t.Fatalf("GetByFingerprint()=(%+v,%v)", byFpr, err)
			}
			if string(byFpr.EncryptedBlob) != "blob:dana" || len(byFpr.GenesisSignature) != ed25519.SignatureSize {
				t.Fatalf("GetByFingerprint() blob=%q sig=%d", byFpr.EncryptedBlob, len(byFpr.GenesisSignature))
			}

			fc.Advance(time.Minute)
			at, err := reg.UpdateBlob(ctx, created.UserID, []byte("rotated"))
			if err != nil || !at.Equal(fc.Now()) {
				t.Fatalf("UpdateBlob()=(%v,%v)", at, err)
			}
			byID, err := reg.GetByID(ctx, created.UserID)
			if err != nil || string(byID.EncryptedBlob) != "rotated" || !byID.BlobUpdatedAt.Equal(fc.Now()) {
				t.Fatalf("GetByID()=(%+v,%v)", byID, err)
			}

			if _, err := reg.GetByID(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
				t.Fatalf("GetByID(missing) err=%v want ErrNotFound", err)
			}
			if _, err := reg.UpdateBlob(ctx, "missing", nil); !errors.Is(err, apperr.ErrNotFound) {
				t.Fatalf("UpdateBlob(missing) err=%v want ErrNotFound", err)
			}
			if _, err := reg.UpdateBlob(ctx, created.UserID, make([]byte, MaxBlobBytes+1)); !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("UpdateBlob(large) err=%v want ErrValidation", err)
			}
		})
	}
}

func TestRegistry_OwnerBootstrap(t *testing.T) {
	t.Parallel()

	for name, mk := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			boot := &fakeBootstrap{secret: "let-me-in"}
			reg, _ := NewRegistry(mk(t), WithBootstrap(boot), WithModeSource(fixedMode(settings.ModeClosed)))
			ctx := context.Background()

			// Closed mode still admits the owner claim.
			bad := newKeypair(t).input("mallory")
			bad.SetupCredential = "wrong"
			if _, err := reg.Register(ctx, bad); !errors.Is(err, apperr.ErrAuth) {
				t.Fatalf("wrong credential err=%v want ErrAuth", err)
			}

			in := newKeypair(t).input("owner")
			in.SetupCredential = "let-me-in"
			got, err := reg.Register(ctx, in)
			if err != nil || !got.IsOwner {
				t.Fatalf("Register(owner)=(%+v,%v) want owner", got, err)
			}
			if boot.marks != 1 {
				t.Fatalf("MarkClaimed calls=%d want=1", boot.marks)
			}
			if ok, err := reg.HasOwner(ctx); err != nil || !ok {
				t.Fatalf("HasOwner()=(%v,%v) want true", ok, err)
			}

			// After the claim the credential is ignored and mode applies.
			again := newKeypair(t).input("second")
			again.SetupCredential = "let-me-in"
			if _, err := reg.Register(ctx, again); !errors.Is(err, apperr.ErrForbidden) {
				t.Fatalf("post-claim err=%v want ErrForbidden", err)
			}
		})
	}
}

type racingBootstrap struct{}

func (racingBootstrap) Check(_ context.Context, cred string) (bool, error) { return cred != "", nil }
func (racingBootstrap) MarkClaimed(context.Context)                        {}

func TestRegistry_ConcurrentOwnerClaims(t *testing.T) {
	t.Parallel()

	for name, mk := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			reg, _ := NewRegistry(mk(t), WithBootstrap(racingBootstrap{}))
			ctx := context.Background()

			const n = 8
			var (
				wg     sync.WaitGroup
				owners atomic.Int32
			)
			for i := range n {
				k := newKeypair(t)
				wg.Add(1)
				go func() {
					defer wg.Done()
					in := k.input(fmt.Sprintf("user-%d", i))
					in.SetupCredential = "anything"
					got, err := reg.Register(ctx, in)
					if err != nil {
						t.Errorf("Register: %v", err)
						return
					}
					if got.IsOwner {
						owners.Add(1)
					}
				}()
			}
			wg.Wait()

			if got := owners.Load(); got != 1 {
				t.Fatalf("owners=%d want=1", got)
			}
		})
	}
}

func TestRegistry_ConcurrentSameName(t *testing.T) {
	t.Parallel()

	for name, mk := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			reg, _ := NewRegistry(mk(t))
			ctx := context.Background()

			const n = 8
			var (
				wg        sync.WaitGroup
				ok        atomic.Int32
				conflicts atomic.Int32
			)
			for range n {
				k := newKeypair(t)
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := reg.Register(ctx, k.input("popular"))
					switch {
					case err == nil:
						ok.Add(1)
					case errors.Is(err, apperr.ErrConflict):
						conflicts.Add(1)
					default:
						t.Errorf("Register: %v", err)
					}
				}()
			}
			wg.Wait()

			if ok.Load() != 1 || conflicts.Load() != n-1 {
				t.Fatalf("ok=%d conflicts=%d want 1/%d", ok.Load(), conflicts.Load(), n-1)
			}
		})
	}
}

func TestRegistry_Modes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mode   settings.Mode
		invite string
		want   error
	}{
		{"open", settings.ModeOpen, "", nil},
		{"closed", settings.ModeClosed, "", apperr.ErrForbidden},
		{"invite without code", settings.ModeInvite, "", apperr.ErrForbidden},
		{"invite with bad code", settings.ModeInvite, "nope", apperr.ErrForbidden},
		{"invite with code", settings.ModeInvite, "good", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			inv := &fakeInvites{codes: map[string]string{"good": ""}}
			reg, _ := NewRegistry(NewMemoryStore(), WithModeSource(fixedMode(tc.mode)), WithInvites(inv))
			in := newKeypair(t).input("erin")
			in.InviteCode = tc.invite
			_, err := reg.Register(context.Background(), in)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("Register: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("Register(%s) err=%v want=%v", tc.name, err, tc.want)
			}
		})
	}
}

func TestRegistry_InviteReleasedOnConflict(t *testing.T) {
	t.Parallel()

	inv := &fakeInvites{codes: map[string]string{"a": "", "b": ""}}
	reg, _ := NewRegistry(NewMemoryStore(), WithModeSource(fixedMode(settings.ModeInvite)), WithInvites(inv))
	ctx := context.Background()

	first := newKeypair(t).input("frank")
	first.InviteCode = "a"
	if _, err := reg.Register(ctx, first); err != nil {
		t.Fatalf("Register: %v", err)
	}

	dup := newKeypair(t).input("frank")
	dup.InviteCode = "b"
	if _, err := reg.Register(ctx, dup); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("Register(dup) err=%v want ErrConflict", err)
	}
	if len(inv.released) != 1 || inv.released[0] != "b" || inv.codes["b"] != "" {
		t.Fatalf("released=%v codes=%v want b released", inv.released, inv.codes)
	}
}
