package invite

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"united/cmd/internal/apperr"
	"united/cmd/internal/auth/session"
	"united/cmd/internal/clock"
	"united/cmd/internal/storage/storagetest"
	"united/cmd/security/token"
)

var owner = session.AccessClaims{UserID: "0190b6f4-8a7e-7c3b-9d4e-2f1a0b9c8d7e", IsOwner: true}

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

func newTestService(t *testing.T, st Store, fc *clock.FakeClock) *Service {
	t.Helper()
	svc, err := NewService(st, token.NewHasher("invite-test-hmac-key-0123456789abcdef"), WithClock(fc))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestService_Lifecycle(t *testing.T) {
	t.Parallel()

	for name, mk := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			fc := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
			svc := newTestService(t, mk(t), fc)
			ctx := context.Background()

			code, inv, err := svc.Create(ctx, owner, time.Hour)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if code == "" || len(inv.ID) != 26 || !inv.ExpiresAt.Equal(fc.Now().Add(time.Hour)) {
				t.Fatalf("Create()=(%q,%+v)", code, inv)
			}

			if err := svc.Redeem(ctx, code, "user-a"); err != nil {
				t.Fatalf("Redeem: %v", err)
			}
			if err := svc.Redeem(ctx, code, "user-b"); !errors.Is(err, apperr.ErrForbidden) {
				t.Fatalf("second Redeem err=%v want ErrForbidden", err)
			}

			// Release by a different user is a no-op.
			if err := svc.Release(ctx, code, "user-b"); err != nil {
				t.Fatalf("Release: %v", err)
			}
			if err := svc.Redeem(ctx, code, "user-b"); !errors.Is(err, apperr.ErrForbidden) {
				t.Fatalf("Redeem after foreign release err=%v want ErrForbidden", err)
			}

			if err := svc.Release(ctx, code, "user-a"); err != nil {
				t.Fatalf("Release: %v", err)
			}
			if err := svc.Redeem(ctx, code, "user-b"); err != nil {
				t.Fatalf("Redeem after release: %v", err)
			}
		})
	}
}

func TestService_Expired(t *testing.T) {
	t.Parallel()

	fc := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, NewMemoryStore(), fc)

	code, _, err := svc.Create(context.Background(), owner, time.Minute)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	fc.Advance(time.Minute)
	if err := svc.Redeem(context.Background(), code, "u"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("Redeem(expired) err=%v want ErrForbidden", err)
	}
}

func TestService_Create_Validation(t *testing.T) {
	t.Parallel()

	fc := clock.Fake(time.Now().UTC())
	svc := newTestService(t, NewMemoryStore(), fc)

	cases := []struct {
		name   string
		claims session.AccessClaims
		ttl    time.Duration
		want   error
	}{
		{"non-owner", session.AccessClaims{UserID: "u"}, time.Hour, apperr.ErrForbidden},
		{"ttl too long", owner, 31 * 24 * time.Hour, apperr.ErrValidation},
	}
	for _, tc := range cases {
		if _, _, err := svc.Create(context.Background(), tc.claims, tc.ttl); !errors.Is(err, tc.want) {
			t.Fatalf("%s: Create err=%v want=%v", tc.name, err, tc.want)
		}
	}

	if err := svc.Redeem(context.Background(), "", "u"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("Redeem(empty) err=%v want ErrForbidden", err)
	}
	if err := svc.Redeem(context.Background(), "unknown", "u"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("Redeem(unknown) err=%v want ErrForbidden", err)
	}
}

func TestService_Redeem_ConcurrentSingleUse(t *testing.T) {
	t.Parallel()

	fc := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, NewMemoryStore(), fc)

	code, _, err := svc.Create(context.Background(), owner, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var (
		wg sync.WaitGroup
		ok atomic.Int64
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if svc.Redeem(context.Background(), code, string(rune('a'+i))) == nil {
				ok.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if got := ok.Load(); got != 1 {
		t.Fatalf("successful redemptions=%d want=1", got)
	}
}
