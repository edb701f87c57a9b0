package genesis

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"united/cmd/internal/apperr"
	"united/cmd/security/credential"
)

type fakeOwners struct{ has atomic.Bool }

func (f *fakeOwners) HasOwner(context.Context) (bool, error) { return f.has.Load(), nil }

func fastParams() credential.Params {
	return credential.Params{MemoryKiB: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestInit_ConfiguredCredential(t *testing.T) {
	t.Parallel()

	owners := &fakeOwners{}
	b, generated, err := Init(context.Background(), owners, Config{Credential: "s3cret", Params: fastParams()}, discardLogger())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if generated != "" {
		t.Fatalf("generated=%q want empty for configured credential", generated)
	}

	cases := []struct {
		in       string
		want     bool
		wantKind error
	}{
		{"", false, nil},
		{"wrong", false, apperr.ErrAuth},
		{"s3cret", true, nil},
		{"  s3cret  ", true, nil},
	}
	for _, tc := range cases {
		got, err := b.Check(context.Background(), tc.in)
		if got != tc.want || !errors.Is(err, tc.wantKind) {
			t.Fatalf("Check(%q)=(%v,%v) want=(%v,%v)", tc.in, got, err, tc.want, tc.wantKind)
		}
	}
}

func TestInit_GeneratesAndLogsOnce(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	b, generated, err := Init(context.Background(), &fakeOwners{}, Config{Params: fastParams()}, log)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if len(generated) != 64 {
		t.Fatalf("generated=%q want 64 hex chars", generated)
	}
	if strings.Count(buf.String(), generated) != 1 || !strings.Contains(buf.String(), "level=WARN") {
		t.Fatalf("expected the generated credential logged once at warn, got %q", buf.String())
	}

	ok, err := b.Check(context.Background(), generated)
	if err != nil || !ok {
		t.Fatalf("Check(generated)=(%v,%v) want=(true,nil)", ok, err)
	}
}

func TestInit_OwnerExists_IgnoresCredential(t *testing.T) {
	t.Parallel()

	owners := &fakeOwners{}
	owners.has.Store(true)

	b, generated, err := Init(context.Background(), owners, Config{Params: fastParams()}, discardLogger())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if generated != "" || !b.Claimed() {
		t.Fatalf("Init with owner: generated=%q claimed=%v", generated, b.Claimed())
	}

	// Any credential, valid or not, is silently ignored.
	ok, err := b.Check(context.Background(), "anything")
	if ok || err != nil {
		t.Fatalf("Check()=(%v,%v) want=(false,nil)", ok, err)
	}
}

func TestMarkClaimed_SingleUse(t *testing.T) {
	t.Parallel()

	b, _, err := Init(context.Background(), &fakeOwners{}, Config{Credential: "once", Params: fastParams()}, discardLogger())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if ok, _ := b.Check(context.Background(), "once"); !ok {
		t.Fatalf("expected valid before claim")
	}

	b.MarkClaimed(context.Background())

	ok, err := b.Check(context.Background(), "once")
	if ok || err != nil {
		t.Fatalf("Check() after claim=(%v,%v) want=(false,nil)", ok, err)
	}
}

func TestCheck_OwnerCreatedElsewhere(t *testing.T) {
	t.Parallel()

	owners := &fakeOwners{}
	b, _, err := Init(context.Background(), owners, Config{Credential: "c", Params: fastParams()}, discardLogger())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	owners.has.Store(true)

	if ok, err := b.Check(context.Background(), "c"); ok || err != nil {
		t.Fatalf("Check()=(%v,%v) want=(false,nil)", ok, err)
	}
	if !b.Claimed() {
		t.Fatalf("expected bootstrap to latch claimed")
	}
}
