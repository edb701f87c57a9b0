package app

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"united/cmd/identity"
	"united/cmd/security/credential"
)

const testCredential = "let-me-own-this-server"

func testConfig(t *testing.T, driver string) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Storage.Driver = driver
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "united.db")
	cfg.Genesis.SetupCredential = testCredential
	cfg.Genesis.Argon2 = credential.Params{MemoryKiB: 64, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	cfg.Session.SigningKeyHex = strings.Repeat("ab", 32)
	cfg.Security.TokenHMACKey = strings.Repeat("h", MinTokenHMACKeyBytes)
	return cfg
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestApp(t *testing.T, cfg Config) (*App, *httptest.Server) {
	t.Helper()
	a, err := New(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = a.Close()
	})
	return a, srv
}

type identityKey struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newIdentityKey(t *testing.T) identityKey {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return identityKey{pub: pub, priv: priv}
}

func call(t *testing.T, srv *httptest.Server, method, path, bearer string, body any) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func register(t *testing.T, srv *httptest.Server, k identityKey, name, cred string) (int, map[string]any) {
	t.Helper()
	body := map[string]any{
		"public_key":        hex.EncodeToString(k.pub),
		"fingerprint":       identity.Fingerprint(k.pub),
		"display_name":      name,
		"encrypted_blob":    hex.EncodeToString([]byte("blob")),
		"genesis_signature": hex.EncodeToString(ed25519.Sign(k.priv, k.pub)),
	}
	if cred != "" {
		body["setup_credential"] = cred
	}
	return call(t, srv, http.MethodPost, "/auth/register", "", body)
}

func getText(t *testing.T, srv *httptest.Server, path string) (int, string, http.Header) {
	t.Helper()
	resp, err := srv.Client().Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(raw), resp.Header
}

func TestApp_OwnerFlow(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{DriverMemory, DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()

			_, srv := newTestApp(t, testConfig(t, driver))

			if status, body, hdr := getText(t, srv, "/health"); status != http.StatusOK || body != "ok" || hdr.Get("X-Content-Type-Options") != "nosniff" {
				t.Fatalf("GET /health status=%d body=%q headers=%v", status, body, hdr)
			}
			if status, body, _ := getText(t, srv, "/readyz"); status != http.StatusOK || body != "ready" {
				t.Fatalf("GET /readyz status=%d body=%q", status, body)
			}

			status, a := register(t, srv, newIdentityKey(t), "alice", testCredential)
			if status != http.StatusOK || a["is_owner"] != true {
				t.Fatalf("register A status=%d body=%v", status, a)
			}
			status, b := register(t, srv, newIdentityKey(t), "bob", "")
			if status != http.StatusOK || b["is_owner"] != false {
				t.Fatalf("register B status=%d body=%v", status, b)
			}
			// The credential is single-use.
			status, c := register(t, srv, newIdentityKey(t), "carol", testCredential)
			if status != http.StatusOK || c["is_owner"] != false {
				t.Fatalf("register C status=%d body=%v", status, c)
			}

			if status, _ := call(t, srv, http.MethodPut, "/server/settings", b["access_token"].(string), map[string]any{"name": "x"}); status != http.StatusForbidden {
				t.Fatalf("non-owner PUT /server/settings status=%d want 403", status)
			}
			status, info := call(t, srv, http.MethodPut, "/server/settings", a["access_token"].(string), map[string]any{"description": "the hall"})
			if status != http.StatusOK || info["description"] != "the hall" || info["version"] != Version {
				t.Fatalf("owner PUT /server/settings status=%d body=%v", status, info)
			}

			status, pair := call(t, srv, http.MethodPost, "/auth/refresh", "", map[string]any{"refresh_token": a["refresh_token"]})
			if status != http.StatusOK {
				t.Fatalf("refresh status=%d body=%v", status, pair)
			}
			if status, _ := call(t, srv, http.MethodPost, "/auth/refresh", "", map[string]any{"refresh_token": a["refresh_token"]}); status != http.StatusUnauthorized {
				t.Fatalf("second refresh status=%d want 401", status)
			}
			// The rotated access token still carries ownership.
			if status, _ := call(t, srv, http.MethodPut, "/server/settings", pair["access_token"].(string), map[string]any{"name": "Hall"}); status != http.StatusOK {
				t.Fatalf("owner PUT with rotated token status=%d want 200", status)
			}

			_, scrape, _ := getText(t, srv, "/metrics")
			for _, want := range []string{
				`united_registrations_total{owner="true"} 1`,
				`united_registrations_total{owner="false"} 2`,
				`united_refresh_rotations_total{result="ok"} 1`,
				`united_refresh_rotations_total{result="reused"} 1`,
			} {
				if !strings.Contains(scrape, want) {
					t.Fatalf("/metrics missing %q", want)
				}
			}
		})
	}
}

func TestApp_SQLiteStateSurvivesRestart(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, DriverSQLite)

	first, srv := newTestApp(t, cfg)
	if first.GeneratedSetupCredential() != "" {
		t.Fatalf("configured credential reported as generated")
	}
	k := newIdentityKey(t)
	if status, body := register(t, srv, k, "owner", testCredential); status != http.StatusOK || body["is_owner"] != true {
		t.Fatalf("register status=%d body=%v", status, body)
	}
	srv.Close()
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	cfg.Genesis.SetupCredential = ""
	second, srv2 := newTestApp(t, cfg)
	if got := second.GeneratedSetupCredential(); got != "" {
		t.Fatalf("credential generated although an owner exists: %q", got)
	}
	status, blob := call(t, srv2, http.MethodGet, "/identity/blob/"+identity.Fingerprint(k.pub), "", nil)
	if status != http.StatusOK || blob["encrypted_blob"] != hex.EncodeToString([]byte("blob")) {
		t.Fatalf("GET blob after restart status=%d body=%v", status, blob)
	}
	if status, _ := register(t, srv2, k, "owner-again", ""); status != http.StatusConflict {
		t.Fatalf("re-register after restart status=%d want 409", status)
	}
}

func TestApp_GeneratedCredential(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, DriverMemory)
	cfg.Genesis.SetupCredential = ""
	a, srv := newTestApp(t, cfg)

	cred := a.GeneratedSetupCredential()
	if len(cred) < 32 {
		t.Fatalf("generated credential %q too short", cred)
	}
	if status, body := register(t, srv, newIdentityKey(t), "first", "wrong"); status != http.StatusUnauthorized {
		t.Fatalf("register with wrong credential status=%d body=%v", status, body)
	}
	if status, body := register(t, srv, newIdentityKey(t), "first", cred); status != http.StatusOK || body["is_owner"] != true {
		t.Fatalf("register with generated credential status=%d body=%v", status, body)
	}
}

func TestApp_ReadinessRequireDB(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, DriverMemory)
	cfg.Storage.ReadinessRequireDB = true
	_, srv := newTestApp(t, cfg)

	if status, _, _ := getText(t, srv, "/readyz"); status != http.StatusServiceUnavailable {
		t.Fatalf("GET /readyz status=%d want 503", status)
	}
}

func TestApp_RejectsInsecureConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, DriverMemory)
	cfg.Security.RequireTokenHMAC = true
	cfg.Security.TokenHMACKey = ""
	if _, err := New(context.Background(), cfg, discardLogger()); err == nil {
		t.Fatalf("New succeeded without the required HMAC key")
	}
}

func TestApp_ServeShutsDown(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, DriverMemory)
	cfg.RateLimit.JanitorInterval = 10 * time.Millisecond
	a, err := New(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = a.Close() }()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve()=%v want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return after cancel")
	}
}
