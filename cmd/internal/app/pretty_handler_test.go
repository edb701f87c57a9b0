package app

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestStripANSI(t *testing.T) {
	t.Parallel()

	in := ansiBlue + "INFO" + ansiReset + " plain " + ansiRed + "ERR" + ansiReset
	got := stripANSI(in)
	want := "INFO plain ERR"
	if got != want {
		t.Fatalf("stripANSI()=%q want=%q", got, want)
	}
}

func TestPrettyHandler_Line(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, true))
	log.With("component", "api").WithGroup("req").Warn("http.request",
		"method", "post",
		"path", "/auth/verify",
		"status", 401,
		"status_class", "4xx",
		"duration_ms", int64(3),
		"fingerprint", "0123456789abcdef0123456789abcdef01234567",
		"refresh_token", "super-secret",
		"err", errors.New("bad thing"),
	)

	plain := stripANSI(buf.String())
	for _, want := range []string{
		"[WARN]",
		"msg=http.request",
		"component=api",
		"req.method=POST",
		"req.path=/auth/verify",
		"req.status=401",
		"req.class=4xx",
		"req.duration=3ms",
		"req.fingerprint=0123456789ab…",
		"req.refresh_token=[redacted]",
		`req.err="bad thing"`,
	} {
		if !strings.Contains(plain, want) {
			t.Fatalf("output %q missing %q", plain, want)
		}
	}
	if strings.Contains(plain, "super-secret") {
		t.Fatalf("secret leaked: %q", plain)
	}
	if !strings.Contains(buf.String(), ansiYellow+"401"+ansiReset) {
		t.Fatalf("status not colored: %q", buf.String())
	}
}

func TestPrettyHandler_Level(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, false))
	log.Info("dropped")
	log.Error("kept")
	if got := buf.String(); strings.Contains(got, "dropped") || !strings.Contains(got, "[ERROR] msg=kept") {
		t.Fatalf("output=%q", got)
	}
}

func TestColorizeHelpers(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		got  string
		want string
	}{
		{"status 2xx", colorizeStatusCode(204, true), ansiGreen + "204" + ansiReset},
		{"status 5xx", colorizeStatusCode(503, true), ansiRed + "503" + ansiReset},
		{"slow", colorizeDurationMS(1500, true), ansiRed + "1500ms" + ansiReset},
		{"plain", colorizeDurationMS(1500, false), "1500ms"},
		{"method", colorizeHTTPMethod("DELETE", true), ansiRed + "DELETE" + ansiReset},
		{"result", colorizeResult("rate_limited", false), "rate_limited"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("%s=%q want=%q", tc.name, tc.got, tc.want)
		}
	}
}
