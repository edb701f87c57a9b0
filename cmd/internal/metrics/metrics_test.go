package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	m := New()
	m.RateLimited("challenge")
	m.RateLimited("challenge")
	m.RateLimited("verify")
	m.RefreshRotation("ok")
	m.Registered(true)
	m.AuthOutcome("verify", "invalid")
	m.ObserveHTTP("POST", "2xx", 10*time.Millisecond)

	if got := testutil.ToFloat64(m.rateLimitDenied.WithLabelValues("challenge")); got != 2 {
		t.Fatalf("ratelimit_denied_total{class=challenge}=%v want=2", got)
	}
	if got := testutil.ToFloat64(m.registrations.WithLabelValues("true")); got != 1 {
		t.Fatalf("registrations_total{owner=true}=%v want=1", got)
	}

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rr.Body)
	for _, want := range []string{
		`united_ratelimit_denied_total{class="verify"} 1`,
		`united_refresh_rotations_total{result="ok"} 1`,
		`united_auth_requests_total{endpoint="verify",result="invalid"} 1`,
		`united_http_request_duration_seconds_count{method="POST",status_class="2xx"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("/metrics missing %q", want)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.RateLimited("x")
	m.RefreshRotation("ok")
	m.Registered(false)
	m.AuthOutcome("a", "b")
	m.ObserveHTTP("GET", "2xx", time.Second)
}
