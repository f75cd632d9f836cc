package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestGatewayMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGatewayMetrics(reg)

	m.ObserveMask("pattern", "ok", 0.002)
	m.ObserveMask("pattern", "ok", 0.003)
	m.ObserveMask("model", "unreachable", 5)
	m.ObservePlaceholders(map[string]int{"email": 2, "ssn": 0})
	m.ObserveUnmask()
	m.ObserveCompletion("not_configured")
	m.ObserveRateLimited()

	if got := testutil.ToFloat64(m.masksTotal.WithLabelValues("pattern", "ok")); got != 2 {
		t.Fatalf("expected 2 pattern masks, got %v", got)
	}
	if got := testutil.ToFloat64(m.placeholders.WithLabelValues("email")); got != 2 {
		t.Fatalf("expected 2 email placeholders, got %v", got)
	}
	if got := testutil.CollectAndCount(m.placeholders); got != 1 {
		t.Fatalf("zero counts should not create series, got %d", got)
	}
	if got := testutil.ToFloat64(m.unmasksTotal); got != 1 {
		t.Fatalf("expected 1 unmask, got %v", got)
	}
}

func TestGatewayMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGatewayMetrics(reg)
	m.ObserveUnmask()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "privacy_gateway_unmask_requests_total 1") {
		t.Fatalf("metric missing from exposition:\n%s", rec.Body.String())
	}
}

func TestGatewayMetricsNilSafe(t *testing.T) {
	var m *GatewayMetrics
	m.ObserveMask("pattern", "ok", 0.1)
	m.ObservePlaceholders(map[string]int{"email": 1})
	m.ObserveUnmask()
	m.ObserveCompletion("ok")
	m.ObserveRateLimited()
	if m.Handler() == nil {
		t.Fatal("nil metrics should still return a handler")
	}
}
