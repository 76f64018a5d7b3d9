package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHTTPMetricsRecordsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.ObserveRequest("POST", "/api/v1/order-lines/{lineId}/confirm", 200, 15*time.Millisecond)
	m.ObserveRequest("POST", "/api/v1/order-lines/{lineId}/confirm", 200, 25*time.Millisecond)
	m.ObserveRequest("GET", "", 404, time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "millflow_http_requests_total", "route", "/api/v1/order-lines/{lineId}/confirm"); err != nil || got != 2 {
		t.Fatalf("expected 2 confirm requests, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "millflow_http_requests_total", "route", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected unmatched route under unknown, got %f err=%v", got, err)
	}
}

func TestHTTPMetricsNilSafe(t *testing.T) {
	var m *HTTPMetrics
	m.ObserveRequest("GET", "/", 200, time.Millisecond)
	NewHTTPMetrics(nil).ObserveRequest("GET", "/", 200, time.Millisecond)
}
