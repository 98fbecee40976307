package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestIsLoopback(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:6060", true},
		{"localhost:6060", true},
		{"[::1]:6060", true},
		{"0.0.0.0:6060", false},
		{":6060", false},
		{"10.0.0.5:6060", false},
		{"not-an-addr", false},
	}
	for _, tt := range tests {
		if got := isLoopback(tt.addr); got != tt.want {
			t.Errorf("isLoopback(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestDebugHandlerBasicAuth(t *testing.T) {
	h := DebugHandler(ObservabilityConfig{BasicAuthUser: "ops", BasicAuthPass: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without credentials, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.SetBasicAuth("ops", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 with credentials, got %d", rec.Code)
	}
}

func TestDebugHandlerServesMetrics(t *testing.T) {
	RecordRequest(http.MethodGet, "/api/health", http.StatusOK, 0)

	rec := httptest.NewRecorder()
	DebugHandler(ObservabilityConfig{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "arena_http_requests_total") {
		t.Error("Expected arena_http_requests_total in /metrics output")
	}
}
