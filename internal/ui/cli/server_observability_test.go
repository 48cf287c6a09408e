package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	coreapp "stubindex/internal/core/app"
)

type staticHealth struct {
	status string
}

func (s staticHealth) Health(context.Context) coreapp.HealthStatus {
	return coreapp.HealthStatus{Status: s.status, Components: map[string]string{"store": s.status}}
}

func TestObservabilityServer_Health(t *testing.T) {
	for _, tc := range []struct {
		status string
		code   int
	}{
		{"up", http.StatusOK},
		{"down", http.StatusServiceUnavailable},
	} {
		srv := NewObservabilityServer("127.0.0.1:0", staticHealth{status: tc.status})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != tc.code {
			t.Fatalf("status %q: expected code %d, got %d", tc.status, tc.code, rec.Code)
		}
		var body coreapp.HealthStatus
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode health body: %v", err)
		}
		if body.Status != tc.status {
			t.Fatalf("expected status %q, got %q", tc.status, body.Status)
		}
	}
}

func TestObservabilityServer_Metrics(t *testing.T) {
	srv := NewObservabilityServer("127.0.0.1:0", staticHealth{status: "up"})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
}

func TestObservabilityServer_StartStop(t *testing.T) {
	srv := NewObservabilityServer("127.0.0.1:0", staticHealth{status: "up"})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
