package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		mode       string
		checks     map[string]CheckFunc
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "basic mode skips probes",
			checks:     map[string]CheckFunc{"database": down},
			wantStatus: http.StatusOK,
		},
		{
			name:       "extended all healthy",
			mode:       "extended",
			checks:     map[string]CheckFunc{"database": ok, "rabbitmq": ok},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"database": "healthy", "rabbitmq": "healthy"},
		},
		{
			name:       "extended database down",
			mode:       "extended",
			checks:     map[string]CheckFunc{"database": down, "redis": ok},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"database": "unhealthy: connection refused", "redis": "healthy"},
		},
		{
			name:       "nil checks are not configured",
			mode:       "extended",
			checks:     map[string]CheckFunc{"database": ok, "redis": nil},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"database": "healthy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHealthChecker(tt.checks)
			path := "/healthz"
			if tt.mode != "" {
				path += "?mode=" + tt.mode
			}
			w := httptest.NewRecorder()
			h.HealthCheck(w, httptest.NewRequest("GET", path, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			var resp HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(resp.Checks) != len(tt.wantChecks) {
				t.Fatalf("checks = %v, want %v", resp.Checks, tt.wantChecks)
			}
			for name, want := range tt.wantChecks {
				if got := resp.Checks[name]; !strings.HasPrefix(got, want) {
					t.Errorf("check %s = %q, want %q", name, got, want)
				}
			}
		})
	}
}
