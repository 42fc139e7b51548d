package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benvon/health-report/internal/models"
	"github.com/benvon/health-report/internal/report"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type mockGenerator struct {
	GenerateFunc func(ctx context.Context, userID uuid.UUID) (*models.HealthReport, error)
}

func (m *mockGenerator) Generate(ctx context.Context, userID uuid.UUID) (*models.HealthReport, error) {
	return m.GenerateFunc(ctx, userID)
}

func TestGetReport(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	sample := &models.HealthReport{StatusQuo: "Stable weight, regular runs."}

	tests := []struct {
		name       string
		auth       bool
		err        error
		wantStatus int
		wantError  string
		wantDetail string
	}{
		{name: "success", auth: true, wantStatus: http.StatusOK},
		{name: "unauthenticated", auth: false, wantStatus: http.StatusUnauthorized, wantError: "Unauthorized"},
		{
			name:       "required collection failed",
			auth:       true,
			err:        &report.CollectionError{Collection: "notes", Err: errors.New("connection reset")},
			wantStatus: http.StatusInternalServerError,
			wantError:  "Failed to load notes",
			wantDetail: "connection reset",
		},
		{
			name:       "malformed model response",
			auth:       true,
			err:        &models.MalformedReportError{Err: errors.New("missing key")},
			wantStatus: http.StatusInternalServerError,
			wantError:  "The report could not be generated, please try again",
		},
		{name: "provider failure", auth: true, err: errors.New("401 invalid api key"), wantStatus: http.StatusInternalServerError, wantError: "Failed to generate report"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			called := false
			h := NewReportHandler(&mockGenerator{GenerateFunc: func(_ context.Context, id uuid.UUID) (*models.HealthReport, error) {
				called = true
				if id != userID {
					t.Errorf("Generate called for %s, want %s", id, userID)
				}
				if tt.err != nil {
					return nil, tt.err
				}
				return sample, nil
			}}, zap.NewNop())

			req := httptest.NewRequest("GET", "/api/v1/report", nil)
			if tt.auth {
				req = withUser(req, userID)
			}
			w := httptest.NewRecorder()
			h.GetReport(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if !tt.auth && called {
				t.Error("no work may happen for unauthenticated requests")
			}

			var body map[string]any
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if tt.wantError != "" {
				if body["error"] != tt.wantError {
					t.Errorf("error = %v, want %q", body["error"], tt.wantError)
				}
				details, hasDetails := body["details"]
				if tt.wantDetail == "" && hasDetails {
					t.Errorf("unexpected details %v", details)
				}
				if tt.wantDetail != "" && details != tt.wantDetail {
					t.Errorf("details = %v, want %q", details, tt.wantDetail)
				}
				return
			}
			if body["statusQuo"] != sample.StatusQuo {
				t.Errorf("Expected raw report body, got %v", body)
			}
			if _, wrapped := body["data"]; wrapped {
				t.Error("report must not be wrapped in an envelope")
			}
		})
	}
}
