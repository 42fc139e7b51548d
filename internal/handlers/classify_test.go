package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/benvon/health-report/internal/models"
	"github.com/benvon/health-report/internal/services/ai"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type mockClassifier struct {
	ClassifyImageFunc func(ctx context.Context, dataURI string) (models.Classification, error)
	ClassifyFileFunc  func(ctx context.Context, fileName, contentType string, data []byte) (models.Classification, error)
}

func (m *mockClassifier) ClassifyImage(ctx context.Context, dataURI string) (models.Classification, error) {
	return m.ClassifyImageFunc(ctx, dataURI)
}

func (m *mockClassifier) ClassifyFile(ctx context.Context, fileName, contentType string, data []byte) (models.Classification, error) {
	return m.ClassifyFileFunc(ctx, fileName, contentType, data)
}

func strPtr(s string) *string { return &s }

// multipartRequest builds a POST with one "file" part, or none when name is empty.
func multipartRequest(t *testing.T, path, name, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if name != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		_, _ = part.Write(data)
	} else {
		_ = mw.WriteField("note", "no file here")
	}
	_ = mw.Close()

	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestClassifyFile(t *testing.T) {
	t.Parallel()

	pdf := []byte("%PDF-1.7 lab results")
	tests := []struct {
		name            string
		fileName        string
		contentType     string
		data            []byte
		result          models.Classification
		err             error
		wantStatus      int
		wantContentType string
		wantCategory    any
		wantError       string
	}{
		{
			name:            "pdf classified",
			fileName:        "labs.pdf",
			contentType:     "application/pdf",
			data:            pdf,
			result:          models.Classification{Category: strPtr("health"), Subcategory: strPtr("diagnostic_reports")},
			wantStatus:      http.StatusOK,
			wantContentType: "application/pdf",
			wantCategory:    "health",
		},
		{
			name:            "content type sniffed",
			fileName:        "meal",
			contentType:     "application/octet-stream",
			data:            []byte("\x89PNG\r\n\x1a\n0000"),
			result:          models.Classification{Category: strPtr("diet"), Subcategory: strPtr("food_images")},
			wantStatus:      http.StatusOK,
			wantContentType: "image/png",
			wantCategory:    "diet",
		},
		{
			name:            "unsupported type yields nulls",
			fileName:        "notes.txt",
			contentType:     "text/plain",
			data:            []byte("hello"),
			result:          models.Unclassified(),
			wantStatus:      http.StatusOK,
			wantContentType: "text/plain",
			wantCategory:    nil,
		},
		{name: "missing file field", wantStatus: http.StatusBadRequest, wantError: "Invalid file upload"},
		{name: "empty file", fileName: "empty.pdf", contentType: "application/pdf", data: []byte{}, wantStatus: http.StatusBadRequest, wantError: "Invalid file upload"},
		{
			name:        "provider status passed through",
			fileName:    "labs.pdf",
			contentType: "application/pdf",
			data:        pdf,
			err:         fmt.Errorf("classification failed: %w", &ai.APIError{StatusCode: http.StatusTooManyRequests, Message: "rate limited"}),
			wantStatus:  http.StatusTooManyRequests,
			wantError:   "Failed to classify file",
		},
		{
			name:        "invalid model answer",
			fileName:    "labs.pdf",
			contentType: "application/pdf",
			data:        pdf,
			err:         fmt.Errorf("selfies with subcategory: %w", models.ErrInvalidClassification),
			wantStatus:  http.StatusBadGateway,
			wantError:   "Failed to classify file",
		},
		{
			name:        "transport failure",
			fileName:    "labs.pdf",
			contentType: "application/pdf",
			data:        pdf,
			err:         errors.New("dial tcp: connection refused"),
			wantStatus:  http.StatusInternalServerError,
			wantError:   "Failed to classify file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewClassifyHandler(&mockClassifier{
				ClassifyFileFunc: func(_ context.Context, fileName, contentType string, data []byte) (models.Classification, error) {
					if contentType != tt.wantContentType {
						t.Errorf("content type = %q, want %q", contentType, tt.wantContentType)
					}
					if !bytes.Equal(data, tt.data) {
						t.Error("file bytes not passed through")
					}
					return tt.result, tt.err
				},
			}, zap.NewNop())

			req := withUser(multipartRequest(t, "/api/v1/classify-file", tt.fileName, tt.contentType, tt.data), uuid.New())
			w := httptest.NewRecorder()
			h.ClassifyFile(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d (%s)", tt.wantStatus, w.Code, w.Body.String())
			}
			var body map[string]any
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if tt.wantError != "" {
				if body["error"] != tt.wantError {
					t.Errorf("error = %v, want %q", body["error"], tt.wantError)
				}
				if _, ok := body["details"]; !ok {
					t.Error("Expected details in error response")
				}
				return
			}
			if category, ok := body["category"]; !ok || category != tt.wantCategory {
				t.Errorf("category = %v (present %v), want %v", category, ok, tt.wantCategory)
			}
			if _, ok := body["subcategory"]; !ok {
				t.Error("subcategory key must always be present")
			}
		})
	}
}

func TestClassifyImage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       any
		wantURI    string
		err        error
		wantStatus int
	}{
		{
			name:       "data uri",
			body:       map[string]string{"imageBase64": "data:image/png;base64,AAAA"},
			wantURI:    "data:image/png;base64,AAAA",
			wantStatus: http.StatusOK,
		},
		{
			name:       "bare base64 gets jpeg prefix",
			body:       map[string]string{"imageBase64": "AAAA"},
			wantURI:    "data:image/jpeg;base64,AAAA",
			wantStatus: http.StatusOK,
		},
		{name: "missing image", body: map[string]string{"imageBase64": ""}, wantStatus: http.StatusBadRequest},
		{name: "empty body", wantStatus: http.StatusBadRequest},
		{
			name:       "provider error",
			body:       map[string]string{"imageBase64": "data:image/png;base64,AAAA"},
			wantURI:    "data:image/png;base64,AAAA",
			err:        &ai.APIError{StatusCode: http.StatusBadRequest, Message: "invalid image"},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			called := false
			h := NewClassifyHandler(&mockClassifier{
				ClassifyImageFunc: func(_ context.Context, dataURI string) (models.Classification, error) {
					called = true
					if dataURI != tt.wantURI {
						t.Errorf("data URI = %q, want %q", dataURI, tt.wantURI)
					}
					return models.Classification{Category: strPtr("selfies")}, tt.err
				},
			}, zap.NewNop())

			req := withUser(newTestRequest("POST", "/api/v1/classify-image", tt.body), uuid.New())
			w := httptest.NewRecorder()
			h.ClassifyImage(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d (%s)", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantURI == "" && called {
				t.Error("classifier must not be called for invalid requests")
			}
		})
	}
}
