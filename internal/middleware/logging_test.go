package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benvon/health-report/internal/services/ai"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		method        string
		path          string
		handlerStatus int
		wantLevel     zapcore.Level
		wantIP        bool
	}{
		{name: "report request", method: "GET", path: "/api/v1/report", handlerStatus: http.StatusOK, wantLevel: zapcore.InfoLevel},
		{name: "upload", method: "POST", path: "/api/v1/files", handlerStatus: http.StatusCreated, wantLevel: zapcore.InfoLevel},
		{name: "unauthorized", method: "GET", path: "/api/v1/report", handlerStatus: http.StatusUnauthorized, wantLevel: zapcore.WarnLevel, wantIP: true},
		{name: "rate limited", method: "GET", path: "/api/v1/report", handlerStatus: http.StatusTooManyRequests, wantLevel: zapcore.WarnLevel, wantIP: true},
		{name: "server error", method: "GET", path: "/api/v1/report", handlerStatus: http.StatusInternalServerError, wantLevel: zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.DebugLevel)
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if ai.ExtractRequestID(r.Context()) == "" {
					t.Error("request id not propagated to context")
				}
				w.WriteHeader(tt.handlerStatus)
			})

			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			Logging(zap.New(core))(handler).ServeHTTP(w, req)

			if w.Code != tt.handlerStatus {
				t.Errorf("Expected status %d, got %d", tt.handlerStatus, w.Code)
			}
			if w.Header().Get(RequestIDHeader) == "" {
				t.Error("Expected request id header")
			}

			entries := logs.FilterMessage("http_request").All()
			if len(entries) != 1 {
				t.Fatalf("Expected one log entry, got %d", len(entries))
			}
			entry := entries[0]
			if entry.Level != tt.wantLevel {
				t.Errorf("Expected level %s, got %s", tt.wantLevel, entry.Level)
			}
			fields := entry.ContextMap()
			if fields["status_code"] != int64(tt.handlerStatus) {
				t.Errorf("Expected status_code %d, got %v", tt.handlerStatus, fields["status_code"])
			}
			if _, ok := fields["ip"]; ok != tt.wantIP {
				t.Errorf("ip field present = %v, want %v", ok, tt.wantIP)
			}
		})
	}
}

func TestLoggingKeepsValidRequestID(t *testing.T) {
	t.Parallel()

	const id = "8a4b1c0e-4a3f-4e57-bb1a-6f9e2f0c9d11"
	var seen string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ai.ExtractRequestID(r.Context())
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, id)
	w := httptest.NewRecorder()
	Logging(zap.NewNop())(handler).ServeHTTP(w, req)

	if seen != id || w.Header().Get(RequestIDHeader) != id {
		t.Errorf("request id not preserved: ctx=%q header=%q", seen, w.Header().Get(RequestIDHeader))
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "<script>")
	w = httptest.NewRecorder()
	Logging(zap.NewNop())(handler).ServeHTTP(w, req)
	if seen == "<script>" {
		t.Error("invalid request id accepted")
	}
}

func TestLoggingResponseWriter(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("test"))
		w.WriteHeader(http.StatusTeapot) // superfluous, ignored by the recorder too
	})

	core, logs := observer.New(zapcore.InfoLevel)
	w := httptest.NewRecorder()
	Logging(zap.New(core))(handler).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if got := logs.All()[0].ContextMap()["status_code"]; got != int64(http.StatusOK) {
		t.Errorf("Expected logged status 200, got %v", got)
	}
}
