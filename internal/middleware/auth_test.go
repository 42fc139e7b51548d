package middleware

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benvon/health-report/internal/models"
	"github.com/benvon/health-report/internal/services/ai"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type mockVerifier struct {
	VerifyFunc func(ctx context.Context, token string) (*models.JWTClaims, error)
}

func (m *mockVerifier) Verify(ctx context.Context, token string) (*models.JWTClaims, error) {
	return m.VerifyFunc(ctx, token)
}

type mockUserStore struct {
	GetByIDFunc func(ctx context.Context, id uuid.UUID) (*models.User, error)
	EnsureFunc  func(ctx context.Context, user *models.User) error
}

func (m *mockUserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return m.GetByIDFunc(ctx, id)
}

func (m *mockUserStore) Ensure(ctx context.Context, user *models.User) error {
	if m.EnsureFunc != nil {
		return m.EnsureFunc(ctx, user)
	}
	return nil
}

func TestAuth(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	verifier := &mockVerifier{VerifyFunc: func(_ context.Context, token string) (*models.JWTClaims, error) {
		switch token {
		case "good":
			return &models.JWTClaims{Sub: userID.String(), Email: "ada@example.com", Name: "Ada"}, nil
		case "not-uuid":
			return &models.JWTClaims{Sub: "auth0|123"}, nil
		default:
			return nil, errors.New("signature invalid")
		}
	}}

	tests := []struct {
		name        string
		header      string
		cookie      string
		lookupErr   error
		ensureErr   error
		wantStatus  int
		wantEnsured bool
	}{
		{name: "bearer token", header: "Bearer good", wantStatus: http.StatusOK},
		{name: "lowercase scheme", header: "bearer good", wantStatus: http.StatusOK},
		{name: "session cookie", cookie: "good", wantStatus: http.StatusOK},
		{name: "missing credentials", wantStatus: http.StatusUnauthorized},
		{name: "basic auth", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer forged", wantStatus: http.StatusUnauthorized},
		{name: "non-uuid subject", header: "Bearer not-uuid", wantStatus: http.StatusUnauthorized},
		{
			name:        "first login creates user",
			header:      "Bearer good",
			lookupErr:   fmt.Errorf("user not found: %w", sql.ErrNoRows),
			wantStatus:  http.StatusOK,
			wantEnsured: true,
		},
		{
			name:       "create failure",
			header:     "Bearer good",
			lookupErr:  sql.ErrNoRows,
			ensureErr:  errors.New("insert failed"),
			wantStatus: http.StatusInternalServerError,
		},
		{name: "database down", header: "Bearer good", lookupErr: errors.New("connection refused"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ensured := false
			store := &mockUserStore{
				GetByIDFunc: func(_ context.Context, id uuid.UUID) (*models.User, error) {
					if tt.lookupErr != nil {
						return nil, tt.lookupErr
					}
					return &models.User{ID: id, Email: "ada@example.com"}, nil
				},
				EnsureFunc: func(_ context.Context, u *models.User) error {
					ensured = true
					if u.ID != userID || u.Email != "ada@example.com" || u.Name == nil || *u.Name != "Ada" {
						t.Errorf("unexpected user %+v", u)
					}
					return tt.ensureErr
				},
			}

			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				user := UserFromContext(r)
				if user == nil || user.ID != userID {
					t.Errorf("unexpected user in context: %+v", user)
				}
				if ai.ExtractUserID(r.Context()) != userID.String() {
					t.Error("user id not attached for AI logging")
				}
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("GET", "/api/v1/report", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: DefaultSessionCookieName, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			Auth(verifier, store, "", zap.NewNop())(handler).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d (%s)", tt.wantStatus, w.Code, w.Body.String())
			}
			if ensured != tt.wantEnsured && tt.ensureErr == nil {
				t.Errorf("Ensure called = %v, want %v", ensured, tt.wantEnsured)
			}
		})
	}
}
