package middleware

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	logpkg "github.com/benvon/health-report/internal/logger"
	"github.com/benvon/health-report/internal/models"
	"github.com/benvon/health-report/internal/request"
	"github.com/benvon/health-report/internal/services/ai"
	"github.com/benvon/health-report/internal/services/oidc"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSessionCookieName carries the ID token set by the auth callback.
const DefaultSessionCookieName = "hr_session"

// UserStore loads and registers users on login.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Ensure(ctx context.Context, user *models.User) error
}

// UserFromContext extracts the user from the request context
func UserFromContext(r *http.Request) *models.User {
	return request.UserFromContext(r)
}

// Auth authenticates requests with an ID token from the Authorization header or the
// session cookie. The token subject must be the user's UUID; unknown users are created.
func Auth(verifier oidc.TokenVerifier, users UserStore, cookieName string, logger *zap.Logger) func(http.Handler) http.Handler {
	if cookieName == "" {
		cookieName = DefaultSessionCookieName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := tokenFromRequest(r, cookieName)
			if !ok {
				respondError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			ctx := r.Context()
			claims, err := verifier.Verify(ctx, tokenString)
			if err != nil {
				logger.Info("token_verification_failed",
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("error", logpkg.SanitizeError(err)),
				)
				respondError(w, http.StatusUnauthorized, "Invalid or expired session")
				return
			}

			userID, err := uuid.Parse(claims.Sub)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "Invalid subject")
				return
			}

			user, err := users.GetByID(ctx, userID)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				user = &models.User{ID: userID, Email: claims.Email}
				if claims.Name != "" {
					name := claims.Name
					user.Name = &name
				}
				if err := users.Ensure(ctx, user); err != nil {
					logger.Error("user_create_failed",
						zap.String("user_id", logpkg.SanitizeUserID(userID.String())),
						zap.String("error", logpkg.SanitizeError(err)),
					)
					respondError(w, http.StatusInternalServerError, "Failed to create user")
					return
				}
			case err != nil:
				logger.Error("user_lookup_failed",
					zap.String("user_id", logpkg.SanitizeUserID(userID.String())),
					zap.String("error", logpkg.SanitizeError(err)),
				)
				respondError(w, http.StatusInternalServerError, "Database error")
				return
			}

			ctx = request.WithUser(ctx, user)
			ctx = ai.WithUserID(ctx, user.ID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request, cookieName string) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", false
		}
		return strings.TrimSpace(token), true
	}
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	return "", false
}
