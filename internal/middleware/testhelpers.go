package middleware

import (
	"context"

	"github.com/benvon/health-report/internal/models"
	"github.com/benvon/health-report/internal/request"
)

// SetUserInContext attaches an authenticated user, as Auth does. Handler tests use it
// to bypass token verification.
func SetUserInContext(ctx context.Context, user *models.User) context.Context {
	return request.WithUser(ctx, user)
}
