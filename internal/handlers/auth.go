package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/benvon/health-report/internal/logger"
	"github.com/benvon/health-report/internal/middleware"
	"github.com/benvon/health-report/internal/services/oidc"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// LoginConfigSource provides the OIDC settings the frontend needs to start a login
type LoginConfigSource interface {
	GetLoginConfig(ctx context.Context) *oidc.LoginConfig
}

// CodeExchanger trades an authorization code for an ID token
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, code string) (idToken string, expiry time.Time, err error)
}

// AuthOptions configures the auth handler
type AuthOptions struct {
	CookieName   string
	FrontendURL  string
	SecureCookie bool
	Logger       *zap.Logger
}

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	login        LoginConfigSource
	exchanger    CodeExchanger
	cookieName   string
	frontendURL  string
	secureCookie bool
	logger       *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(login LoginConfigSource, exchanger CodeExchanger, opts AuthOptions) *AuthHandler {
	if opts.CookieName == "" {
		opts.CookieName = middleware.DefaultSessionCookieName
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &AuthHandler{
		login:        login,
		exchanger:    exchanger,
		cookieName:   opts.CookieName,
		frontendURL:  strings.TrimRight(opts.FrontendURL, "/"),
		secureCookie: opts.SecureCookie,
		logger:       opts.Logger,
	}
}

// RegisterPublicRoutes registers unauthenticated routes
// The router should already have the /api/v1/auth prefix
func (h *AuthHandler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/oidc/login", h.GetOIDCLogin).Methods("GET")
	r.HandleFunc("/logout", h.Logout).Methods("POST")
}

// RegisterRoutes registers routes that need an authenticated user
// The router should already have the /api/v1/auth prefix
func (h *AuthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/me", h.GetMe).Methods("GET")
}

// RegisterCallback registers the browser redirect target on the root router
func (h *AuthHandler) RegisterCallback(r *mux.Router) {
	r.HandleFunc("/auth/callback", h.Callback).Methods("GET")
}

// GetOIDCLogin returns OIDC configuration for frontend
func (h *AuthHandler) GetOIDCLogin(w http.ResponseWriter, r *http.Request) {
	cfg := h.login.GetLoginConfig(r.Context())
	if cfg == nil || cfg.AuthorizationEndpoint == "" || cfg.ClientID == "" {
		respondJSONError(w, http.StatusServiceUnavailable, "Login is not configured", "")
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

// GetMe returns current user information
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// Callback exchanges the authorization code, stores the ID token in the session
// cookie and sends the browser back to the frontend.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		if errParam := r.URL.Query().Get("error"); errParam != "" {
			h.logger.Info("oidc_login_rejected", zap.String("error", logger.SanitizeString(errParam, 100)))
		}
		http.Redirect(w, r, h.frontendURL+"/login", http.StatusFound)
		return
	}

	idToken, expiry, err := h.exchanger.ExchangeCode(r.Context(), code)
	if err != nil {
		h.logger.Warn("oidc_code_exchange_failed", zap.String("error", logger.SanitizeError(err)))
		http.Redirect(w, r, h.frontendURL+"/login?error=exchange_failed", http.StatusFound)
		return
	}

	cookie := &http.Cookie{
		Name:     h.cookieName,
		Value:    idToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if !expiry.IsZero() {
		cookie.Expires = expiry
	}
	http.SetCookie(w, cookie)
	http.Redirect(w, r, h.frontendURL+"/", http.StatusFound)
}

// Logout clears the session cookie
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
