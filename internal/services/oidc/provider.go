package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config describes the single identity provider the service trusts.
type Config struct {
	Issuer       string
	JWKSURL      string
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Endpoints are the provider URLs used for login, code exchange and key retrieval.
type Endpoints struct {
	Authorization string `json:"authorization_endpoint"`
	Token         string `json:"token_endpoint"`
	JWKS          string `json:"jwks_uri"`
}

// Provider resolves provider endpoints from the discovery document, falling back
// to conventional paths under the issuer.
type Provider struct {
	cfg        Config
	httpClient *http.Client

	mu        sync.Mutex
	endpoints *Endpoints
}

// NewProvider creates a provider. A nil httpClient uses a 5 second timeout client.
func NewProvider(cfg Config, httpClient *http.Client) *Provider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	cfg.Issuer = strings.TrimRight(cfg.Issuer, "/")
	return &Provider{cfg: cfg, httpClient: httpClient}
}

// Config returns the provider configuration.
func (p *Provider) Config() Config {
	return p.cfg
}

// Endpoints returns the discovered endpoints. Successful discovery is cached for
// the life of the process; failures fall back without caching.
func (p *Provider) Endpoints(ctx context.Context) Endpoints {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.endpoints != nil {
		return *p.endpoints
	}

	ep, err := p.discover(ctx)
	if err == nil {
		p.endpoints = &ep
		return ep
	}
	return p.fallback(Endpoints{})
}

func (p *Provider) discover(ctx context.Context) (Endpoints, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.Issuer+"/.well-known/openid-configuration", nil)
	if err != nil {
		return Endpoints{}, fmt.Errorf("failed to create discovery request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Endpoints{}, fmt.Errorf("failed to fetch discovery document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Endpoints{}, fmt.Errorf("discovery endpoint returned status %d", resp.StatusCode)
	}

	var ep Endpoints
	if err := json.NewDecoder(resp.Body).Decode(&ep); err != nil {
		return Endpoints{}, fmt.Errorf("failed to decode discovery document: %w", err)
	}
	return p.fallback(ep), nil
}

// fallback fills empty endpoints from configuration and the issuer.
func (p *Provider) fallback(ep Endpoints) Endpoints {
	if ep.Authorization == "" {
		ep.Authorization = p.cfg.Issuer + "/oauth2/authorize"
	}
	if ep.Token == "" {
		ep.Token = p.cfg.Issuer + "/oauth2/token"
	}
	if p.cfg.JWKSURL != "" {
		ep.JWKS = p.cfg.JWKSURL
	}
	if ep.JWKS == "" {
		ep.JWKS = p.cfg.Issuer + "/.well-known/jwks.json"
	}
	return ep
}

// GetLoginConfig returns what the frontend needs to start a login.
func (p *Provider) GetLoginConfig(ctx context.Context) *LoginConfig {
	ep := p.Endpoints(ctx)
	return &LoginConfig{
		AuthorizationEndpoint: ep.Authorization,
		ClientID:              p.cfg.ClientID,
		RedirectURI:           p.cfg.RedirectURI,
		Scope:                 strings.Join(defaultScopes, " "),
	}
}

// LoginConfig contains OIDC login configuration for frontend
type LoginConfig struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	ClientID              string `json:"client_id"`
	RedirectURI           string `json:"redirect_uri"`
	Scope                 string `json:"scope"`
}
