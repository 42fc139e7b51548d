package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const testIssuer = "https://idp.example.com"

func newSigningKey(t *testing.T) (jwk.Key, *httptest.Server) {
	t.Helper()

	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	priv, err := jwk.FromRaw(raw)
	if err != nil {
		t.Fatalf("FromRaw: %v", err)
	}
	_ = priv.Set(jwk.KeyIDKey, "test-key")
	_ = priv.Set(jwk.AlgorithmKey, jwa.RS256)

	pub, err := priv.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}
	set := jwk.NewSet()
	if err := set.AddKey(pub); err != nil {
		t.Fatalf("AddKey: %v", err)
	}
	body, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return priv, srv
}

func signToken(t *testing.T, key jwk.Key, issuer, audience string, exp time.Time) string {
	t.Helper()

	tok, err := jwt.NewBuilder().
		Subject("6f1c2a9e-2f64-4c55-9d8e-0c1d2e3f4a5b").
		Issuer(issuer).
		Audience([]string{audience}).
		IssuedAt(time.Now().Add(-time.Minute)).
		Expiration(exp).
		Claim("email", "ada@example.com").
		Claim("name", "Ada").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, key))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return string(signed)
}

func TestVerifierVerify(t *testing.T) {
	t.Parallel()

	key, srv := newSigningKey(t)
	verifier := NewVerifier(NewJWKSManager(0, srv.Client()), srv.URL, testIssuer, "client-1")
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "valid token", token: signToken(t, key, testIssuer, "client-1", future)},
		{name: "wrong issuer", token: signToken(t, key, "https://evil.example.com", "client-1", future), wantErr: true},
		{name: "wrong audience", token: signToken(t, key, testIssuer, "other-client", future), wantErr: true},
		{name: "expired", token: signToken(t, key, testIssuer, "client-1", time.Now().Add(-time.Hour)), wantErr: true},
		{name: "garbage", token: "not.a.jwt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			claims, err := verifier.Verify(context.Background(), tt.token)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if claims.Sub != "6f1c2a9e-2f64-4c55-9d8e-0c1d2e3f4a5b" || claims.Email != "ada@example.com" || claims.Name != "Ada" {
				t.Errorf("unexpected claims %+v", claims)
			}
			if claims.Iss != testIssuer || claims.Aud != "client-1" {
				t.Errorf("unexpected iss/aud %q/%q", claims.Iss, claims.Aud)
			}
		})
	}
}

func TestJWKSManagerCaches(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"keys":[]}`))
	}))
	defer srv.Close()

	m := NewJWKSManager(time.Hour, srv.Client())
	for i := 0; i < 3; i++ {
		if _, err := m.GetJWKS(context.Background(), srv.URL); err != nil {
			t.Fatalf("GetJWKS: %v", err)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("JWKS fetched %d times, want 1", hits.Load())
	}

	if _, err := m.GetJWKS(context.Background(), srv.URL+"/missing\x7f"); err == nil || !strings.Contains(err.Error(), "failed to fetch JWKS") {
		t.Errorf("expected fetch error, got %v", err)
	}
}
