package commands

import (
	"fmt"
	"net/http"
	"time"

	"github.com/benvon/health-report/internal/config"
	"github.com/benvon/health-report/internal/services/oidc"
	"github.com/spf13/cobra"
)

// NewOIDCCmd creates the OIDC command
func NewOIDCCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oidc",
		Short: "Inspect the OIDC provider configuration",
	}
	cmd.AddCommand(newOIDCCheckCmd())
	return cmd
}

func newOIDCCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Test OIDC configuration",
		Long:  "Resolve the provider endpoints from the OIDC_* environment and verify the key set can be fetched",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.OIDCIssuer == "" || cfg.OIDCClientID == "" {
				return fmt.Errorf("OIDC_ISSUER and OIDC_CLIENT_ID are required")
			}

			client := &http.Client{Timeout: 10 * time.Second}
			provider := oidc.NewProvider(oidc.Config{
				Issuer:       cfg.OIDCIssuer,
				JWKSURL:      cfg.OIDCJWKSURL,
				ClientID:     cfg.OIDCClientID,
				ClientSecret: cfg.OIDCClientSecret,
				RedirectURI:  cfg.OIDCRedirectURI,
			}, client)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Issuer: %s\n", cfg.OIDCIssuer)

			ep := provider.Endpoints(cmd.Context())
			fmt.Fprintf(out, "Authorization endpoint: %s\n", ep.Authorization)
			fmt.Fprintf(out, "Token endpoint: %s\n", ep.Token)
			fmt.Fprintf(out, "JWKS endpoint: %s\n", ep.JWKS)

			keys, err := oidc.NewJWKSManager(oidc.DefaultJWKSTTL, client).GetJWKS(cmd.Context(), ep.JWKS)
			if err != nil {
				return fmt.Errorf("failed to fetch JWKS: %w", err)
			}
			if keys.Len() == 0 {
				return fmt.Errorf("JWKS at %s has no keys", ep.JWKS)
			}
			fmt.Fprintf(out, "✓ JWKS endpoint returned %d keys\n", keys.Len())

			if cfg.OIDCRedirectURI == "" {
				fmt.Fprintln(out, "Warning: OIDC_REDIRECT_URI is not set, browser login will fail")
			}
			fmt.Fprintln(out, "\n✓ OIDC configuration test passed")
			return nil
		},
	}
}
