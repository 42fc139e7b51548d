package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/benvon/health-report/internal/config"
	"github.com/benvon/health-report/internal/services/ai"
	"github.com/benvon/health-report/internal/workers"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewUploadsCmd creates the uploads command with list and sweep subcommands.
func NewUploadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uploads",
		Short: "Manage temporary files uploaded to the AI provider",
	}
	cmd.AddCommand(newUploadsListCmd())
	cmd.AddCommand(newUploadsSweepCmd())
	return cmd
}

func newProvider() (*ai.OpenAIProvider, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	return ai.NewOpenAIProvider(ai.ProviderOptions{
		APIKey:  cfg.OpenAIKey,
		BaseURL: cfg.AIBaseURL,
		Timeout: cfg.AITimeout,
	}), nil
}

func newUploadsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List user_data uploads held by the provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := newProvider()
			if err != nil {
				return err
			}

			files, err := provider.ListFiles(cmd.Context(), ai.FilePurposeUserData)
			if err != nil {
				return fmt.Errorf("failed to list uploads: %w", err)
			}
			if len(files) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No uploads")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tBYTES\tAGE")
			now := time.Now()
			for _, f := range files {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", f.ID, f.FileName, f.Bytes, now.Sub(f.CreatedAt).Round(time.Minute))
			}
			return tw.Flush()
		},
	}
}

func newUploadsSweepCmd() *cobra.Command {
	var (
		olderThan time.Duration
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete user_data uploads older than --older-than",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := newProvider()
			if err != nil {
				return err
			}

			sweeper := workers.NewUploadSweeper(provider, olderThan, zap.NewNop())
			out := cmd.OutOrStdout()

			if dryRun {
				stale, scanned, err := sweeper.Stale(cmd.Context())
				if err != nil {
					return err
				}
				for _, f := range stale {
					fmt.Fprintf(out, "Would delete %s (%s, created %s)\n", f.ID, f.FileName, f.CreatedAt.Format(time.RFC3339))
				}
				fmt.Fprintf(out, "%d of %d uploads are stale\n", len(stale), scanned)
				return nil
			}

			res, err := sweeper.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Scanned %d, stale %d, deleted %d, failed %d\n", res.Scanned, res.Stale, res.Deleted, res.Failed)
			if res.Failed > 0 {
				return fmt.Errorf("%d uploads could not be deleted", res.Failed)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", workers.DefaultSweepMaxAge, "Minimum upload age to delete")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List stale uploads without deleting them")

	return cmd
}
