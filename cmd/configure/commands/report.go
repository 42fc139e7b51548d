package commands

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/benvon/health-report/internal/database"
	"github.com/benvon/health-report/internal/report"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewReportCmd creates the report command
func NewReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Inspect report prompt assembly",
	}
	cmd.AddCommand(newReportPreviewCmd())
	return cmd
}

func newReportPreviewCmd() *cobra.Command {
	var (
		userID string
		render bool
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show how a user's data fits the report budget",
		Long:  "Collect a user's records and assemble the report prompt without calling the model or fetching file content",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("--user-id must be a UUID: %w", err)
			}

			cfg, db, closeDB, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			collector := report.NewCollector(
				database.NewUserRepository(db),
				database.NewNoteRepository(db),
				database.NewFileRepository(db),
				database.NewIntegrationRepository(db),
				zap.NewNop(),
			)
			records, err := collector.Collect(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to collect records: %w", err)
			}

			assembly := report.NewAssembler(report.Budget{
				Ceiling:        cfg.ReportBudgetCeiling,
				ImageAllowance: cfg.ReportImageAllowance,
				PDFAllowance:   cfg.ReportPDFAllowance,
			}).Assemble(records, time.Now())

			out := cmd.OutOrStdout()
			if render {
				fmt.Fprint(out, report.Render(assembly.Fragments))
				return nil
			}

			fmt.Fprintf(out, "Records: %d notes, %d files, %d activities, profile=%t\n",
				len(records.Notes), len(records.Files), len(records.Integrations), records.Profile != nil)
			fmt.Fprintf(out, "Budget: baseline %d, committed %d of %d, total with markers %d\n",
				assembly.Baseline, assembly.Committed, assembly.Ceiling, assembly.Total)
			fmt.Fprintf(out, "Binary fragments pending resolution: %d\n", assembly.PendingBinaries())

			var truncated []string
			for section, hit := range assembly.Truncated {
				if hit {
					truncated = append(truncated, string(section))
				}
			}
			sort.Strings(truncated)
			if len(truncated) > 0 {
				fmt.Fprintf(out, "Truncated sections: %v\n", truncated)
			}

			fmt.Fprintln(out)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tSECTION\tKIND\tCOST\tMARKER\tSOURCE")
			for _, f := range assembly.Fragments {
				source := ""
				if f.Source != nil {
					source = f.Source.FileName
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%t\t%s\n", f.Seq, f.Section, f.Kind, f.Cost, f.Marker, source)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "User ID to preview (required)")
	cmd.Flags().BoolVar(&render, "render", false, "Print the assembled prompt text instead of the summary")
	_ = cmd.MarkFlagRequired("user-id")

	return cmd
}
