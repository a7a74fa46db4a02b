package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ashutosh6828/CloudSentry-AI/internal/db"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit int
		runID string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs from the ledger",
		Long:  "history lists recent runs. With --run it shows one run and the artifacts it wrote.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openLedger(cmd.Context())
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			defer store.Close()

			if runID != "" {
				return printRun(cmd.Context(), cmd.OutOrStdout(), store, runID)
			}

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tSTAGE\tSTATUS\tSTARTED\tRECORDS\tANOMALIES\tHIGH\tDROPPED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
					r.ID, r.Stage, r.Status, r.StartedAt.Format(time.RFC3339),
					r.TotalRecords, r.AnomalyCount, r.HighCount, r.PointsDropped)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list (0 for all)")
	cmd.Flags().StringVar(&runID, "run", "", "show one run and its artifacts")
	return cmd
}

// openLedger opens the configured ledger and checks the connection.
func (a *app) openLedger(ctx context.Context) (db.Store, error) {
	if !a.cfg.Ledger.Enabled {
		return nil, errors.New("ledger is disabled (ledger.enabled=false)")
	}
	store, err := db.NewSQLiteStore(a.cfg.Ledger.Path)
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("ping ledger: %w", err)
	}
	return store, nil
}

func printRun(ctx context.Context, out io.Writer, store db.Store, id string) error {
	r, err := store.GetRun(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("history: run %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	artifacts, err := store.ListArtifacts(ctx, id)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "RUN ID\t%s\n", r.ID)
	fmt.Fprintf(tw, "STAGE\t%s\n", r.Stage)
	fmt.Fprintf(tw, "STATUS\t%s\n", r.Status)
	fmt.Fprintf(tw, "STARTED\t%s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "ENDED\t%s\n", r.EndedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "RECORDS\t%d (skipped %d)\n", r.TotalRecords, r.SkippedRecords)
	fmt.Fprintf(tw, "ANOMALIES\t%d (high %d, medium %d, low %d)\n", r.AnomalyCount, r.HighCount, r.MediumCount, r.LowCount)
	fmt.Fprintf(tw, "POINTS\t%d written, %d dropped\n", r.PointsWritten, r.PointsDropped)
	if r.Error != "" {
		fmt.Fprintf(tw, "ERROR\t%s\n", r.Error)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "KIND\tPATH\tDIGEST")
	for _, art := range artifacts {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", art.Kind, art.Path, art.Digest)
	}
	return tw.Flush()
}
