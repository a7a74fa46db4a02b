package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ashutosh6828/CloudSentry-AI/internal/analytics"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/audit"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/models"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/sink/influx"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/tracing"
)

type stageFunc func(p *analytics.Pipeline, ctx context.Context) (*models.RunSummary, error)

func newRunCmd(a *app) *cobra.Command {
	return newStageCmd(a, analytics.StageRun,
		"Encode, detect, triage and export in one pass",
		(*analytics.Pipeline).Run)
}

func newEncodeCmd(a *app) *cobra.Command {
	return newStageCmd(a, analytics.StageEncode,
		"Encode the raw log into the feature table and vocabulary",
		(*analytics.Pipeline).Encode)
}

func newDetectCmd(a *app) *cobra.Command {
	return newStageCmd(a, analytics.StageDetect,
		"Train on the feature table, triage outliers and export them",
		(*analytics.Pipeline).Detect)
}

func newStageCmd(a *app, name, short string, stage stageFunc) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			p, cleanup, err := a.pipeline(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			summary, err := stage(p, ctx)
			if err != nil {
				return err
			}
			printSummary(cmd, name, summary)
			return nil
		},
	}
}

// pipeline wires the configured sink, audit trail, ledger and tracer.
func (a *app) pipeline(ctx context.Context) (*analytics.Pipeline, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	shutdown, err := tracing.Init(tracing.ConfigFromRun(a.cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("init tracing: %w", err)
	}
	closers = append(closers, func() {
		if err := shutdown(context.Background()); err != nil {
			a.logger.Warn("failed to flush traces", zap.Error(err))
		}
	})

	opts := []analytics.Option{}

	if a.cfg.Audit.Enabled {
		auditLog, err := audit.NewLogger(audit.ConfigFromRun(a.cfg), a.logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("open audit log: %w", err)
		}
		closers = append(closers, func() { _ = auditLog.Close() })
		opts = append(opts, analytics.WithAudit(auditLog))
	}

	if a.cfg.Ledger.Enabled {
		store, err := a.openLedger(ctx)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("open ledger: %w", err)
		}
		closers = append(closers, func() { _ = store.Close() })
		opts = append(opts, analytics.WithLedger(store))
	}

	s := influx.New(influx.ConfigFromRun(a.cfg))
	return analytics.NewPipeline(a.cfg, s, a.logger, opts...), cleanup, nil
}

func printSummary(cmd *cobra.Command, stage string, s *models.RunSummary) {
	out := cmd.OutOrStdout()
	if s.InputMissing {
		fmt.Fprintf(out, "%s %s: no input records\n", stage, s.RunID)
		return
	}
	if stage == analytics.StageEncode {
		fmt.Fprintf(out, "%s %s: feature table and vocabulary written (skipped=%d)\n",
			stage, s.RunID, s.SkippedRecords)
		return
	}
	fmt.Fprintf(out, "%s %s: records=%d anomalies=%d normal=%d high=%d medium=%d low=%d dropped=%d\n",
		stage, s.RunID, s.TotalRecords, s.AnomalyCount, s.NormalCount,
		s.BySeverity[models.SeverityHigh], s.BySeverity[models.SeverityMedium], s.BySeverity[models.SeverityLow],
		s.Counters.Dropped+s.Anomalies.Dropped)
}
