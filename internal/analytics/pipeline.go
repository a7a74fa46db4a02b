// Package analytics orchestrates a batch run: ingest the raw audit log,
// encode features, train and apply the isolation forest, triage the flagged
// events and export the results.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Ashutosh6828/CloudSentry-AI/internal/analytics/features"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/analytics/ml"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/analytics/response"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/analytics/scoring"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/analytics/triage"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/audit"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/config"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/db"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/exporter"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/ingest"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/metrics"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/models"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/sink"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/tracing"
)

// Stage names recorded in the audit trail and the ledger.
const (
	StageEncode = "encode"
	StageDetect = "detect"
	StageRun    = "run"
)

// Pipeline runs the encode and detect stages against one configuration.
type Pipeline struct {
	cfg    *config.Config
	sink   sink.Sink
	logger *zap.Logger
	audit  audit.Logger
	ledger db.Store

	now      func() time.Time
	newRunID func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithAudit sets the audit trail. Defaults to a no-op logger.
func WithAudit(l audit.Logger) Option {
	return func(p *Pipeline) { p.audit = l }
}

// WithLedger records every run in store.
func WithLedger(store db.Store) Option {
	return func(p *Pipeline) { p.ledger = store }
}

// WithClock overrides the run clock.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithRunID overrides run ID generation.
func WithRunID(gen func() string) Option {
	return func(p *Pipeline) { p.newRunID = gen }
}

// NewPipeline creates a pipeline writing to s.
func NewPipeline(cfg *config.Config, s sink.Sink, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		cfg:      cfg,
		sink:     s,
		logger:   logger,
		audit:    audit.NewNopLogger(),
		now:      time.Now,
		newRunID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// runState carries one run's bookkeeping across stages.
type runState struct {
	stage     string
	summary   *models.RunSummary
	metrics   *metrics.RunMetrics
	exporter  *exporter.Exporter
	logger    *zap.Logger
	artifacts []*db.ArtifactRecord
}

func (p *Pipeline) begin(ctx context.Context, stage string) *runState {
	runID := p.newRunID()
	m := metrics.New()
	logger := p.logger.With(zap.String("run_id", runID), zap.String("stage", stage))
	if traceID := tracing.TraceIDFromContext(ctx); traceID != "" {
		logger = logger.With(zap.String("trace_id", traceID))
	}

	st := &runState{
		stage: stage,
		summary: &models.RunSummary{
			RunID:          runID,
			StartedAt:      p.now(),
			BySeverity:     map[models.SeverityLevel]int{},
			ModelPath:      p.cfg.Paths.Model,
			VocabularyPath: p.cfg.Paths.Vocabulary,
		},
		metrics:  m,
		exporter: exporter.New(p.sink, logger, exporter.WithDropHook(m.SinkWriteFailed)),
		logger:   logger,
	}
	for _, level := range models.SeverityLevels() {
		st.summary.BySeverity[level] = 0
	}

	logger.Info("run started")
	if err := p.audit.LogRunStarted(ctx, runID, stage); err != nil {
		logger.Warn("failed to write audit event", zap.Error(err))
	}
	return st
}

// finish closes out a run. Ledger, metrics push and audit failures are
// logged but never change the run's outcome.
func (p *Pipeline) finish(ctx context.Context, st *runState, runErr error) {
	s := st.summary
	s.EndedAt = p.now()
	duration := s.EndedAt.Sub(s.StartedAt)

	st.metrics.RecordSummary(s)
	if err := st.metrics.Push(ctx, p.cfg.Metrics.PushgatewayURL, p.cfg.Metrics.Job); err != nil {
		st.logger.Warn("failed to push run metrics", zap.Error(err))
	}

	if p.ledger != nil {
		if err := p.ledger.SaveRun(ctx, db.RunRecordFromSummary(st.stage, s, runErr)); err != nil {
			st.logger.Warn("failed to record run in ledger", zap.Error(err))
		} else {
			for _, a := range st.artifacts {
				if err := p.ledger.AppendArtifact(ctx, a); err != nil {
					st.logger.Warn("failed to record artifact in ledger", zap.String("path", a.Path), zap.Error(err))
				}
			}
		}
	}

	if runErr != nil {
		st.logger.Error("run failed", zap.Error(runErr), zap.Duration("duration", duration))
		if err := p.audit.LogRunFailed(ctx, s.RunID, st.stage, runErr); err != nil {
			st.logger.Warn("failed to write audit event", zap.Error(err))
		}
		return
	}

	st.logger.Info("run completed",
		zap.Int("records_processed", s.TotalRecords),
		zap.Int("anomalies_detected", s.AnomalyCount),
		zap.Int("normal_events", s.NormalCount),
		zap.Int("points_dropped", s.Counters.Dropped+s.Anomalies.Dropped),
		zap.Duration("duration", duration),
	)
	counts := map[string]int{
		"records_processed":  s.TotalRecords,
		"anomalies_detected": s.AnomalyCount,
		"normal_events":      s.NormalCount,
		"skipped_records":    s.SkippedRecords,
		"points_written":     s.Counters.Written + s.Anomalies.Written,
		"points_dropped":     s.Counters.Dropped + s.Anomalies.Dropped,
	}
	if err := p.audit.LogRunCompleted(ctx, s.RunID, st.stage, duration, counts); err != nil {
		st.logger.Warn("failed to write audit event", zap.Error(err))
	}
}

func (p *Pipeline) artifactWritten(ctx context.Context, st *runState, path, kind, digest string) {
	st.artifacts = append(st.artifacts, &db.ArtifactRecord{
		RunID:     st.summary.RunID,
		Kind:      kind,
		Path:      path,
		Digest:    digest,
		WrittenAt: p.now(),
	})
	st.logger.Info("artifact written", zap.String("kind", kind), zap.String("path", path), zap.String("digest", digest))
	if err := p.audit.LogArtifactWritten(ctx, st.summary.RunID, path, kind, digest); err != nil {
		st.logger.Warn("failed to write audit event", zap.Error(err))
	}
}

// inputMissing records an empty run and publishes the two zero counters.
func (p *Pipeline) inputMissing(ctx context.Context, st *runState, path string, publish bool) {
	st.summary.InputMissing = true
	st.logger.Warn("no input records, nothing to process", zap.String("path", path))
	if err := p.audit.LogInputMissing(ctx, st.summary.RunID, path); err != nil {
		st.logger.Warn("failed to write audit event", zap.Error(err))
	}
	if publish {
		st.summary.Counters = st.exporter.PublishCounters(ctx, exporter.ZeroCounters())
	}
}

// ─── Stages ──────────────────────────────────────────────────────────────────

// Encode reads the raw log and writes the feature table and vocabulary.
// Missing input writes an empty table so a later detect sees no input.
func (p *Pipeline) Encode(ctx context.Context) (*models.RunSummary, error) {
	st := p.begin(ctx, StageEncode)
	err := p.encodeStage(ctx, st)
	p.finish(ctx, st, err)
	return st.summary, err
}

func (p *Pipeline) encodeStage(ctx context.Context, st *runState) error {
	events, err := p.ingest(ctx, st)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if len(events) == 0 {
		p.inputMissing(ctx, st, p.cfg.Paths.RawLogs, false)
		if err := features.WriteTable(p.cfg.Paths.FeatureTable, &features.Matrix{}); err != nil {
			return fmt.Errorf("encode: %w", err)
		}
		return nil
	}
	if _, err := p.encode(ctx, st, events); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// Detect reads the feature table, trains the model, joins flagged rows back
// to the raw log and triages and exports them.
func (p *Pipeline) Detect(ctx context.Context) (*models.RunSummary, error) {
	st := p.begin(ctx, StageDetect)
	err := p.detectStage(ctx, st)
	p.finish(ctx, st, err)
	return st.summary, err
}

func (p *Pipeline) detectStage(ctx context.Context, st *runState) error {
	matrix, err := features.ReadTable(p.cfg.Paths.FeatureTable)
	if err != nil {
		if errors.Is(err, features.ErrMissingInput) {
			p.inputMissing(ctx, st, p.cfg.Paths.FeatureTable, true)
			return nil
		}
		var tableErr *features.TableError
		if errors.As(err, &tableErr) {
			return fmt.Errorf("detect: %w", &ml.TrainingDataError{Reason: tableErr.Error()})
		}
		return fmt.Errorf("detect: %w", err)
	}

	events, err := p.ingest(ctx, st)
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}
	return p.detect(ctx, st, matrix, events)
}

// Run executes encode and detect in one process.
func (p *Pipeline) Run(ctx context.Context) (*models.RunSummary, error) {
	st := p.begin(ctx, StageRun)
	err := p.runStage(ctx, st)
	p.finish(ctx, st, err)
	return st.summary, err
}

func (p *Pipeline) runStage(ctx context.Context, st *runState) error {
	events, err := p.ingest(ctx, st)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if len(events) == 0 {
		p.inputMissing(ctx, st, p.cfg.Paths.RawLogs, true)
		return nil
	}

	matrix, err := p.encode(ctx, st, events)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	return p.detect(ctx, st, matrix, events)
}

// ─── Steps ───────────────────────────────────────────────────────────────────

// ingest reads the raw log. A missing or empty log yields no events.
func (p *Pipeline) ingest(ctx context.Context, st *runState) ([]models.RawEvent, error) {
	_, span := tracing.StartSpan(ctx, tracing.SpanIngest, st.summary.RunID)
	defer span.End()
	defer st.metrics.ObserveStage(tracing.SpanIngest, time.Now())

	res, err := ingest.ReadFile(p.cfg.Paths.RawLogs, st.logger)
	if err != nil {
		if errors.Is(err, ingest.ErrMissingInput) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, err
	}
	st.summary.SkippedRecords = res.Skipped
	if res.Skipped > 0 {
		st.logger.Warn("skipped malformed records", zap.Int("skipped", res.Skipped))
	}
	span.SetAttributes(attribute.Int("records", len(res.Events)), attribute.Int("skipped", res.Skipped))
	return res.Events, nil
}

// encode builds the matrix and persists the feature table and vocabulary.
func (p *Pipeline) encode(ctx context.Context, st *runState, events []models.RawEvent) (*features.Matrix, error) {
	ctx, span := tracing.StartSpan(ctx, tracing.SpanEncode, st.summary.RunID)
	defer span.End()
	defer st.metrics.ObserveStage(tracing.SpanEncode, time.Now())

	enc := features.NewEncoder(p.cfg.Detection.CategoricalFields, st.logger)
	matrix, vocab := enc.Encode(events)
	vocab.RunID = st.summary.RunID
	vocab.GeneratedAt = p.now().UTC()
	span.SetAttributes(attribute.Int("rows", matrix.Len()), attribute.Int("columns", len(matrix.Columns)))

	if err := features.WriteTable(p.cfg.Paths.FeatureTable, matrix); err != nil {
		return nil, err
	}
	p.artifactWritten(ctx, st, p.cfg.Paths.FeatureTable, db.ArtifactFeatureTable, "")

	digest, err := features.WriteVocabulary(p.cfg.Paths.Vocabulary, vocab)
	if err != nil {
		return nil, err
	}
	st.summary.VocabularyDigest = digest
	p.artifactWritten(ctx, st, p.cfg.Paths.Vocabulary, db.ArtifactVocabulary, digest)

	st.logger.Info("encoded features",
		zap.Int("rows", matrix.Len()),
		zap.Strings("columns", matrix.Columns),
	)
	return matrix, nil
}

// detect trains on matrix, flags outliers and triages and exports them.
// events must contain every line the matrix references.
func (p *Pipeline) detect(ctx context.Context, st *runState, matrix *features.Matrix, events []models.RawEvent) error {
	byLine := make(map[int]models.RawEvent, len(events))
	for _, ev := range events {
		byLine[ev.Line] = ev
	}
	for _, line := range matrix.Lines {
		if _, ok := byLine[line]; !ok {
			return fmt.Errorf("detect: feature row references line %d not found in raw log", line)
		}
	}

	forest, err := p.train(ctx, st, matrix)
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}

	verdicts, err := p.predict(ctx, st, forest, matrix)
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}

	var flagged []models.RawEvent
	var scores []float64
	for i, v := range verdicts {
		if !v.Outlier {
			continue
		}
		flagged = append(flagged, byLine[matrix.Lines[i]])
		scores = append(scores, v.Score)
	}

	s := st.summary
	s.TotalRecords = matrix.Len()
	s.AnomalyCount = len(flagged)
	s.NormalCount = s.TotalRecords - s.AnomalyCount
	st.logger.Info("detection finished",
		zap.Int("records_processed", s.TotalRecords),
		zap.Int("anomalies_detected", s.AnomalyCount),
		zap.Int("normal_events", s.NormalCount),
	)

	records := p.triage(ctx, st, flagged)
	for i := range records {
		records[i].AnomalyScore = scores[i]
	}

	p.export(ctx, st, records)
	return nil
}

func (p *Pipeline) train(ctx context.Context, st *runState, matrix *features.Matrix) (*ml.IsolationForest, error) {
	ctx, span := tracing.StartSpan(ctx, tracing.SpanTrain, st.summary.RunID,
		attribute.Int("rows", matrix.Len()),
		attribute.Int64("seed", p.cfg.Detection.Seed),
	)
	defer span.End()
	defer st.metrics.ObserveStage(tracing.SpanTrain, time.Now())

	forest := ml.NewIsolationForest(ml.Options{
		NumTrees:      p.cfg.Detection.NumTrees,
		SampleSize:    p.cfg.Detection.SampleSize,
		Contamination: p.cfg.Detection.Contamination,
		Seed:          p.cfg.Detection.Seed,
	})
	if err := forest.Fit(matrix.Columns, matrix.Rows); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := forest.Save(p.cfg.Paths.Model); err != nil {
		return nil, err
	}
	digest, err := forest.Digest()
	if err != nil {
		return nil, err
	}
	st.summary.ModelDigest = digest
	p.artifactWritten(ctx, st, p.cfg.Paths.Model, db.ArtifactModel, digest)

	st.logger.Info("model trained",
		zap.Int("trees", forest.NumTrees()),
		zap.Float64("offset", forest.Offset()),
	)
	return forest, nil
}

func (p *Pipeline) predict(ctx context.Context, st *runState, forest *ml.IsolationForest, matrix *features.Matrix) ([]ml.Verdict, error) {
	_, span := tracing.StartSpan(ctx, tracing.SpanPredict, st.summary.RunID)
	defer span.End()
	defer st.metrics.ObserveStage(tracing.SpanPredict, time.Now())

	verdicts, err := forest.Predict(matrix.Rows)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return verdicts, nil
}

func (p *Pipeline) triage(ctx context.Context, st *runState, flagged []models.RawEvent) []models.TriageRecord {
	_, span := tracing.StartSpan(ctx, tracing.SpanTriage, st.summary.RunID, attribute.Int("anomalies", len(flagged)))
	defer span.End()
	defer st.metrics.ObserveStage(tracing.SpanTriage, time.Now())

	t := triage.NewTriager(scoring.NewScorer(scoring.PolicyFromConfig(p.cfg)), response.NewSimulator(), st.logger)
	res := t.Triage(flagged)
	for level, n := range res.BySeverity {
		st.summary.BySeverity[level] = n
	}
	return res.Records
}

// export publishes the run counters and the triaged anomalies. Sink failures
// only show up in the reports.
func (p *Pipeline) export(ctx context.Context, st *runState, records []models.TriageRecord) {
	ctx, span := tracing.StartSpan(ctx, tracing.SpanExport, st.summary.RunID)
	defer span.End()
	defer st.metrics.ObserveStage(tracing.SpanExport, time.Now())

	s := st.summary
	s.Counters = st.exporter.PublishCounters(ctx, exporter.RunCounters(s.TotalRecords, s.AnomalyCount, s.NormalCount))
	s.Anomalies = st.exporter.ExportAnomalies(ctx, records)
	span.SetAttributes(
		attribute.Int("written", s.Counters.Written+s.Anomalies.Written),
		attribute.Int("dropped", s.Counters.Dropped+s.Anomalies.Dropped),
	)
}
