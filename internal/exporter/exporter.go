// Package exporter publishes run counters and triaged anomalies to the
// monitoring sink.
//
// Export is best-effort: a point that fails to write is logged and dropped,
// the rest of the batch continues, and nothing is retried. Export never
// returns an error to the pipeline; callers read the Report instead.
package exporter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Ashutosh6828/CloudSentry-AI/internal/models"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/sink"
)

// Counter field names in the pipeline_metrics measurement.
const (
	FieldRecordsProcessed  = "records_processed"
	FieldAnomaliesDetected = "anomalies_detected"
	FieldNormalEvents      = "normal_events"
)

// Defaults for missing anomaly attributes.
const (
	UnknownTag     = "Unknown"
	UnavailableIP  = "N/A"
	anomalyFlagSet = 1
)

// Report counts written and dropped points.
type Report = models.ExportReport

// SinkWriteError describes a point that could not be written.
type SinkWriteError struct {
	Measurement string
	Err         error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("sink write %s: %v", e.Measurement, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }

// Counter is one pipeline_metrics field.
type Counter struct {
	Field string
	Value int
}

// RunCounters are the counters of a run that processed input.
func RunCounters(total, anomalies, normal int) []Counter {
	return []Counter{
		{Field: FieldRecordsProcessed, Value: total},
		{Field: FieldAnomaliesDetected, Value: anomalies},
		{Field: FieldNormalEvents, Value: normal},
	}
}

// ZeroCounters are published when there was nothing to process.
func ZeroCounters() []Counter {
	return []Counter{
		{Field: FieldAnomaliesDetected, Value: 0},
		{Field: FieldNormalEvents, Value: 0},
	}
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithClock overrides the publish timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// WithDropHook is called once per dropped point with its measurement.
func WithDropHook(hook func(measurement string)) Option {
	return func(e *Exporter) { e.onDrop = hook }
}

// Exporter writes to a sink.
type Exporter struct {
	sink   sink.Sink
	logger *zap.Logger
	now    func() time.Time
	onDrop func(measurement string)
}

// New creates an exporter.
func New(s sink.Sink, logger *zap.Logger, opts ...Option) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Exporter{
		sink:   s,
		logger: logger,
		now:    time.Now,
		onDrop: func(string) {},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PublishCounters writes each counter as its own export call.
func (e *Exporter) PublishCounters(ctx context.Context, counters []Counter) Report {
	var report Report
	for _, c := range counters {
		p := sink.Point{
			Measurement: sink.MeasurementPipelineMetrics,
			Fields:      map[string]interface{}{c.Field: c.Value},
			Time:        e.now(),
		}
		r := e.export(ctx, sink.MeasurementPipelineMetrics, []sink.Point{p})
		if r.Written == 1 {
			e.logger.Info("published metric", zap.String("field", c.Field), zap.Int("value", c.Value))
		}
		report.Add(r)
	}
	return report
}

// ExportAnomalies writes one anomaly_event point per record over a single
// connection, stamped with the source event time.
func (e *Exporter) ExportAnomalies(ctx context.Context, records []models.TriageRecord) Report {
	if len(records) == 0 {
		return Report{}
	}
	points := make([]sink.Point, len(records))
	for i, rec := range records {
		points[i] = AnomalyPoint(rec)
	}

	e.logger.Info("exporting anomalies", zap.Int("count", len(points)))
	report := e.export(ctx, sink.MeasurementAnomalyEvent, points)
	e.logger.Info("anomaly export finished",
		zap.Int("written", report.Written),
		zap.Int("dropped", report.Dropped),
	)
	return report
}

// AnomalyPoint builds the anomaly_event point of a triaged record.
func AnomalyPoint(rec models.TriageRecord) sink.Point {
	return sink.Point{
		Measurement: sink.MeasurementAnomalyEvent,
		Tags: map[string]string{
			"eventSource": orDefault(rec.Event.EventSource, UnknownTag),
			"eventName":   orDefault(rec.Event.EventName, UnknownTag),
			"awsRegion":   orDefault(rec.Event.AWSRegion, UnknownTag),
			"severity":    orDefault(string(rec.SeverityLevel), UnknownTag),
		},
		Fields: map[string]interface{}{
			"sourceIPAddress":    orDefault(rec.Event.SourceIPAddress, UnavailableIP),
			"is_anomaly":         anomalyFlagSet,
			"severity_score":     rec.SeverityScore,
			"anomaly_score":      rec.AnomalyScore,
			"containment_action": rec.ContainmentAction,
			"containment_tag":    rec.ContainmentTag,
			"eradication_action": rec.EradicationAction,
			"recovery_action":    rec.RecoveryAction,
		},
		Time: rec.Event.EventTime,
	}
}

// export opens one connection for points and writes them in order.
func (e *Exporter) export(ctx context.Context, measurement string, points []sink.Point) Report {
	var report Report

	w, err := e.sink.Open(ctx)
	if err != nil {
		e.logger.Error("sink unavailable, dropping points",
			zap.Error(&SinkWriteError{Measurement: measurement, Err: err}),
			zap.Int("dropped", len(points)),
		)
		for range points {
			e.onDrop(measurement)
		}
		report.Dropped = len(points)
		return report
	}
	defer func() {
		if err := w.Close(); err != nil {
			e.logger.Warn("failed to close sink writer", zap.Error(err))
		}
	}()

	for _, p := range points {
		if err := w.WritePoint(ctx, p); err != nil {
			e.logger.Error("failed to write point",
				zap.Error(&SinkWriteError{Measurement: measurement, Err: err}),
				zap.Time("point_time", p.Time),
			)
			e.onDrop(measurement)
			report.Dropped++
			continue
		}
		report.Written++
	}
	return report
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
