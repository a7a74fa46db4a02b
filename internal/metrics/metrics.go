package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/Ashutosh6828/CloudSentry-AI/internal/models"
)

// RunMetrics are the Prometheus metrics of a single batch run. Each run owns
// its registry so repeated runs in one process never collide.
type RunMetrics struct {
	registry *prometheus.Registry

	// Run totals
	RecordsProcessed  prometheus.Gauge
	AnomaliesDetected prometheus.Gauge
	NormalEvents      prometheus.Gauge

	// Triage metrics
	AnomaliesBySeverity *prometheus.CounterVec

	// Export metrics
	SinkWriteFailures *prometheus.CounterVec

	// Stage metrics
	StageDuration *prometheus.HistogramVec
}

// New registers the run metrics on a fresh registry.
func New() *RunMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &RunMetrics{
		registry: reg,

		RecordsProcessed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cloudsentry_records_processed",
			Help: "Feature rows scored in the last run",
		}),
		AnomaliesDetected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cloudsentry_anomalies_detected",
			Help: "Rows flagged as outliers in the last run",
		}),
		NormalEvents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cloudsentry_normal_events",
			Help: "Rows scored as inliers in the last run",
		}),

		AnomaliesBySeverity: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudsentry_anomalies_total",
				Help: "Triaged anomalies by severity level",
			},
			[]string{"severity"},
		),

		SinkWriteFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudsentry_sink_write_failures_total",
				Help: "Points dropped because the sink write failed",
			},
			[]string{"measurement"},
		),

		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cloudsentry_stage_duration_seconds",
				Help:    "Pipeline stage duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
			},
			[]string{"stage"},
		),
	}
}

// Registry exposes the run registry for gathering.
func (m *RunMetrics) Registry() *prometheus.Registry { return m.registry }

// ObserveStage records the time elapsed since start for stage.
func (m *RunMetrics) ObserveStage(stage string, start time.Time) {
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// SinkWriteFailed counts one dropped point.
func (m *RunMetrics) SinkWriteFailed(measurement string) {
	m.SinkWriteFailures.WithLabelValues(measurement).Inc()
}

// RecordSummary copies the run totals into the gauges and severity counters.
func (m *RunMetrics) RecordSummary(s *models.RunSummary) {
	m.RecordsProcessed.Set(float64(s.TotalRecords))
	m.AnomaliesDetected.Set(float64(s.AnomalyCount))
	m.NormalEvents.Set(float64(s.NormalCount))
	for _, level := range models.SeverityLevels() {
		m.AnomaliesBySeverity.WithLabelValues(string(level)).Add(float64(s.BySeverity[level]))
	}
}

// Push sends the run registry to a Pushgateway, replacing the job's group.
func (m *RunMetrics) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
