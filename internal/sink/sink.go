// Package sink defines the write contract of the time-series monitoring sink.
//
// A Sink hands out short-lived Writers: every export call opens its own
// connection and closes it when done. Writes are synchronous and one point at
// a time, so a failed point can be dropped without affecting the others.
package sink

import (
	"context"
	"time"
)

// Measurements written by the exporter.
const (
	MeasurementPipelineMetrics = "pipeline_metrics"
	MeasurementAnomalyEvent    = "anomaly_event"
)

// Point is one time-series record.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]interface{}
	Time        time.Time
}

// Sink opens writers against a monitoring backend.
type Sink interface {
	Open(ctx context.Context) (Writer, error)
}

// Writer writes points over one connection.
type Writer interface {
	WritePoint(ctx context.Context, p Point) error
	Close() error
}
