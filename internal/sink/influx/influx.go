// Package influx implements the sink contract on InfluxDB v2.
package influx

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/Ashutosh6828/CloudSentry-AI/internal/config"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/sink"
)

// Config holds the connection settings. Token is never logged.
type Config struct {
	URL     string
	Token   string
	Org     string
	Bucket  string
	Timeout time.Duration
}

// ConfigFromRun maps the sink section of the run configuration.
func ConfigFromRun(cfg *config.Config) Config {
	return Config{
		URL:     cfg.Sink.URL,
		Token:   cfg.Sink.Token,
		Org:     cfg.Sink.Org,
		Bucket:  cfg.Sink.Bucket,
		Timeout: time.Duration(cfg.Sink.TimeoutSeconds) * time.Second,
	}
}

// Sink writes to one InfluxDB bucket.
type Sink struct {
	cfg Config
}

// New creates an InfluxDB sink.
func New(cfg Config) *Sink {
	return &Sink{cfg: cfg}
}

// Open creates a client scoped to the caller's export call.
func (s *Sink) Open(ctx context.Context) (sink.Writer, error) {
	if s.cfg.URL == "" {
		return nil, fmt.Errorf("influx: url is required")
	}
	if s.cfg.Org == "" || s.cfg.Bucket == "" {
		return nil, fmt.Errorf("influx: org and bucket are required")
	}

	opts := influxdb2.DefaultOptions()
	if s.cfg.Timeout > 0 {
		secs := uint(s.cfg.Timeout / time.Second)
		if secs == 0 {
			secs = 1
		}
		opts.SetHTTPRequestTimeout(secs)
	}

	client := influxdb2.NewClientWithOptions(s.cfg.URL, s.cfg.Token, opts)
	return &writer{
		client: client,
		api:    client.WriteAPIBlocking(s.cfg.Org, s.cfg.Bucket),
	}, nil
}

type writer struct {
	client influxdb2.Client
	api    api.WriteAPIBlocking
}

// WritePoint writes synchronously; the error of a failed write is returned
// to the caller as-is.
func (w *writer) WritePoint(ctx context.Context, p sink.Point) error {
	return w.api.WritePoint(ctx, influxdb2.NewPoint(p.Measurement, p.Tags, p.Fields, p.Time))
}

func (w *writer) Close() error {
	w.client.Close()
	return nil
}
