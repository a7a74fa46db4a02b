// Package memory is an in-process sink used by tests and dry runs.
package memory

import (
	"context"

	"github.com/Ashutosh6828/CloudSentry-AI/internal/sink"
)

// Sink records every written point. Failures can be injected per open or
// per point.
type Sink struct {
	// OpenErr, when set, is returned by every Open call.
	OpenErr error

	// FailWrite, when set, is consulted before each point is recorded.
	FailWrite func(p sink.Point) error

	points []sink.Point
	opens  int
	closes int
}

// New creates an empty memory sink.
func New() *Sink {
	return &Sink{}
}

// Open returns a writer appending to the sink.
func (s *Sink) Open(ctx context.Context) (sink.Writer, error) {
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	s.opens++
	return &writer{s: s}, nil
}

// Points returns the recorded points in write order.
func (s *Sink) Points() []sink.Point {
	return append([]sink.Point(nil), s.points...)
}

// PointsFor returns the recorded points of one measurement.
func (s *Sink) PointsFor(measurement string) []sink.Point {
	var out []sink.Point
	for _, p := range s.points {
		if p.Measurement == measurement {
			out = append(out, p)
		}
	}
	return out
}

// Opens reports how many writers were opened.
func (s *Sink) Opens() int { return s.opens }

// Closes reports how many writers were closed.
func (s *Sink) Closes() int { return s.closes }

type writer struct {
	s *Sink
}

func (w *writer) WritePoint(ctx context.Context, p sink.Point) error {
	if w.s.FailWrite != nil {
		if err := w.s.FailWrite(p); err != nil {
			return err
		}
	}
	w.s.points = append(w.s.points, p)
	return nil
}

func (w *writer) Close() error {
	w.s.closes++
	return nil
}
