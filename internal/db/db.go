// Package db persists the run ledger: one row per pipeline run with its
// counts and artifact digests. The ledger is audit-only; triage never reads
// it back.
package db

import (
	"context"
	"time"

	"github.com/Ashutosh6828/CloudSentry-AI/internal/models"
)

// Run statuses.
const (
	RunStatusCompleted = "completed"
	RunStatusNoInput   = "no_input"
	RunStatusFailed    = "failed"
)

// Artifact kinds.
const (
	ArtifactModel        = "model"
	ArtifactVocabulary   = "vocabulary"
	ArtifactFeatureTable = "feature_table"
)

// Store is the ledger persistence interface.
type Store interface {
	RunStore
	ArtifactStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// ─── Runs ────────────────────────────────────────────────────────────────────

// RunRecord is one ledger row.
type RunRecord struct {
	ID               string    `json:"id"`
	Stage            string    `json:"stage"`
	Status           string    `json:"status"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
	TotalRecords     int       `json:"total_records"`
	AnomalyCount     int       `json:"anomaly_count"`
	NormalCount      int       `json:"normal_count"`
	HighCount        int       `json:"high_count"`
	MediumCount      int       `json:"medium_count"`
	LowCount         int       `json:"low_count"`
	SkippedRecords   int       `json:"skipped_records"`
	PointsWritten    int       `json:"points_written"`
	PointsDropped    int       `json:"points_dropped"`
	ModelDigest      string    `json:"model_digest"`
	VocabularyDigest string    `json:"vocabulary_digest"`
	Error            string    `json:"error"`
}

// RunStore records runs.
type RunStore interface {
	// SaveRun inserts or replaces the row for rec.ID.
	SaveRun(ctx context.Context, rec *RunRecord) error

	// GetRun returns sql.ErrNoRows when the run is unknown.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)
}

// RunRecordFromSummary builds the ledger row of a finished run. runErr, when
// non-nil, marks the run failed.
func RunRecordFromSummary(stage string, s *models.RunSummary, runErr error) *RunRecord {
	rec := &RunRecord{
		ID:               s.RunID,
		Stage:            stage,
		Status:           RunStatusCompleted,
		StartedAt:        s.StartedAt,
		EndedAt:          s.EndedAt,
		TotalRecords:     s.TotalRecords,
		AnomalyCount:     s.AnomalyCount,
		NormalCount:      s.NormalCount,
		HighCount:        s.BySeverity[models.SeverityHigh],
		MediumCount:      s.BySeverity[models.SeverityMedium],
		LowCount:         s.BySeverity[models.SeverityLow],
		SkippedRecords:   s.SkippedRecords,
		PointsWritten:    s.Counters.Written + s.Anomalies.Written,
		PointsDropped:    s.Counters.Dropped + s.Anomalies.Dropped,
		ModelDigest:      s.ModelDigest,
		VocabularyDigest: s.VocabularyDigest,
	}
	switch {
	case runErr != nil:
		rec.Status = RunStatusFailed
		rec.Error = runErr.Error()
	case s.InputMissing:
		rec.Status = RunStatusNoInput
	}
	return rec
}

// ─── Artifacts ───────────────────────────────────────────────────────────────

// ArtifactRecord is a file written by a run.
type ArtifactRecord struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Kind      string    `json:"kind"`
	Path      string    `json:"path"`
	Digest    string    `json:"digest"`
	WrittenAt time.Time `json:"written_at"`
}

// ArtifactStore records artifacts per run.
type ArtifactStore interface {
	AppendArtifact(ctx context.Context, rec *ArtifactRecord) error
	ListArtifacts(ctx context.Context, runID string) ([]*ArtifactRecord, error)
}
