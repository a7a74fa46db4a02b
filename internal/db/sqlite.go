package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// migrations are applied in order. Version is tracked in the
// schema_versions table.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS runs (
    id                TEXT PRIMARY KEY,
    stage             TEXT NOT NULL DEFAULT 'run',
    status            TEXT NOT NULL DEFAULT 'completed',
    started_at        TEXT NOT NULL,
    ended_at          TEXT NOT NULL,
    total_records     INTEGER NOT NULL DEFAULT 0,
    anomaly_count     INTEGER NOT NULL DEFAULT 0,
    normal_count      INTEGER NOT NULL DEFAULT 0,
    high_count        INTEGER NOT NULL DEFAULT 0,
    medium_count      INTEGER NOT NULL DEFAULT 0,
    low_count         INTEGER NOT NULL DEFAULT 0,
    skipped_records   INTEGER NOT NULL DEFAULT 0,
    points_written    INTEGER NOT NULL DEFAULT 0,
    points_dropped    INTEGER NOT NULL DEFAULT 0,
    model_digest      TEXT NOT NULL DEFAULT '',
    vocabulary_digest TEXT NOT NULL DEFAULT '',
    error             TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`,
	},
	// Migration 2: per-run artifact rows
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS artifacts (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    kind       TEXT NOT NULL,
    path       TEXT NOT NULL,
    digest     TEXT NOT NULL DEFAULT '',
    written_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_artifacts_run ON artifacts(run_id);
`,
	},
}

type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the ledger at path and applies pending
// migrations. ":memory:" is accepted for tests.
func NewSQLiteStore(path string) (Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create ledger dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// One connection: a batch run has a single writer and ":memory:" is
	// per-connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Runs ────────────────────────────────────────────────────────────────────

const runColumns = `id,stage,status,started_at,ended_at,total_records,anomaly_count,normal_count,
high_count,medium_count,low_count,skipped_records,points_written,points_dropped,
model_digest,vocabulary_digest,error`

func (s *sqliteStore) SaveRun(ctx context.Context, rec *RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO runs(`+runColumns+`)
        VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
        ON CONFLICT(id) DO UPDATE SET
            stage=excluded.stage,
            status=excluded.status,
            ended_at=excluded.ended_at,
            total_records=excluded.total_records,
            anomaly_count=excluded.anomaly_count,
            normal_count=excluded.normal_count,
            high_count=excluded.high_count,
            medium_count=excluded.medium_count,
            low_count=excluded.low_count,
            skipped_records=excluded.skipped_records,
            points_written=excluded.points_written,
            points_dropped=excluded.points_dropped,
            model_digest=excluded.model_digest,
            vocabulary_digest=excluded.vocabulary_digest,
            error=excluded.error
    `,
		rec.ID, rec.Stage, rec.Status, formatTime(rec.StartedAt), formatTime(rec.EndedAt),
		rec.TotalRecords, rec.AnomalyCount, rec.NormalCount,
		rec.HighCount, rec.MediumCount, rec.LowCount, rec.SkippedRecords,
		rec.PointsWritten, rec.PointsDropped,
		rec.ModelDigest, rec.VocabularyDigest, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}
	return nil
}

func (s *sqliteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=?`, id)
	return scanRun(row)
}

func (s *sqliteStore) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	rec := &RunRecord{}
	var started, ended string
	if err := row.Scan(&rec.ID, &rec.Stage, &rec.Status, &started, &ended,
		&rec.TotalRecords, &rec.AnomalyCount, &rec.NormalCount,
		&rec.HighCount, &rec.MediumCount, &rec.LowCount, &rec.SkippedRecords,
		&rec.PointsWritten, &rec.PointsDropped,
		&rec.ModelDigest, &rec.VocabularyDigest, &rec.Error); err != nil {
		return nil, err
	}
	rec.StartedAt, _ = parseTime(started)
	rec.EndedAt, _ = parseTime(ended)
	return rec, nil
}

// ─── Artifacts ───────────────────────────────────────────────────────────────

func (s *sqliteStore) AppendArtifact(ctx context.Context, rec *ArtifactRecord) error {
	result, err := s.db.ExecContext(ctx, `
        INSERT INTO artifacts(run_id, kind, path, digest, written_at)
        VALUES(?,?,?,?,?)
    `,
		rec.RunID, rec.Kind, rec.Path, rec.Digest, formatTime(rec.WrittenAt),
	)
	if err != nil {
		return fmt.Errorf("append artifact %s: %w", rec.Path, err)
	}
	id, _ := result.LastInsertId()
	rec.ID = id
	return nil
}

func (s *sqliteStore) ListArtifacts(ctx context.Context, runID string) ([]*ArtifactRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,run_id,kind,path,digest,written_at FROM artifacts WHERE run_id=? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*ArtifactRecord
	for rows.Next() {
		rec := &ArtifactRecord{}
		var ts string
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Kind, &rec.Path, &rec.Digest, &ts); err != nil {
			return nil, err
		}
		rec.WrittenAt, _ = parseTime(ts)
		result = append(result, rec)
	}
	return result, rows.Err()
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime handles the layouts the ledger and SQLite defaults produce.
func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
