package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Ashutosh6828/CloudSentry-AI/internal/config"
)

func newTestLogger(t *testing.T) (Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.log")
	logger, err := NewLogger(&Config{AuditLogPath: path, MaxSize: 10, MaxBackups: 1, MaxAge: 1}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return logger, path
}

// readEvents decodes the event JSON embedded as the message of each audit entry.
func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry struct {
			Message string `json:"message"`
			RunID   string `json:"run_id"`
		}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))

		var ev Event
		require.NoError(t, json.Unmarshal([]byte(entry.Message), &ev))
		assert.Equal(t, ev.RunID, entry.RunID)
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestNewLoggerRequiresPath(t *testing.T) {
	_, err := NewLogger(&Config{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit log path is required")
}

func TestRunLifecycle(t *testing.T) {
	logger, path := newTestLogger(t)
	ctx := context.Background()

	require.NoError(t, logger.LogRunStarted(ctx, "run-1", "run"))
	require.NoError(t, logger.LogArtifactWritten(ctx, "run-1", "data/model.json", "model", "abc123"))
	require.NoError(t, logger.LogRunCompleted(ctx, "run-1", "run", 1500*time.Millisecond, map[string]int{"anomalies": 2}))
	require.NoError(t, logger.Close())

	events := readEvents(t, path)
	require.Len(t, events, 3)

	assert.Equal(t, EventRunStarted, events[0].EventType)
	assert.Equal(t, "run", events[0].Stage)

	assert.Equal(t, EventArtifactWritten, events[1].EventType)
	assert.Equal(t, "data/model.json", events[1].Artifact)
	assert.Equal(t, "model", events[1].ArtifactKind)
	assert.Equal(t, "abc123", events[1].Digest)

	assert.Equal(t, EventRunCompleted, events[2].EventType)
	assert.Equal(t, int64(1500), events[2].DurationMs)
	assert.Equal(t, float64(2), events[2].Metadata["anomalies"])

	for _, ev := range events {
		assert.Equal(t, "run-1", ev.RunID)
		assert.Equal(t, ResultSuccess, ev.Result)
	}
}

func TestRunFailedAndInputMissing(t *testing.T) {
	logger, path := newTestLogger(t)
	ctx := context.Background()

	require.NoError(t, logger.LogInputMissing(ctx, "run-2", "data/raw_logs.jsonl"))
	require.NoError(t, logger.LogRunFailed(ctx, "run-2", "detect", errors.New("training data invalid")))
	require.NoError(t, logger.Close())

	events := readEvents(t, path)
	require.Len(t, events, 2)

	assert.Equal(t, EventInputMissing, events[0].EventType)
	assert.Equal(t, ResultSkipped, events[0].Result)
	assert.Equal(t, "data/raw_logs.jsonl", events[0].Metadata["path"])

	assert.Equal(t, EventRunFailed, events[1].EventType)
	assert.Equal(t, ResultFailure, events[1].Result)
	assert.Equal(t, "training data invalid", events[1].Error)
	assert.Equal(t, "run_error", events[1].ErrorCode)
}

func TestEventBuilder(t *testing.T) {
	ev := NewEvent(EventArtifactWritten)
	assert.Equal(t, ResultPending, ev.Result)
	assert.False(t, ev.Timestamp.IsZero())

	ev.WithError(nil, "ignored")
	assert.Equal(t, ResultPending, ev.Result, "nil error must not mark failure")
	assert.Empty(t, ev.ErrorCode)
}

func TestConfigFromRun(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Audit.Path = "/var/log/cloudsentry/audit.log"

	ac := ConfigFromRun(cfg)
	assert.Equal(t, "/var/log/cloudsentry/audit.log", ac.AuditLogPath)
	assert.Equal(t, 100, ac.MaxSize)
	assert.Equal(t, 10, ac.MaxBackups)
	assert.Equal(t, 30, ac.MaxAge)
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	ctx := context.Background()
	assert.NoError(t, logger.LogRunStarted(ctx, "x", "run"))
	assert.NoError(t, logger.LogRunFailed(ctx, "x", "run", errors.New("boom")))
	assert.NoError(t, logger.Close())
}
