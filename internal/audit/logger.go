package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Ashutosh6828/CloudSentry-AI/internal/config"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/logging"
)

// Logger defines the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// Run lifecycle events
	LogRunStarted(ctx context.Context, runID, stage string) error
	LogRunCompleted(ctx context.Context, runID, stage string, duration time.Duration, counts map[string]int) error
	LogRunFailed(ctx context.Context, runID, stage string, err error) error

	// LogArtifactWritten records a persisted artifact and its digest
	LogArtifactWritten(ctx context.Context, runID, path, kind, digest string) error

	// LogInputMissing records a run that found no input records
	LogInputMissing(ctx context.Context, runID, path string) error

	// Sync flushes buffered log entries
	Sync() error

	// Close closes the audit logger
	Close() error
}

// Config represents audit logger configuration
type Config struct {
	// AuditLogPath is the path to the audit log file
	AuditLogPath string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "logs/audit.log",
		MaxSize:      100, // megabytes
		MaxBackups:   10,
		MaxAge:       30, // days
		Compress:     true,
	}
}

// ConfigFromRun maps the audit section of the run configuration.
func ConfigFromRun(cfg *config.Config) *Config {
	return &Config{
		AuditLogPath: cfg.Audit.Path,
		MaxSize:      cfg.Audit.MaxSizeMB,
		MaxBackups:   cfg.Audit.MaxBackups,
		MaxAge:       cfg.Audit.MaxAgeDays,
		Compress:     cfg.Audit.Compress,
	}
}

// auditLogger implements the Logger interface
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	rotator     *lumberjack.Logger
	mu          sync.Mutex
}

// NewLogger creates a new audit logger. Application-side failures (for example
// an event that cannot be marshalled) are reported on appLogger.
func NewLogger(cfg *Config, appLogger *zap.Logger) (Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.AuditLogPath == "" {
		return nil, fmt.Errorf("audit log path is required")
	}
	if appLogger == nil {
		appLogger = zap.NewNop()
	}

	// Audit log with rotation (always INFO level, append-only)
	rotator := &lumberjack.Logger{
		Filename:   cfg.AuditLogPath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	auditCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(logging.EncoderConfig()),
		zapcore.AddSync(rotator),
		zapcore.InfoLevel,
	)

	return &auditLogger{
		appLogger:   appLogger,
		auditLogger: zap.New(auditCore),
		rotator:     rotator,
	}, nil
}

// Log logs an audit event. Runs are short, so events are written through
// rather than buffered.
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	eventJSON, err := json.Marshal(event)
	if err != nil {
		l.appLogger.Error("failed to marshal audit event",
			zap.Error(err),
			zap.String("event_type", string(event.EventType)),
		)
		return fmt.Errorf("marshal audit event: %w", err)
	}

	l.auditLogger.Info(string(eventJSON),
		zap.String("run_id", event.RunID),
		zap.String("event_type", string(event.EventType)),
		zap.String("result", string(event.Result)),
	)
	return nil
}

// LogRunStarted logs when a run starts
func (l *auditLogger) LogRunStarted(ctx context.Context, runID, stage string) error {
	event := NewEvent(EventRunStarted).
		WithRunID(runID).
		WithStage(stage).
		WithResult(ResultSuccess).
		WithDescription(fmt.Sprintf("Run %s started (%s)", runID, stage))

	return l.Log(ctx, event)
}

// LogRunCompleted logs when a run completes
func (l *auditLogger) LogRunCompleted(ctx context.Context, runID, stage string, duration time.Duration, counts map[string]int) error {
	event := NewEvent(EventRunCompleted).
		WithRunID(runID).
		WithStage(stage).
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithDescription(fmt.Sprintf("Run %s completed (%s)", runID, stage))
	for k, v := range counts {
		event.WithMetadata(k, v)
	}

	return l.Log(ctx, event)
}

// LogRunFailed logs when a run fails
func (l *auditLogger) LogRunFailed(ctx context.Context, runID, stage string, err error) error {
	event := NewEvent(EventRunFailed).
		WithRunID(runID).
		WithStage(stage).
		WithError(err, "run_error").
		WithDescription(fmt.Sprintf("Run %s failed (%s)", runID, stage))

	return l.Log(ctx, event)
}

// LogArtifactWritten logs a persisted artifact
func (l *auditLogger) LogArtifactWritten(ctx context.Context, runID, path, kind, digest string) error {
	event := NewEvent(EventArtifactWritten).
		WithRunID(runID).
		WithArtifact(path, kind, digest).
		WithResult(ResultSuccess).
		WithDescription(fmt.Sprintf("%s artifact written to %s", kind, path))

	return l.Log(ctx, event)
}

// LogInputMissing logs a run that had nothing to process
func (l *auditLogger) LogInputMissing(ctx context.Context, runID, path string) error {
	event := NewEvent(EventInputMissing).
		WithRunID(runID).
		WithResult(ResultSkipped).
		WithMetadata("path", path).
		WithDescription(fmt.Sprintf("No input records at %s", path))

	return l.Log(ctx, event)
}

// Sync flushes buffered log entries
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.auditLogger.Sync()
}

// Close closes the audit logger
func (l *auditLogger) Close() error {
	if err := l.Sync(); err != nil {
		return err
	}
	return l.rotator.Close()
}

// nopLogger discards every event. Used when auditing is disabled.
type nopLogger struct{}

// NewNopLogger returns a Logger that records nothing.
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) Log(context.Context, *Event) error { return nil }
func (nopLogger) LogRunStarted(context.Context, string, string) error { return nil }
func (nopLogger) LogRunCompleted(context.Context, string, string, time.Duration, map[string]int) error {
	return nil
}
func (nopLogger) LogRunFailed(context.Context, string, string, error) error { return nil }
func (nopLogger) LogArtifactWritten(context.Context, string, string, string, string) error {
	return nil
}
func (nopLogger) LogInputMissing(context.Context, string, string) error { return nil }
func (nopLogger) Sync() error { return nil }
func (nopLogger) Close() error { return nil }
