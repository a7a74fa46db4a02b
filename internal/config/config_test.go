package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Test sink defaults
	assert.Equal(t, "http://localhost:8086", cfg.Sink.URL)
	assert.Equal(t, "myorg", cfg.Sink.Org)
	assert.Equal(t, "cloudtrail_logs", cfg.Sink.Bucket)
	assert.Empty(t, cfg.Sink.Token)

	// Test detection defaults
	assert.Equal(t, 0.01, cfg.Detection.Contamination)
	assert.Equal(t, int64(42), cfg.Detection.Seed)
	assert.Equal(t, 100, cfg.Detection.NumTrees)
	assert.Equal(t, 256, cfg.Detection.SampleSize)
	assert.Equal(t, DefaultCategoricalFields, cfg.Detection.CategoricalFields)

	// Test triage defaults
	assert.ElementsMatch(t, []string{"signin.amazonaws.com", "iam.amazonaws.com"}, cfg.Triage.IdentityServices)
	assert.ElementsMatch(t, []string{"DeleteBucket", "StopInstances", "CreateUser", "DeleteTrail"}, cfg.Triage.HighImpactEvents)
	assert.Equal(t, 6, cfg.Triage.OffHoursStart)
	assert.Equal(t, 22, cfg.Triage.OffHoursEnd)
	assert.Equal(t, 4, cfg.Triage.MediumThreshold)
	assert.Equal(t, 7, cfg.Triage.HighThreshold)

	// Test logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Defaults must be valid on their own
	assert.Empty(t, cfg.Validate())
}

func TestDefaultConfigDoesNotShareSlices(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Detection.CategoricalFields[0] = "mutated"
	cfg.Triage.IdentityServices[0] = "mutated"

	assert.Equal(t, "eventName", DefaultCategoricalFields[0])
	assert.Equal(t, "signin.amazonaws.com", DefaultIdentityServices[0])
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		modifyFn  func(*Config)
		wantError bool
		errorMsg  string
	}{
		{
			name:      "valid default config",
			modifyFn:  func(cfg *Config) {},
			wantError: false,
		},
		{
			name:      "contamination zero",
			modifyFn:  func(cfg *Config) { cfg.Detection.Contamination = 0 },
			wantError: true,
			errorMsg:  "contamination must be in (0, 0.5]",
		},
		{
			name:      "contamination above half",
			modifyFn:  func(cfg *Config) { cfg.Detection.Contamination = 0.6 },
			wantError: true,
			errorMsg:  "contamination must be in (0, 0.5]",
		},
		{
			name:      "contamination at upper bound",
			modifyFn:  func(cfg *Config) { cfg.Detection.Contamination = 0.5 },
			wantError: false,
		},
		{
			name:      "no trees",
			modifyFn:  func(cfg *Config) { cfg.Detection.NumTrees = 0 },
			wantError: true,
			errorMsg:  "num_trees must be positive",
		},
		{
			name:      "sample size too small",
			modifyFn:  func(cfg *Config) { cfg.Detection.SampleSize = 1 },
			wantError: true,
			errorMsg:  "sample_size must be at least 2",
		},
		{
			name:      "no categorical fields",
			modifyFn:  func(cfg *Config) { cfg.Detection.CategoricalFields = nil },
			wantError: true,
			errorMsg:  "at least one categorical field",
		},
		{
			name: "thresholds out of order",
			modifyFn: func(cfg *Config) {
				cfg.Triage.MediumThreshold = 7
				cfg.Triage.HighThreshold = 7
			},
			wantError: true,
			errorMsg:  "must be greater than medium threshold",
		},
		{
			name:      "off-hours start out of range",
			modifyFn:  func(cfg *Config) { cfg.Triage.OffHoursStart = 24 },
			wantError: true,
			errorMsg:  "hour must be between 0 and 23",
		},
		{
			name:      "off-hours end negative",
			modifyFn:  func(cfg *Config) { cfg.Triage.OffHoursEnd = -1 },
			wantError: true,
			errorMsg:  "hour must be between 0 and 23",
		},
		{
			name:      "missing sink url",
			modifyFn:  func(cfg *Config) { cfg.Sink.URL = "" },
			wantError: true,
			errorMsg:  "sink url is required",
		},
		{
			name:      "sink url without scheme",
			modifyFn:  func(cfg *Config) { cfg.Sink.URL = "localhost:8086" },
			wantError: true,
			errorMsg:  "invalid url",
		},
		{
			name:      "missing bucket",
			modifyFn:  func(cfg *Config) { cfg.Sink.Bucket = "" },
			wantError: true,
			errorMsg:  "sink bucket is required",
		},
		{
			name:      "missing model path",
			modifyFn:  func(cfg *Config) { cfg.Paths.Model = " " },
			wantError: true,
			errorMsg:  "paths.model",
		},
		{
			name:      "invalid log level",
			modifyFn:  func(cfg *Config) { cfg.Logging.Level = "verbose" },
			wantError: true,
			errorMsg:  "invalid log level",
		},
		{
			name:      "invalid log format",
			modifyFn:  func(cfg *Config) { cfg.Logging.Format = "text" },
			wantError: true,
			errorMsg:  "invalid log format",
		},
		{
			name: "audit enabled without path",
			modifyFn: func(cfg *Config) {
				cfg.Audit.Enabled = true
				cfg.Audit.Path = ""
			},
			wantError: true,
			errorMsg:  "audit path is required",
		},
		{
			name: "ledger disabled without path",
			modifyFn: func(cfg *Config) {
				cfg.Ledger.Enabled = false
				cfg.Ledger.Path = ""
			},
			wantError: false,
		},
		{
			name: "pushgateway without job",
			modifyFn: func(cfg *Config) {
				cfg.Metrics.PushgatewayURL = "http://localhost:9091"
				cfg.Metrics.Job = ""
			},
			wantError: true,
			errorMsg:  "job name is required",
		},
		{
			name:      "sampling rate above one",
			modifyFn:  func(cfg *Config) { cfg.Tracing.SamplingRate = 1.5 },
			wantError: true,
			errorMsg:  "sampling rate must be between 0 and 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modifyFn(cfg)

			errs := cfg.Validate()

			if tt.wantError {
				require.NotEmpty(t, errs, "expected validation errors but got none")
				found := false
				for _, err := range errs {
					if strings.Contains(err.Error(), tt.errorMsg) {
						found = true
						break
					}
				}
				assert.True(t, found, "expected error message containing '%s', got: %v", tt.errorMsg, errs)
			} else {
				assert.Empty(t, errs, "expected no validation errors but got: %v", errs)
			}
		})
	}
}

func TestConfigManagerLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
sink:
  url: "http://influx:8086"
  org: "secops"
  bucket: "audit"

paths:
  raw_logs: "/data/in.jsonl"

detection:
  contamination: 0.05
  seed: 7
  categorical_fields:
    - eventName
    - eventSource

triage:
  off_hours_start: 5
  high_impact_events:
    - DeleteTrail

logging:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	require.NotNil(t, cfg)

	assert.Equal(t, "http://influx:8086", cfg.Sink.URL)
	assert.Equal(t, "secops", cfg.Sink.Org)
	assert.Equal(t, "audit", cfg.Sink.Bucket)
	assert.Equal(t, "/data/in.jsonl", cfg.Paths.RawLogs)
	assert.Equal(t, 0.05, cfg.Detection.Contamination)
	assert.Equal(t, int64(7), cfg.Detection.Seed)
	assert.Equal(t, []string{"eventName", "eventSource"}, cfg.Detection.CategoricalFields)
	assert.Equal(t, 5, cfg.Triage.OffHoursStart)
	assert.Equal(t, []string{"DeleteTrail"}, cfg.Triage.HighImpactEvents)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)

	// Untouched keys keep their defaults
	assert.Equal(t, 22, cfg.Triage.OffHoursEnd)
	assert.Equal(t, 100, cfg.Detection.NumTrees)
	assert.Equal(t, "data/anomaly_model.json", cfg.Paths.Model)

	assert.NoError(t, mgr.Validate(ctx))
}

func TestConfigManagerEnvironmentOverrides(t *testing.T) {
	t.Setenv("CLOUDSENTRY_SINK_BUCKET", "env-bucket")
	t.Setenv("CLOUDSENTRY_DETECTION_SEED", "99")
	t.Setenv("INFLUX_TOKEN", "influx-token")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := `
sink:
  bucket: "file-bucket"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	assert.Equal(t, "env-bucket", cfg.Sink.Bucket, "bucket should be overridden by environment variable")
	assert.Equal(t, int64(99), cfg.Detection.Seed)
	assert.Equal(t, "influx-token", cfg.Sink.Token)
}

func TestConfigManagerPrefixedTokenWins(t *testing.T) {
	t.Setenv("INFLUX_TOKEN", "influx-token")
	t.Setenv("CLOUDSENTRY_SINK_TOKEN", "prefixed-token")

	mgr, err := NewConfigManager(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))
	assert.Equal(t, "prefixed-token", mgr.Get(ctx).Sink.Token)
}

func TestConfigManagerMissingFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nonexistent-config.yaml")

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	// Should not error - should use defaults
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	require.NotNil(t, cfg)
	assert.Equal(t, 0.01, cfg.Detection.Contamination)
	assert.Equal(t, 7, cfg.Triage.HighThreshold)
}

func TestConfigManagerMalformedFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("sink: [unterminated"), 0644))

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	err = mgr.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestConfigManagerValidation(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	configContent := `
detection:
  contamination: 0.9
triage:
  medium_threshold: 8
  high_threshold: 7
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	err = mgr.Validate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
	assert.Contains(t, err.Error(), "detection.contamination")
	assert.Contains(t, err.Error(), "triage.high_threshold")
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Field: "sink.url", Message: "sink url is required"}
	assert.Equal(t, "config validation failed for sink.url: sink url is required", err.Error())
}
