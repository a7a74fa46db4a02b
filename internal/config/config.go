package config

import "context"

// Package config provides configuration management for cloudsentry.
//
// Responsibilities:
//   - Load configuration from a YAML file, environment variables, and CLI flags
//   - Validate configuration before a run starts
//   - Provide every component with an explicit, injected configuration
//   - Keep sink credentials out of logs
//
// Configuration Sources (priority order, high to low):
//   1. CLI flags (highest priority)
//   2. Environment variables (CLOUDSENTRY_* prefix, "." replaced by "_")
//   3. YAML config file (default: config.yaml, optional)
//   4. Built-in defaults (lowest priority)
//
// Main Configuration Sections:
//
//   1. Sink
//      - url, token, org, bucket: InfluxDB v2 time-series sink
//      - timeout_seconds: per-request HTTP timeout
//
//   2. Paths
//      - raw_logs: NDJSON audit events produced by the retrieval job
//      - feature_table: CSV written by encode, read by detect
//      - model: trained model artifact (overwritten each run)
//      - vocabulary: fitted categorical vocabulary (informational)
//
//   3. Detection
//      - contamination: expected outlier fraction (default 0.01)
//      - seed: random seed for the forest (default 42)
//      - num_trees, sample_size: forest shape
//      - categorical_fields: raw fields encoded as *_code columns
//
//   4. Triage
//      - identity_services, high_impact_events: rule sets
//      - off_hours_start, off_hours_end: hour < start or hour > end is off-hours
//      - medium_threshold, high_threshold: severity band boundaries
//
//   5. Logging / Audit / Ledger / Metrics / Tracing
//      - ambient outputs; all optional except stderr logging

// Config struct contains all configuration fields
type Config struct {
	// Sink configuration
	Sink struct {
		URL            string
		Token          string
		Org            string
		Bucket         string
		TimeoutSeconds int
	}

	// Artifact and input paths
	Paths struct {
		RawLogs      string
		FeatureTable string
		Model        string
		Vocabulary   string
	}

	// Detection configuration
	Detection struct {
		Contamination     float64
		Seed              int64
		NumTrees          int
		SampleSize        int
		CategoricalFields []string
	}

	// Triage policy
	Triage struct {
		IdentityServices []string
		HighImpactEvents []string
		OffHoursStart    int
		OffHoursEnd      int
		MediumThreshold  int
		HighThreshold    int
	}

	// Logging configuration
	Logging struct {
		Level      string
		Format     string // "json" | "console"
		File       string // optional rotating file, in addition to stderr
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
		Compress   bool
	}

	// Audit trail configuration
	Audit struct {
		Enabled    bool
		Path       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
		Compress   bool
	}

	// Run ledger configuration
	Ledger struct {
		Enabled bool
		Path    string
	}

	// Prometheus push configuration
	Metrics struct {
		PushgatewayURL string
		Job            string
	}

	// Tracing configuration
	Tracing struct {
		Endpoint     string
		SamplingRate float64
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error
}

// DefaultConfigPath is read when no --config flag is given. It may be absent.
const DefaultConfigPath = "config.yaml"

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
	}
	return mgr, nil
}
