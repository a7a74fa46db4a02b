package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	// Initialize viper
	m.viper = viper.New()

	// Set config file path
	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	// Set environment variable prefix
	m.viper.SetEnvPrefix("CLOUDSENTRY")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	m.setDefaults()

	// Try to read config file (optional)
	if m.configPath != "" {
		if err := m.viper.ReadInConfig(); err != nil {
			// Check both ConfigFileNotFoundError and os.IsNotExist for file not found
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				// File not found via viper - OK, use defaults
			} else if os.IsNotExist(err) {
				// File not found via os - OK, use defaults
			} else {
				return fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	// Unmarshal into config struct
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Apply environment variable overrides for sensitive data
	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	// Sink defaults
	m.viper.SetDefault("sink.url", defaults.Sink.URL)
	m.viper.SetDefault("sink.token", defaults.Sink.Token)
	m.viper.SetDefault("sink.org", defaults.Sink.Org)
	m.viper.SetDefault("sink.bucket", defaults.Sink.Bucket)
	m.viper.SetDefault("sink.timeout_seconds", defaults.Sink.TimeoutSeconds)

	// Path defaults
	m.viper.SetDefault("paths.raw_logs", defaults.Paths.RawLogs)
	m.viper.SetDefault("paths.feature_table", defaults.Paths.FeatureTable)
	m.viper.SetDefault("paths.model", defaults.Paths.Model)
	m.viper.SetDefault("paths.vocabulary", defaults.Paths.Vocabulary)

	// Detection defaults
	m.viper.SetDefault("detection.contamination", defaults.Detection.Contamination)
	m.viper.SetDefault("detection.seed", defaults.Detection.Seed)
	m.viper.SetDefault("detection.num_trees", defaults.Detection.NumTrees)
	m.viper.SetDefault("detection.sample_size", defaults.Detection.SampleSize)
	m.viper.SetDefault("detection.categorical_fields", defaults.Detection.CategoricalFields)

	// Triage defaults
	m.viper.SetDefault("triage.identity_services", defaults.Triage.IdentityServices)
	m.viper.SetDefault("triage.high_impact_events", defaults.Triage.HighImpactEvents)
	m.viper.SetDefault("triage.off_hours_start", defaults.Triage.OffHoursStart)
	m.viper.SetDefault("triage.off_hours_end", defaults.Triage.OffHoursEnd)
	m.viper.SetDefault("triage.medium_threshold", defaults.Triage.MediumThreshold)
	m.viper.SetDefault("triage.high_threshold", defaults.Triage.HighThreshold)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.file", defaults.Logging.File)
	m.viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)
	m.viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Audit defaults
	m.viper.SetDefault("audit.enabled", defaults.Audit.Enabled)
	m.viper.SetDefault("audit.path", defaults.Audit.Path)
	m.viper.SetDefault("audit.max_size_mb", defaults.Audit.MaxSizeMB)
	m.viper.SetDefault("audit.max_backups", defaults.Audit.MaxBackups)
	m.viper.SetDefault("audit.max_age_days", defaults.Audit.MaxAgeDays)
	m.viper.SetDefault("audit.compress", defaults.Audit.Compress)

	// Ledger defaults
	m.viper.SetDefault("ledger.enabled", defaults.Ledger.Enabled)
	m.viper.SetDefault("ledger.path", defaults.Ledger.Path)

	// Metrics defaults
	m.viper.SetDefault("metrics.pushgateway_url", defaults.Metrics.PushgatewayURL)
	m.viper.SetDefault("metrics.job", defaults.Metrics.Job)

	// Tracing defaults
	m.viper.SetDefault("tracing.endpoint", defaults.Tracing.Endpoint)
	m.viper.SetDefault("tracing.sampling_rate", defaults.Tracing.SamplingRate)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	// Sink
	cfg.Sink.URL = m.viper.GetString("sink.url")
	cfg.Sink.Token = m.viper.GetString("sink.token")
	cfg.Sink.Org = m.viper.GetString("sink.org")
	cfg.Sink.Bucket = m.viper.GetString("sink.bucket")
	cfg.Sink.TimeoutSeconds = m.viper.GetInt("sink.timeout_seconds")

	// Paths
	cfg.Paths.RawLogs = m.viper.GetString("paths.raw_logs")
	cfg.Paths.FeatureTable = m.viper.GetString("paths.feature_table")
	cfg.Paths.Model = m.viper.GetString("paths.model")
	cfg.Paths.Vocabulary = m.viper.GetString("paths.vocabulary")

	// Detection
	cfg.Detection.Contamination = m.viper.GetFloat64("detection.contamination")
	cfg.Detection.Seed = m.viper.GetInt64("detection.seed")
	cfg.Detection.NumTrees = m.viper.GetInt("detection.num_trees")
	cfg.Detection.SampleSize = m.viper.GetInt("detection.sample_size")
	cfg.Detection.CategoricalFields = m.viper.GetStringSlice("detection.categorical_fields")

	// Triage
	cfg.Triage.IdentityServices = m.viper.GetStringSlice("triage.identity_services")
	cfg.Triage.HighImpactEvents = m.viper.GetStringSlice("triage.high_impact_events")
	cfg.Triage.OffHoursStart = m.viper.GetInt("triage.off_hours_start")
	cfg.Triage.OffHoursEnd = m.viper.GetInt("triage.off_hours_end")
	cfg.Triage.MediumThreshold = m.viper.GetInt("triage.medium_threshold")
	cfg.Triage.HighThreshold = m.viper.GetInt("triage.high_threshold")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.File = m.viper.GetString("logging.file")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")
	cfg.Logging.Compress = m.viper.GetBool("logging.compress")

	// Audit
	cfg.Audit.Enabled = m.viper.GetBool("audit.enabled")
	cfg.Audit.Path = m.viper.GetString("audit.path")
	cfg.Audit.MaxSizeMB = m.viper.GetInt("audit.max_size_mb")
	cfg.Audit.MaxBackups = m.viper.GetInt("audit.max_backups")
	cfg.Audit.MaxAgeDays = m.viper.GetInt("audit.max_age_days")
	cfg.Audit.Compress = m.viper.GetBool("audit.compress")

	// Ledger
	cfg.Ledger.Enabled = m.viper.GetBool("ledger.enabled")
	cfg.Ledger.Path = m.viper.GetString("ledger.path")

	// Metrics
	cfg.Metrics.PushgatewayURL = m.viper.GetString("metrics.pushgateway_url")
	cfg.Metrics.Job = m.viper.GetString("metrics.job")

	// Tracing
	cfg.Tracing.Endpoint = m.viper.GetString("tracing.endpoint")
	cfg.Tracing.SamplingRate = m.viper.GetFloat64("tracing.sampling_rate")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment variable overrides for sensitive data.
func (m *viperConfigManager) applyEnvOverrides() {
	// The sink token commonly lives in INFLUX_TOKEN; the prefixed variable wins.
	if token := os.Getenv("INFLUX_TOKEN"); token != "" {
		m.config.Sink.Token = token
	}
	if token := os.Getenv("CLOUDSENTRY_SINK_TOKEN"); token != "" {
		m.config.Sink.Token = token
	}
}
