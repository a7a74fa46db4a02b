package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Validate sink configuration
	if c.Sink.URL == "" {
		errs = append(errs, &ValidationError{
			Field:   "sink.url",
			Message: "sink url is required",
		})
	} else if u, err := url.Parse(c.Sink.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, &ValidationError{
			Field:   "sink.url",
			Message: fmt.Sprintf("invalid url (expected scheme://host[:port]): %s", c.Sink.URL),
		})
	}
	if c.Sink.Org == "" {
		errs = append(errs, &ValidationError{
			Field:   "sink.org",
			Message: "sink org is required",
		})
	}
	if c.Sink.Bucket == "" {
		errs = append(errs, &ValidationError{
			Field:   "sink.bucket",
			Message: "sink bucket is required",
		})
	}
	if c.Sink.TimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "sink.timeout_seconds",
			Message: fmt.Sprintf("timeout must be at least 1 second, got %d", c.Sink.TimeoutSeconds),
		})
	}

	// Validate paths
	for _, p := range []struct{ field, value string }{
		{"paths.raw_logs", c.Paths.RawLogs},
		{"paths.feature_table", c.Paths.FeatureTable},
		{"paths.model", c.Paths.Model},
		{"paths.vocabulary", c.Paths.Vocabulary},
	} {
		if strings.TrimSpace(p.value) == "" {
			errs = append(errs, &ValidationError{
				Field:   p.field,
				Message: "path is required",
			})
		}
	}

	// Validate detection configuration
	if c.Detection.Contamination <= 0 || c.Detection.Contamination > 0.5 {
		errs = append(errs, &ValidationError{
			Field:   "detection.contamination",
			Message: fmt.Sprintf("contamination must be in (0, 0.5], got %v", c.Detection.Contamination),
		})
	}
	if c.Detection.NumTrees < 1 {
		errs = append(errs, &ValidationError{
			Field:   "detection.num_trees",
			Message: fmt.Sprintf("num_trees must be positive, got %d", c.Detection.NumTrees),
		})
	}
	if c.Detection.SampleSize < 2 {
		errs = append(errs, &ValidationError{
			Field:   "detection.sample_size",
			Message: fmt.Sprintf("sample_size must be at least 2, got %d", c.Detection.SampleSize),
		})
	}
	if len(c.Detection.CategoricalFields) == 0 {
		errs = append(errs, &ValidationError{
			Field:   "detection.categorical_fields",
			Message: "at least one categorical field is required",
		})
	}

	// Validate triage configuration
	if c.Triage.OffHoursStart < 0 || c.Triage.OffHoursStart > 23 {
		errs = append(errs, &ValidationError{
			Field:   "triage.off_hours_start",
			Message: fmt.Sprintf("hour must be between 0 and 23, got %d", c.Triage.OffHoursStart),
		})
	}
	if c.Triage.OffHoursEnd < 0 || c.Triage.OffHoursEnd > 23 {
		errs = append(errs, &ValidationError{
			Field:   "triage.off_hours_end",
			Message: fmt.Sprintf("hour must be between 0 and 23, got %d", c.Triage.OffHoursEnd),
		})
	}
	if c.Triage.MediumThreshold < 1 {
		errs = append(errs, &ValidationError{
			Field:   "triage.medium_threshold",
			Message: fmt.Sprintf("medium threshold must be positive, got %d", c.Triage.MediumThreshold),
		})
	}
	if c.Triage.HighThreshold <= c.Triage.MediumThreshold {
		errs = append(errs, &ValidationError{
			Field: "triage.high_threshold",
			Message: fmt.Sprintf("high threshold (%d) must be greater than medium threshold (%d)",
				c.Triage.HighThreshold, c.Triage.MediumThreshold),
		})
	}

	// Validate logging configuration
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level),
		})
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (must be json or console)", c.Logging.Format),
		})
	}

	// Validate audit and ledger paths
	if c.Audit.Enabled && c.Audit.Path == "" {
		errs = append(errs, &ValidationError{
			Field:   "audit.path",
			Message: "audit path is required when audit is enabled",
		})
	}
	if c.Ledger.Enabled && c.Ledger.Path == "" {
		errs = append(errs, &ValidationError{
			Field:   "ledger.path",
			Message: "ledger path is required when ledger is enabled",
		})
	}

	// Validate metrics configuration
	if c.Metrics.PushgatewayURL != "" && c.Metrics.Job == "" {
		errs = append(errs, &ValidationError{
			Field:   "metrics.job",
			Message: "job name is required when pushgateway_url is set",
		})
	}

	// Validate tracing configuration
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		errs = append(errs, &ValidationError{
			Field:   "tracing.sampling_rate",
			Message: fmt.Sprintf("sampling rate must be between 0 and 1, got %v", c.Tracing.SamplingRate),
		})
	}

	return errs
}
