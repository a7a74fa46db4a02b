package config

// DefaultCategoricalFields are the raw event fields encoded into *_code columns.
var DefaultCategoricalFields = []string{
	"eventName",
	"eventSource",
	"awsRegion",
	"sourceIPAddress",
	"userAgent",
	"userIdentity.type",
	"userIdentity.userName",
	"errorCode",
}

// DefaultIdentityServices are event sources treated as identity/authentication services.
var DefaultIdentityServices = []string{
	"signin.amazonaws.com",
	"iam.amazonaws.com",
}

// DefaultHighImpactEvents are destructive or privilege-changing event names.
var DefaultHighImpactEvents = []string{
	"DeleteBucket",
	"StopInstances",
	"CreateUser",
	"DeleteTrail",
}

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Sink defaults
	cfg.Sink.URL = "http://localhost:8086"
	cfg.Sink.Token = ""
	cfg.Sink.Org = "myorg"
	cfg.Sink.Bucket = "cloudtrail_logs"
	cfg.Sink.TimeoutSeconds = 10

	// Path defaults
	cfg.Paths.RawLogs = "data/raw_logs.jsonl"
	cfg.Paths.FeatureTable = "data/processed_features.csv"
	cfg.Paths.Model = "data/anomaly_model.json"
	cfg.Paths.Vocabulary = "data/label_encoders.yaml"

	// Detection defaults
	cfg.Detection.Contamination = 0.01
	cfg.Detection.Seed = 42
	cfg.Detection.NumTrees = 100
	cfg.Detection.SampleSize = 256
	cfg.Detection.CategoricalFields = append([]string(nil), DefaultCategoricalFields...)

	// Triage defaults
	cfg.Triage.IdentityServices = append([]string(nil), DefaultIdentityServices...)
	cfg.Triage.HighImpactEvents = append([]string(nil), DefaultHighImpactEvents...)
	cfg.Triage.OffHoursStart = 6
	cfg.Triage.OffHoursEnd = 22
	cfg.Triage.MediumThreshold = 4
	cfg.Triage.HighThreshold = 7

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.File = ""
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 10
	cfg.Logging.MaxAgeDays = 30
	cfg.Logging.Compress = true

	// Audit defaults
	cfg.Audit.Enabled = true
	cfg.Audit.Path = "logs/audit.log"
	cfg.Audit.MaxSizeMB = 100
	cfg.Audit.MaxBackups = 10
	cfg.Audit.MaxAgeDays = 30
	cfg.Audit.Compress = true

	// Ledger defaults
	cfg.Ledger.Enabled = true
	cfg.Ledger.Path = "data/ledger.db"

	// Metrics defaults (push disabled)
	cfg.Metrics.PushgatewayURL = ""
	cfg.Metrics.Job = "cloudsentry"

	// Tracing defaults (disabled)
	cfg.Tracing.Endpoint = ""
	cfg.Tracing.SamplingRate = 1.0

	return cfg
}
