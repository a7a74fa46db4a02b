package models

// Package models defines the core data types shared across cloudsentry.
//
// Raw audit events flow in from the ingest stage, are encoded and scored by
// the analytics packages, and the flagged subset leaves as TriageRecords.

import "time"

// RawEvent is one audit-trail event as read from the NDJSON input.
type RawEvent struct {
	Line      int       // 1-based line number in the source file
	EventTime time.Time // parsed eventTime

	EventName       string
	EventSource     string
	AWSRegion       string
	SourceIPAddress string
	UserAgent       string

	UserIdentityType        string
	UserIdentityUserName    string
	UserIdentityARN         string
	UserIdentityPrincipalID string

	RecipientAccountID string
	VPCEndpointID      string
	ErrorCode          string
	ErrorMessage       string
	RequestID          string
	EventID            string

	ResponseElements             interface{} // opaque payload
	ManagementEvent              *bool
	SessionCredentialFromConsole *bool

	// Fields is the decoded JSON object. Categorical features are resolved
	// from it by dotted path (e.g. "userIdentity.type").
	Fields map[string]interface{}
}

// Hour returns the UTC hour of the event.
func (e RawEvent) Hour() int {
	return e.EventTime.UTC().Hour()
}

// SeverityLevel is the triage band of a flagged event.
type SeverityLevel string

const (
	SeverityLow    SeverityLevel = "Low"
	SeverityMedium SeverityLevel = "Medium"
	SeverityHigh   SeverityLevel = "High"
)

// SeverityLevels lists the bands in ascending order.
func SeverityLevels() []SeverityLevel {
	return []SeverityLevel{SeverityLow, SeverityMedium, SeverityHigh}
}

// Rank orders levels: Low < Medium < High. Unknown levels rank below Low.
func (l SeverityLevel) Rank() int {
	switch l {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	default:
		return 0
	}
}

// TriageRecord is a flagged event enriched with its severity and the
// simulated response plan.
type TriageRecord struct {
	Event RawEvent
	Hour  int

	AnomalyScore float64

	SeverityScore int
	SeverityLevel SeverityLevel

	ContainmentAction string
	ContainmentTag    string
	EradicationAction string
	RecoveryAction    string
}

// ExportReport counts the outcome of a best-effort export.
type ExportReport struct {
	Written int
	Dropped int
}

// Add accumulates another report.
func (r *ExportReport) Add(o ExportReport) {
	r.Written += o.Written
	r.Dropped += o.Dropped
}

// RunSummary describes the outcome of one pipeline run.
type RunSummary struct {
	RunID     string
	StartedAt time.Time
	EndedAt   time.Time

	InputMissing   bool
	SkippedRecords int

	TotalRecords int
	AnomalyCount int
	NormalCount  int
	BySeverity   map[SeverityLevel]int

	Counters  ExportReport
	Anomalies ExportReport

	ModelPath        string
	ModelDigest      string
	VocabularyPath   string
	VocabularyDigest string
}
