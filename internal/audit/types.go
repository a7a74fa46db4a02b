package audit

import "time"

// EventType represents the type of audit event
type EventType string

const (
	// Run lifecycle events
	EventRunStarted   EventType = "run.started"
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"

	// Artifact events
	EventArtifactWritten EventType = "artifact.written"

	// Input events
	EventInputMissing EventType = "input.missing"
)

// Result represents the outcome of an audited step
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultPending Result = "pending"
	ResultSkipped Result = "skipped"
)

// Event represents a single audit event
type Event struct {
	// Core fields
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	EventType EventType `json:"event_type"`
	Result    Result    `json:"result"`

	// Stage that produced the event (run, encode, detect)
	Stage string `json:"stage,omitempty"`

	// Artifact information
	Artifact     string `json:"artifact,omitempty"`
	ArtifactKind string `json:"artifact_kind,omitempty"`
	Digest       string `json:"digest,omitempty"`

	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	// Error information
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	DurationMs int64 `json:"duration_ms,omitempty"`
}

// NewEvent creates a new audit event with default values
func NewEvent(eventType EventType) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Result:    ResultPending,
		Metadata:  make(map[string]interface{}),
	}
}

// WithRunID sets the run the event belongs to
func (e *Event) WithRunID(id string) *Event {
	e.RunID = id
	return e
}

// WithStage sets the pipeline stage
func (e *Event) WithStage(stage string) *Event {
	e.Stage = stage
	return e
}

// WithArtifact records an artifact path, kind and content digest
func (e *Event) WithArtifact(path, kind, digest string) *Event {
	e.Artifact = path
	e.ArtifactKind = kind
	e.Digest = digest
	return e
}

// WithDescription sets a human-readable description
func (e *Event) WithDescription(desc string) *Event {
	e.Description = desc
	return e
}

// WithResult sets the result of the event
func (e *Event) WithResult(result Result) *Event {
	e.Result = result
	return e
}

// WithError sets error information
func (e *Event) WithError(err error, code string) *Event {
	if err != nil {
		e.Error = err.Error()
		e.ErrorCode = code
		e.Result = ResultFailure
	}
	return e
}

// WithDuration sets the duration in milliseconds
func (e *Event) WithDuration(duration time.Duration) *Event {
	e.DurationMs = duration.Milliseconds()
	return e
}

// WithMetadata adds metadata to the event
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	e.Metadata[key] = value
	return e
}
