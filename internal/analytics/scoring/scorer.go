package scoring

import "github.com/Ashutosh6828/CloudSentry-AI/internal/models"

// Package scoring assigns a rule-based severity to flagged audit events.
//
// Rules (each matched rule adds its weight):
//
//   1. Identity service (+3)
//      - eventSource is an authentication or identity service
//      - Default: signin.amazonaws.com, iam.amazonaws.com
//
//   2. Off-hours (+2)
//      - hour < OffHoursStart (6) or hour > OffHoursEnd (22), UTC
//
//   3. High-impact event (+5)
//      - eventName is destructive or privilege-changing
//      - Default: DeleteBucket, StopInstances, CreateUser, DeleteTrail
//
// Bands:
//   - High:   score >= HighThreshold (7)
//   - Medium: score >= MediumThreshold (4)
//   - Low:    otherwise
//
// Scoring is pure: no I/O, no state between events.

// Rule weights.
const (
	WeightIdentityService = 3
	WeightOffHours        = 2
	WeightHighImpact      = 5
)

// Rule names reported by Score.
const (
	RuleIdentityService = "identity_service"
	RuleOffHours        = "off_hours"
	RuleHighImpact      = "high_impact_event"
)

// Scorer computes and bands severity scores.
type Scorer interface {
	// Score returns the severity score of an event at the given hour and the
	// names of the rules that matched.
	Score(event models.RawEvent, hour int) (int, []string)

	// Categorize maps a score to its severity band.
	Categorize(score int) models.SeverityLevel
}
