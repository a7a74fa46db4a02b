// Package triage scores and plans every flagged event of a run as one batch.
package triage

import (
	"go.uber.org/zap"

	"github.com/Ashutosh6828/CloudSentry-AI/internal/analytics/response"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/analytics/scoring"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/models"
)

// Result is the triaged anomaly set.
type Result struct {
	Records    []models.TriageRecord
	BySeverity map[models.SeverityLevel]int
}

// Triager combines a scorer and a response simulator.
type Triager struct {
	scorer    scoring.Scorer
	simulator *response.Simulator
	logger    *zap.Logger
}

// NewTriager creates a triager.
func NewTriager(scorer scoring.Scorer, simulator *response.Simulator, logger *zap.Logger) *Triager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Triager{scorer: scorer, simulator: simulator, logger: logger}
}

// Triage maps each event to a TriageRecord in input order.
func (t *Triager) Triage(events []models.RawEvent) Result {
	res := Result{
		Records:    make([]models.TriageRecord, len(events)),
		BySeverity: make(map[models.SeverityLevel]int, 3),
	}
	for _, level := range models.SeverityLevels() {
		res.BySeverity[level] = 0
	}

	for i, ev := range events {
		hour := ev.Hour()
		score, rules := t.scorer.Score(ev, hour)
		level := t.scorer.Categorize(score)
		plan := t.simulator.Plan(level)

		t.logger.Debug("triaged anomaly",
			zap.Int("line", ev.Line),
			zap.String("event_name", ev.EventName),
			zap.Int("severity_score", score),
			zap.String("severity", string(level)),
			zap.Strings("rules", rules),
		)

		res.Records[i] = models.TriageRecord{
			Event:             ev,
			Hour:              hour,
			SeverityScore:     score,
			SeverityLevel:     level,
			ContainmentAction: plan.Containment,
			ContainmentTag:    plan.Tag,
			EradicationAction: plan.Eradication,
			RecoveryAction:    plan.Recovery,
		}
		res.BySeverity[level]++
	}
	return res
}
