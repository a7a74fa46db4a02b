package scoring

import (
	"github.com/Ashutosh6828/CloudSentry-AI/internal/config"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/models"
)

// Policy holds the rule sets and band thresholds.
type Policy struct {
	IdentityServices []string
	HighImpactEvents []string
	OffHoursStart    int
	OffHoursEnd      int
	MediumThreshold  int
	HighThreshold    int
}

// DefaultPolicy returns the built-in triage policy.
func DefaultPolicy() Policy {
	return PolicyFromConfig(config.DefaultConfig())
}

// PolicyFromConfig maps the triage section of the run configuration.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		IdentityServices: cfg.Triage.IdentityServices,
		HighImpactEvents: cfg.Triage.HighImpactEvents,
		OffHoursStart:    cfg.Triage.OffHoursStart,
		OffHoursEnd:      cfg.Triage.OffHoursEnd,
		MediumThreshold:  cfg.Triage.MediumThreshold,
		HighThreshold:    cfg.Triage.HighThreshold,
	}
}

// scorerImpl is the concrete Scorer.
type scorerImpl struct {
	identity   map[string]struct{}
	highImpact map[string]struct{}
	policy     Policy
}

// NewScorer creates a scorer for the given policy.
func NewScorer(policy Policy) Scorer {
	return &scorerImpl{
		identity:   toSet(policy.IdentityServices),
		highImpact: toSet(policy.HighImpactEvents),
		policy:     policy,
	}
}

// Score sums the weights of every matched rule.
func (s *scorerImpl) Score(event models.RawEvent, hour int) (int, []string) {
	score := 0
	var matched []string

	if _, ok := s.identity[event.EventSource]; ok {
		score += WeightIdentityService
		matched = append(matched, RuleIdentityService)
	}
	if hour < s.policy.OffHoursStart || hour > s.policy.OffHoursEnd {
		score += WeightOffHours
		matched = append(matched, RuleOffHours)
	}
	if _, ok := s.highImpact[event.EventName]; ok {
		score += WeightHighImpact
		matched = append(matched, RuleHighImpact)
	}

	return score, matched
}

// Categorize bands a score.
func (s *scorerImpl) Categorize(score int) models.SeverityLevel {
	if score >= s.policy.HighThreshold {
		return models.SeverityHigh
	} else if score >= s.policy.MediumThreshold {
		return models.SeverityMedium
	}
	return models.SeverityLow
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
