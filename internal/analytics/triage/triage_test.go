package triage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Ashutosh6828/CloudSentry-AI/internal/analytics/response"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/analytics/scoring"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/models"
)

func at(hour int) time.Time {
	return time.Date(2024, 3, 1, hour, 30, 0, 0, time.UTC)
}

func TestTriageBatch(t *testing.T) {
	events := []models.RawEvent{
		{Line: 1, EventName: "DeleteBucket", EventSource: "s3.amazonaws.com", EventTime: at(3)},
		{Line: 5, EventName: "ListUsers", EventSource: "iam.amazonaws.com", EventTime: at(14)},
		{Line: 9, EventName: "CreateUser", EventSource: "signin.amazonaws.com", EventTime: at(23)},
		{Line: 12, EventName: "ConsoleLogin", EventSource: "signin.amazonaws.com", EventTime: at(2)},
	}

	tr := NewTriager(scoring.NewScorer(scoring.DefaultPolicy()), response.NewSimulator(), zaptest.NewLogger(t))
	res := tr.Triage(events)
	require.Len(t, res.Records, 4)

	want := []struct {
		line  int
		hour  int
		score int
		level models.SeverityLevel
	}{
		{1, 3, 7, models.SeverityHigh},
		{5, 14, 3, models.SeverityLow},
		{9, 23, 10, models.SeverityHigh},
		{12, 2, 5, models.SeverityMedium},
	}
	for i, w := range want {
		rec := res.Records[i]
		assert.Equal(t, w.line, rec.Event.Line)
		assert.Equal(t, w.hour, rec.Hour)
		assert.Equal(t, w.score, rec.SeverityScore)
		assert.Equal(t, w.level, rec.SeverityLevel)
		assert.Equal(t, "Contained - "+string(w.level), rec.ContainmentTag)
		assert.NotEmpty(t, rec.ContainmentAction)
		assert.NotEmpty(t, rec.EradicationAction)
		assert.NotEmpty(t, rec.RecoveryAction)
	}

	assert.Equal(t, map[models.SeverityLevel]int{
		models.SeverityHigh:   2,
		models.SeverityMedium: 1,
		models.SeverityLow:    1,
	}, res.BySeverity)
}

func TestTriageEmpty(t *testing.T) {
	res := NewTriager(scoring.NewScorer(scoring.DefaultPolicy()), response.NewSimulator(), nil).Triage(nil)
	assert.Empty(t, res.Records)
	assert.Equal(t, 0, res.BySeverity[models.SeverityHigh])
	assert.Len(t, res.BySeverity, 3)
}

func TestTriageDoesNotMutateInput(t *testing.T) {
	events := []models.RawEvent{{Line: 1, EventName: "DeleteTrail", EventTime: at(12)}}
	before := events[0]

	NewTriager(scoring.NewScorer(scoring.DefaultPolicy()), response.NewSimulator(), nil).Triage(events)
	assert.Equal(t, before, events[0])
}
