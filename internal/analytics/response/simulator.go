// Package response maps a severity band to a simulated incident-response plan.
//
// Nothing here acts on the cloud account. Every action is a label attached to
// the exported anomaly so responders see the recommended playbook.
package response

import "github.com/Ashutosh6828/CloudSentry-AI/internal/models"

// TagPrefix prefixes the containment tag of every plan.
const TagPrefix = "Contained - "

// Plan is the recommended response for one severity band.
type Plan struct {
	Containment string
	Eradication string
	Recovery    string
	Tag         string
}

type actions struct {
	containment string
	eradication string
	recovery    string
}

var playbook = map[models.SeverityLevel]actions{
	models.SeverityHigh: {
		containment: "Disable user/session, rotate keys, block suspicious IP",
		eradication: "Disable IAM user, rotate keys, check impacted resources",
		recovery:    "Restore resources, verify backups, re-enable safe IAM users",
	},
	models.SeverityMedium: {
		containment: "Restrict IAM role temporarily, enable MFA, monitor",
		eradication: "Restrict IAM role temporarily, enable MFA, monitor activity",
		recovery:    "Verify resources and IAM roles, monitor activity",
	},
	models.SeverityLow: {
		containment: "Monitor activity",
		eradication: "Monitor only",
		recovery:    "No action needed, just monitor",
	},
}

// Simulator resolves response plans.
type Simulator struct{}

// NewSimulator creates a response simulator.
func NewSimulator() *Simulator {
	return &Simulator{}
}

// Plan returns the plan for level. Unknown levels get the Low actions; the
// tag still names the level as given.
func (s *Simulator) Plan(level models.SeverityLevel) Plan {
	a, ok := playbook[level]
	if !ok {
		a = playbook[models.SeverityLow]
	}
	return Plan{
		Containment: a.containment,
		Eradication: a.eradication,
		Recovery:    a.recovery,
		Tag:         TagPrefix + string(level),
	}
}
