// Package attention fuses risk, budget, disk, and incident state into the
// single operator-visible urgency level.
//
// The synthesis is a pure function; the previous attention is threaded in
// so that `since` is preserved whenever the level is unchanged, making
// dwell time at a level directly observable.
package attention

import (
	"strings"
	"time"

	"github.com/claudeguard/claudeguard/internal/budget"
	"github.com/claudeguard/claudeguard/internal/incident"
	"github.com/claudeguard/claudeguard/internal/risk"
)

// Level is the four-state attention signal.
type Level string

const (
	LevelNone     Level = "none"
	LevelInfo     Level = "info"
	LevelWarn     Level = "warn"
	LevelCritical Level = "critical"
)

// Attention is the synthesized operator signal.
type Attention struct {
	Level              Level     `json:"level"`
	Since              time.Time `json:"since"`
	Reason             string    `json:"reason"`
	RecommendedActions []string  `json:"recommendedActions,omitempty"`
	IncidentID         string    `json:"incidentId,omitempty"`
}

// Synthesize computes the attention for one tick. prev may be zero-valued
// on the first tick.
func Synthesize(r risk.HangRisk, bs budget.Summary, inc *incident.Incident, prev Attention, now time.Time) Attention {
	level := LevelNone
	var reasons []string

	capReduced := bs.CurrentCap < bs.BaseCap

	switch {
	case r.Level == risk.LevelCritical:
		level = LevelCritical
	case r.Level == risk.LevelWarn:
		level = LevelWarn
	case r.DiskLow:
		level = LevelWarn
	case capReduced:
		level = LevelInfo
	case inc != nil:
		level = LevelInfo
	}

	reasons = append(reasons, r.Reasons...)
	if level != LevelNone {
		if capReduced {
			reasons = append(reasons, "concurrency cap reduced")
		}
		if inc != nil && r.Level == risk.LevelOK {
			reasons = append(reasons, "incident still open")
		}
	}

	a := Attention{
		Level:              level,
		Since:              now,
		Reason:             strings.Join(reasons, "; "),
		RecommendedActions: recommend(level, r, inc, capReduced),
	}
	if inc != nil {
		a.IncidentID = inc.ID
	}
	if prev.Level == level && !prev.Since.IsZero() {
		a.Since = prev.Since
	}
	return a
}

// recommend draws actions from a fixed table keyed by level and the
// contributing conditions.
func recommend(level Level, r risk.HangRisk, inc *incident.Incident, capReduced bool) []string {
	var actions []string
	switch level {
	case LevelCritical:
		actions = append(actions, "run the recovery tool (recovery_plan) and follow its steps")
		if inc != nil && !inc.BundleCaptured {
			actions = append(actions, "capture a diagnostic bundle (doctor)")
		}
		if r.DiskLow {
			actions = append(actions, "free disk space (preflight_fix aggressive)")
		}
		actions = append(actions, "reduce concurrent workload until status returns to ok")

	case LevelWarn:
		actions = append(actions, "run safe remediation (nudge)")
		if r.DiskLow {
			actions = append(actions, "free disk space (preflight_fix)")
		}
		if r.CPUHot || r.MemoryHigh {
			actions = append(actions, "check budget before heavy work (budget_get)")
		}
		actions = append(actions, "watch status for escalation")

	case LevelInfo:
		if capReduced {
			actions = append(actions, "check budget before heavy work (budget_get)")
		}
		if inc != nil {
			actions = append(actions, "monitor status until the incident closes")
		}
	}
	return actions
}
