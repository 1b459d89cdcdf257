// Package recovery turns guardian state into an ordered, named-tool
// action plan. The plan is deterministic: the same state always yields
// the same steps, so an agent following it mid-incident behaves
// predictably.
package recovery

import (
	"github.com/claudeguard/claudeguard/internal/budget"
	"github.com/claudeguard/claudeguard/internal/incident"
	"github.com/claudeguard/claudeguard/internal/risk"
)

// Status is the plan's top-level verdict.
type Status string

const (
	StatusHealthy      Status = "healthy"
	StatusActionNeeded Status = "action_needed"
	StatusUrgent       Status = "urgent"
)

// Step is one planned action. Tool is empty for advice that has no tool.
type Step struct {
	Order  int    `json:"order"`
	Action string `json:"action"`
	Tool   string `json:"tool,omitempty"`
	Detail string `json:"detail"`
}

// Plan is the planner output.
type Plan struct {
	Status Status `json:"status"`
	Steps  []Step `json:"steps"`
}

// Build derives the plan from the current risk, budget, and incident.
func Build(r risk.HangRisk, bs budget.Summary, inc *incident.Incident) Plan {
	switch r.Level {
	case risk.LevelCritical:
		return criticalPlan(r, inc)
	case risk.LevelWarn:
		return warnPlan(r)
	default:
		return okPlan(bs, inc)
	}
}

func criticalPlan(r risk.HangRisk, inc *incident.Incident) Plan {
	b := newBuilder()
	b.add("capture diagnostics", "nudge",
		"run safe remediation first; it captures evidence when an incident is open")
	b.add("release concurrency", "budget_get",
		"inspect held leases and release any the work no longer needs")
	if r.DiskLow {
		b.add("free disk space", "preflight_fix",
			"run in aggressive mode; disk pressure compounds every other failure")
	}
	b.add("verify status", "status",
		"confirm whether the composite quiet window is still advancing")
	b.add("reduce workload", "",
		"pause or defer heavy operations until risk returns to ok")
	if inc != nil && !inc.BundleCaptured {
		b.add("force a diagnostic bundle", "doctor",
			"no bundle exists for this incident yet; capture one for the report")
	}
	return Plan{Status: StatusUrgent, Steps: b.steps}
}

func warnPlan(r risk.HangRisk) Plan {
	b := newBuilder()
	b.add("run safe remediation", "nudge",
		"idempotent cleanup; never escalates on its own")
	if r.DiskLow {
		b.add("free disk space", "preflight_fix",
			"compress and trim session logs before disk pressure escalates")
	}
	if r.NoActivitySeconds > 0 {
		b.add("check activity", "status",
			"watch whether the quiet window keeps growing")
	}
	if r.CPUHot || r.MemoryHigh {
		b.add("check the concurrency budget", "budget_get",
			"resource pressure is high; avoid acquiring new slots")
	}
	b.add("monitor", "status",
		"re-check on the next poll; warn clears itself when activity resumes")
	return Plan{Status: StatusActionNeeded, Steps: b.steps}
}

func okPlan(bs budget.Summary, inc *incident.Incident) Plan {
	b := newBuilder()
	switch {
	case bs.CurrentCap < bs.BaseCap:
		b.add("budget recovering", "budget_get",
			"cap restores automatically after sustained ok; check hysteresis remaining")
	case inc != nil:
		b.add("incident resolving", "status",
			"risk is ok; the incident closes on the next poll")
	default:
		b.add("no action needed", "", "all signals healthy")
	}
	return Plan{Status: StatusHealthy, Steps: b.steps}
}

// builder numbers steps as they are added.
type builder struct {
	steps []Step
}

func newBuilder() *builder { return &builder{} }

func (b *builder) add(action, tool, detail string) {
	b.steps = append(b.steps, Step{
		Order:  len(b.steps) + 1,
		Action: action,
		Tool:   tool,
		Detail: detail,
	})
}
