package recovery

import (
	"testing"

	"github.com/claudeguard/claudeguard/internal/budget"
	"github.com/claudeguard/claudeguard/internal/incident"
	"github.com/claudeguard/claudeguard/internal/risk"
)

func fullBudget() budget.Summary {
	return budget.Summary{CurrentCap: 4, BaseCap: 4}
}

func toolSequence(p Plan) []string {
	var tools []string
	for _, s := range p.Steps {
		tools = append(tools, s.Tool)
	}
	return tools
}

func TestHealthyPlan(t *testing.T) {
	p := Build(risk.HangRisk{Level: risk.LevelOK}, fullBudget(), nil)
	if p.Status != StatusHealthy {
		t.Errorf("Status = %s, want healthy", p.Status)
	}
	if len(p.Steps) != 1 || p.Steps[0].Action != "no action needed" {
		t.Errorf("Steps = %+v, want the single no-op step", p.Steps)
	}
}

func TestBudgetRecoveringPlan(t *testing.T) {
	bs := budget.Summary{CurrentCap: 1, BaseCap: 4}
	p := Build(risk.HangRisk{Level: risk.LevelOK}, bs, nil)
	if p.Status != StatusHealthy {
		t.Errorf("Status = %s, want healthy", p.Status)
	}
	if len(p.Steps) != 1 || p.Steps[0].Tool != "budget_get" {
		t.Errorf("Steps = %+v, want single budget_get step", p.Steps)
	}
}

func TestIncidentResolvingPlan(t *testing.T) {
	inc := &incident.Incident{ID: "abcd1234"}
	p := Build(risk.HangRisk{Level: risk.LevelOK}, fullBudget(), inc)
	if len(p.Steps) != 1 || p.Steps[0].Tool != "status" {
		t.Errorf("Steps = %+v, want single status step", p.Steps)
	}
}

func TestWarnPlanOrdering(t *testing.T) {
	r := risk.HangRisk{
		Level:             risk.LevelWarn,
		DiskLow:           true,
		NoActivitySeconds: 305,
		CPUHot:            true,
		MemoryHigh:        true,
	}
	p := Build(r, fullBudget(), nil)
	if p.Status != StatusActionNeeded {
		t.Errorf("Status = %s, want action_needed", p.Status)
	}

	want := []string{"nudge", "preflight_fix", "status", "budget_get", "status"}
	got := toolSequence(p)
	if len(got) != len(want) {
		t.Fatalf("tools = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d tool = %q, want %q", i+1, got[i], want[i])
		}
	}
	for i, s := range p.Steps {
		if s.Order != i+1 {
			t.Errorf("step %d Order = %d", i, s.Order)
		}
	}
}

func TestWarnPlanSkipsAbsentConditions(t *testing.T) {
	p := Build(risk.HangRisk{Level: risk.LevelWarn}, fullBudget(), nil)
	want := []string{"nudge", "status"}
	got := toolSequence(p)
	if len(got) != len(want) {
		t.Fatalf("tools = %v, want %v", got, want)
	}
}

func TestCriticalPlan(t *testing.T) {
	inc := &incident.Incident{ID: "abcd1234", PeakLevel: risk.LevelCritical}
	r := risk.HangRisk{Level: risk.LevelCritical, DiskLow: true}
	p := Build(r, fullBudget(), inc)
	if p.Status != StatusUrgent {
		t.Errorf("Status = %s, want urgent", p.Status)
	}

	want := []string{"nudge", "budget_get", "preflight_fix", "status", "", "doctor"}
	got := toolSequence(p)
	if len(got) != len(want) {
		t.Fatalf("tools = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d tool = %q, want %q", i+1, got[i], want[i])
		}
	}
}

func TestCriticalPlanSkipsDoctorWhenBundled(t *testing.T) {
	inc := &incident.Incident{ID: "abcd1234", PeakLevel: risk.LevelCritical, BundleCaptured: true}
	p := Build(risk.HangRisk{Level: risk.LevelCritical}, fullBudget(), inc)
	for _, s := range p.Steps {
		if s.Tool == "doctor" {
			t.Error("doctor step must be skipped once a bundle exists")
		}
	}
}

func TestPlansAreDeterministic(t *testing.T) {
	r := risk.HangRisk{Level: risk.LevelWarn, DiskLow: true}
	a := Build(r, fullBudget(), nil)
	b := Build(r, fullBudget(), nil)
	if len(a.Steps) != len(b.Steps) {
		t.Fatal("same state must yield the same plan")
	}
	for i := range a.Steps {
		if a.Steps[i] != b.Steps[i] {
			t.Errorf("step %d differs: %+v vs %+v", i, a.Steps[i], b.Steps[i])
		}
	}
}
