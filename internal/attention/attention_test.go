package attention

import (
	"testing"
	"time"

	"github.com/claudeguard/claudeguard/internal/budget"
	"github.com/claudeguard/claudeguard/internal/incident"
	"github.com/claudeguard/claudeguard/internal/risk"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fullBudget() budget.Summary {
	return budget.Summary{CurrentCap: 4, BaseCap: 4}
}

func TestHealthyIsNone(t *testing.T) {
	a := Synthesize(risk.HangRisk{Level: risk.LevelOK}, fullBudget(), nil, Attention{}, t0)
	if a.Level != LevelNone {
		t.Errorf("Level = %s, want none", a.Level)
	}
	if len(a.RecommendedActions) != 0 {
		t.Errorf("RecommendedActions = %v, want none", a.RecommendedActions)
	}
}

func TestRiskLevelsDominates(t *testing.T) {
	tests := []struct {
		name string
		r    risk.HangRisk
		want Level
	}{
		{"critical risk", risk.HangRisk{Level: risk.LevelCritical}, LevelCritical},
		{"warn risk", risk.HangRisk{Level: risk.LevelWarn}, LevelWarn},
		{"ok but disk low", risk.HangRisk{Level: risk.LevelOK, DiskLow: true}, LevelWarn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Synthesize(tt.r, fullBudget(), nil, Attention{}, t0)
			if a.Level != tt.want {
				t.Errorf("Level = %s, want %s", a.Level, tt.want)
			}
		})
	}
}

func TestReducedCapIsInfo(t *testing.T) {
	bs := budget.Summary{CurrentCap: 2, BaseCap: 4}
	a := Synthesize(risk.HangRisk{Level: risk.LevelOK}, bs, nil, Attention{}, t0)
	if a.Level != LevelInfo {
		t.Errorf("Level = %s, want info", a.Level)
	}
	found := false
	for _, action := range a.RecommendedActions {
		if action == "check budget before heavy work (budget_get)" {
			found = true
		}
	}
	if !found {
		t.Errorf("actions = %v, want the budget check", a.RecommendedActions)
	}
}

func TestOpenIncidentAtOKIsInfo(t *testing.T) {
	inc := &incident.Incident{ID: "abcd1234", PeakLevel: risk.LevelWarn}
	a := Synthesize(risk.HangRisk{Level: risk.LevelOK}, fullBudget(), inc, Attention{}, t0)
	if a.Level != LevelInfo {
		t.Errorf("Level = %s, want info", a.Level)
	}
	if a.IncidentID != "abcd1234" {
		t.Errorf("IncidentID = %q, want abcd1234", a.IncidentID)
	}
}

func TestSinceIsPreservedAcrossSameLevel(t *testing.T) {
	r := risk.HangRisk{Level: risk.LevelWarn}
	first := Synthesize(r, fullBudget(), nil, Attention{}, t0)
	if !first.Since.Equal(t0) {
		t.Fatalf("first Since = %v, want %v", first.Since, t0)
	}

	second := Synthesize(r, fullBudget(), nil, first, t0.Add(2*time.Second))
	if !second.Since.Equal(t0) {
		t.Errorf("Since moved to %v on unchanged level, want %v", second.Since, t0)
	}

	// Level change resets the dwell clock.
	third := Synthesize(risk.HangRisk{Level: risk.LevelCritical}, fullBudget(), nil, second, t0.Add(4*time.Second))
	if !third.Since.Equal(t0.Add(4 * time.Second)) {
		t.Errorf("Since = %v after level change, want %v", third.Since, t0.Add(4*time.Second))
	}
}

func TestCriticalWithUncapturedIncidentRecommendsBundle(t *testing.T) {
	inc := &incident.Incident{ID: "ffff0000", PeakLevel: risk.LevelCritical}
	a := Synthesize(risk.HangRisk{Level: risk.LevelCritical}, fullBudget(), inc, Attention{}, t0)

	foundDoctor := false
	for _, action := range a.RecommendedActions {
		if action == "capture a diagnostic bundle (doctor)" {
			foundDoctor = true
		}
	}
	if !foundDoctor {
		t.Errorf("actions = %v, want a doctor recommendation", a.RecommendedActions)
	}
}
