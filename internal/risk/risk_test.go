package risk

import (
	"strings"
	"testing"
	"time"

	"github.com/claudeguard/claudeguard/internal/probe"
)

func inputs() Inputs {
	return Inputs{
		Processes: []probe.ProcessSample{
			{PID: 100, Name: "claude", CPUPercent: 12, MemoryMB: 300, UptimeSeconds: 10},
		},
		Activity: probe.ActivitySignals{
			LogLastModifiedSecondsAgo: 3,
			CPUActive:                 true,
			Sources:                   []string{"log-mtime", "cpu"},
		},
		DiskFreeGB:    100,
		HangThreshold: 300 * time.Second,
		ProcessAge:    10 * time.Second,
	}
}

func TestEvaluateHealthyInsideGrace(t *testing.T) {
	r := Evaluate(inputs())
	if r.Level != LevelOK {
		t.Errorf("Level = %s, want ok", r.Level)
	}
	if r.GraceRemainingSeconds != 50 {
		t.Errorf("GraceRemainingSeconds = %v, want 50", r.GraceRemainingSeconds)
	}
}

func TestGraceShieldsQuietNewProcess(t *testing.T) {
	in := inputs()
	in.Processes[0].CPUPercent = 0
	in.Activity.LogLastModifiedSecondsAgo = 900
	in.Activity.CPUActive = false
	in.ProcessAge = 15 * time.Second
	in.CompositeQuiet = 15 * time.Second

	r := Evaluate(in)
	if r.Level != LevelOK {
		t.Errorf("Level = %s, want ok (grace)", r.Level)
	}
	if r.GraceRemainingSeconds != 45 {
		t.Errorf("GraceRemainingSeconds = %v, want 45", r.GraceRemainingSeconds)
	}
}

func TestDiskLowBypassesGrace(t *testing.T) {
	in := inputs()
	in.DiskFreeGB = 2
	r := Evaluate(in)
	if r.Level != LevelWarn {
		t.Errorf("Level = %s, want warn (disk low inside grace)", r.Level)
	}
	if !r.DiskLow {
		t.Error("DiskLow should be set")
	}
}

func TestCompositeQuietTriggersWarn(t *testing.T) {
	in := inputs()
	in.Processes[0].CPUPercent = 0
	in.Activity.LogLastModifiedSecondsAgo = 305
	in.Activity.CPUActive = false
	in.ProcessAge = 3600 * time.Second
	in.CompositeQuiet = 305 * time.Second

	r := Evaluate(in)
	if r.Level != LevelWarn {
		t.Fatalf("Level = %s, want warn", r.Level)
	}
	found := false
	for _, reason := range r.Reasons {
		if strings.Contains(reason, "No activity for 305s") {
			found = true
		}
	}
	if !found {
		t.Errorf("Reasons = %v, want one containing %q", r.Reasons, "No activity for 305s")
	}
}

func TestCompositeQuietEscalatesToCritical(t *testing.T) {
	in := inputs()
	in.Processes[0].CPUPercent = 0
	in.Activity.LogLastModifiedSecondsAgo = 905
	in.Activity.CPUActive = false
	in.ProcessAge = 3600 * time.Second
	in.CompositeQuiet = 905 * time.Second

	r := Evaluate(in)
	if r.Level != LevelCritical {
		t.Errorf("Level = %s, want critical", r.Level)
	}
}

func TestCriticalRequiresBothSignals(t *testing.T) {
	// CPU active: no matter how stale the logs are, never critical.
	in := inputs()
	in.Activity.LogLastModifiedSecondsAgo = 5000
	in.Activity.CPUActive = true
	in.ProcessAge = 3600 * time.Second
	in.CompositeQuiet = 0

	r := Evaluate(in)
	if r.Level == LevelCritical {
		t.Error("critical must require both log-quiet and cpu-low")
	}
}

func TestUnknownLogMtimeCountsAsQuiet(t *testing.T) {
	in := inputs()
	in.Processes[0].CPUPercent = 0
	in.Activity.LogLastModifiedSecondsAgo = -1
	in.Activity.CPUActive = false
	in.ProcessAge = 3600 * time.Second
	in.CompositeQuiet = 400 * time.Second

	r := Evaluate(in)
	if r.Level != LevelWarn {
		t.Errorf("Level = %s, want warn (unknown mtime is quiet)", r.Level)
	}
}

func TestCPUHotAndMemoryHighWarn(t *testing.T) {
	in := inputs()
	in.Processes[0].CPUPercent = 99
	in.Processes[0].MemoryMB = 5000
	in.ProcessAge = 3600 * time.Second

	r := Evaluate(in)
	if r.Level != LevelWarn {
		t.Errorf("Level = %s, want warn", r.Level)
	}
	if !r.CPUHot || !r.MemoryHigh {
		t.Errorf("CPUHot = %v, MemoryHigh = %v, want both true", r.CPUHot, r.MemoryHigh)
	}
}

func TestCPUHotAloneStaysOK(t *testing.T) {
	in := inputs()
	in.Processes[0].CPUPercent = 99
	in.ProcessAge = 3600 * time.Second

	r := Evaluate(in)
	if r.Level != LevelOK {
		t.Errorf("Level = %s, want ok (hot CPU alone is not a hang)", r.Level)
	}
}

func TestBoundaries(t *testing.T) {
	tests := []struct {
		name           string
		processAge     time.Duration
		compositeQuiet time.Duration
		logAge         float64
		cpuActive      bool
		diskFree       float64
		want           Level
	}{
		{
			// Grace has just expired: escalation permitted.
			name:           "processAge exactly graceWindow",
			processAge:     60 * time.Second,
			compositeQuiet: 400 * time.Second,
			logAge:         400,
			cpuActive:      false,
			diskFree:       100,
			want:           LevelWarn,
		},
		{
			// Strict >: exactly at the hang threshold is still ok.
			name:           "compositeQuiet exactly hangThreshold",
			processAge:     3600 * time.Second,
			compositeQuiet: 300 * time.Second,
			logAge:         301,
			cpuActive:      false,
			diskFree:       100,
			want:           LevelOK,
		},
		{
			// Strict >: exactly at threshold+criticalAfter is still warn.
			name:           "compositeQuiet exactly threshold plus criticalAfter",
			processAge:     3600 * time.Second,
			compositeQuiet: 900 * time.Second,
			logAge:         900,
			cpuActive:      false,
			diskFree:       100,
			want:           LevelWarn,
		},
		{
			// Strict <: exactly 5 GB free is not low.
			name:           "diskFree exactly at warning line",
			processAge:     3600 * time.Second,
			compositeQuiet: 0,
			logAge:         1,
			cpuActive:      true,
			diskFree:       5,
			want:           LevelOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := inputs()
			in.ProcessAge = tt.processAge
			in.CompositeQuiet = tt.compositeQuiet
			in.Activity.LogLastModifiedSecondsAgo = tt.logAge
			in.Activity.CPUActive = tt.cpuActive
			in.DiskFreeGB = tt.diskFree
			if !tt.cpuActive {
				in.Processes[0].CPUPercent = 0
			}

			r := Evaluate(in)
			if r.Level != tt.want {
				t.Errorf("Level = %s, want %s", r.Level, tt.want)
			}
		})
	}
}

func TestUnknownDiskIsNotLow(t *testing.T) {
	in := inputs()
	in.DiskFreeGB = -1
	r := Evaluate(in)
	if r.DiskLow {
		t.Error("unknown disk free must not count as low")
	}
}

func TestSeverityOrdering(t *testing.T) {
	if !(LevelOK.Severity() < LevelWarn.Severity() && LevelWarn.Severity() < LevelCritical.Severity()) {
		t.Error("severity ordering broken")
	}
}
