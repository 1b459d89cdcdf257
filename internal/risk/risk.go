// Package risk implements the composite hang detector.
//
// The detector is a pure function of its inputs: probes in, a HangRisk
// record out, no clock reads, no side effects. Escalation to critical
// requires two independent signals (stale log mtime AND low CPU) to hold
// past the critical threshold: a quiet logger alone means the assistant
// may be thinking, an idle-looking process alone may still be writing.
package risk

import (
	"fmt"
	"time"

	"github.com/claudeguard/claudeguard/internal/constants"
	"github.com/claudeguard/claudeguard/internal/probe"
)

// Level is the detector's three-state output.
type Level string

const (
	LevelOK       Level = "ok"
	LevelWarn     Level = "warn"
	LevelCritical Level = "critical"
)

// Severity orders levels for comparisons; higher is worse.
func (l Level) Severity() int {
	switch l {
	case LevelWarn:
		return 1
	case LevelCritical:
		return 2
	default:
		return 0
	}
}

// HangRisk is one tick's detector output.
type HangRisk struct {
	Level                 Level    `json:"level"`
	NoActivitySeconds     float64  `json:"noActivitySeconds"`
	CPULowSeconds         float64  `json:"cpuLowSeconds"`
	CPUHot                bool     `json:"cpuHot"`
	MemoryHigh            bool     `json:"memoryHigh"`
	DiskLow               bool     `json:"diskLow"`
	GraceRemainingSeconds float64  `json:"graceRemainingSeconds"`
	Reasons               []string `json:"reasons,omitempty"`
}

// Inputs carries everything the detector needs for one evaluation.
// The supervisor computes the carried counters; the detector never reads
// a clock itself.
type Inputs struct {
	Processes []probe.ProcessSample
	Activity  probe.ActivitySignals

	// DiskFreeGB is negative when unknown.
	DiskFreeGB float64

	// HangThreshold arms the composite quiet detector.
	HangThreshold time.Duration

	// ProcessAge is how long processes have been continuously observed.
	ProcessAge time.Duration

	// CompositeQuiet is how long log-quiet and cpu-low have held together.
	CompositeQuiet time.Duration
}

// Evaluate runs the detector rules in their fixed order.
func Evaluate(in Inputs) HangRisk {
	hangSecs := in.HangThreshold.Seconds()
	quietSecs := in.CompositeQuiet.Seconds()

	graceRemaining := constants.GraceWindow.Seconds() - in.ProcessAge.Seconds()
	if graceRemaining < 0 {
		graceRemaining = 0
	}

	logAge := in.Activity.LogLastModifiedSecondsAgo
	logQuiet := logAge < 0 || logAge > hangSecs
	cpuLow := !in.Activity.CPUActive

	r := HangRisk{
		Level:                 LevelOK,
		GraceRemainingSeconds: graceRemaining,
		DiskLow:               in.DiskFreeGB >= 0 && in.DiskFreeGB < constants.DiskFreeWarningGB,
	}
	if logQuiet && logAge >= 0 {
		r.NoActivitySeconds = logAge
	}
	if cpuLow {
		r.CPULowSeconds = quietSecs
	}
	for _, p := range in.Processes {
		if p.CPUPercent > constants.CPUHotThresholdPercent {
			r.CPUHot = true
		}
		if p.MemoryMB > constants.MemoryHighThresholdMB {
			r.MemoryHigh = true
		}
	}

	switch {
	case graceRemaining > 0:
		// Grace shields hang-based escalation only; disk pressure is
		// real regardless of how young the process is.
		if r.DiskLow {
			r.Level = LevelWarn
		}

	case logQuiet && cpuLow && quietSecs > hangSecs:
		if quietSecs > hangSecs+constants.CriticalAfter.Seconds() {
			r.Level = LevelCritical
		} else {
			r.Level = LevelWarn
		}

	case r.DiskLow:
		r.Level = LevelWarn

	case r.CPUHot && r.MemoryHigh:
		r.Level = LevelWarn
	}

	r.Reasons = reasons(r, in, logQuiet, cpuLow, quietSecs)
	return r
}

// reasons builds the one-line-per-true-condition list.
func reasons(r HangRisk, in Inputs, logQuiet, cpuLow bool, quietSecs float64) []string {
	var out []string
	if r.GraceRemainingSeconds > 0 {
		out = append(out, fmt.Sprintf("Startup grace window: %.0fs remaining", r.GraceRemainingSeconds))
	}
	if logQuiet && cpuLow && quietSecs > in.HangThreshold.Seconds() {
		out = append(out, fmt.Sprintf("No activity for %.0fs (logs quiet, CPU idle)", quietSecs))
	} else if logQuiet && in.Activity.LogLastModifiedSecondsAgo >= 0 {
		out = append(out, fmt.Sprintf("Log tree quiet for %.0fs", in.Activity.LogLastModifiedSecondsAgo))
	}
	if r.DiskLow {
		out = append(out, fmt.Sprintf("Disk free below %.0f GB (%.1f GB left)", constants.DiskFreeWarningGB, in.DiskFreeGB))
	}
	if r.CPUHot {
		out = append(out, fmt.Sprintf("CPU above %.0f%% on a watched process", constants.CPUHotThresholdPercent))
	}
	if r.MemoryHigh {
		out = append(out, fmt.Sprintf("Resident memory above %.0f MB on a watched process", constants.MemoryHighThresholdMB))
	}
	return out
}
