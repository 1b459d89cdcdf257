// Package probe acquires the guardian's raw signals: assistant process
// samples, log-tree activity, and disk free space.
//
// Probes are best-effort by contract. A probe failure yields an empty or
// null result for its field and never escapes into the polling tick.
package probe

import (
	"strings"
	"time"

	"github.com/claudeguard/claudeguard/internal/constants"
)

// ProcessSample is one watched process observed during a poll. Samples are
// produced fresh each tick and never retained across polls.
type ProcessSample struct {
	PID           int      `json:"pid"`
	Name          string   `json:"name"`
	CPUPercent    float64  `json:"cpuPercent"`
	MemoryMB      float64  `json:"memoryMB"`
	UptimeSeconds float64  `json:"uptimeSeconds"`
	HandleCount   *int     `json:"handleCount,omitempty"`
}

// ActivitySignals summarizes how recently the assistant showed signs of
// life, and through which channels.
type ActivitySignals struct {
	// LogLastModifiedSecondsAgo is the age of the newest file in the log
	// tree, or -1 when unknown (empty or unreadable tree).
	LogLastModifiedSecondsAgo float64 `json:"logLastModifiedSecondsAgo"`

	// CPUActive is true when any watched process is above the CPU-low
	// threshold.
	CPUActive bool `json:"cpuActive"`

	// Sources lists which signals contributed ("log-mtime", "cpu").
	Sources []string `json:"sources"`
}

// cpuTimes records a previous CPU-time observation for one PID, used to
// compute short-window utilization on the next sample.
type cpuTimes struct {
	total   float64 // cumulative CPU seconds
	sampled time.Time
}

// Prober samples assistant processes. It keeps per-PID CPU accounting
// between polls; everything else is stateless.
type Prober struct {
	prefix string
	prev   map[int]cpuTimes
	now    func() time.Time
}

// NewProber creates a prober watching processes whose name begins with
// prefix.
func NewProber(prefix string) *Prober {
	if prefix == "" {
		prefix = constants.ProcessNamePrefix
	}
	return &Prober{
		prefix: prefix,
		prev:   make(map[int]cpuTimes),
		now:    time.Now,
	}
}

// Sample enumerates watched processes and returns fresh samples. Handle
// counts are not populated here; see Handles, which may be expensive.
func (p *Prober) Sample() ([]ProcessSample, error) {
	samples, err := p.sampleOS()
	if err != nil {
		return nil, err
	}

	// Drop accounting for PIDs that disappeared so the map cannot grow
	// without bound across assistant restarts.
	seen := make(map[int]bool, len(samples))
	for _, s := range samples {
		seen[s.PID] = true
	}
	for pid := range p.prev {
		if !seen[pid] {
			delete(p.prev, pid)
		}
	}

	return samples, nil
}

// Handles returns the open-handle count for each pid, nil per-PID on
// failure. Separate from Sample because the underlying calls (fd listing,
// lsof) can be slow; callers attach the counts late in the tick.
func (p *Prober) Handles(pids []int) map[int]*int {
	out := make(map[int]*int, len(pids))
	for _, pid := range pids {
		out[pid] = handleCountOS(pid)
	}
	return out
}

// matchesPrefix reports whether a process name selects it for watching.
func (p *Prober) matchesPrefix(name string) bool {
	return strings.HasPrefix(name, p.prefix)
}

// cpuPercentSince computes short-window CPU utilization for one PID given
// its cumulative CPU seconds now. The first observation of a PID yields 0;
// a counter that went backwards (PID reuse) resets accounting.
func (p *Prober) cpuPercentSince(pid int, totalCPU float64) float64 {
	now := p.now()
	prev, ok := p.prev[pid]
	p.prev[pid] = cpuTimes{total: totalCPU, sampled: now}

	if !ok || totalCPU < prev.total {
		return 0
	}
	elapsed := now.Sub(prev.sampled).Seconds()
	if elapsed <= 0 {
		return 0
	}
	pct := (totalCPU - prev.total) / elapsed * 100
	if pct < 0 {
		return 0
	}
	return pct
}

// CPUActive reports whether any sample is above the CPU-low threshold.
func CPUActive(samples []ProcessSample) bool {
	for _, s := range samples {
		if s.CPUPercent > constants.CPULowThresholdPercent {
			return true
		}
	}
	return false
}
