//go:build darwin

package probe

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/claudeguard/claudeguard/internal/constants"
	"github.com/claudeguard/claudeguard/internal/util"
)

// sampleOS enumerates processes via ps. macOS has no /proc; ps with an
// explicit format string is the portable listing (the same approach the
// rest of the toolkit uses for PID verification).
func (p *Prober) sampleOS() ([]ProcessSample, error) {
	// comm last: it may contain spaces, every other column is numeric.
	out, err := util.RunWithTimeout(constants.ProbeTimeout,
		"ps", "-axo", "pid=,cputime=,rss=,etime=,comm=")
	if err != nil {
		return nil, fmt.Errorf("running ps: %w", err)
	}

	var samples []ProcessSample
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		name := baseName(strings.Join(fields[4:], " "))
		if !p.matchesPrefix(name) {
			continue
		}

		samples = append(samples, ProcessSample{
			PID:           pid,
			Name:          name,
			CPUPercent:    p.cpuPercentSince(pid, parseCPUTime(fields[1])),
			MemoryMB:      parseKB(fields[2]) / 1024,
			UptimeSeconds: parseElapsed(fields[3]),
		})
	}
	return samples, nil
}

// baseName strips any path from a comm value.
func baseName(comm string) string {
	if idx := strings.LastIndex(comm, "/"); idx >= 0 {
		return comm[idx+1:]
	}
	return comm
}

// parseCPUTime parses ps cputime ([[dd-]hh:]mm:ss[.ms]) into seconds.
func parseCPUTime(s string) float64 {
	days := 0.0
	if idx := strings.Index(s, "-"); idx >= 0 {
		d, err := strconv.ParseFloat(s[:idx], 64)
		if err != nil {
			return 0
		}
		days = d
		s = s[idx+1:]
	}

	parts := strings.Split(s, ":")
	total := 0.0
	for _, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0
		}
		total = total*60 + v
	}
	return days*86400 + total
}

// parseElapsed parses ps etime into seconds; same shape as cputime.
func parseElapsed(s string) float64 { return parseCPUTime(s) }

func parseKB(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// handleCountOS counts open descriptors via lsof. Slow, hence the lazy
// Handles pass; nil on any failure or timeout.
func handleCountOS(pid int) *int {
	out, err := util.RunWithTimeout(constants.ProbeTimeout,
		"lsof", "-p", strconv.Itoa(pid))
	if err != nil {
		return nil
	}
	lines := strings.Count(string(out), "\n")
	if lines <= 1 {
		return nil
	}
	n := lines - 1 // header row
	return &n
}
