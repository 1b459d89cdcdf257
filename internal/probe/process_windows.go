//go:build windows

package probe

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/claudeguard/claudeguard/internal/constants"
	"github.com/claudeguard/claudeguard/internal/util"
)

// sampleOS enumerates processes via tasklist CSV output. CPU time and
// uptime are not available from tasklist; those fields stay zero and the
// composite detector leans on the log-mtime signal instead.
func (p *Prober) sampleOS() ([]ProcessSample, error) {
	out, err := util.RunWithTimeout(constants.ProbeTimeout,
		"tasklist", "/FO", "CSV", "/NH")
	if err != nil {
		return nil, fmt.Errorf("running tasklist: %w", err)
	}

	records, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing tasklist output: %w", err)
	}

	var samples []ProcessSample
	for _, rec := range records {
		if len(rec) < 5 {
			continue
		}
		name := strings.TrimSuffix(rec[0], ".exe")
		if !p.matchesPrefix(name) {
			continue
		}
		pid, err := strconv.Atoi(rec[1])
		if err != nil {
			continue
		}
		samples = append(samples, ProcessSample{
			PID:      pid,
			Name:     name,
			MemoryMB: parseMemUsage(rec[4]),
		})
	}
	return samples, nil
}

// parseMemUsage parses a tasklist mem column like "123,456 K" into MB.
func parseMemUsage(s string) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "K"))
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, ".", "")
	kb, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return kb / 1024
}

// handleCountOS reads the handle count from the OS process record via
// PowerShell. Nil on any failure or timeout.
func handleCountOS(pid int) *int {
	out, err := util.RunWithTimeout(constants.ProbeTimeout,
		"powershell", "-NoProfile", "-Command",
		fmt.Sprintf("(Get-Process -Id %d).HandleCount", pid))
	if err != nil {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return nil
	}
	return &n
}
