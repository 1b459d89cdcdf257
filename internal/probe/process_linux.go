//go:build linux

package probe

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// jiffiesPerSecond is USER_HZ, fixed at 100 on every Linux the guardian
// targets. Reading it via sysconf is not worth a cgo dependency.
const jiffiesPerSecond = 100.0

// sampleOS enumerates /proc and samples processes whose comm matches the
// watched prefix. A process that exits mid-walk is skipped, not an error.
func (p *Prober) sampleOS() ([]ProcessSample, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("reading /proc: %w", err)
	}

	bootTime, _ := readBootTime()

	var samples []ProcessSample
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid <= 0 {
			continue
		}

		comm, totalCPU, startJiffies, ok := readProcStat(pid)
		if !ok || !p.matchesPrefix(comm) {
			continue
		}

		s := ProcessSample{
			PID:        pid,
			Name:       comm,
			CPUPercent: p.cpuPercentSince(pid, totalCPU),
			MemoryMB:   readResidentMB(pid),
		}
		if bootTime > 0 {
			started := bootTime + startJiffies/jiffiesPerSecond
			s.UptimeSeconds = time.Now().Sub(time.Unix(int64(started), 0)).Seconds()
			if s.UptimeSeconds < 0 {
				s.UptimeSeconds = 0
			}
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// readProcStat parses /proc/<pid>/stat for comm, cumulative CPU seconds,
// and the process start time in jiffies. comm may contain spaces and
// parens, so the parse splits on the last ')'.
func readProcStat(pid int) (comm string, totalCPU, startJiffies float64, ok bool) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return "", 0, 0, false
	}
	content := string(data)

	closeIdx := strings.LastIndex(content, ")")
	openIdx := strings.Index(content, "(")
	if openIdx < 0 || closeIdx < 0 || closeIdx <= openIdx {
		return "", 0, 0, false
	}
	comm = content[openIdx+1 : closeIdx]

	rest := strings.Fields(content[closeIdx+2:])
	if len(rest) < 20 {
		return "", 0, 0, false
	}

	// Fields after comm: state(0) ppid(1) ... utime(11) stime(12) ...
	// starttime(19), all zero-indexed within rest.
	utime, _ := strconv.ParseFloat(rest[11], 64)
	stime, _ := strconv.ParseFloat(rest[12], 64)
	start, _ := strconv.ParseFloat(rest[19], 64)

	return comm, (utime + stime) / jiffiesPerSecond, start, true
}

// readResidentMB reads VmRSS from /proc/<pid>/status. Returns 0 when
// unavailable (kernel threads, races with exit).
func readResidentMB(pid int) float64 {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return 0
		}
		return kb / 1024
	}
	return 0
}

// readBootTime parses btime from /proc/stat (seconds since epoch).
func readBootTime() (float64, error) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "btime ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		return strconv.ParseFloat(fields[1], 64)
	}
	return 0, fmt.Errorf("btime not found in /proc/stat")
}

// handleCountOS counts entries in /proc/<pid>/fd. Returns nil when the
// directory is unreadable (permissions, exited process).
func handleCountOS(pid int) *int {
	entries, err := os.ReadDir(filepath.Join("/proc", strconv.Itoa(pid), "fd"))
	if err != nil {
		return nil
	}
	n := len(entries)
	return &n
}
