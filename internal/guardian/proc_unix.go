//go:build linux || darwin

package guardian

import (
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/claudeguard/claudeguard/internal/constants"
	"github.com/claudeguard/claudeguard/internal/util"
)

// daemonSignals returns the signals that stop the daemon.
func daemonSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}
}

// processAlive reports whether pid exists. Signal 0 probes without
// delivering anything.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// terminateProcess sends SIGTERM for a graceful stop.
func terminateProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}

// isGuardianDaemon verifies a PID belongs to a `cg daemon run` process,
// guarding against PID reuse after a crash left a stale pidfile.
func isGuardianDaemon(pid int) bool {
	out, err := util.RunWithTimeout(constants.ProbeTimeout,
		"ps", "-p", strconv.Itoa(pid), "-o", "command=")
	if err != nil {
		return false
	}
	cmdline := strings.TrimSpace(string(out))
	return strings.Contains(cmdline, "cg") && strings.Contains(cmdline, "daemon") &&
		strings.Contains(cmdline, "run")
}
