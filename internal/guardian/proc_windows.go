//go:build windows

package guardian

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/claudeguard/claudeguard/internal/constants"
	"github.com/claudeguard/claudeguard/internal/util"
)

// daemonSignals returns the signals that stop the daemon. Windows only
// delivers Interrupt to console processes.
func daemonSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// processAlive reports whether pid exists.
func processAlive(pid int) bool {
	out, err := util.RunWithTimeout(constants.ProbeTimeout,
		"tasklist", "/FI", fmt.Sprintf("PID eq %d", pid), "/NH")
	if err != nil {
		return false
	}
	return strings.Contains(string(out), strconv.Itoa(pid))
}

// terminateProcess asks the process to exit. taskkill without /F is the
// graceful form.
func terminateProcess(pid int) error {
	_, err := util.RunWithTimeout(constants.ProbeTimeout,
		"taskkill", "/PID", strconv.Itoa(pid))
	return err
}

// isGuardianDaemon verifies a PID belongs to a cg process, guarding
// against PID reuse after a crash left a stale pidfile.
func isGuardianDaemon(pid int) bool {
	out, err := util.RunWithTimeout(constants.ProbeTimeout,
		"tasklist", "/FI", fmt.Sprintf("PID eq %d", pid), "/NH")
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(out)), "cg")
}
