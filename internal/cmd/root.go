// Package cmd implements the cg command tree.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/claudeguard/claudeguard/internal/config"
	"github.com/claudeguard/claudeguard/internal/exitcode"
)

var rootCmd = &cobra.Command{
	Use:   "cg",
	Short: "Reliability guardian for a long-running Claude Code process",
	Long: `cg watches a coding assistant for log bloat, disk pressure, hangs, and
resource exhaustion, captures evidence when things degrade, and exposes a
self-monitoring tool surface so the assistant can remediate its own
environment mid-session.

The guardian is strictly local and hands-off: it opens no sockets, sends
no telemetry, and never signals or restarts the watched process. Log
rotation compresses, log trimming keeps the tail; user content is never
deleted.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitcode.Code(err)
	}
	return exitcode.Success
}

// loadConfig resolves configuration for a command. Config problems are
// operator errors: a malformed guardian.toml is theirs to fix.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, exitcode.Usage(err)
	}
	return cfg, nil
}
