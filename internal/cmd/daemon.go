package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/claudeguard/claudeguard/internal/guardian"
	"github.com/claudeguard/claudeguard/internal/store"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the guardian daemon",
	RunE:  requireSubcommand,
	Long: `Manage the guardian background daemon.

The daemon polls every 2 seconds: it samples the watched processes, the
log tree, and disk free space, runs the hang detector, tracks incidents,
adjusts the concurrency budget, and persists a snapshot for the status
and RPC surfaces.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the background",
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon liveness",
	RunE:  runDaemonStatus,
}

var daemonLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View the daemon log",
	RunE:  runDaemonLogs,
}

var daemonRunCmd = &cobra.Command{
	Use:    "run",
	Short:  "Run the daemon in the foreground (internal)",
	Hidden: true,
	RunE:   runDaemonRun,
}

var daemonLogLines int

func init() {
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonLogsCmd)
	daemonCmd.AddCommand(daemonRunCmd)

	daemonLogsCmd.Flags().IntVarP(&daemonLogLines, "lines", "n", 50, "Number of lines to show")

	rootCmd.AddCommand(daemonCmd)
}

func requireSubcommand(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if running, pid, _ := guardian.IsRunning(cfg); running {
		fmt.Printf("Daemon already running (PID %d)\n", pid)
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable: %w", err)
	}

	child := exec.Command(exe, "daemon", "run")
	child.Stdout = nil
	child.Stderr = nil
	child.Stdin = nil
	if err := child.Start(); err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}
	// Detach: the child holds the flock and writes its own pidfile.
	if err := child.Process.Release(); err != nil {
		return fmt.Errorf("detaching daemon: %w", err)
	}

	// Give it a moment to take the lock so we can report honestly.
	for i := 0; i < 20; i++ {
		if running, pid, _ := guardian.IsRunning(cfg); running {
			fmt.Printf("Daemon started (PID %d)\n", pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	fmt.Println("Daemon launched; check 'cg daemon status'")
	return nil
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := guardian.StopDaemon(cfg); err != nil {
		return err
	}
	fmt.Println("Daemon stopped")
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	running, pid, err := guardian.IsRunning(cfg)
	if err != nil {
		return err
	}
	if !running {
		fmt.Println("Daemon: not running")
		return nil
	}
	fmt.Printf("Daemon: running (PID %d)\n", pid)

	st := store.New(cfg, nil)
	if state, err := st.LoadState(); err == nil && state != nil {
		fmt.Printf("Last poll: %s ago\n", time.Since(state.UpdatedAt).Round(time.Second))
	}
	return nil
}

func runDaemonLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := guardian.LogPath(cfg)
	lines := store.TailLines(path, daemonLogLines)
	if lines == nil {
		fmt.Println("No daemon log yet")
		return nil
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}

func runDaemonRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	d, err := guardian.NewDaemon(cfg)
	if err != nil {
		return err
	}
	return d.Run()
}
