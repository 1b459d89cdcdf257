package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/claudeguard/claudeguard/internal/guardian"
	"github.com/claudeguard/claudeguard/internal/store"
	"github.com/claudeguard/claudeguard/internal/style"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current guardian snapshot",
	Long: `Show the current guardian snapshot: watched processes, activity, hang
risk, the active incident, the concurrency budget, and the attention
level.

Reads the daemon's persisted snapshot when it is fresh; otherwise probes
live.`,
	RunE: runStatus,
}

var statusJSON bool

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Machine-readable output")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st := store.New(cfg, nil)
	state, err := st.LoadState()
	if err != nil {
		return err
	}
	if state == nil || !state.Fresh(time.Now()) {
		state = guardian.LiveSnapshot(cfg, st, nil)
	}

	if statusJSON {
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	printStatus(state)
	return nil
}

func printStatus(state *store.GuardianState) {
	fmt.Printf("%s %s  %s\n", style.Header("Risk:"), style.Level(string(state.HangRisk.Level)),
		style.Dim(fmt.Sprintf("(as of %s)", state.UpdatedAt.Format(time.Kitchen))))
	for _, r := range state.HangRisk.Reasons {
		fmt.Printf("  - %s\n", r)
	}

	if len(state.Processes) == 0 {
		fmt.Println("Processes: none watched")
	} else {
		fmt.Printf("%s\n", style.Header("Processes:"))
		for _, p := range state.Processes {
			handles := "-"
			if p.HandleCount != nil {
				handles = fmt.Sprintf("%d", *p.HandleCount)
			}
			fmt.Printf("  %-7d %-16s cpu %5.1f%%  mem %7.1f MB  up %6.0fs  handles %s\n",
				p.PID, p.Name, p.CPUPercent, p.MemoryMB, p.UptimeSeconds, handles)
		}
	}

	fmt.Printf("%s disk free %.1f GB, log tree %.1f MB, quiet %.0fs\n",
		style.Header("Signals:"), state.DiskFreeGB, state.LogTreeSizeMB, state.CompositeQuietSeconds)

	if inc := state.ActiveIncident; inc != nil {
		bundled := "no bundle"
		if inc.BundleCaptured {
			bundled = "bundled"
		}
		fmt.Printf("%s %s (peak %s, %s): %s\n", style.Header("Incident:"),
			inc.ID, style.Level(string(inc.PeakLevel)), bundled, inc.Reason)
	}

	if bs := state.BudgetSummary; bs != nil {
		fmt.Printf("%s %d/%d slots in use (cap %d of %d)",
			style.Header("Budget:"), bs.SlotsInUse, bs.CurrentCap, bs.CurrentCap, bs.BaseCap)
		if bs.HysteresisRemainingSeconds > 0 {
			fmt.Printf(", restores in %.0fs", bs.HysteresisRemainingSeconds)
		}
		fmt.Println()
	}

	fmt.Printf("%s %s", style.Header("Attention:"), style.Level(string(state.Attention.Level)))
	if state.Attention.Reason != "" {
		fmt.Printf(": %s", state.Attention.Reason)
	}
	fmt.Println()
	if len(state.RecommendedActions) > 0 {
		fmt.Printf("  %s\n", strings.Join(state.RecommendedActions, "\n  "))
	}
}
