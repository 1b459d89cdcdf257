package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/claudeguard/claudeguard/internal/bundle"
	"github.com/claudeguard/claudeguard/internal/guardian"
	"github.com/claudeguard/claudeguard/internal/logman"
	"github.com/claudeguard/claudeguard/internal/store"
)

var nudgeCmd = &cobra.Command{
	Use:   "nudge",
	Short: "Run deterministic safe remediation",
	Long: `Run deterministic safe remediation: fix log pressure if thresholds are
already breached, and capture evidence if an open incident has no bundle
yet. Idempotent; a second run with unchanged state does nothing.`,
	RunE: runNudge,
}

func init() {
	rootCmd.AddCommand(nudgeCmd)
}

func runNudge(cmd *cobra.Command, args []string) error {
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

	acted := false

	if state.HangRisk.DiskLow || state.LogTreeSizeMB > float64(cfg.MaxLogDirMB) {
		mgr := logman.New(cfg.WatchedDir, func(e store.JournalEntry) {
			_ = st.AppendJournal(e)
		})
		report, err := mgr.Fix(logman.Options{Aggressive: state.HangRisk.DiskLow})
		if err != nil {
			return err
		}
		fmt.Printf("Log fix: %.1f MB -> %.1f MB\n", report.SizeBeforeMB, report.SizeAfterMB)
		acted = true
	}

	if inc := state.ActiveIncident; inc != nil && !inc.BundleCaptured {
		path, err := bundle.NewWriter(cfg).Write("", state)
		if err != nil {
			return err
		}
		// Persist the captured flag so a repeat nudge sees exactly one
		// bundle per incident.
		inc.BundleCaptured = true
		inc.BundlePath = path
		if err := st.SaveState(state); err != nil {
			return err
		}
		fmt.Printf("Captured bundle for incident %s: %s\n", inc.ID, path)
		acted = true
	}

	if !acted {
		fmt.Println("Nothing to do: thresholds are clear and no incident needs evidence")
	}
	return nil
}
