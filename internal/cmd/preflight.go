package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/claudeguard/claudeguard/internal/logman"
	"github.com/claudeguard/claudeguard/internal/store"
)

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Scan the assistant's log tree for pressure",
	Long: `Scan the assistant's log tree and report size, compressible files,
oversized files, and stale sessions. With --fix, apply the maintenance
pass: compress, trim to tail, delete stale session artifacts.`,
	RunE: runPreflight,
}

var (
	preflightFix        bool
	preflightAggressive bool
)

func init() {
	preflightCmd.Flags().BoolVar(&preflightFix, "fix", false, "Apply fixes instead of just reporting")
	preflightCmd.Flags().BoolVar(&preflightAggressive, "aggressive", false, "Halve retention and size tolerances")
	rootCmd.AddCommand(preflightCmd)
}

func runPreflight(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st := store.New(cfg, nil)
	mgr := logman.New(cfg.WatchedDir, func(e store.JournalEntry) {
		_ = st.AppendJournal(e)
	})
	opts := logman.Options{Aggressive: preflightAggressive}

	scan, err := mgr.Scan(opts)
	if err != nil {
		return err
	}
	fmt.Printf("Log tree: %d file(s), %.1f MB\n", scan.Files, scan.TotalSizeMB)
	fmt.Printf("  compressible: %d, oversized: %d, stale sessions: %d\n",
		len(scan.CompressibleFiles), len(scan.OversizedFiles), len(scan.StaleSessions))

	if !preflightFix {
		if len(scan.CompressibleFiles)+len(scan.OversizedFiles)+len(scan.StaleSessions) > 0 {
			fmt.Println("Run with --fix to apply")
		}
		return nil
	}

	report, err := mgr.Fix(opts)
	if err != nil {
		return err
	}
	fmt.Printf("Fixed: %.1f MB -> %.1f MB (compressed %d, trimmed %d, deleted %d)\n",
		report.SizeBeforeMB, report.SizeAfterMB,
		len(report.Compressed), len(report.Trimmed), len(report.Deleted))
	for _, e := range report.Errors {
		fmt.Printf("  skipped: %s\n", e)
	}
	return nil
}
