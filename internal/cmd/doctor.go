package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/claudeguard/claudeguard/internal/bundle"
	"github.com/claudeguard/claudeguard/internal/guardian"
	"github.com/claudeguard/claudeguard/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Capture a diagnostic bundle",
	Long: `Capture a diagnostic bundle: system info, the current process
snapshot, journal and incident tails, and the trailing lines of the most
recent session logs, packaged as a single zip suitable for attaching to
a bug report.`,
	RunE: runDoctor,
}

var doctorOutput string

func init() {
	doctorCmd.Flags().StringVarP(&doctorOutput, "output", "o", "", "Archive path (default: data dir)")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
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

	path, err := bundle.NewWriter(cfg).Write(doctorOutput, state)
	if err != nil {
		return err
	}
	fmt.Printf("Bundle written: %s\n", path)
	return nil
}
