package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/claudeguard/claudeguard/internal/guardian"
	"github.com/claudeguard/claudeguard/internal/store"
	"github.com/claudeguard/claudeguard/internal/style"
)

var recoveryCmd = &cobra.Command{
	Use:   "recovery",
	Short: "Show the recovery plan for the current state",
	RunE:  runRecovery,
}

func init() {
	rootCmd.AddCommand(recoveryCmd)
}

func runRecovery(cmd *cobra.Command, args []string) error {
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

	plan := guardian.Plan(state)
	fmt.Printf("%s %s\n", style.Header("Status:"), style.Level(string(plan.Status)))
	for _, step := range plan.Steps {
		tool := ""
		if step.Tool != "" {
			tool = fmt.Sprintf(" [%s]", step.Tool)
		}
		fmt.Printf("%d. %s%s\n   %s\n", step.Order, step.Action, tool, style.Dim(step.Detail))
	}
	return nil
}
