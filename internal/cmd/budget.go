package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/claudeguard/claudeguard/internal/exitcode"
	"github.com/claudeguard/claudeguard/internal/store"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Inspect and use the concurrency budget",
	RunE:  requireSubcommand,
	Long: `Inspect and use the advisory concurrency budget.

The budget does not block or kill work. Acquire a lease before heavy
operations and release it when done; risk transitions reduce the cap and
sustained ok restores it.`,
}

var budgetGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the budget summary",
	RunE:  runBudgetGet,
}

var budgetAcquireCmd = &cobra.Command{
	Use:   "acquire",
	Short: "Acquire concurrency slots",
	RunE:  runBudgetAcquire,
}

var budgetReleaseCmd = &cobra.Command{
	Use:   "release <lease-id>",
	Short: "Release a lease",
	Args:  cobra.ExactArgs(1),
	RunE:  runBudgetRelease,
}

var (
	budgetSlots  int
	budgetTTL    int
	budgetReason string
)

func init() {
	budgetAcquireCmd.Flags().IntVar(&budgetSlots, "slots", 1, "Slots to acquire")
	budgetAcquireCmd.Flags().IntVar(&budgetTTL, "ttl", 300, "Lease lifetime in seconds")
	budgetAcquireCmd.Flags().StringVar(&budgetReason, "reason", "", "What the slots are for")

	budgetCmd.AddCommand(budgetGetCmd)
	budgetCmd.AddCommand(budgetAcquireCmd)
	budgetCmd.AddCommand(budgetReleaseCmd)
	rootCmd.AddCommand(budgetCmd)
}

func runBudgetGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st := store.New(cfg, nil)
	b, err := st.LoadBudget()
	if err != nil {
		return err
	}
	now := time.Now()
	if expired := b.ExpireLeases(now); expired > 0 {
		if err := st.SaveBudget(b); err != nil {
			return err
		}
	}

	s := b.Summarize(now)
	fmt.Printf("Cap: %d of %d (in use %d, available %d)\n",
		s.CurrentCap, s.BaseCap, s.SlotsInUse, s.SlotsAvailable)
	if s.CapSetByRisk != "" {
		fmt.Printf("Reduced by %s risk", s.CapSetByRisk)
		if s.HysteresisRemainingSeconds > 0 {
			fmt.Printf("; restores in %.0fs of sustained ok", s.HysteresisRemainingSeconds)
		}
		fmt.Println()
	}
	for _, l := range s.ActiveLeases {
		fmt.Printf("  lease %s: %d slot(s), %q, expires %s\n",
			l.ID, l.Slots, l.Reason, l.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func runBudgetAcquire(cmd *cobra.Command, args []string) error {
	if budgetReason == "" {
		return exitcode.Usagef("--reason is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st := store.New(cfg, nil)
	b, err := st.LoadBudget()
	if err != nil {
		return err
	}
	now := time.Now()
	b.ExpireLeases(now)

	lease, err := b.Acquire(budgetSlots, time.Duration(budgetTTL)*time.Second, budgetReason, now)
	if err != nil {
		fmt.Printf("Denied: %v\n", err)
		return nil
	}
	if err := st.SaveBudget(b); err != nil {
		return err
	}
	fmt.Printf("Granted: lease %s for %d slot(s), expires %s\n",
		lease.ID, lease.Slots, lease.ExpiresAt.Format(time.RFC3339))
	return nil
}

func runBudgetRelease(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st := store.New(cfg, nil)
	b, err := st.LoadBudget()
	if err != nil {
		return err
	}
	if !b.Release(args[0]) {
		fmt.Printf("Not found: %s\n", args[0])
		return nil
	}
	if err := st.SaveBudget(b); err != nil {
		return err
	}
	fmt.Printf("Released: %s\n", args[0])
	return nil
}
