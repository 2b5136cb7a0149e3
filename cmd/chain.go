package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/appscout/appscout/internal/scout"
)

// newChainCmd creates the 'chain' subcommand draining the work queue.
func newChainCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Runs crawls back to back until the work queue is empty",
		Long: `Pops seed terms from the work queue and runs one crawl per term.
The chain stops when the queue empties, a crawl is canceled, or the
process is interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChainCommand(cmd, owner)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "cli", "owner of the task slot")
	return cmd
}

func runChainCommand(cmd *cobra.Command, owner string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := a.Chain.RunChain(ctx, scout.OwnerID(owner))
	if err != nil {
		return err
	}

	a.Logger.Info("chain finished",
		zap.Int("crawls", report.Crawls),
		zap.Int("leads", report.Leads),
		zap.String("reason", report.Reason),
	)
	return nil
}
