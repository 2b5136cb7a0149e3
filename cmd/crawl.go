package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/appscout/appscout/internal/scout"
)

// newCrawlCmd creates the 'crawl' subcommand running one crawl to completion.
func newCrawlCmd() *cobra.Command {
	var (
		seed  string
		owner string
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl for a seed term",
		Long: `Expands the seed term, sweeps the catalog across all configured
regions and collects deduplicated leads. Ctrl-C requests a cooperative
stop; partial results are kept and exported.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawlCommand(cmd, seed, owner)
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", "seed term to expand and crawl")
	cmd.Flags().StringVar(&owner, "owner", "cli", "owner of the task slot")
	_ = cmd.MarkFlagRequired("seed")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, seed, owner string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handle, err := a.Orchestrator.Start(seed, scout.OwnerID(owner))
	if err != nil {
		return fmt.Errorf("start crawl: %w", err)
	}

	// Translate the interrupt into a cooperative stop and keep waiting; the
	// crawl finishes its current item and returns partial results.
	go func() {
		<-ctx.Done()
		if err := a.Orchestrator.Stop(scout.OwnerID(owner), scout.OwnerID(owner)); err != nil {
			a.Logger.Debug("stop after interrupt", zap.Error(err))
		}
	}()

	batch, err := handle.Wait(cmd.Context())
	if err != nil {
		return err
	}

	a.Logger.Info("crawl finished",
		zap.String("crawl_id", batch.CrawlID),
		zap.Int("leads", len(batch.Leads)),
		zap.Int("items_scanned", batch.ItemsScanned),
		zap.Bool("canceled", batch.Canceled),
	)
	return nil
}
