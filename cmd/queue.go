package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newQueueCmd creates the 'queue' subcommand for managing the work queue.
func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Manages the crawl work queue",
	}
	cmd.AddCommand(newQueuePushCmd())
	return cmd
}

func newQueuePushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push [terms...]",
		Short: "Appends seed terms to the work queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("at least one term required")
			}
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			for _, term := range args {
				if err := a.Queue.Push(cmd.Context(), term); err != nil {
					return err
				}
			}
			a.Logger.Info("terms queued", zap.Int("count", len(args)))
			return nil
		},
	}
}
