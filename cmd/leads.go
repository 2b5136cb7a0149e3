package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newLeadsCmd creates the 'leads' subcommand group over the dedup store.
func newLeadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leads",
		Short: "Inspects and manages collected leads",
	}
	cmd.AddCommand(newLeadsStatsCmd())
	cmd.AddCommand(newLeadsExportCmd())
	cmd.AddCommand(newLeadsClearCmd())
	return cmd
}

func newLeadsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Prints the number of collected leads",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			count, err := a.Leads.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d leads collected\n", count)
			return nil
		},
	}
}

func newLeadsExportCmd() *cobra.Command {
	var seed string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Exports collected leads to a CSV artifact",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res, err := a.Exporter.Export(cmd.Context(), seed)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d leads to %s\n", res.Leads, res.URI)
			return nil
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", "restrict the export to one seed term")
	return cmd
}

func newLeadsClearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Deletes every collected lead",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear leads without --yes")
			}
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			count, err := a.Leads.Count(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Leads.DeleteAll(cmd.Context()); err != nil {
				return err
			}
			a.Logger.Info("leads cleared", zap.Int("deleted", count))
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
