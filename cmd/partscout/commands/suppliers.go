package commands

import (
	"github.com/spf13/cobra"

	"github.com/FranksOps/partscout/internal/report"
)

func newSuppliersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "suppliers",
		Short: "Lists the configured suppliers in the order they are searched.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return report.WriteSuppliers(cmd.OutOrStdout(), a.cfg.Descriptors())
		},
	}
}
