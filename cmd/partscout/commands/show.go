package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FranksOps/partscout/internal/report"
	"github.com/FranksOps/partscout/internal/storage"
)

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <query>",
		Short: "Prints the most recently stored ranked results for a query.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := strings.TrimSpace(strings.Join(args, " "))
			out := cmd.OutOrStdout()

			backend, err := openBackends(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer backend.Close()

			reader, ok := backend.(storage.Reader)
			if !ok {
				return errors.New("none of the configured backends can read results back")
			}

			run, err := reader.Latest(cmd.Context(), q)
			if errors.Is(err, storage.ErrNotFound) {
				fmt.Fprintf(out, "No stored results for %q.\n", q)
				return nil
			}
			if err != nil {
				return err
			}

			if !run.CreatedAt.IsZero() {
				fmt.Fprintf(out, "Results for %q from %s\n", q, run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return report.WriteListings(out, run.Listings)
		},
	}
}
