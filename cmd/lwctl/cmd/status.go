package cmd

import (
	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show poll loop status",
		Example: `  lwctl status
  lwctl status --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := newClient().Status(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(cmd.OutOrStdout(), st)
			}
			return printStatus(cmd.OutOrStdout(), st)
		},
	}
}
