package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func eventsCmd() *cobra.Command {
	var limit int

	c := &cobra.Command{
		Use:   "events",
		Short: "List recently announced listings",
		Long: "Lists the most recent new-listing and price-change events, newest\n" +
			"first. Events whose notification failed are marked as undelivered.",
		Example: `  lwctl events
  lwctl events --limit 50 --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			events, err := newClient().Events(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(cmd.OutOrStdout(), events)
			}
			if len(events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No events yet.")
				return nil
			}
			return printEvents(cmd.OutOrStdout(), events)
		},
	}
	c.Flags().IntVar(&limit, "limit", 20, "maximum number of events")

	return c
}
