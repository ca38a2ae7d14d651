package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/donaldgifford/listing-watcher/internal/engine"
)

func queriesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "queries",
		Short: "Validate the config and list tracked queries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			long := make(map[string]bool)
			for _, q := range engine.LongQueries(cfg.Queries) {
				long[q] = true
			}

			out := cmd.OutOrStdout()
			for _, q := range cfg.Queries {
				if long[q] {
					fmt.Fprintf(out, "- %s  (warning: %d chars, eBay truncates after %d)\n",
						q, len([]rune(q)), engine.MaxQueryLength)
					continue
				}
				fmt.Fprintf(out, "- %s\n", q)
			}
			fmt.Fprintf(out, "\n%d queries, polled every %s, snapshot %s/%s\n",
				len(cfg.Queries), cfg.Poll.Interval, cfg.Snapshot.Mode, cfg.Snapshot.Backend)
			return nil
		},
	}
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func joinKinds(kinds []string) string {
	return strings.Join(kinds, ",")
}
