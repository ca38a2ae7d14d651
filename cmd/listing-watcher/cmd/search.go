package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	domain "github.com/donaldgifford/listing-watcher/pkg/types"
)

func searchCommand() *cobra.Command {
	var asJSON bool

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Fetch one page of results for a query",
		Long: "Obtains a credential, issues a single search request and prints the\n" +
			"items exactly as the poll loop would see them. Nothing is stored or\n" +
			"notified.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			ctx := cmd.Context()
			cred, err := newCredentialManager(&cfg.Ebay, log).EnsureValid(ctx, nil)
			if err != nil {
				return err
			}
			items, err := newBrowseClient(&cfg.Ebay, log).Fetch(ctx, args[0], cred)
			if err != nil {
				return err
			}

			if asJSON {
				reports := make([]domain.ItemReport, 0, len(items))
				for i := range items {
					reports = append(reports, domain.NewItemReport(&items[i]))
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(reports)
			}
			return printItems(cmd.OutOrStdout(), items)
		},
	}
	searchCmd.Flags().BoolVar(&asJSON, "json", false, "print items as JSON")

	return searchCmd
}

func printItems(w io.Writer, items []domain.Item) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Title", "BIN", "Bid", "Type")
	for i := range items {
		r := domain.NewItemReport(&items[i])
		row := []string{r.ID, shorten(r.Title, 50), dash(r.SalePrice), dash(r.BidPrice), dash(joinKinds(r.ListingKinds))}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d items\n", len(items))
	return err
}
