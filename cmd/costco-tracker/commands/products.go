package commands

import (
	"github.com/Ropaxyz/CostcoUKTracker/services/tracker"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var productsAll *bool

func init() {
	productsAll = productsCmd.Flags().Bool("all", false, "Include products that are no longer tracked.")
	rootCmd.AddCommand(productsCmd)
}

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "Lists tracked products with their current price and stock.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()
		database := openDatabase(cfg)
		defer database.Close()

		service := tracker.NewService(database, tracker.Options{})

		list := service.ListActiveProducts
		if *productsAll {
			list = service.ListProducts
		}
		products, err := list(cmd.Context())
		if err != nil {
			fail(err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Item", "Name", "Price", "Lowest", "Highest", "Target", "Stock", "Checked", "Errors"})
		for _, p := range products {
			t.AppendRow(table.Row{
				p.ItemNumber,
				nullText(p.Name),
				nullPrice(p.CurrentPrice),
				nullPrice(p.LowestPrice),
				nullPrice(p.HighestPrice),
				nullPrice(p.TargetPrice),
				p.StockStatus,
				nullUnixTime(p.LastCheckedAt),
				p.ConsecutiveErrors,
			})
		}
		t.Render()
	},
}
