package commands

import (
	"fmt"

	"github.com/Ropaxyz/CostcoUKTracker/services/basket"
	"github.com/Ropaxyz/CostcoUKTracker/services/settings"
	"github.com/Ropaxyz/CostcoUKTracker/services/tracker"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var statusRuns *int64

func init() {
	statusRuns = statusCmd.Flags().Int64("runs", 10, "How many recent runs to show.")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows recent poll runs, failing products and basket activity.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := readConfig()
		database := openDatabase(cfg)
		defer database.Close()

		settingsService := settings.NewService(database, cfg.Settings)
		config, err := settingsService.Snapshot(ctx)
		if err != nil {
			fail(err)
		}
		fmt.Printf("safe mode: %v  kill switch: %v\n", config.SafeMode, config.KillSwitch)

		service := tracker.NewService(database, tracker.Options{})
		active, err := service.CountActiveProducts(ctx)
		if err != nil {
			fail(err)
		}
		fmt.Printf("tracked products: %d\n", active)

		runs, err := service.ListRuns(ctx, *statusRuns)
		if err != nil {
			fail(err)
		}
		fmt.Println("\nRecent runs:")
		t := newTable()
		t.AppendHeader(table.Row{"Started", "Completed", "Checked", "Updated", "Errors", "Status"})
		for _, run := range runs {
			t.AppendRow(table.Row{
				unixTime(run.RunStartedAt),
				nullUnixTime(run.RunCompletedAt),
				run.ProductsChecked,
				run.ProductsUpdated,
				run.ErrorsCount,
				run.Status,
			})
		}
		t.Render()

		failing, err := service.ListProductsWithErrors(ctx)
		if err != nil {
			fail(err)
		}
		if len(failing) > 0 {
			fmt.Println("\nProducts with errors:")
			t = newTable()
			t.AppendHeader(table.Row{"Item", "Name", "Consecutive", "Last Error", "At"})
			for _, p := range failing {
				t.AppendRow(table.Row{
					p.ItemNumber,
					nullText(p.Name),
					p.ConsecutiveErrors,
					nullText(p.LastError),
					nullUnixTime(p.LastErrorAt),
				})
			}
			t.Render()
		}

		basketService := basket.NewService(database, basket.Options{})
		actions, err := basketService.RecentActions(ctx, 10)
		if err != nil {
			fail(err)
		}
		if len(actions) > 0 {
			fmt.Println("\nRecent basket activity:")
			t = newTable()
			t.AppendHeader(table.Row{"When", "Product", "Action", "Qty", "Price", "Message"})
			for _, action := range actions {
				t.AppendRow(table.Row{
					unixTime(action.CreatedAt),
					action.ProductID,
					action.Action,
					action.Quantity,
					nullPrice(action.PriceAtAction),
					nullText(action.Message),
				})
			}
			t.Render()
		}
	},
}
