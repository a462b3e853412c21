package commands

import (
	"context"
	"log/slog"

	"github.com/Ropaxyz/CostcoUKTracker/lib/scrapers/costco"
	"github.com/Ropaxyz/CostcoUKTracker/lib/secrets"
	"github.com/Ropaxyz/CostcoUKTracker/lib/serviceutil"
	"github.com/Ropaxyz/CostcoUKTracker/lib/telemetry"
	"github.com/Ropaxyz/CostcoUKTracker/services/api"
	"github.com/Ropaxyz/CostcoUKTracker/services/auth"
	"github.com/Ropaxyz/CostcoUKTracker/services/basket"
	"github.com/Ropaxyz/CostcoUKTracker/services/notify"
	"github.com/Ropaxyz/CostcoUKTracker/services/settings"
	"github.com/Ropaxyz/CostcoUKTracker/services/tracker"

	"github.com/spf13/cobra"
)

var serveVerbose *bool

func init() {
	serveVerbose = serveCmd.Flags().BoolP("verbose", "v", false, "Enable verbose logging/instrumentation.")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the poll scheduler and the http api.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := serviceutil.SignalContext()

		telemetry.InitSlog(*serveVerbose)
		telemetry.InstrumentPerfStats(ctx)
		defer telemetry.Shutdown(context.Background())

		cfg := readConfig()
		if cfg.SecretKey == "" {
			slog.Warn("secret_key is empty, sealed credentials fall back to a well known key")
		}

		database := openDatabase(cfg)
		defer database.Close()

		settingsService := settings.NewService(database, cfg.Settings)
		box := secrets.NewBox(cfg.SecretKey)

		client, err := costco.NewClient(costco.ClientOptions{
			BaseUrl: cfg.Settings.BaseUrl,
			Policy:  settingsService,
		})
		if err != nil {
			serviceutil.Fatal("init costco client", err)
		}

		notifyService := notify.NewService(notify.Options{
			Settings: settingsService,
		})
		basketService := basket.NewService(database, basket.Options{
			Settings: settingsService,
			Secrets:  box,
			Fetcher:  client,
		})
		trackerService := tracker.NewService(database, tracker.Options{
			Fetcher:  client,
			Settings: settingsService,
			Notifier: notifyService,
			Basket:   basketService,
		})

		scheduler := tracker.NewScheduler(trackerService, settingsService, tracker.SchedulerOptions{})
		scheduler.Start(ctx)
		defer scheduler.Stop()

		authService := auth.NewService(database, settingsService)
		authService.StartCleanup(ctx)

		apiService := api.NewService(api.Options{
			Auth:      authService,
			Tracker:   trackerService,
			Settings:  settingsService,
			Notifier:  notifyService,
			Scheduler: scheduler,
			Secrets:   box,
		})

		go serviceutil.StartHttpServer(cfg.Port, apiService.Handler())
		<-ctx.Done()
	},
}
