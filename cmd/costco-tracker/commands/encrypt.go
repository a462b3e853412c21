package commands

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Ropaxyz/CostcoUKTracker/lib/secrets"
	"github.com/Ropaxyz/CostcoUKTracker/services/settings"

	"github.com/spf13/cobra"
)

var encryptSave *bool

func init() {
	encryptSave = encryptCmd.Flags().Bool("save", false, "Store the sealed value in the settings database instead of printing it.")
	rootCmd.AddCommand(encryptCmd)
}

var encryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Seals the retailer password with the configured secret key.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()

		fmt.Print("Retailer password: ")
		in := bufio.NewReader(os.Stdin)
		password, err := in.ReadString('\n')
		if err != nil {
			fail(err)
		}
		password = strings.TrimSpace(password)
		if password == "" {
			fail(errors.New("no password given"))
		}

		box := secrets.NewBox(cfg.SecretKey)
		sealed, err := box.Seal(password)
		if err != nil {
			fail(err)
		}

		if !*encryptSave {
			fmt.Println(sealed)
			return
		}

		database := openDatabase(cfg)
		defer database.Close()

		settingsService := settings.NewService(database, cfg.Settings)
		err = settingsService.Set(cmd.Context(), settings.KeyCostcoPasswordSealed, sealed)
		if err != nil {
			fail(err)
		}
		fmt.Println("Sealed password stored.")
	},
}
