package commands

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Ropaxyz/CostcoUKTracker/services/auth"
	"github.com/Ropaxyz/CostcoUKTracker/services/settings"

	"github.com/mazen160/go-random"
	"github.com/spf13/cobra"
)

var setupGenerate *bool

func init() {
	setupGenerate = setupCmd.Flags().Bool("generate", false, "Generate a random password instead of prompting for one.")
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Sets the password that protects the web interface.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := readConfig()
		database := openDatabase(cfg)
		defer database.Close()

		settingsService := settings.NewService(database, cfg.Settings)
		authService := auth.NewService(database, settingsService)

		configured, err := authService.PasswordConfigured(ctx)
		if err != nil {
			fail(err)
		}
		if configured {
			fmt.Println("A password is already set, it will be replaced.")
		}

		var password string
		if *setupGenerate {
			password, err = random.String(16)
		} else {
			password, err = promptNewPassword()
		}
		if err != nil {
			fail(err)
		}

		err = authService.SetPassword(ctx, password)
		if err != nil {
			fail(err)
		}
		if *setupGenerate {
			fmt.Printf("Password set to: %s\n", password)
		} else {
			fmt.Println("Password set.")
		}
	},
}

func promptNewPassword() (string, error) {
	in := bufio.NewReader(os.Stdin)

	fmt.Print("New password: ")
	password, err := in.ReadString('\n')
	if err != nil {
		return "", err
	}
	password = strings.TrimSpace(password)
	if len(password) < 8 {
		return "", errors.New("the password must be at least 8 characters")
	}

	fmt.Print("Confirm password: ")
	confirm, err := in.ReadString('\n')
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(confirm) != password {
		return "", errors.New("the passwords do not match")
	}
	return password, nil
}
