package cmd

import (
	"fmt"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ferris/airbase/internal/config"
	"github.com/ferris/airbase/internal/output"
)

var authCmd = &cobra.Command{
	Use:     "auth",
	Short:   "Manage authentication",
	GroupID: "system",
}

var authLoginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Log in with email and password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := args[0]

		fmt.Print("Password: ")
		pw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}

		client := newClient()
		resp, err := client.Login(cmd.Context(), email, string(pw))
		if err != nil {
			output.Error("login: %v", err)
			return err
		}

		creds, _ := config.LoadAuth()
		if creds == nil {
			creds = &config.AuthCredentials{}
		}
		creds.Token = resp.Token
		creds.Email = email
		if err := config.SaveAuth(creds); err != nil {
			return fmt.Errorf("save credentials: %w", err)
		}
		output.Success("Logged in as %s", email)
		return nil
	},
}

var authKeyCmd = &cobra.Command{
	Use:   "key <api-key>",
	Short: "Store an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, _ := config.LoadAuth()
		if creds == nil {
			creds = &config.AuthCredentials{}
		}
		creds.APIKey = args[0]
		if err := config.SaveAuth(creds); err != nil {
			return fmt.Errorf("save credentials: %w", err)
		}
		output.Success("API key saved")
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.ClearAuth(); err != nil {
			return err
		}
		output.Success("Logged out")
		return nil
	},
}

func init() {
	authCmd.AddCommand(authLoginCmd, authKeyCmd, authLogoutCmd)
	rootCmd.AddCommand(authCmd)
}
