package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sadopc/crewclock/internal/credential"
	"github.com/sadopc/crewclock/internal/session"
)

var loginToken string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the API bearer token in the system keyring",
	RunE: func(cmd *cobra.Command, args []string) error {
		token := strings.TrimSpace(loginToken)
		if token == "" {
			return errors.New("--token is required")
		}
		p, err := session.FromToken(token, cfg.Session)
		if err != nil {
			return err
		}
		if err := credential.SaveToken(token); err != nil {
			return fmt.Errorf("saving token: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", p.EmployeeID, p.Role)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored API token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := credential.DeleteToken(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginToken, "token", "", "API bearer token")
	rootCmd.AddCommand(loginCmd, logoutCmd)
}
