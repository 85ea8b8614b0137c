package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// loginCmd stores a backend session in the configured token file.
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session",
	Long: `Log in to the backend with the configured credentials and store the
session tokens in auth.token_file, so later serve, watch and export runs
reuse the session instead of logging in again.

With --logout the stored session is ended instead.

Example:
  trackboard login -c config.yaml
  trackboard login -c config.yaml --logout`,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	loginCmd.Flags().Bool("logout", false, "end the stored session instead")
	_ = loginCmd.MarkFlagRequired("config")
}

func runLogin(cmd *cobra.Command, args []string) error {
	b, cfg, _, err := loadBoard(cmd)
	if err != nil {
		return err
	}
	if cfg.Auth.TokenFile == "" {
		return errors.New("auth.token_file is required to store a session")
	}

	out := cmd.OutOrStdout()
	if logout, _ := cmd.Flags().GetBool("logout"); logout {
		if err := b.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(out, "Logged out, session removed from %s\n", cfg.Auth.TokenFile)
		return nil
	}

	if err := b.Login(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(out, "Logged in as %s, session stored in %s\n", cfg.Auth.Email, cfg.Auth.TokenFile)
	return nil
}
