package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/libris/pos/internal/config"
	"github.com/libris/pos/internal/output"
	"github.com/libris/pos/internal/remote"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:     "login",
	Short:   "Authenticate against the inventory server",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			output.Error("load config: %v", err)
			return err
		}
		serverURL, _ := cmd.Flags().GetString("server")
		if serverURL == "" {
			serverURL = cfg.EffectiveServerURL()
		}

		username, _ := cmd.Flags().GetString("username")
		var password string

		fields := []huh.Field{}
		if username == "" {
			fields = append(fields, huh.NewInput().Title("Username").Value(&username))
		}
		fields = append(fields, huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&password))
		if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
			return err
		}
		if username == "" || password == "" {
			return fmt.Errorf("username and password required")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		pair, err := remote.Login(ctx, serverURL, username, password)
		if err != nil {
			output.Error("login failed: %v", err)
			return err
		}

		creds := &config.Credentials{
			Access:    pair.Access,
			Refresh:   pair.Refresh,
			Username:  username,
			ServerURL: serverURL,
		}
		if err := config.SaveAuth(creds); err != nil {
			output.Error("save credentials: %v", err)
			return err
		}
		if cfg.ServerURL != serverURL {
			cfg.ServerURL = serverURL
			if err := config.Save(cfg); err != nil {
				output.Warning("persist server url: %v", err)
			}
		}

		output.Success("logged in as %s (%s)", username, serverURL)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	Short:   "Discard stored credentials",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.ClearAuth(); err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("logged out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	Short:   "Show the authenticated user",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := config.LoadAuth()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if creds == nil {
			output.Info("not logged in (run: pos login)")
			return nil
		}
		output.Info("%s @ %s", creds.Username, creds.ServerURL)
		return nil
	},
}

func init() {
	loginCmd.Flags().String("server", "", "Server URL (default from config or POS_SERVER_URL)")
	loginCmd.Flags().StringP("username", "u", "", "Username (prompted when omitted)")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}
