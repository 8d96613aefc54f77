package cmd

import (
	"github.com/libris/pos/internal/app"
	"github.com/libris/pos/internal/output"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Create the local database",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Initialize(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		output.Success("local database initialized")
		if a.Net.IsOnline() {
			output.Info("server reachable; run 'pos sync' to pull the catalog")
		} else {
			output.Warning("server unreachable; starting with an empty cache")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
