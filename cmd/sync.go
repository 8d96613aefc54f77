package cmd

import (
	"fmt"

	"github.com/libris/pos/internal/app"
	"github.com/libris/pos/internal/config"
	"github.com/libris/pos/internal/output"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Replay queued changes and pull the latest catalog",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		if statusOnly, _ := cmd.Flags().GetBool("status"); statusOnly {
			return printSyncStatus(cmd, a)
		}

		if !a.Net.IsOnline() {
			output.Warning("offline: server unreachable, nothing synced")
			return nil
		}
		if !config.IsAuthenticated() {
			output.Warning("not logged in; run 'pos login' first")
		}

		res, err := a.Engine.SyncAll(cmd.Context())
		if err != nil {
			output.Error("sync failed: %v", err)
			return err
		}
		if res.Skipped {
			output.Info("sync already in progress")
			return nil
		}
		if jsonOutput(cmd) {
			return output.JSON(res)
		}
		if res.Succeeded > 0 {
			output.Success("replayed %d queued change(s)", res.Succeeded)
		}
		if res.Failed > 0 {
			output.Warning("%d queued change(s) failed and remain queued:", res.Failed)
			for _, e := range res.Errors {
				fmt.Println("  " + output.Subtle(e.Error()))
			}
		}
		if res.PullErr != nil {
			output.Warning("pull failed: %v", res.PullErr)
		} else {
			output.Success("catalog up to date as of %s", res.LastSync.Local().Format("15:04:05"))
		}
		return nil
	},
}

func printSyncStatus(cmd *cobra.Command, a *app.App) error {
	st, err := a.Engine.Status()
	if err != nil {
		output.Error("%v", err)
		return err
	}
	if jsonOutput(cmd) {
		return output.JSON(st)
	}
	fmt.Printf("Server:  %s\n", output.FormatOnline(st.Online))
	fmt.Printf("Pending: %d queued change(s)\n", st.PendingCount)
	fmt.Printf("Synced:  %s\n", output.FormatLastSync(st.LastSync))
	return nil
}

func init() {
	syncCmd.Flags().Bool("status", false, "Show sync state without syncing")
	addJSONFlag(syncCmd.Flags())
	rootCmd.AddCommand(syncCmd)
}
