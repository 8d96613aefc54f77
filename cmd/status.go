package cmd

import (
	"fmt"

	"github.com/libris/pos/internal/app"
	"github.com/libris/pos/internal/config"
	"github.com/libris/pos/internal/output"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show connectivity, auth and sync state",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		st, err := a.Engine.Status()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		creds, err := config.LoadAuth()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		low, err := a.Store.LowStockBooks()
		if err != nil {
			output.Error("%v", err)
			return err
		}

		if jsonOutput(cmd) {
			return output.JSON(struct {
				Server   string `json:"server"`
				User     string `json:"user,omitempty"`
				Online   bool   `json:"online"`
				Pending  int    `json:"pending_count"`
				LastSync any    `json:"last_sync"`
				LowStock int    `json:"low_stock_count"`
			}{
				Server:   a.Config.EffectiveServerURL(),
				User:     username(creds),
				Online:   st.Online,
				Pending:  st.PendingCount,
				LastSync: st.LastSync,
				LowStock: len(low),
			})
		}

		fmt.Println(output.Title("pos status"))
		fmt.Printf("  Server:    %s (%s)\n", a.Config.EffectiveServerURL(), output.FormatOnline(st.Online))
		if creds != nil {
			fmt.Printf("  User:      %s\n", creds.Username)
		} else {
			fmt.Printf("  User:      %s\n", output.Subtle("not logged in"))
		}
		fmt.Printf("  Pending:   %d queued change(s)\n", st.PendingCount)
		fmt.Printf("  Synced:    %s\n", output.FormatLastSync(st.LastSync))
		if st.Online {
			if summary, err := a.Remote.GetDashboardSummary(cmd.Context()); err == nil {
				fmt.Printf("  Today:     %s across %d sale(s) (server)\n",
					output.FormatMoney(summary.Today.Revenue), summary.Today.Transactions)
			}
		}
		if len(low) > 0 {
			output.Warning("  %d book(s) below reorder threshold (pos books list --low-stock)", len(low))
		}
		return nil
	},
}

func username(creds *config.Credentials) string {
	if creds == nil {
		return ""
	}
	return creds.Username
}

func init() {
	addJSONFlag(statusCmd.Flags())
	rootCmd.AddCommand(statusCmd)
}
