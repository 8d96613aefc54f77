package cmd

import (
	"fmt"
	"time"

	"github.com/libris/pos/internal/app"
	"github.com/libris/pos/internal/output"
	"github.com/libris/pos/internal/report"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:     "report",
	Short:   "Sales and inventory summary from the local cache",
	GroupID: "sales",
	Long: `Summarise revenue (today, this week, this month), inventory value, top
sellers and low-stock titles. The report is computed entirely from the local
cache, so it works offline; run 'pos sync' first for up-to-date numbers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		summary, err := report.Build(a.Store, time.Now())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if jsonOutput(cmd) {
			return output.JSON(summary)
		}
		fmt.Print(output.RenderMarkdown(summary.Markdown()))
		if !a.Net.IsOnline() {
			fmt.Println(output.Subtle("offline: figures reflect the local cache"))
		}
		return nil
	},
}

func init() {
	addJSONFlag(reportCmd.Flags())
	rootCmd.AddCommand(reportCmd)
}
