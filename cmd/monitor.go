package cmd

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/libris/pos/internal/app"
	"github.com/libris/pos/internal/monitor"
	"github.com/libris/pos/internal/output"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:     "monitor",
	Short:   "Live dashboard: connectivity, sync queue, sales and stock alerts",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		a.StartMonitoring(ctx)

		p := tea.NewProgram(monitor.New(a.Store, a.Engine), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			output.Error("%v", err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}
