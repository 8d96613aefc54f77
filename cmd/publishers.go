package cmd

import (
	"fmt"

	"github.com/libris/pos/internal/app"
	"github.com/libris/pos/internal/models"
	"github.com/libris/pos/internal/output"
	"github.com/spf13/cobra"
)

var publishersCmd = &cobra.Command{
	Use:     "publishers",
	Short:   "Manage publishers",
	GroupID: "catalog",
}

var publishersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List publishers",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		pubs, err := a.Facade.Publishers.GetAll(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if jsonOutput(cmd) {
			return output.JSON(pubs)
		}
		if len(pubs) == 0 {
			output.Info("no publishers found")
			return nil
		}
		for _, p := range pubs {
			line := fmt.Sprintf("%-6s %s%s", localID(p.PubID), p.Name, output.PendingMarker(p.Pending))
			if p.Email != "" {
				line += "  " + output.Subtle(p.Email)
			}
			fmt.Println(line)
		}
		return nil
	},
}

var publishersAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a publisher",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		phone, _ := cmd.Flags().GetString("phone")

		a, err := app.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		created, err := a.Facade.Publishers.Create(cmd.Context(), &models.Publisher{
			Name:  args[0],
			Email: email,
			Phone: phone,
		})
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if jsonOutput(cmd) {
			return output.JSON(created)
		}
		if created.Pending {
			output.Warning("added %q locally (#%s); will sync when online", created.Name, localID(created.PubID))
		} else {
			output.Success("added %q (#%d)", created.Name, created.PubID)
		}
		return nil
	},
}

func init() {
	publishersAddCmd.Flags().String("email", "", "Contact email")
	publishersAddCmd.Flags().String("phone", "", "Contact phone")
	addJSONFlag(publishersListCmd.Flags())
	addJSONFlag(publishersAddCmd.Flags())

	publishersCmd.AddCommand(publishersListCmd, publishersAddCmd)
	rootCmd.AddCommand(publishersCmd)
}
