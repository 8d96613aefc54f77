package cmd

import (
	"fmt"
	"time"

	"github.com/libris/pos/internal/app"
	"github.com/libris/pos/internal/output"
	"github.com/spf13/cobra"
)

var transactionsCmd = &cobra.Command{
	Use:     "transactions",
	Aliases: []string{"txns"},
	Short:   "Browse recorded sales",
	GroupID: "sales",
}

var transactionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sales, newest last",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		var since *time.Time
		if today, _ := cmd.Flags().GetBool("today"); today {
			now := time.Now()
			start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
			since = &start
		}

		txns, err := a.Facade.Transactions.GetAll(cmd.Context(), since)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if jsonOutput(cmd) {
			return output.JSON(txns)
		}
		if len(txns) == 0 {
			output.Info("no sales recorded")
			return nil
		}
		var total float64
		for i := range txns {
			fmt.Println(output.FormatTransactionLine(&txns[i]))
			total += txns[i].TotalAmount
		}
		fmt.Printf("%d sales, %s\n", len(txns), output.FormatMoney(total))
		return nil
	},
}

var transactionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one sale in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := app.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		txn, err := a.Facade.Transactions.GetByID(cmd.Context(), id)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if txn == nil {
			output.Error("transaction %d not found", id)
			return fmt.Errorf("transaction %d not found", id)
		}
		if jsonOutput(cmd) {
			return output.JSON(txn)
		}

		fmt.Println(output.Title(fmt.Sprintf("Sale %s", localID(txn.TransID))) + output.PendingMarker(txn.Pending))
		fmt.Printf("  Date:     %s\n", txn.TransDate.Local().Format("2006-01-02 15:04"))
		fmt.Printf("  Customer: %s\n", txn.CustomerName)
		if txn.Notes != "" {
			fmt.Printf("  Notes:    %s\n", txn.Notes)
		}
		for _, d := range txn.Details {
			title := d.BookTitle
			if title == "" {
				title = fmt.Sprintf("book %s", localID(d.BookID))
			}
			fmt.Printf("  %dx %-40s %s\n", d.Quantity, title, output.FormatMoney(d.LineTotal))
		}
		fmt.Printf("  Total:    %s\n", output.FormatMoney(txn.TotalAmount))
		return nil
	},
}

func init() {
	transactionsListCmd.Flags().Bool("today", false, "Only today's sales")
	addJSONFlag(transactionsListCmd.Flags())
	addJSONFlag(transactionsShowCmd.Flags())

	transactionsCmd.AddCommand(transactionsListCmd, transactionsShowCmd)
	rootCmd.AddCommand(transactionsCmd)
}
