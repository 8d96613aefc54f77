package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/libris/pos/internal/app"
	"github.com/libris/pos/internal/models"
	"github.com/libris/pos/internal/output"
	"github.com/spf13/cobra"
)

var sellCmd = &cobra.Command{
	Use:     "sell <book-id>:<qty> [<book-id>:<qty> ...]",
	Short:   "Record a sale",
	GroupID: "sales",
	Long: `Record a sale of one or more books. Each argument is a line item in the
form book-id:qty, or book-id:qty:price to override the unit price. Stock is
decremented immediately; when offline the sale is queued and replayed on the
next sync.`,
	Example: `  pos sell 12:1
  pos sell 12:2 31:1 --customer "R. Chandler"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lines := make([]models.TransactionLine, 0, len(args))
		for _, arg := range args {
			line, err := parseLineItem(arg)
			if err != nil {
				return err
			}
			lines = append(lines, line)
		}
		customer, _ := cmd.Flags().GetString("customer")
		notes, _ := cmd.Flags().GetString("note")

		a, err := app.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		txn, err := a.Facade.Transactions.Create(cmd.Context(), &models.Transaction{
			CustomerName: customer,
			Notes:        notes,
			Details:      lines,
		})
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if jsonOutput(cmd) {
			return output.JSON(txn)
		}
		for _, d := range txn.Details {
			title := d.BookTitle
			if title == "" {
				title = fmt.Sprintf("book %s", localID(d.BookID))
			}
			fmt.Printf("  %dx %s @ %s\n", d.Quantity, title, output.FormatMoney(d.UnitPrice))
		}
		if txn.Pending {
			output.Warning("sale %s for %s recorded locally; will sync when online",
				localID(txn.TransID), output.FormatMoney(txn.TotalAmount))
		} else {
			output.Success("sale #%d for %s recorded", txn.TransID, output.FormatMoney(txn.TotalAmount))
		}
		return nil
	},
}

// parseLineItem parses "id:qty" or "id:qty:price".
func parseLineItem(s string) (models.TransactionLine, error) {
	var line models.TransactionLine
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return line, fmt.Errorf("invalid line item %q (want book-id:qty[:price])", s)
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return line, fmt.Errorf("invalid book id in %q", s)
	}
	qty, err := strconv.Atoi(parts[1])
	if err != nil {
		return line, fmt.Errorf("invalid quantity in %q", s)
	}
	line.BookID = id
	line.Quantity = qty
	if len(parts) == 3 {
		price, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return line, fmt.Errorf("invalid price in %q", s)
		}
		line.UnitPrice = price
	}
	return line, nil
}

func init() {
	sellCmd.Flags().String("customer", "", "Customer name (default: walk-in)")
	sellCmd.Flags().String("note", "", "Free-form note on the sale")
	addJSONFlag(sellCmd.Flags())
	rootCmd.AddCommand(sellCmd)
}
