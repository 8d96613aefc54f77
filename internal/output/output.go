// Package output provides styled terminal output helpers (success, error,
// warning, record formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/libris/pos/internal/models"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	moneyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Title renders bold header text.
func Title(s string) string {
	return titleStyle.Render(s)
}

// Subtle renders de-emphasized text.
func Subtle(s string) string {
	return subtleStyle.Render(s)
}

// FormatMoney renders an amount as currency.
func FormatMoney(amount float64) string {
	return moneyStyle.Render(fmt.Sprintf("$%.2f", amount))
}

// FormatStock renders a stock quantity, highlighting low stock.
func FormatStock(qty int) string {
	if qty < models.LowStockThreshold {
		return warningStyle.Render(fmt.Sprintf("%d (low)", qty))
	}
	return fmt.Sprintf("%d", qty)
}

// PendingMarker returns the visual marker for a record written offline and
// not yet confirmed by the server, or "" for confirmed records.
func PendingMarker(pending bool) string {
	if pending {
		return pendingStyle.Render("~")
	}
	return " "
}

// FormatBookLine renders one book as a list row.
func FormatBookLine(b *models.Book) string {
	id := fmt.Sprintf("#%d", b.BookID)
	if models.IsTempID(b.BookID) {
		id = pendingStyle.Render("#local")
	}
	return fmt.Sprintf("%s %-8s %-40s %-24s stock %s  %s",
		PendingMarker(b.Pending), id, truncate(b.Title, 40), truncate(b.Author, 24),
		FormatStock(b.StockQty), FormatMoney(b.UnitPrice))
}

// FormatTransactionLine renders one sale as a list row.
func FormatTransactionLine(t *models.Transaction) string {
	id := fmt.Sprintf("#%d", t.TransID)
	if models.IsTempID(t.TransID) {
		id = pendingStyle.Render("#local")
	}
	customer := t.CustomerName
	if customer == "" {
		customer = models.WalkInCustomer
	}
	return fmt.Sprintf("%s %-8s %s  %-20s %2d items  %s",
		PendingMarker(t.Pending), id, t.TransDate.Format("2006-01-02 15:04"),
		truncate(customer, 20), len(t.Details), FormatMoney(t.TotalAmount))
}

// FormatLastSync renders a last-sync timestamp, or "never".
func FormatLastSync(t *time.Time) string {
	if t == nil {
		return subtleStyle.Render("never")
	}
	return t.Format(time.RFC3339)
}

// FormatOnline renders the connectivity state.
func FormatOnline(online bool) string {
	if online {
		return successStyle.Render("online")
	}
	return errorStyle.Render("offline")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 1 {
		return s[:max]
	}
	return strings.TrimSpace(s[:max-1]) + "…"
}
