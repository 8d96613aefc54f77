// Package report computes dashboard analytics from the cached snapshot, so
// the numbers are available offline. Figures reflect the cache, which is the
// last-known-good server state plus any unsynced local sales.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/libris/pos/internal/models"
	"github.com/libris/pos/internal/store"
)

// PeriodStats is revenue and sale count for one period.
type PeriodStats struct {
	Revenue      float64 `json:"revenue"`
	Transactions int     `json:"transactions"`
}

// InventoryStats is the aggregate stock position.
type InventoryStats struct {
	TotalBooks    int     `json:"total_books"`
	TotalValue    float64 `json:"total_value"`
	LowStockItems int     `json:"low_stock_items"`
}

// TopBook is a best-seller aggregate across transaction lines.
type TopBook struct {
	Title     string  `json:"title"`
	TotalSold int     `json:"total_sold"`
	Revenue   float64 `json:"revenue"`
}

// Summary is the full offline dashboard.
type Summary struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Today       PeriodStats    `json:"today"`
	Week        PeriodStats    `json:"week"`
	Month       PeriodStats    `json:"month"`
	Inventory   InventoryStats `json:"inventory"`
	TopBooks    []TopBook      `json:"top_books"`
	LowStock    []models.Book  `json:"low_stock"`
}

const topBooksLimit = 10

// Build computes the summary from the local store as of now.
func Build(st *store.Store, now time.Time) (*Summary, error) {
	txns, err := st.ListTransactions(nil)
	if err != nil {
		return nil, err
	}
	books, err := st.ListBooks("")
	if err != nil {
		return nil, err
	}
	lowStock, err := st.LowStockBooks()
	if err != nil {
		return nil, err
	}

	s := &Summary{GeneratedAt: now, LowStock: lowStock}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	// Week starts Monday, matching the server's reports.
	weekday := (int(dayStart.Weekday()) + 6) % 7
	weekStart := dayStart.AddDate(0, 0, -weekday)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	sold := make(map[string]*TopBook)
	for _, txn := range txns {
		if !txn.TransDate.Before(dayStart) {
			s.Today.Revenue += txn.TotalAmount
			s.Today.Transactions++
		}
		if !txn.TransDate.Before(weekStart) {
			s.Week.Revenue += txn.TotalAmount
			s.Week.Transactions++
		}
		if !txn.TransDate.Before(monthStart) {
			s.Month.Revenue += txn.TotalAmount
			s.Month.Transactions++
		}
		for _, line := range txn.Details {
			title := line.BookTitle
			if title == "" {
				title = fmt.Sprintf("book #%d", line.BookID)
			}
			entry, ok := sold[title]
			if !ok {
				entry = &TopBook{Title: title}
				sold[title] = entry
			}
			entry.TotalSold += line.Quantity
			entry.Revenue += line.LineTotal
		}
	}

	for _, b := range books {
		s.Inventory.TotalBooks++
		s.Inventory.TotalValue += b.TotalValue()
	}
	s.Inventory.LowStockItems = len(lowStock)

	for _, entry := range sold {
		s.TopBooks = append(s.TopBooks, *entry)
	}
	sort.Slice(s.TopBooks, func(i, j int) bool {
		if s.TopBooks[i].TotalSold != s.TopBooks[j].TotalSold {
			return s.TopBooks[i].TotalSold > s.TopBooks[j].TotalSold
		}
		return s.TopBooks[i].Title < s.TopBooks[j].Title
	})
	if len(s.TopBooks) > topBooksLimit {
		s.TopBooks = s.TopBooks[:topBooksLimit]
	}

	return s, nil
}

// Markdown renders the summary for terminal display.
func (s *Summary) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Sales & Inventory Report\n\n")
	fmt.Fprintf(&b, "_Generated %s from the local cache._\n\n", s.GeneratedAt.Format("2006-01-02 15:04"))

	fmt.Fprintf(&b, "## Revenue\n\n")
	fmt.Fprintf(&b, "| Period | Revenue | Sales |\n|---|---|---|\n")
	fmt.Fprintf(&b, "| Today | $%.2f | %d |\n", s.Today.Revenue, s.Today.Transactions)
	fmt.Fprintf(&b, "| This week | $%.2f | %d |\n", s.Week.Revenue, s.Week.Transactions)
	fmt.Fprintf(&b, "| This month | $%.2f | %d |\n\n", s.Month.Revenue, s.Month.Transactions)

	fmt.Fprintf(&b, "## Inventory\n\n")
	fmt.Fprintf(&b, "%d titles, total value $%.2f, %d low on stock.\n\n",
		s.Inventory.TotalBooks, s.Inventory.TotalValue, s.Inventory.LowStockItems)

	if len(s.TopBooks) > 0 {
		fmt.Fprintf(&b, "## Top sellers\n\n")
		fmt.Fprintf(&b, "| Title | Sold | Revenue |\n|---|---|---|\n")
		for _, tb := range s.TopBooks {
			fmt.Fprintf(&b, "| %s | %d | $%.2f |\n", tb.Title, tb.TotalSold, tb.Revenue)
		}
		b.WriteString("\n")
	}

	if len(s.LowStock) > 0 {
		fmt.Fprintf(&b, "## Low stock\n\n")
		for _, book := range s.LowStock {
			fmt.Fprintf(&b, "- **%s** by %s: %d left\n", book.Title, book.Author, book.StockQty)
		}
	}

	return b.String()
}
