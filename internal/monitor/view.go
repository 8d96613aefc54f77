package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	possync "github.com/libris/pos/internal/sync"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	onlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	panelStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

func (m Model) View() string {
	var b strings.Builder

	header := titleStyle.Render("pos dashboard") + "  " + m.connectivityBadge()
	if m.Syncing {
		header += "  " + m.Spinner.View() + " syncing"
	} else if m.StatusLine != "" {
		header += "  " + subtleStyle.Render(m.StatusLine)
	}
	b.WriteString(header + "\n\n")

	if m.Err != nil {
		b.WriteString(errStyle.Render("error: "+m.Err.Error()) + "\n\n")
	}

	b.WriteString(panelStyle.Render(m.queuePanel()) + "\n")
	b.WriteString(panelStyle.Render(m.salesPanel()) + "\n")
	b.WriteString(panelStyle.Render(m.stockPanel()) + "\n")

	b.WriteString(subtleStyle.Render("s sync · r refresh · q quit"))
	return b.String()
}

func (m Model) connectivityBadge() string {
	if m.Status.Online {
		return onlineStyle.Render("● online")
	}
	return errStyle.Render("○ offline")
}

func (m Model) queuePanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Sync queue") + "\n")
	if len(m.Pending) == 0 {
		b.WriteString(subtleStyle.Render("nothing queued"))
	} else {
		for i, op := range m.Pending {
			if i >= 8 {
				b.WriteString(subtleStyle.Render(fmt.Sprintf("... and %d more", len(m.Pending)-i)))
				break
			}
			b.WriteString(fmt.Sprintf("#%d %s  %s\n",
				op.Seq, op.Kind, subtleStyle.Render(op.CreatedAt.Local().Format("15:04:05"))))
		}
	}
	b.WriteString("\n" + subtleStyle.Render("last sync: "+lastSyncLabel(m.Status)))
	return b.String()
}

func (m Model) salesPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Today's sales") + "\n")
	if len(m.Today) == 0 {
		b.WriteString(subtleStyle.Render("no sales yet"))
		return b.String()
	}
	var total float64
	var items int
	for _, t := range m.Today {
		total += t.TotalAmount
		for _, d := range t.Details {
			items += d.Quantity
		}
	}
	b.WriteString(fmt.Sprintf("%d sale(s), %d item(s), $%.2f", len(m.Today), items, total))
	return b.String()
}

func (m Model) stockPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Low stock") + "\n")
	if len(m.LowStock) == 0 {
		b.WriteString(subtleStyle.Render("all titles above threshold"))
		return b.String()
	}
	for i, book := range m.LowStock {
		if i >= 8 {
			b.WriteString(subtleStyle.Render(fmt.Sprintf("... and %d more", len(m.LowStock)-i)))
			break
		}
		b.WriteString(fmt.Sprintf("%s  %s\n", warnStyle.Render(fmt.Sprintf("%2d left", book.StockQty)), book.Title))
	}
	return b.String()
}

func lastSyncLabel(st possync.Status) string {
	if st.LastSync == nil {
		return "never"
	}
	return st.LastSync.Local().Format("2006-01-02 15:04:05")
}

func syncStatusLine(res possync.Result, err error) string {
	switch {
	case err != nil:
		return "sync failed: " + err.Error()
	case res.Skipped:
		return "sync skipped"
	case res.Failed > 0:
		return fmt.Sprintf("synced %d, %d failed", res.Succeeded, res.Failed)
	case res.PullErr != nil:
		return "pull failed: " + res.PullErr.Error()
	default:
		return fmt.Sprintf("synced %d change(s)", res.Succeeded)
	}
}
