// Package monitor is the live dashboard TUI: connectivity, queue depth,
// low-stock alerts and the day's sales, refreshed on a timer.
package monitor

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/libris/pos/internal/models"
	"github.com/libris/pos/internal/store"
	possync "github.com/libris/pos/internal/sync"
)

// RefreshInterval is how often the dashboard re-reads the local cache.
const RefreshInterval = 5 * time.Second

type tickMsg time.Time

type dataMsg struct {
	status   possync.Status
	pending  []models.PendingOp
	lowStock []models.Book
	today    []models.Transaction
	err      error
}

type syncDoneMsg struct {
	res possync.Result
	err error
}

// Model is the Bubble Tea model for the dashboard.
type Model struct {
	Store  *store.Store
	Engine *possync.Engine

	Width  int
	Height int

	Status   possync.Status
	Pending  []models.PendingOp
	LowStock []models.Book
	Today    []models.Transaction

	Spinner     spinner.Model
	Syncing     bool
	StatusLine  string
	LastRefresh time.Time
	Err         error
}

// New builds the dashboard model.
func New(st *store.Store, eng *possync.Engine) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		Store:   st,
		Engine:  eng,
		Spinner: sp,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetchData(), m.tick(), m.Spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.fetchData()
		case "s":
			if m.Syncing {
				return m, nil
			}
			m.Syncing = true
			m.StatusLine = "syncing..."
			return m, m.runSync()
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetchData(), m.tick())

	case dataMsg:
		if msg.err != nil {
			m.Err = msg.err
			return m, nil
		}
		m.Err = nil
		m.Status = msg.status
		m.Pending = msg.pending
		m.LowStock = msg.lowStock
		m.Today = msg.today
		m.LastRefresh = time.Now()
		return m, nil

	case syncDoneMsg:
		m.Syncing = false
		m.StatusLine = syncStatusLine(msg.res, msg.err)
		return m, tea.Batch(
			m.fetchData(),
			tea.Tick(3*time.Second, func(time.Time) tea.Msg { return clearStatusMsg{} }),
		)

	case clearStatusMsg:
		m.StatusLine = ""
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

type clearStatusMsg struct{}

func (m Model) tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) fetchData() tea.Cmd {
	st, eng := m.Store, m.Engine
	return func() tea.Msg {
		var msg dataMsg
		status, err := eng.Status()
		if err != nil {
			return dataMsg{err: err}
		}
		msg.status = status

		msg.pending, err = st.PendingOps()
		if err != nil {
			return dataMsg{err: err}
		}
		msg.lowStock, err = st.LowStockBooks()
		if err != nil {
			return dataMsg{err: err}
		}
		now := time.Now()
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		msg.today, err = st.ListTransactions(&start)
		if err != nil {
			return dataMsg{err: err}
		}
		return msg
	}
}

func (m Model) runSync() tea.Cmd {
	eng := m.Engine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		res, err := eng.SyncAll(ctx)
		return syncDoneMsg{res: res, err: err}
	}
}
