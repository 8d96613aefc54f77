// Package connectivity tracks online/offline state and notifies subscribers
// on transitions. There is no ambient event source to lean on, so the monitor
// probes the server at a bounded interval; callers can also feed it probe
// results directly (every remote call is itself evidence).
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the fallback probe cadence.
const DefaultInterval = 30 * time.Second

// Pinger checks server reachability. A nil error means reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor holds the current online/offline state. Transition notifications
// fire at most once per actual state change; subscribers registered after a
// transition do not see it retroactively.
type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   map[int]func(online bool)
	nextID int

	pinger   Pinger
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a monitor in the offline state. An initial probe (Check or
// Start) establishes the real state. interval <= 0 uses DefaultInterval.
func New(pinger Pinger, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		subs:     make(map[int]func(bool)),
		pinger:   pinger,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// IsOnline returns the current state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a transition callback and returns an unsubscribe
// function. Callbacks run outside the monitor's lock.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// SetOnline records an observed state. Duplicate observations are dropped;
// only a real transition notifies subscribers.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	slog.Debug("connectivity transition", "online", online)
	for _, fn := range fns {
		fn(online)
	}
}

// Check probes the server once and applies the result.
func (m *Monitor) Check(ctx context.Context) bool {
	if m.pinger == nil {
		return m.IsOnline()
	}
	err := m.pinger.Ping(ctx)
	m.SetOnline(err == nil)
	return err == nil
}

// Start launches the periodic probe loop. Stop with Close.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Check(ctx)
			case <-m.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close stops the probe loop.
func (m *Monitor) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}
