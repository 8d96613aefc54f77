// Package app wires the components into one explicit context object built at
// process start: store, remote client, connectivity monitor, sync engine and
// facade. There is deliberately no package-level shared state; commands open
// an App, use it, and close it.
package app

import (
	"context"
	"time"

	"github.com/libris/pos/internal/config"
	"github.com/libris/pos/internal/connectivity"
	"github.com/libris/pos/internal/offline"
	"github.com/libris/pos/internal/remote"
	"github.com/libris/pos/internal/store"
	possync "github.com/libris/pos/internal/sync"
)

// App is the assembled application context.
type App struct {
	Config *config.Config
	Store  *store.Store
	Remote *remote.Client
	Net    *connectivity.Monitor
	Engine *possync.Engine
	Facade *offline.Facade

	unwatch func()
}

// probeTimeout bounds the startup connectivity check so commands stay snappy
// when the server is unreachable.
const probeTimeout = 3 * time.Second

// Open builds the application context over an existing local database under
// baseDir, runs an initial connectivity probe and arranges for reconnects to
// trigger a queue drain.
func Open(baseDir string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(baseDir)
	if err != nil {
		return nil, err
	}
	return assemble(cfg, st)
}

// Initialize creates the local database and builds the context, for first-run
// setup.
func Initialize(baseDir string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	st, err := store.Initialize(baseDir)
	if err != nil {
		return nil, err
	}
	return assemble(cfg, st)
}

func assemble(cfg *config.Config, st *store.Store) (*App, error) {
	serverURL := cfg.EffectiveServerURL()

	creds, err := config.LoadAuth()
	if err != nil {
		st.Close()
		return nil, err
	}
	var tokens remote.TokenSource
	if creds != nil {
		if creds.ServerURL != "" {
			serverURL = creds.ServerURL
		}
		tokens = config.NewTokenProvider(serverURL, creds)
	}

	rc := remote.New(serverURL, tokens)
	net := connectivity.New(rc, cfg.ProbeIntervalDuration())
	engine := possync.New(st, rc, net, cfg.DebounceDuration())
	facade := offline.New(st, rc, net, engine)

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	net.Check(ctx)
	cancel()

	return &App{
		Config:  cfg,
		Store:   st,
		Remote:  rc,
		Net:     net,
		Engine:  engine,
		Facade:  facade,
		unwatch: engine.WatchConnectivity(),
	}, nil
}

// StartMonitoring begins the periodic connectivity probe loop; long-running
// commands (the dashboard) use it, one-shot commands do not need it.
func (a *App) StartMonitoring(ctx context.Context) {
	a.Net.Start(ctx)
}

// Close releases everything the context owns.
func (a *App) Close() error {
	if a.unwatch != nil {
		a.unwatch()
	}
	a.Engine.Close()
	a.Net.Close()
	return a.Store.Close()
}
