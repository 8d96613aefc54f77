// Package sync owns the pending-operations queue: it drains queued offline
// mutations against the server in creation order, then pulls the canonical
// server snapshot into the local store. A run is eventually consistent, not
// transactional: the pull always happens, even after partial replay failures,
// so the store ends up reflecting the server as of whatever did succeed.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/libris/pos/internal/connectivity"
	"github.com/libris/pos/internal/models"
	"github.com/libris/pos/internal/remote"
	"github.com/libris/pos/internal/store"
)

// DefaultDebounce coalesces bursts of offline writes into one drain attempt.
const DefaultDebounce = time.Second

// Engine reconciles local pending mutations with the server.
type Engine struct {
	store  *store.Store
	remote *remote.Client
	net    *connectivity.Monitor

	// syncing is the mutual-exclusion gate: concurrent SyncAll calls collapse
	// to a single in-flight run, everyone else gets a skipped result.
	syncing atomic.Bool

	mu       stdsync.Mutex // guards subs and the debounce timer
	subs     map[int]func(Result)
	nextSub  int
	debounce time.Duration
	timer    *time.Timer
}

// New creates an engine. debounce <= 0 uses DefaultDebounce.
func New(st *store.Store, rc *remote.Client, net *connectivity.Monitor, debounce time.Duration) *Engine {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Engine{
		store:    st,
		remote:   rc,
		net:      net,
		subs:     make(map[int]func(Result)),
		debounce: debounce,
	}
}

// Enqueue appends a pending operation and, when online and idle, schedules a
// debounced drain. The drain is fire-and-forget; callers never wait on it.
func (e *Engine) Enqueue(kind models.OpKind, entityID int64, payload any) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("unknown operation kind %q", kind)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	seq, err := e.store.EnqueueOp(kind, entityID, data)
	if err != nil {
		return 0, err
	}
	slog.Debug("enqueued pending op", "seq", seq, "kind", kind, "entity", entityID)

	if e.net.IsOnline() && !e.syncing.Load() {
		e.scheduleDrain()
	}
	return seq, nil
}

func (e *Engine) scheduleDrain() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.debounce, func() {
		e.SyncAll(context.Background())
	})
}

// OnSyncComplete registers a callback invoked with each non-skipped run's
// result. Returns an unregister function.
func (e *Engine) OnSyncComplete(fn func(Result)) func() {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// WatchConnectivity subscribes the engine to connectivity transitions so a
// reconnect kicks off a drain. Returns an unsubscribe function.
func (e *Engine) WatchConnectivity() func() {
	return e.net.Subscribe(func(online bool) {
		if online {
			go e.SyncAll(context.Background())
		}
	})
}

// Close stops any scheduled drain.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// SyncAll runs one reconciliation pass:
//
//  1. refuse (skipped result) when offline or a run is already in flight,
//  2. replay unsynced operations in creation order, marking each synced on
//     success and recording failures without aborting the batch,
//  3. unconditionally pull the full server snapshot, wholesale-replacing the
//     local collections and stamping last_sync,
//  4. purge synced queue entries from earlier runs,
//  5. notify subscribers.
//
// The returned error is non-nil only for local storage failures, or when the
// pull failed and there is no previous snapshot to fall back on; per-op
// replay failures and pull failures over a usable cache are reported inside
// the Result instead.
func (e *Engine) SyncAll(ctx context.Context) (Result, error) {
	var res Result
	if !e.net.IsOnline() {
		res.Skipped = true
		return res, nil
	}
	if !e.syncing.CompareAndSwap(false, true) {
		res.Skipped = true
		return res, nil
	}
	defer e.syncing.Store(false)

	runStart := time.Now()
	ops, err := e.store.PendingOps()
	if err != nil {
		return res, err
	}

	// Server ids assigned to temp ids during this run, so later operations
	// referencing an offline-created record can be rewritten before replay.
	idmap := make(map[int64]int64)

	for i := range ops {
		op := &ops[i]
		mapped := len(idmap)
		if err := e.replay(ctx, op, idmap); err != nil {
			slog.Warn("sync: replay failed", "seq", op.Seq, "kind", op.Kind, "err", err)
			res.Failed++
			res.Errors = append(res.Errors, OpError{Seq: op.Seq, Kind: op.Kind, Err: err})
			continue
		}
		if err := e.store.MarkOpSynced(op.Seq); err != nil {
			return res, err
		}
		res.Succeeded++
		if len(idmap) > mapped {
			// A create just got its server id. Rewrite the still-queued ops
			// that reference the temp id now, while the mapping exists: the
			// synced create is purged at the end of this run, and an op that
			// fails transiently today must stay replayable tomorrow.
			if err := e.rewriteQueuedRefs(ops[i+1:], idmap); err != nil {
				return res, err
			}
		}
	}

	if err := e.pull(ctx); err != nil {
		res.PullErr = err
		e.notify(res)
		last, lerr := e.store.LastSync()
		if lerr == nil && last == nil {
			// First-ever sync with nothing cached: there is no usable state.
			return res, fmt.Errorf("initial sync: %w", err)
		}
		return res, nil
	}
	last, err := e.store.LastSync()
	if err == nil && last != nil {
		res.LastSync = *last
	}

	if n, err := e.store.PurgeSyncedOps(runStart); err != nil {
		slog.Warn("sync: purge synced ops", "err", err)
	} else if n > 0 {
		slog.Debug("purged synced ops", "count", n)
	}

	e.notify(res)
	return res, nil
}

// replay dispatches one queued operation to the remote client.
func (e *Engine) replay(ctx context.Context, op *models.PendingOp, idmap map[int64]int64) error {
	switch op.Kind {
	case models.OpCreateBook:
		var b models.Book
		if err := json.Unmarshal(op.Payload, &b); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		tempID := b.BookID
		b.BookID = 0
		b.Pending = false
		created, err := e.remote.CreateBook(ctx, &b)
		if err != nil {
			return err
		}
		if models.IsTempID(tempID) {
			idmap[tempID] = created.BookID
		}
		return nil

	case models.OpUpdateBook:
		var b models.Book
		if err := json.Unmarshal(op.Payload, &b); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		id, err := resolveID(op.EntityID, idmap)
		if err != nil {
			return err
		}
		b.BookID = id
		b.Pending = false
		_, err = e.remote.UpdateBook(ctx, id, &b)
		return err

	case models.OpDeleteBook:
		id, err := resolveID(op.EntityID, idmap)
		if err != nil {
			return err
		}
		err = e.remote.DeleteBook(ctx, id)
		if errors.Is(err, remote.ErrNotFound) {
			return nil // already gone server-side
		}
		return err

	case models.OpCreatePublisher:
		var p models.Publisher
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		tempID := p.PubID
		p.PubID = 0
		p.Pending = false
		created, err := e.remote.CreatePublisher(ctx, &p)
		if err != nil {
			return err
		}
		if models.IsTempID(tempID) {
			idmap[tempID] = created.PubID
		}
		return nil

	case models.OpCreateTransaction:
		var t models.Transaction
		if err := json.Unmarshal(op.Payload, &t); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		t.TransID = 0
		t.Pending = false
		for i := range t.Details {
			id, err := resolveID(t.Details[i].BookID, idmap)
			if err != nil {
				return err
			}
			t.Details[i].BookID = id
		}
		_, err := e.remote.CreateTransaction(ctx, &t)
		return err

	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

// rewriteQueuedRefs persists fresh temp-to-server id mappings into the queue:
// every remaining unsynced op whose entity id or payload references a newly
// mapped temp id is rewritten in the store, and in the in-memory slice so the
// rest of this run sees the same rows a later run would load.
func (e *Engine) rewriteQueuedRefs(remaining []models.PendingOp, idmap map[int64]int64) error {
	for i := range remaining {
		op := &remaining[i]
		entityID := op.EntityID
		if mapped, ok := idmap[entityID]; ok {
			entityID = mapped
		}
		payload := op.Payload
		changed := entityID != op.EntityID

		switch op.Kind {
		case models.OpUpdateBook:
			var b models.Book
			if err := json.Unmarshal(op.Payload, &b); err != nil {
				return fmt.Errorf("rewrite op %d: decode payload: %w", op.Seq, err)
			}
			if mapped, ok := idmap[b.BookID]; ok {
				b.BookID = mapped
				data, err := json.Marshal(&b)
				if err != nil {
					return fmt.Errorf("rewrite op %d: %w", op.Seq, err)
				}
				payload = data
				changed = true
			}

		case models.OpCreateTransaction:
			var t models.Transaction
			if err := json.Unmarshal(op.Payload, &t); err != nil {
				return fmt.Errorf("rewrite op %d: decode payload: %w", op.Seq, err)
			}
			rewrote := false
			for j := range t.Details {
				if mapped, ok := idmap[t.Details[j].BookID]; ok {
					t.Details[j].BookID = mapped
					rewrote = true
				}
			}
			if rewrote {
				data, err := json.Marshal(&t)
				if err != nil {
					return fmt.Errorf("rewrite op %d: %w", op.Seq, err)
				}
				payload = data
				changed = true
			}
		}

		if !changed {
			continue
		}
		if err := e.store.UpdateOpTarget(op.Seq, entityID, payload); err != nil {
			return err
		}
		op.EntityID = entityID
		op.Payload = payload
	}
	return nil
}

// resolveID maps a temporary id through the ids assigned earlier in this run.
// An unmapped temp id means its create has not succeeded yet; already-mapped
// ids were rewritten into the queue rows when the create synced, so only a
// create failing in the same run can leave a reference unresolved.
func resolveID(id int64, idmap map[int64]int64) (int64, error) {
	if !models.IsTempID(id) {
		return id, nil
	}
	if mapped, ok := idmap[id]; ok {
		return mapped, nil
	}
	return 0, fmt.Errorf("unresolved temporary id %d", id)
}

// pull fetches the full server state and wholesale-replaces the local
// collections, then stamps last_sync. A failure here leaves any collections
// already replaced in place; the store stays internally consistent per
// collection and the next successful pull converges everything.
func (e *Engine) pull(ctx context.Context) error {
	books, err := e.remote.ListBooks(ctx, "")
	if err != nil {
		return fmt.Errorf("pull books: %w", err)
	}
	pubs, err := e.remote.ListPublishers(ctx)
	if err != nil {
		return fmt.Errorf("pull publishers: %w", err)
	}
	txns, err := e.remote.ListTransactions(ctx)
	if err != nil {
		return fmt.Errorf("pull transactions: %w", err)
	}

	if err := e.store.ReplaceBooks(books); err != nil {
		return err
	}
	if err := e.store.ReplacePublishers(pubs); err != nil {
		return err
	}
	if err := e.store.ReplaceTransactions(txns); err != nil {
		return err
	}
	return e.store.SetLastSync(time.Now())
}

// Status computes a read-only snapshot of the sync state.
func (e *Engine) Status() (Status, error) {
	pending, err := e.store.CountPendingOps()
	if err != nil {
		return Status{}, err
	}
	last, err := e.store.LastSync()
	if err != nil {
		return Status{}, err
	}
	return Status{
		Online:            e.net.IsOnline(),
		Syncing:           e.syncing.Load(),
		PendingCount:      pending,
		LastSync:          last,
		HasPendingChanges: pending > 0,
	}, nil
}

func (e *Engine) notify(res Result) {
	e.mu.Lock()
	fns := make([]func(Result), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(res)
	}
}
