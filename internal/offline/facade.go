// Package offline presents one read/write surface per entity type and hides
// connectivity from callers. Reads prefer the server and mirror results into
// the local store; writes that cannot reach the server apply locally under a
// temporary id and queue a pending operation for later replay. Transient
// network failures never escape to callers on the write path.
package offline

import (
	"fmt"
	stdsync "sync"
	"time"

	"github.com/libris/pos/internal/connectivity"
	"github.com/libris/pos/internal/remote"
	"github.com/libris/pos/internal/store"
	possync "github.com/libris/pos/internal/sync"
)

// ValidationError is a rejected input, detected before any network or
// storage call.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// Facade bundles the per-entity offline-aware APIs over one shared set of
// collaborators.
type Facade struct {
	Books        *Books
	Publishers   *Publishers
	Transactions *Transactions

	ids *tempIDs
}

// New builds the facade. All entity APIs share the same temp-id allocator so
// temporary identities are unique across entity types too.
func New(st *store.Store, rc *remote.Client, net *connectivity.Monitor, eng *possync.Engine) *Facade {
	f := &Facade{ids: &tempIDs{}}
	f.Books = &Books{store: st, remote: rc, net: net, engine: eng, ids: f.ids}
	f.Publishers = &Publishers{store: st, remote: rc, net: net, engine: eng, ids: f.ids}
	f.Transactions = &Transactions{store: st, remote: rc, net: net, engine: eng, ids: f.ids}
	return f
}

// tempIDs allocates client-side temporary identities: negative unix
// milliseconds, forced strictly decreasing so two creates in the same
// millisecond still get distinct ids.
type tempIDs struct {
	mu   stdsync.Mutex
	last int64
}

func (t *tempIDs) next() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := -time.Now().UnixMilli()
	if id >= t.last {
		id = t.last - 1
	}
	t.last = id
	return id
}

// offlinePath reports whether err should route a write to the local
// store + queue instead of failing: being offline looks the same as a
// network error mid-request.
func offlinePath(err error) bool {
	return remote.IsNetwork(err)
}
