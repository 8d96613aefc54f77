package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"github.com/libris/pos/internal/connectivity"
	"github.com/libris/pos/internal/models"
	"github.com/libris/pos/internal/remote"
	"github.com/libris/pos/internal/store"
	_ "modernc.org/sqlite"
)

// fakeServer is an in-memory stand-in for the inventory API.
type fakeServer struct {
	mu      stdsync.Mutex
	nextID  int64
	books   []models.Book
	pubs    []models.Publisher
	txns    []models.Transaction
	created []string // titles in arrival order

	failLists    bool
	failTxnPosts bool   // POSTed transactions get a 500
	rejectWord   string // POSTed books with this title get a 400

	srv *httptest.Server
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{nextID: 100}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Method == http.MethodGet && f.failLists {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	switch {
	case r.URL.Path == "/api/books/" && r.Method == http.MethodGet:
		json.NewEncoder(w).Encode(f.books)
	case r.URL.Path == "/api/books/" && r.Method == http.MethodPost:
		var b models.Book
		json.NewDecoder(r.Body).Decode(&b)
		if f.rejectWord != "" && b.Title == f.rejectWord {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "rejected"})
			return
		}
		f.nextID++
		b.BookID = f.nextID
		f.books = append(f.books, b)
		f.created = append(f.created, b.Title)
		json.NewEncoder(w).Encode(b)
	case strings.HasPrefix(r.URL.Path, "/api/books/") && r.Method == http.MethodPut:
		var b models.Book
		json.NewDecoder(r.Body).Decode(&b)
		id, _ := strconv.ParseInt(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/books/"), "/"), 10, 64)
		for i := range f.books {
			if f.books[i].BookID == id {
				b.BookID = id
				f.books[i] = b
				json.NewEncoder(w).Encode(b)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	case strings.HasPrefix(r.URL.Path, "/api/books/") && r.Method == http.MethodDelete:
		id, _ := strconv.ParseInt(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/books/"), "/"), 10, 64)
		for i := range f.books {
			if f.books[i].BookID == id {
				f.books = append(f.books[:i], f.books[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	case r.URL.Path == "/api/publishers/" && r.Method == http.MethodGet:
		json.NewEncoder(w).Encode(f.pubs)
	case r.URL.Path == "/api/publishers/" && r.Method == http.MethodPost:
		var p models.Publisher
		json.NewDecoder(r.Body).Decode(&p)
		f.nextID++
		p.PubID = f.nextID
		f.pubs = append(f.pubs, p)
		json.NewEncoder(w).Encode(p)
	case r.URL.Path == "/api/transactions/" && r.Method == http.MethodGet:
		json.NewEncoder(w).Encode(f.txns)
	case r.URL.Path == "/api/transactions/" && r.Method == http.MethodPost:
		if f.failTxnPosts {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var txn models.Transaction
		json.NewDecoder(r.Body).Decode(&txn)
		f.nextID++
		txn.TransID = f.nextID
		txn.TransDate = time.Now().UTC()
		f.txns = append(f.txns, txn)
		json.NewEncoder(w).Encode(txn)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func setupEngine(t *testing.T, f *fakeServer) (*Engine, *store.Store, *connectivity.Monitor) {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	st, err := store.New(conn)
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	rc := remote.New(f.srv.URL, nil)
	net := connectivity.New(rc, time.Minute)
	t.Cleanup(net.Close)
	net.SetOnline(true)

	// Long debounce so the automatic drain never races the test's own
	// explicit SyncAll calls.
	eng := New(st, rc, net, time.Minute)
	t.Cleanup(eng.Close)
	return eng, st, net
}

func enqueueBookCreate(t *testing.T, eng *Engine, tempID int64, title string) {
	t.Helper()
	book := models.Book{BookID: tempID, Title: title, Author: "A", StockQty: 1, UnitPrice: 10, Pending: true}
	if _, err := eng.Enqueue(models.OpCreateBook, tempID, book); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
}

func TestSyncAllOfflineSkipped(t *testing.T) {
	f := newFakeServer(t)
	eng, _, net := setupEngine(t, f)
	net.SetOnline(false)

	res, err := eng.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if !res.Skipped {
		t.Error("offline run not skipped")
	}
}

func TestSyncAllReplaysInOrder(t *testing.T) {
	f := newFakeServer(t)
	eng, st, _ := setupEngine(t, f)

	enqueueBookCreate(t, eng, -1, "first")
	enqueueBookCreate(t, eng, -2, "second")
	enqueueBookCreate(t, eng, -3, "third")

	res, err := eng.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if res.Succeeded != 3 || res.Failed != 0 {
		t.Fatalf("got %d/%d succeeded/failed, want 3/0", res.Succeeded, res.Failed)
	}

	want := []string{"first", "second", "third"}
	f.mu.Lock()
	got := append([]string(nil), f.created...)
	f.mu.Unlock()
	if len(got) != 3 {
		t.Fatalf("server saw %d creates, want 3", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("create %d: got %q, want %q", i, got[i], want[i])
		}
	}

	n, _ := st.CountPendingOps()
	if n != 0 {
		t.Errorf("pending count after sync: got %d, want 0", n)
	}
}

func TestPartialFailureIsolation(t *testing.T) {
	f := newFakeServer(t)
	f.rejectWord = "poison"
	eng, st, _ := setupEngine(t, f)

	enqueueBookCreate(t, eng, -1, "good one")
	enqueueBookCreate(t, eng, -2, "poison")
	enqueueBookCreate(t, eng, -3, "good two")

	res, err := eng.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if res.Succeeded != 2 || res.Failed != 1 {
		t.Fatalf("got %d/%d succeeded/failed, want 2/1", res.Succeeded, res.Failed)
	}
	if len(res.Errors) != 1 || res.Errors[0].Kind != models.OpCreateBook {
		t.Errorf("errors: %v", res.Errors)
	}

	// The failed op stays queued for the next run.
	ops, _ := st.PendingOps()
	if len(ops) != 1 {
		t.Fatalf("got %d ops still queued, want 1", len(ops))
	}
	var b models.Book
	json.Unmarshal(ops[0].Payload, &b)
	if b.Title != "poison" {
		t.Errorf("wrong op left queued: %q", b.Title)
	}
}

func TestTempIDRemap(t *testing.T) {
	f := newFakeServer(t)
	eng, _, _ := setupEngine(t, f)

	const tempID = int64(-42)
	enqueueBookCreate(t, eng, tempID, "offline book")

	txn := models.Transaction{
		TransID:     -43,
		TotalAmount: 20,
		Details: []models.TransactionLine{
			{BookID: tempID, Quantity: 2, UnitPrice: 10, LineTotal: 20},
		},
		Pending: true,
	}
	if _, err := eng.Enqueue(models.OpCreateTransaction, txn.TransID, txn); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	res, err := eng.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if res.Failed != 0 {
		t.Fatalf("replay failures: %v", res.Errors)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.txns) != 1 {
		t.Fatalf("server has %d transactions, want 1", len(f.txns))
	}
	lineID := f.txns[0].Details[0].BookID
	if models.IsTempID(lineID) || lineID != f.books[0].BookID {
		t.Errorf("transaction line book id %d not remapped to server id %d", lineID, f.books[0].BookID)
	}
}

func TestFailedDependentOpResolvesOnRetry(t *testing.T) {
	f := newFakeServer(t)
	f.failTxnPosts = true
	eng, st, _ := setupEngine(t, f)

	const tempID = int64(-5)
	enqueueBookCreate(t, eng, tempID, "offline book")
	txn := models.Transaction{
		TransID:     -6,
		TotalAmount: 10,
		Details: []models.TransactionLine{
			{BookID: tempID, Quantity: 1, UnitPrice: 10, LineTotal: 10},
		},
		Pending: true,
	}
	if _, err := eng.Enqueue(models.OpCreateTransaction, txn.TransID, txn); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Run 1: the create lands, the dependent sale hits a server error.
	res, err := eng.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if res.Succeeded != 1 || res.Failed != 1 {
		t.Fatalf("run 1: got %d/%d succeeded/failed, want 1/1", res.Succeeded, res.Failed)
	}

	// The queued sale must already carry the assigned server id: the create
	// and its in-memory mapping are gone before the retry.
	ops, _ := st.PendingOps()
	if len(ops) != 1 {
		t.Fatalf("got %d ops queued after run 1, want 1", len(ops))
	}
	var queued models.Transaction
	json.Unmarshal(ops[0].Payload, &queued)
	if models.IsTempID(queued.Details[0].BookID) {
		t.Fatalf("queued sale still references temp id %d", queued.Details[0].BookID)
	}

	f.mu.Lock()
	f.failTxnPosts = false
	serverID := f.books[0].BookID
	f.mu.Unlock()

	// Run 2: a fresh engine state, so only the rewritten row can resolve it.
	res, err = eng.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if res.Failed != 0 {
		t.Fatalf("run 2 failures: %v", res.Errors)
	}

	f.mu.Lock()
	if len(f.txns) != 1 || f.txns[0].Details[0].BookID != serverID {
		t.Errorf("server transactions after retry: %+v", f.txns)
	}
	f.mu.Unlock()

	if n, _ := st.CountPendingOps(); n != 0 {
		t.Errorf("pending count after retry: got %d, want 0", n)
	}
}

func TestUnresolvedTempIDFails(t *testing.T) {
	f := newFakeServer(t)
	eng, _, _ := setupEngine(t, f)

	// An update against a temp id whose create was never queued.
	book := models.Book{BookID: -7, Title: "ghost", Author: "A", StockQty: 1, UnitPrice: 1}
	if _, err := eng.Enqueue(models.OpUpdateBook, -7, book); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	res, err := eng.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if res.Failed != 1 {
		t.Fatalf("got %d failures, want 1", res.Failed)
	}
	if !strings.Contains(res.Errors[0].Err.Error(), "unresolved temporary id") {
		t.Errorf("unexpected error: %v", res.Errors[0].Err)
	}
}

func TestPullReplacesLocalState(t *testing.T) {
	f := newFakeServer(t)
	f.books = []models.Book{{BookID: 1, Title: "Canonical", Author: "S", StockQty: 3, UnitPrice: 9}}
	eng, st, _ := setupEngine(t, f)

	// Stale local row the server no longer has.
	st.PutBook(&models.Book{BookID: 99, Title: "Ghost", Author: "X", StockQty: 1, UnitPrice: 1})

	res, err := eng.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if res.PullErr != nil {
		t.Fatalf("pull failed: %v", res.PullErr)
	}
	if res.LastSync.IsZero() {
		t.Error("LastSync not stamped")
	}

	books, _ := st.ListBooks("")
	if len(books) != 1 || books[0].Title != "Canonical" {
		t.Errorf("local state after pull: %v", books)
	}

	last, _ := st.LastSync()
	if last == nil {
		t.Error("last_sync not persisted")
	}
}

func TestPullFailureOnFirstSyncIsFatal(t *testing.T) {
	f := newFakeServer(t)
	f.failLists = true
	eng, _, _ := setupEngine(t, f)

	res, err := eng.SyncAll(context.Background())
	if err == nil {
		t.Fatal("expected error: pull failed with no previous snapshot")
	}
	if res.PullErr == nil {
		t.Error("PullErr not recorded")
	}
}

func TestPullFailureWithSnapshotIsSoft(t *testing.T) {
	f := newFakeServer(t)
	eng, st, _ := setupEngine(t, f)
	st.SetLastSync(time.Now().Add(-time.Hour))

	f.mu.Lock()
	f.failLists = true
	f.mu.Unlock()

	res, err := eng.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("pull failure over a usable cache should not be fatal: %v", err)
	}
	if res.PullErr == nil {
		t.Error("PullErr not recorded")
	}
}

func TestConcurrentSyncCollapses(t *testing.T) {
	f := newFakeServer(t)
	eng, _, _ := setupEngine(t, f)

	// Occupy the gate directly, then observe the second caller skip.
	if !eng.syncing.CompareAndSwap(false, true) {
		t.Fatal("gate unexpectedly held")
	}
	res, err := eng.SyncAll(context.Background())
	eng.syncing.Store(false)
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if !res.Skipped {
		t.Error("second concurrent run not skipped")
	}
}

func TestOnSyncComplete(t *testing.T) {
	f := newFakeServer(t)
	eng, _, _ := setupEngine(t, f)

	var results []Result
	unsub := eng.OnSyncComplete(func(r Result) { results = append(results, r) })

	if _, err := eng.SyncAll(context.Background()); err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d notifications, want 1", len(results))
	}

	unsub()
	if _, err := eng.SyncAll(context.Background()); err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("notified after unsubscribe")
	}
}

func TestDeleteAlreadyGoneSucceeds(t *testing.T) {
	f := newFakeServer(t)
	eng, _, _ := setupEngine(t, f)

	if _, err := eng.Enqueue(models.OpDeleteBook, 77, nil); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	res, err := eng.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if res.Failed != 0 {
		t.Errorf("delete of a record already gone server-side should succeed: %v", res.Errors)
	}
}

func TestStatus(t *testing.T) {
	f := newFakeServer(t)
	eng, _, net := setupEngine(t, f)

	enqueueBookCreate(t, eng, -1, "queued")

	st, err := eng.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !st.Online || st.PendingCount != 1 || !st.HasPendingChanges || st.LastSync != nil {
		t.Errorf("status before sync: %+v", st)
	}

	if _, err := eng.SyncAll(context.Background()); err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	net.SetOnline(false)

	st, err = eng.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.Online || st.PendingCount != 0 || st.LastSync == nil {
		t.Errorf("status after sync: %+v", st)
	}
}
