package offline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/libris/pos/internal/connectivity"
	"github.com/libris/pos/internal/models"
	"github.com/libris/pos/internal/remote"
	"github.com/libris/pos/internal/store"
	possync "github.com/libris/pos/internal/sync"
	_ "modernc.org/sqlite"
)

// setupFacade builds a facade over an in-memory store and the given handler.
// A nil handler means the server is unreachable (closed listener).
func setupFacade(t *testing.T, handler http.HandlerFunc) (*Facade, *store.Store, *connectivity.Monitor) {
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

	srv := httptest.NewServer(handler)
	if handler == nil {
		srv.Close()
	} else {
		t.Cleanup(srv.Close)
	}

	rc := remote.New(srv.URL, nil)
	net := connectivity.New(rc, time.Minute)
	t.Cleanup(net.Close)

	eng := possync.New(st, rc, net, time.Minute)
	t.Cleanup(eng.Close)
	return New(st, rc, net, eng), st, net
}

func seedBook(t *testing.T, st *store.Store, id int64, title string, stock int, price float64) {
	t.Helper()
	err := st.PutBook(&models.Book{BookID: id, Title: title, Author: "A", ISBN: "x", StockQty: stock, UnitPrice: price})
	if err != nil {
		t.Fatalf("seed book: %v", err)
	}
}

func TestCreateBookOffline(t *testing.T) {
	f, st, _ := setupFacade(t, nil)

	created, err := f.Books.Create(context.Background(), &models.Book{
		Title: "Pale Fire", Author: "Vladimir Nabokov", ISBN: "9780679723424",
		StockQty: 4, UnitPrice: 15.50,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !models.IsTempID(created.BookID) {
		t.Errorf("offline create got id %d, want a temporary (negative) id", created.BookID)
	}
	if !created.Pending {
		t.Error("offline create not marked pending")
	}

	// Visible in the cache immediately.
	cached, err := st.GetBook(created.BookID)
	if err != nil || cached == nil {
		t.Fatalf("created book not cached: %v %v", cached, err)
	}

	// One CREATE_BOOK op queued, carrying the full record.
	ops, err := st.PendingOps()
	if err != nil {
		t.Fatalf("PendingOps failed: %v", err)
	}
	if len(ops) != 1 || ops[0].Kind != models.OpCreateBook {
		t.Fatalf("queue: %+v", ops)
	}
	var payload models.Book
	json.Unmarshal(ops[0].Payload, &payload)
	if payload.Title != "Pale Fire" || payload.BookID != created.BookID {
		t.Errorf("payload: %+v", payload)
	}
}

func TestTempIDsDistinct(t *testing.T) {
	f, _, _ := setupFacade(t, nil)

	seen := map[int64]bool{}
	for i := 0; i < 5; i++ {
		b, err := f.Books.Create(context.Background(), &models.Book{
			Title: "T", Author: "A", ISBN: "i", StockQty: 1, UnitPrice: 1,
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if seen[b.BookID] {
			t.Fatalf("duplicate temp id %d", b.BookID)
		}
		seen[b.BookID] = true
	}
}

func TestGetAllFallsBackToCache(t *testing.T) {
	f, st, net := setupFacade(t, nil)
	seedBook(t, st, 1, "Moby-Dick", 4, 12)
	seedBook(t, st, 2, "Dubliners", 2, 11)

	// Pretend a probe succeeded earlier; the failing request must flip us
	// back offline and serve the cache.
	net.SetOnline(true)

	books, err := f.Books.GetAll(context.Background(), "moby")
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(books) != 1 || books[0].Title != "Moby-Dick" {
		t.Errorf("cached search: %v", books)
	}
	if net.IsOnline() {
		t.Error("network failure did not flip the monitor offline")
	}
}

func TestGetAllOnlineMirrorsWithoutWipingUnsynced(t *testing.T) {
	server := []models.Book{{BookID: 1, Title: "Server Copy", Author: "S", ISBN: "s", StockQty: 3, UnitPrice: 9}}
	f, st, net := setupFacade(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(server)
	})

	// An unsynced offline creation sits in the cache.
	if _, err := f.Books.Create(context.Background(), &models.Book{
		Title: "Unsynced", Author: "U", ISBN: "u", StockQty: 1, UnitPrice: 1,
	}); err != nil {
		t.Fatalf("offline create failed: %v", err)
	}
	net.SetOnline(true)

	books, err := f.Books.GetAll(context.Background(), "")
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(books) != 1 || books[0].Title != "Server Copy" {
		t.Errorf("server list: %v", books)
	}

	// The mirror is an upsert; the unsynced local record survives.
	cached, err := st.ListBooks("")
	if err != nil {
		t.Fatalf("ListBooks failed: %v", err)
	}
	if len(cached) != 2 {
		t.Errorf("read wiped unsynced records: %v", cached)
	}
}

func TestCreateBookValidation(t *testing.T) {
	f, _, _ := setupFacade(t, nil)

	cases := []models.Book{
		{Author: "A", ISBN: "i", StockQty: 1, UnitPrice: 1},             // no title
		{Title: "T", ISBN: "i", StockQty: 1, UnitPrice: 1},              // no author
		{Title: "T", Author: "A", StockQty: 1, UnitPrice: 1},            // no isbn
		{Title: "T", Author: "A", ISBN: "i", StockQty: -1, UnitPrice: 1}, // negative stock
		{Title: "T", Author: "A", ISBN: "i", StockQty: 1},               // no price
	}
	for i, c := range cases {
		_, err := f.Books.Create(context.Background(), &c)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("case %d: got %v, want ValidationError", i, err)
		}
	}

	// Nothing queued for rejected input.
	ops, _ := fStore(t, f)
	if len(ops) != 0 {
		t.Errorf("validation failures queued ops: %v", ops)
	}
}

// fStore digs the queue out via the Books API's store for assertions.
func fStore(t *testing.T, f *Facade) ([]models.PendingOp, error) {
	t.Helper()
	return f.Books.store.PendingOps()
}

func TestUpdateOfflineRequiresCachedRecord(t *testing.T) {
	f, _, _ := setupFacade(t, nil)

	_, err := f.Books.Update(context.Background(), 55, &models.Book{
		Title: "T", Author: "A", ISBN: "i", StockQty: 1, UnitPrice: 1,
	})
	if err == nil {
		t.Fatal("offline update of an uncached record should fail")
	}
}

func TestUpdateOffline(t *testing.T) {
	f, st, _ := setupFacade(t, nil)
	seedBook(t, st, 7, "Old Title", 3, 10)

	updated, err := f.Books.Update(context.Background(), 7, &models.Book{
		Title: "New Title", Author: "A", ISBN: "x", StockQty: 3, UnitPrice: 10,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !updated.Pending || updated.Title != "New Title" {
		t.Errorf("got %+v", updated)
	}

	ops, _ := st.PendingOps()
	if len(ops) != 1 || ops[0].Kind != models.OpUpdateBook || ops[0].EntityID != 7 {
		t.Errorf("queue: %+v", ops)
	}
}

func TestDeleteOffline(t *testing.T) {
	f, st, _ := setupFacade(t, nil)
	seedBook(t, st, 9, "Doomed", 1, 5)

	if err := f.Books.Delete(context.Background(), 9); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	cached, _ := st.GetBook(9)
	if cached != nil {
		t.Error("book still cached after delete")
	}
	ops, _ := st.PendingOps()
	if len(ops) != 1 || ops[0].Kind != models.OpDeleteBook {
		t.Errorf("queue: %+v", ops)
	}
}

func TestDeleteLocalOnlyBookRetractsQueuedOps(t *testing.T) {
	f, st, _ := setupFacade(t, nil)

	created, err := f.Books.Create(context.Background(), &models.Book{
		Title: "Regret", Author: "A", ISBN: "x", StockQty: 1, UnitPrice: 5,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	created.Title = "Deep Regret"
	if _, err := f.Books.Update(context.Background(), created.BookID, created); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// Deleting the never-synced book retracts its queued create and update
	// instead of queueing a delete that would round-trip through the server.
	if err := f.Books.Delete(context.Background(), created.BookID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	cached, _ := st.GetBook(created.BookID)
	if cached != nil {
		t.Error("book still cached after delete")
	}
	ops, _ := st.PendingOps()
	if len(ops) != 0 {
		t.Errorf("queue after deleting a local-only book: %+v", ops)
	}
}

func TestSellOfflineDecrementsStock(t *testing.T) {
	f, st, _ := setupFacade(t, nil)
	seedBook(t, st, 3, "Stocked", 10, 8)

	txn, err := f.Transactions.Create(context.Background(), &models.Transaction{
		Details: []models.TransactionLine{{BookID: 3, Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !models.IsTempID(txn.TransID) || !txn.Pending {
		t.Errorf("offline sale: %+v", txn)
	}
	if txn.TotalAmount != 32 {
		t.Errorf("total: got %v, want 32 (4 x cached price 8)", txn.TotalAmount)
	}
	if txn.CustomerName != models.WalkInCustomer {
		t.Errorf("customer default: got %q", txn.CustomerName)
	}
	if txn.TransDate.IsZero() {
		t.Error("offline sale missing a locally-assigned date")
	}

	book, _ := st.GetBook(3)
	if book.StockQty != 6 {
		t.Errorf("stock after sale: got %d, want 6", book.StockQty)
	}

	ops, _ := st.PendingOps()
	if len(ops) != 1 || ops[0].Kind != models.OpCreateTransaction {
		t.Errorf("queue: %+v", ops)
	}
}

func TestSellOfflineOversellRejected(t *testing.T) {
	f, st, _ := setupFacade(t, nil)
	seedBook(t, st, 3, "Scarce", 2, 8)

	_, err := f.Transactions.Create(context.Background(), &models.Transaction{
		Details: []models.TransactionLine{{BookID: 3, Quantity: 5}},
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("got %v, want ValidationError", err)
	}

	// Stock untouched, nothing queued.
	book, _ := st.GetBook(3)
	if book.StockQty != 2 {
		t.Errorf("stock changed on rejected sale: %d", book.StockQty)
	}
	ops, _ := st.PendingOps()
	if len(ops) != 0 {
		t.Errorf("rejected sale queued: %v", ops)
	}
}

func TestSellValidation(t *testing.T) {
	f, st, _ := setupFacade(t, nil)
	seedBook(t, st, 1, "B", 5, 2)

	_, err := f.Transactions.Create(context.Background(), &models.Transaction{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("empty sale: got %v", err)
	}

	_, err = f.Transactions.Create(context.Background(), &models.Transaction{
		Details: []models.TransactionLine{{BookID: 1, Quantity: 0}},
	})
	if !errors.As(err, &verr) {
		t.Errorf("zero quantity: got %v", err)
	}

	// A sale for an uncached book with no explicit price cannot be priced.
	_, err = f.Transactions.Create(context.Background(), &models.Transaction{
		Details: []models.TransactionLine{{BookID: 999, Quantity: 1}},
	})
	if !errors.As(err, &verr) {
		t.Errorf("unpriceable line: got %v", err)
	}
}

func TestSellExplicitPriceOverride(t *testing.T) {
	f, st, _ := setupFacade(t, nil)
	seedBook(t, st, 1, "B", 5, 10)

	txn, err := f.Transactions.Create(context.Background(), &models.Transaction{
		Details: []models.TransactionLine{{BookID: 1, Quantity: 2, UnitPrice: 7.5}},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if txn.TotalAmount != 15 {
		t.Errorf("total with override: got %v, want 15", txn.TotalAmount)
	}
}

func TestCreatePublisherOffline(t *testing.T) {
	f, st, _ := setupFacade(t, nil)

	created, err := f.Publishers.Create(context.Background(), &models.Publisher{Name: "Faber"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !models.IsTempID(created.PubID) || !created.Pending {
		t.Errorf("got %+v", created)
	}

	ops, _ := st.PendingOps()
	if len(ops) != 1 || ops[0].Kind != models.OpCreatePublisher {
		t.Errorf("queue: %+v", ops)
	}

	_, err = f.Publishers.Create(context.Background(), &models.Publisher{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("nameless publisher: got %v", err)
	}
}

func TestGetByIDTempSkipsServer(t *testing.T) {
	var hits int
	f, st, net := setupFacade(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	})
	net.SetOnline(true)
	seedBook(t, st, -5, "Local Only", 1, 1)

	book, err := f.Books.GetByID(context.Background(), -5)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if book == nil || book.Title != "Local Only" {
		t.Errorf("got %v", book)
	}
	if hits != 0 {
		t.Errorf("temp-id lookup hit the server %d times", hits)
	}
}
