package offline

import (
	"context"
	"fmt"
	"time"

	"github.com/libris/pos/internal/connectivity"
	"github.com/libris/pos/internal/models"
	"github.com/libris/pos/internal/remote"
	"github.com/libris/pos/internal/store"
	possync "github.com/libris/pos/internal/sync"
)

// Transactions is the offline-aware API for sales. Transactions are
// immutable: there is no update or delete.
type Transactions struct {
	store  *store.Store
	remote *remote.Client
	net    *connectivity.Monitor
	engine *possync.Engine
	ids    *tempIDs
}

// GetAll lists transactions, newest last, mirroring server results into the
// cache and falling back to the cache when unreachable. A non-nil since
// filter is applied locally either way.
func (t *Transactions) GetAll(ctx context.Context, since *time.Time) ([]models.Transaction, error) {
	if t.net.IsOnline() {
		txns, err := t.remote.ListTransactions(ctx)
		if err == nil {
			if err := t.store.PutTransactions(txns); err != nil {
				return nil, err
			}
			if since != nil {
				filtered := txns[:0]
				for _, tx := range txns {
					if !tx.TransDate.Before(*since) {
						filtered = append(filtered, tx)
					}
				}
				txns = filtered
			}
			return txns, nil
		}
		if !offlinePath(err) {
			return nil, err
		}
		t.net.SetOnline(false)
	}
	return t.store.ListTransactions(since)
}

// GetByID returns a transaction from the cache.
func (t *Transactions) GetByID(ctx context.Context, id int64) (*models.Transaction, error) {
	return t.store.GetTransaction(id)
}

// Create records a sale. Line totals and the transaction total are always
// computed here from quantity × unit price; a line with no unit price takes
// the cached book's current price. Offline, the sale gets a temporary id and
// a locally-assigned trans_date (the server normally stamps it), stock is
// decremented in the cache per line, and the sale is queued for replay.
//
// The cached stock decrement is best-effort on both paths: the recorded sale
// is what gets replayed or was already accepted, a line may name a book the
// cache has never seen, and the next pull converges stock either way. Only
// failures of the sale record itself surface as errors.
func (t *Transactions) Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	if len(txn.Details) == 0 {
		return nil, &ValidationError{Field: "details", Msg: "at least one line item required"}
	}
	for i := range txn.Details {
		line := &txn.Details[i]
		if line.Quantity < 1 {
			return nil, &ValidationError{Field: "quantity", Msg: "must be at least 1"}
		}
		book, err := t.store.GetBook(line.BookID)
		if err != nil {
			return nil, err
		}
		if line.UnitPrice == 0 {
			if book == nil {
				return nil, &ValidationError{Field: "book",
					Msg: fmt.Sprintf("book %d not in local cache and no unit price given", line.BookID)}
			}
			line.UnitPrice = book.UnitPrice
		}
		if book != nil && line.BookTitle == "" {
			line.BookTitle = book.Title
		}
		// Offline we cannot oversell what the cache says we have.
		if !t.net.IsOnline() && book != nil && line.Quantity > book.StockQty {
			return nil, &ValidationError{Field: "quantity",
				Msg: fmt.Sprintf("insufficient stock for %q: %d available", book.Title, book.StockQty)}
		}
		line.LineTotal = float64(line.Quantity) * line.UnitPrice
	}

	txn.TotalAmount = 0
	for _, line := range txn.Details {
		txn.TotalAmount += line.LineTotal
	}
	if txn.CustomerName == "" {
		txn.CustomerName = models.WalkInCustomer
	}

	if t.net.IsOnline() {
		created, err := t.remote.CreateTransaction(ctx, txn)
		if err == nil {
			if err := t.store.PutTransaction(created); err != nil {
				return nil, err
			}
			// The server already decremented its stock; keep the cache
			// plausible until the next pull.
			for _, line := range created.Details {
				warnStorage("adjust stock", t.store.AdjustStock(line.BookID, -line.Quantity))
			}
			return created, nil
		}
		if !offlinePath(err) {
			return nil, err
		}
		t.net.SetOnline(false)
	}

	local := *txn
	local.TransID = t.ids.next()
	local.TransDate = time.Now()
	local.Pending = true
	if err := t.store.PutTransaction(&local); err != nil {
		return nil, err
	}
	for _, line := range local.Details {
		if err := t.store.AdjustStock(line.BookID, -line.Quantity); err != nil {
			warnStorage("adjust stock", err)
		}
	}
	if _, err := t.engine.Enqueue(models.OpCreateTransaction, local.TransID, &local); err != nil {
		return nil, err
	}
	return &local, nil
}
