package offline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/libris/pos/internal/connectivity"
	"github.com/libris/pos/internal/models"
	"github.com/libris/pos/internal/remote"
	"github.com/libris/pos/internal/store"
	possync "github.com/libris/pos/internal/sync"
)

// Books is the offline-aware API for the book catalog.
type Books struct {
	store  *store.Store
	remote *remote.Client
	net    *connectivity.Monitor
	engine *possync.Engine
	ids    *tempIDs
}

// GetAll lists books, preferring the server. Results from the server are
// mirrored into the local store (upsert, never wholesale: a read must not
// wipe unsynced local records; only the sync engine's pull replaces
// collections). Offline or on network failure, the cached snapshot is
// filtered locally over title/author/isbn.
func (b *Books) GetAll(ctx context.Context, search string) ([]models.Book, error) {
	if b.net.IsOnline() {
		books, err := b.remote.ListBooks(ctx, search)
		if err == nil {
			if err := b.store.PutBooks(books); err != nil {
				return nil, err
			}
			return books, nil
		}
		if !offlinePath(err) {
			return nil, err
		}
		b.net.SetOnline(false)
	}
	return b.store.ListBooks(search)
}

// GetByID fetches one book. Temporary ids only ever exist locally, so they
// skip the server entirely.
func (b *Books) GetByID(ctx context.Context, id int64) (*models.Book, error) {
	if !models.IsTempID(id) && b.net.IsOnline() {
		book, err := b.remote.GetBook(ctx, id)
		if err == nil {
			if err := b.store.PutBook(book); err != nil {
				return nil, err
			}
			return book, nil
		}
		if !offlinePath(err) {
			return nil, err
		}
		b.net.SetOnline(false)
	}
	return b.store.GetBook(id)
}

// Create adds a book. Online, the server's record (with its assigned id) is
// mirrored and returned. Offline, the book is stored under a temporary id,
// marked pending, queued for replay, and returned so the UI can show the
// unconfirmed row immediately.
func (b *Books) Create(ctx context.Context, book *models.Book) (*models.Book, error) {
	if err := validateBook(book); err != nil {
		return nil, err
	}

	if b.net.IsOnline() {
		created, err := b.remote.CreateBook(ctx, book)
		if err == nil {
			if err := b.store.PutBook(created); err != nil {
				return nil, err
			}
			return created, nil
		}
		if !offlinePath(err) {
			return nil, err
		}
		b.net.SetOnline(false)
	}

	local := *book
	local.BookID = b.ids.next()
	local.Pending = true
	now := time.Now()
	local.CreatedAt = now
	local.UpdatedAt = now
	if err := b.store.PutBook(&local); err != nil {
		return nil, err
	}
	if _, err := b.engine.Enqueue(models.OpCreateBook, local.BookID, &local); err != nil {
		return nil, err
	}
	return &local, nil
}

// Update replaces a book's attributes. Offline updates require the record to
// be cached; the merged record is marked pending and queued.
func (b *Books) Update(ctx context.Context, id int64, book *models.Book) (*models.Book, error) {
	if err := validateBook(book); err != nil {
		return nil, err
	}

	if !models.IsTempID(id) && b.net.IsOnline() {
		updated, err := b.remote.UpdateBook(ctx, id, book)
		if err == nil {
			if err := b.store.PutBook(updated); err != nil {
				return nil, err
			}
			return updated, nil
		}
		if !offlinePath(err) {
			return nil, err
		}
		b.net.SetOnline(false)
	}

	existing, err := b.store.GetBook(id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("book %d not in local cache", id)
	}

	local := *book
	local.BookID = id
	local.Pending = true
	local.CreatedAt = existing.CreatedAt
	local.UpdatedAt = time.Now()
	if err := b.store.PutBook(&local); err != nil {
		return nil, err
	}
	if _, err := b.engine.Enqueue(models.OpUpdateBook, id, &local); err != nil {
		return nil, err
	}
	return &local, nil
}

// Delete removes a book locally and, when unreachable, queues the deletion.
// A book that only exists under a temporary id was never created server-side,
// so its queued operations are retracted instead of queueing a delete that
// would replay the create just to tear it down again.
func (b *Books) Delete(ctx context.Context, id int64) error {
	if models.IsTempID(id) {
		if err := b.store.DeleteBook(id); err != nil {
			return err
		}
		n, err := b.store.CancelPendingOps(id)
		if err != nil {
			return err
		}
		slog.Debug("retracted queued ops for local-only book", "id", id, "count", n)
		return nil
	}

	if b.net.IsOnline() {
		err := b.remote.DeleteBook(ctx, id)
		if err == nil {
			return b.store.DeleteBook(id)
		}
		if !offlinePath(err) {
			return err
		}
		b.net.SetOnline(false)
	}

	if err := b.store.DeleteBook(id); err != nil {
		return err
	}
	if _, err := b.engine.Enqueue(models.OpDeleteBook, id, struct{}{}); err != nil {
		return err
	}
	return nil
}

func validateBook(b *models.Book) error {
	switch {
	case b.Title == "":
		return &ValidationError{Field: "title", Msg: "required"}
	case b.Author == "":
		return &ValidationError{Field: "author", Msg: "required"}
	case b.ISBN == "":
		return &ValidationError{Field: "isbn", Msg: "required"}
	case b.StockQty < 0:
		return &ValidationError{Field: "stock_qty", Msg: "must not be negative"}
	case b.UnitPrice <= 0:
		return &ValidationError{Field: "unit_price", Msg: "must be positive"}
	}
	return nil
}

// warnStorage logs a best-effort cache touch-up that failed. Only used where
// the canonical write already happened and the cache will converge on the
// next pull.
func warnStorage(op string, err error) {
	if err != nil {
		slog.Warn("offline cache update failed", "op", op, "err", err)
	}
}
