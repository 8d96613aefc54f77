package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/libris/pos/internal/models"
)

const bookColumns = `book_id, title, author, isbn, stock_qty, unit_price, pub_id, publisher, genre, pending, created_at, updated_at`

// PutBook upserts a single book by primary key.
func (s *Store) PutBook(b *models.Book) error {
	return storageErr("put book", s.execPutBook(s.conn, b))
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (s *Store) execPutBook(e execer, b *models.Book) error {
	_, err := e.Exec(`
		INSERT INTO books (`+bookColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(book_id) DO UPDATE SET
			title=excluded.title, author=excluded.author, isbn=excluded.isbn,
			stock_qty=excluded.stock_qty, unit_price=excluded.unit_price,
			pub_id=excluded.pub_id, publisher=excluded.publisher, genre=excluded.genre,
			pending=excluded.pending, created_at=excluded.created_at, updated_at=excluded.updated_at
	`, b.BookID, b.Title, b.Author, b.ISBN, b.StockQty, b.UnitPrice,
		b.PubID, b.Publisher, b.Genre, boolToInt(b.Pending),
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt))
	return err
}

// PutBooks upserts a batch of books. Each individual row write is atomic but
// the batch as a whole is not; callers must not rely on cross-record atomicity.
func (s *Store) PutBooks(books []models.Book) error {
	for i := range books {
		if err := s.execPutBook(s.conn, &books[i]); err != nil {
			return storageErr("put books", err)
		}
	}
	return nil
}

// ReplaceBooks clears the collection and installs the given snapshot in a
// single transaction: the wholesale-replace step of a pull.
func (s *Store) ReplaceBooks(books []models.Book) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return storageErr("replace books: begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM books`); err != nil {
		return storageErr("replace books: clear", err)
	}
	for i := range books {
		if err := s.execPutBook(tx, &books[i]); err != nil {
			return storageErr("replace books: insert", err)
		}
	}
	return storageErr("replace books: commit", tx.Commit())
}

// ListBooks returns the cached books, ordered by title. A non-empty search
// term filters case-insensitively over title, author and isbn, mirroring the
// server's ?search= behavior for offline reads.
func (s *Store) ListBooks(search string) ([]models.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books`
	var args []any
	if search != "" {
		query += ` WHERE LOWER(title) LIKE ? OR LOWER(author) LIKE ? OR LOWER(isbn) LIKE ?`
		term := "%" + strings.ToLower(search) + "%"
		args = append(args, term, term, term)
	}
	query += ` ORDER BY title`

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, storageErr("list books", err)
	}
	defer rows.Close()

	var books []models.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, storageErr("scan book", err)
		}
		books = append(books, *b)
	}
	return books, storageErr("list books", rows.Err())
}

// LowStockBooks returns cached books below the low-stock threshold.
func (s *Store) LowStockBooks() ([]models.Book, error) {
	rows, err := s.conn.Query(
		`SELECT `+bookColumns+` FROM books WHERE stock_qty < ? ORDER BY stock_qty, title`,
		models.LowStockThreshold)
	if err != nil {
		return nil, storageErr("low stock books", err)
	}
	defer rows.Close()

	var books []models.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, storageErr("scan book", err)
		}
		books = append(books, *b)
	}
	return books, storageErr("low stock books", rows.Err())
}

// GetBook returns the book with the given id, or nil if absent. Absence is
// not an error.
func (s *Store) GetBook(id int64) (*models.Book, error) {
	row := s.conn.QueryRow(`SELECT `+bookColumns+` FROM books WHERE book_id = ?`, id)
	b, err := scanBook(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get book", err)
	}
	return b, nil
}

// DeleteBook removes a book; removing an absent book is a no-op.
func (s *Store) DeleteBook(id int64) error {
	_, err := s.conn.Exec(`DELETE FROM books WHERE book_id = ?`, id)
	return storageErr("delete book", err)
}

// AdjustStock applies a stock delta to a cached book, used when a sale is
// recorded offline so local inventory stays plausible until the next pull.
func (s *Store) AdjustStock(bookID int64, delta int) error {
	res, err := s.conn.Exec(
		`UPDATE books SET stock_qty = MAX(0, stock_qty + ?) WHERE book_id = ?`,
		delta, bookID)
	if err != nil {
		return storageErr("adjust stock", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("adjust stock", err)
	}
	if n == 0 {
		return storageErr("adjust stock", fmt.Errorf("book %d not cached", bookID))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(r rowScanner) (*models.Book, error) {
	var b models.Book
	var pending int
	var createdAt, updatedAt string
	err := r.Scan(&b.BookID, &b.Title, &b.Author, &b.ISBN, &b.StockQty, &b.UnitPrice,
		&b.PubID, &b.Publisher, &b.Genre, &pending, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	b.Pending = pending != 0
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	return &b, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
