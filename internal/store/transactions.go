package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/libris/pos/internal/models"
)

const transactionColumns = `trans_id, trans_date, total_amount, staff_id, staff_name, customer_name, notes, details, pending`

// PutTransaction upserts a single transaction by primary key. Line items are
// stored as a JSON column; transactions are immutable so they are never
// updated piecemeal.
func (s *Store) PutTransaction(t *models.Transaction) error {
	return storageErr("put transaction", s.execPutTransaction(s.conn, t))
}

func (s *Store) execPutTransaction(e execer, t *models.Transaction) error {
	details := t.Details
	if details == nil {
		details = []models.TransactionLine{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}
	_, err = e.Exec(`
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trans_id) DO UPDATE SET
			trans_date=excluded.trans_date, total_amount=excluded.total_amount,
			staff_id=excluded.staff_id, staff_name=excluded.staff_name,
			customer_name=excluded.customer_name, notes=excluded.notes,
			details=excluded.details, pending=excluded.pending
	`, t.TransID, formatTime(t.TransDate), t.TotalAmount, t.StaffID, t.StaffName,
		t.CustomerName, t.Notes, string(detailsJSON), boolToInt(t.Pending))
	return err
}

// PutTransactions upserts a batch of transactions.
func (s *Store) PutTransactions(txns []models.Transaction) error {
	for i := range txns {
		if err := s.execPutTransaction(s.conn, &txns[i]); err != nil {
			return storageErr("put transactions", err)
		}
	}
	return nil
}

// ReplaceTransactions clears the collection and installs the given snapshot.
func (s *Store) ReplaceTransactions(txns []models.Transaction) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return storageErr("replace transactions: begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM transactions`); err != nil {
		return storageErr("replace transactions: clear", err)
	}
	for i := range txns {
		if err := s.execPutTransaction(tx, &txns[i]); err != nil {
			return storageErr("replace transactions: insert", err)
		}
	}
	return storageErr("replace transactions: commit", tx.Commit())
}

// ListTransactions returns cached transactions ordered by date ascending.
// A non-nil since filters to transactions at or after that time.
func (s *Store) ListTransactions(since *time.Time) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions`
	var args []any
	if since != nil {
		query += ` WHERE trans_date >= ?`
		args = append(args, formatTime(*since))
	}
	query += ` ORDER BY trans_date`

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, storageErr("list transactions", err)
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, storageErr("scan transaction", err)
		}
		txns = append(txns, *t)
	}
	return txns, storageErr("list transactions", rows.Err())
}

// GetTransaction returns the transaction with the given id, or nil if absent.
func (s *Store) GetTransaction(id int64) (*models.Transaction, error) {
	row := s.conn.QueryRow(`SELECT `+transactionColumns+` FROM transactions WHERE trans_id = ?`, id)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get transaction", err)
	}
	return t, nil
}

func scanTransaction(r rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	var pending int
	var transDate, detailsJSON string
	err := r.Scan(&t.TransID, &transDate, &t.TotalAmount, &t.StaffID, &t.StaffName,
		&t.CustomerName, &t.Notes, &detailsJSON, &pending)
	if err != nil {
		return nil, err
	}
	t.Pending = pending != 0
	t.TransDate = parseTime(transDate)
	if err := json.Unmarshal([]byte(detailsJSON), &t.Details); err != nil {
		return nil, err
	}
	return &t, nil
}
