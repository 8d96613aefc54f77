package models

import (
	"encoding/json"
	"time"
)

// LowStockThreshold is the stock quantity below which a book is flagged.
const LowStockThreshold = 5

// WalkInCustomer is the sentinel customer name used for anonymous sales.
const WalkInCustomer = "Walk-in"

// Book is a catalog entry. Field names follow the REST API's wire format.
type Book struct {
	BookID    int64      `json:"book_id"`
	Title     string     `json:"title"`
	Author    string     `json:"author"`
	ISBN      string     `json:"isbn"`
	StockQty  int        `json:"stock_qty"`
	UnitPrice float64    `json:"unit_price"`
	PubID     int64      `json:"pub_id,omitempty"`
	Publisher string     `json:"publisher,omitempty"`
	Genre     string     `json:"genre,omitempty"`
	CreatedAt time.Time  `json:"created_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at,omitempty"`
	// Pending marks a record written locally while offline and not yet
	// confirmed by the server.
	Pending bool `json:"pending,omitempty"`
}

// IsLowStock reports whether the book's stock is below the reorder threshold.
func (b *Book) IsLowStock() bool {
	return b.StockQty < LowStockThreshold
}

// TotalValue returns the book's total inventory value.
func (b *Book) TotalValue() float64 {
	return float64(b.StockQty) * b.UnitPrice
}

// Publisher is a book publisher.
type Publisher struct {
	PubID     int64     `json:"pub_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
	Pending   bool      `json:"pending,omitempty"`
}

// TransactionLine is a single line item in a sale.
type TransactionLine struct {
	DetailID  int64   `json:"detail_id,omitempty"`
	BookID    int64   `json:"book"`
	BookTitle string  `json:"book_title,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total,omitempty"`
}

// Transaction is a completed sale. Transactions are immutable once created;
// there are no update or delete operations anywhere in the system.
type Transaction struct {
	TransID      int64             `json:"trans_id"`
	TransDate    time.Time         `json:"trans_date"`
	TotalAmount  float64           `json:"total_amount"`
	StaffID      int64             `json:"staff,omitempty"`
	StaffName    string            `json:"staff_name,omitempty"`
	CustomerName string            `json:"customer_name,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	Details      []TransactionLine `json:"details"`
	Pending      bool              `json:"pending,omitempty"`
}

// OpKind identifies the kind of a queued offline mutation. Each kind's
// payload is exactly the request body its replay call needs.
type OpKind string

const (
	OpCreateBook        OpKind = "CREATE_BOOK"
	OpUpdateBook        OpKind = "UPDATE_BOOK"
	OpDeleteBook        OpKind = "DELETE_BOOK"
	OpCreatePublisher   OpKind = "CREATE_PUBLISHER"
	OpCreateTransaction OpKind = "CREATE_TRANSACTION"
)

// Valid reports whether k is a known operation kind.
func (k OpKind) Valid() bool {
	switch k {
	case OpCreateBook, OpUpdateBook, OpDeleteBook, OpCreatePublisher, OpCreateTransaction:
		return true
	}
	return false
}

// PendingOp is a mutation performed while disconnected, queued for replay.
// Seq is the local auto-incrementing queue position; ops replay in Seq order.
type PendingOp struct {
	Seq       int64           `json:"seq"`
	Kind      OpKind          `json:"kind"`
	EntityID  int64           `json:"entity_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SyncedAt  *time.Time      `json:"synced_at,omitempty"`
}

// Synced reports whether the operation has been replayed against the server.
func (op *PendingOp) Synced() bool {
	return op.SyncedAt != nil
}

// IsTempID reports whether id is a client-generated temporary identity.
// Temp ids are negative (derived from a creation timestamp) so they can never
// collide with server-assigned autoincrement ids.
func IsTempID(id int64) bool {
	return id < 0
}
