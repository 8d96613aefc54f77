// Package remote is a thin HTTP client for the bookshop REST API. It attaches
// a bearer token to each request, retries exactly once through the token
// source after a 401, and classifies transport failures, timeouts and 5xx
// responses as network errors so callers can take the offline path.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/libris/pos/internal/models"
)

// Sentinel errors for common HTTP error classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// defaultTimeout bounds every request; a timed-out call is treated the same
// as an unreachable server.
const defaultTimeout = 10 * time.Second

// NetworkError marks a failure to reach the server or a server-side (5xx)
// failure. These are transient: the facade recovers by falling back to the
// local store, and the sync engine records them per operation.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetwork reports whether err is a transient network failure.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// TokenSource supplies bearer tokens. Token returns the current access token;
// Refresh obtains a fresh one after a 401 and returns it; Clear drops stored
// credentials when refresh itself is rejected.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
	Clear() error
}

// Client is an HTTP client for the POS REST API.
type Client struct {
	BaseURL string
	Tokens  TokenSource
	HTTP    *http.Client
}

// New creates a client with the default request timeout.
func New(baseURL string, tokens TokenSource) *Client {
	return &Client{
		BaseURL: baseURL,
		Tokens:  tokens,
		HTTP:    &http.Client{Timeout: defaultTimeout},
	}
}

// Ping checks server reachability. Any HTTP response counts as reachable,
// including 401: the probe proves the network path, not the credentials.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &NetworkError{Op: "ping", Err: err}
	}
	resp.Body.Close()
	return nil
}

// --- Books ---

// ListBooks fetches books, optionally filtered by a search term over
// title/author/isbn. Follows pagination links until exhausted.
func (c *Client) ListBooks(ctx context.Context, search string) ([]models.Book, error) {
	path := "/api/books/"
	if search != "" {
		path += "?search=" + url.QueryEscape(search)
	}
	return listPaginated[models.Book](ctx, c, path)
}

// GetBook fetches a single book by id.
func (c *Client) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	var b models.Book
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/books/%d/", id), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBook creates a book and returns the server's record, including the
// assigned book_id.
func (c *Client) CreateBook(ctx context.Context, b *models.Book) (*models.Book, error) {
	var created models.Book
	if err := c.do(ctx, http.MethodPost, "/api/books/", b, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateBook replaces a book by id and returns the server's record.
func (c *Client) UpdateBook(ctx context.Context, id int64, b *models.Book) (*models.Book, error) {
	var updated models.Book
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/books/%d/", id), b, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteBook deletes a book by id.
func (c *Client) DeleteBook(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/books/%d/", id), nil, nil)
}

// --- Publishers ---

// ListPublishers fetches all publishers.
func (c *Client) ListPublishers(ctx context.Context) ([]models.Publisher, error) {
	return listPaginated[models.Publisher](ctx, c, "/api/publishers/")
}

// CreatePublisher creates a publisher and returns the server's record.
func (c *Client) CreatePublisher(ctx context.Context, p *models.Publisher) (*models.Publisher, error) {
	var created models.Publisher
	if err := c.do(ctx, http.MethodPost, "/api/publishers/", p, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// --- Transactions ---

// ListTransactions fetches all transactions.
func (c *Client) ListTransactions(ctx context.Context) ([]models.Transaction, error) {
	return listPaginated[models.Transaction](ctx, c, "/api/transactions/")
}

// CreateTransaction records a sale and returns the server's record. The
// server assigns trans_id, trans_date and staff from the authenticated user.
func (c *Client) CreateTransaction(ctx context.Context, t *models.Transaction) (*models.Transaction, error) {
	var created models.Transaction
	if err := c.do(ctx, http.MethodPost, "/api/transactions/", t, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// --- Analytics ---

// DashboardSummary is the server's quick dashboard aggregate.
type DashboardSummary struct {
	Today     PeriodSummary    `json:"today"`
	Week      PeriodSummary    `json:"week"`
	Month     PeriodSummary    `json:"month"`
	Inventory InventorySummary `json:"inventory"`
}

// PeriodSummary is revenue and transaction count for one period.
type PeriodSummary struct {
	Revenue      float64 `json:"revenue"`
	Transactions int     `json:"transactions"`
}

// InventorySummary is the aggregate stock position.
type InventorySummary struct {
	TotalBooks    int     `json:"total_books"`
	TotalValue    float64 `json:"total_value"`
	LowStockItems int     `json:"low_stock_items"`
}

// GetDashboardSummary fetches the server-side dashboard aggregate.
func (c *Client) GetDashboardSummary(ctx context.Context) (*DashboardSummary, error) {
	var summary DashboardSummary
	if err := c.do(ctx, http.MethodGet, "/api/analytics/dashboard_summary/", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// --- List helpers ---

// page is the DRF paginated envelope. Unpaginated endpoints return a bare
// array instead; listPaginated handles both.
type page[T any] struct {
	Count    int    `json:"count"`
	Next     string `json:"next"`
	Previous string `json:"previous"`
	Results  []T    `json:"results"`
}

func listPaginated[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var all []T
	for path != "" {
		var raw json.RawMessage
		if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
			return nil, err
		}
		if len(raw) > 0 && raw[0] == '[' {
			var items []T
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, fmt.Errorf("unmarshal list: %w", err)
			}
			return append(all, items...), nil
		}
		var p page[T]
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("unmarshal page: %w", err)
		}
		all = append(all, p.Results...)
		path = relativePath(p.Next)
	}
	return all, nil
}

// relativePath strips the scheme and host from a pagination link so it can be
// re-issued against BaseURL.
func relativePath(link string) string {
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	path := u.Path
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}

// --- HTTP plumbing ---

// apiError is the server's error body: either DRF's {"detail": "..."} or the
// views' {"error": "..."} shape.
type apiError struct {
	Detail string `json:"detail"`
	ErrMsg string `json:"error"`
}

func (e *apiError) message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.ErrMsg
}

// do executes an authenticated request. On a 401 it asks the token source for
// a refreshed token and retries once; a second 401 clears credentials and
// surfaces ErrUnauthorized so the caller can force re-authentication.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	token := ""
	if c.Tokens != nil {
		var err error
		token, err = c.Tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
	}

	err := c.doRequest(ctx, method, path, body, result, token)
	if !errors.Is(err, ErrUnauthorized) || c.Tokens == nil {
		return err
	}

	token, refreshErr := c.Tokens.Refresh(ctx)
	if refreshErr != nil {
		c.Tokens.Clear()
		return fmt.Errorf("%w: token refresh failed: %v", ErrUnauthorized, refreshErr)
	}
	err = c.doRequest(ctx, method, path, body, result, token)
	if errors.Is(err, ErrUnauthorized) {
		c.Tokens.Clear()
	}
	return err
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any, token string) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: method + " " + path, Err: err}
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		json.Unmarshal(respBody, &apiErr)
		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.message())
		case resp.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrForbidden, apiErr.message())
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, apiErr.message())
		case resp.StatusCode >= 500:
			return &NetworkError{Op: method + " " + path,
				Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiErr.message())}
		default:
			if msg := apiErr.message(); msg != "" {
				return fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
			}
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
