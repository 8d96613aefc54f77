package sync

import (
	"fmt"
	"time"

	"github.com/libris/pos/internal/models"
)

// OpError records a single queued operation whose replay failed. Replay
// failures never abort the batch; they accumulate here.
type OpError struct {
	Seq  int64
	Kind models.OpKind
	Err  error
}

func (e OpError) Error() string {
	return fmt.Sprintf("op %d (%s): %v", e.Seq, e.Kind, e.Err)
}

// Result summarises one reconciliation run.
type Result struct {
	// Skipped is set when the run was refused outright: offline, or another
	// run was already in flight.
	Skipped bool
	// Succeeded and Failed count replayed operations.
	Succeeded int
	Failed    int
	Errors    []OpError
	// PullErr is set when the final pull-from-server step failed. Operations
	// already marked synced stay synced regardless.
	PullErr error
	// LastSync is the pull completion time when the pull succeeded.
	LastSync time.Time
}

// Status is a read-only snapshot of the sync state for UI callers.
type Status struct {
	Online            bool       `json:"online"`
	Syncing           bool       `json:"syncing"`
	PendingCount      int        `json:"pending_count"`
	LastSync          *time.Time `json:"last_sync,omitempty"`
	HasPendingChanges bool       `json:"has_pending_changes"`
}
