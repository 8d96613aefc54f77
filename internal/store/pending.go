package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/libris/pos/internal/models"
)

// EnqueueOp appends a pending operation to the queue and returns its sequence
// number. The queue is ordered by creation: replay happens in seq order.
func (s *Store) EnqueueOp(kind models.OpKind, entityID int64, payload json.RawMessage) (int64, error) {
	res, err := s.conn.Exec(
		`INSERT INTO pending_ops (kind, entity_id, payload, created_at) VALUES (?, ?, ?, ?)`,
		string(kind), entityID, string(payload), formatTime(time.Now()))
	if err != nil {
		return 0, storageErr("enqueue op", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("enqueue op", err)
	}
	return seq, nil
}

// PendingOps returns all unsynced operations in creation order.
func (s *Store) PendingOps() ([]models.PendingOp, error) {
	rows, err := s.conn.Query(`
		SELECT seq, kind, entity_id, payload, created_at, synced_at
		FROM pending_ops WHERE synced_at IS NULL ORDER BY seq ASC`)
	if err != nil {
		return nil, storageErr("pending ops", err)
	}
	defer rows.Close()

	var ops []models.PendingOp
	for rows.Next() {
		op, err := scanPendingOp(rows)
		if err != nil {
			return nil, storageErr("scan pending op", err)
		}
		ops = append(ops, *op)
	}
	return ops, storageErr("pending ops", rows.Err())
}

// CountPendingOps returns the number of unsynced operations.
func (s *Store) CountPendingOps() (int, error) {
	var n int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM pending_ops WHERE synced_at IS NULL`).Scan(&n)
	return n, storageErr("count pending ops", err)
}

// MarkOpSynced records that an operation has been replayed. Idempotent:
// re-marking an already-synced operation is a no-op and keeps the original
// synced timestamp.
func (s *Store) MarkOpSynced(seq int64) error {
	_, err := s.conn.Exec(
		`UPDATE pending_ops SET synced_at = ? WHERE seq = ? AND synced_at IS NULL`,
		formatTime(time.Now()), seq)
	return storageErr("mark op synced", err)
}

// UpdateOpTarget rewrites an unsynced operation's entity id and payload in
// place. Once a temporary id gains its server id, still-queued operations
// referencing it must carry the real id into later runs: the create that
// produced the mapping gets purged, so the mapping has to live in the rows.
func (s *Store) UpdateOpTarget(seq, entityID int64, payload json.RawMessage) error {
	_, err := s.conn.Exec(
		`UPDATE pending_ops SET entity_id = ?, payload = ? WHERE seq = ? AND synced_at IS NULL`,
		entityID, string(payload), seq)
	return storageErr("update op target", err)
}

// CancelPendingOps drops all unsynced operations targeting an entity and
// returns how many were removed. Used to retract queued work for a record
// that never reached the server.
func (s *Store) CancelPendingOps(entityID int64) (int64, error) {
	res, err := s.conn.Exec(
		`DELETE FROM pending_ops WHERE entity_id = ? AND synced_at IS NULL`, entityID)
	if err != nil {
		return 0, storageErr("cancel pending ops", err)
	}
	n, err := res.RowsAffected()
	return n, storageErr("cancel pending ops", err)
}

// PurgeSyncedOps removes synced operations created before the given cutoff.
// Housekeeping only; safe to defer to a later run.
func (s *Store) PurgeSyncedOps(before time.Time) (int64, error) {
	res, err := s.conn.Exec(
		`DELETE FROM pending_ops WHERE synced_at IS NOT NULL AND created_at < ?`,
		formatTime(before))
	if err != nil {
		return 0, storageErr("purge synced ops", err)
	}
	n, err := res.RowsAffected()
	return n, storageErr("purge synced ops", err)
}

func scanPendingOp(r rowScanner) (*models.PendingOp, error) {
	var op models.PendingOp
	var kind, createdAt, payload string
	var syncedAt sql.NullString
	if err := r.Scan(&op.Seq, &kind, &op.EntityID, &payload, &createdAt, &syncedAt); err != nil {
		return nil, err
	}
	op.Kind = models.OpKind(kind)
	op.Payload = json.RawMessage(payload)
	op.CreatedAt = parseTime(createdAt)
	if syncedAt.Valid && syncedAt.String != "" {
		t := parseTime(syncedAt.String)
		op.SyncedAt = &t
	}
	return &op, nil
}
