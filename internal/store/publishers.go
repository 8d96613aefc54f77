package store

import (
	"database/sql"

	"github.com/libris/pos/internal/models"
)

const publisherColumns = `pub_id, name, email, phone, pending, created_at, updated_at`

// PutPublisher upserts a single publisher by primary key.
func (s *Store) PutPublisher(p *models.Publisher) error {
	return storageErr("put publisher", s.execPutPublisher(s.conn, p))
}

func (s *Store) execPutPublisher(e execer, p *models.Publisher) error {
	_, err := e.Exec(`
		INSERT INTO publishers (`+publisherColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pub_id) DO UPDATE SET
			name=excluded.name, email=excluded.email, phone=excluded.phone,
			pending=excluded.pending, created_at=excluded.created_at, updated_at=excluded.updated_at
	`, p.PubID, p.Name, p.Email, p.Phone, boolToInt(p.Pending),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	return err
}

// PutPublishers upserts a batch of publishers.
func (s *Store) PutPublishers(pubs []models.Publisher) error {
	for i := range pubs {
		if err := s.execPutPublisher(s.conn, &pubs[i]); err != nil {
			return storageErr("put publishers", err)
		}
	}
	return nil
}

// ReplacePublishers clears the collection and installs the given snapshot.
func (s *Store) ReplacePublishers(pubs []models.Publisher) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return storageErr("replace publishers: begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM publishers`); err != nil {
		return storageErr("replace publishers: clear", err)
	}
	for i := range pubs {
		if err := s.execPutPublisher(tx, &pubs[i]); err != nil {
			return storageErr("replace publishers: insert", err)
		}
	}
	return storageErr("replace publishers: commit", tx.Commit())
}

// ListPublishers returns the cached publishers ordered by name.
func (s *Store) ListPublishers() ([]models.Publisher, error) {
	rows, err := s.conn.Query(`SELECT ` + publisherColumns + ` FROM publishers ORDER BY name`)
	if err != nil {
		return nil, storageErr("list publishers", err)
	}
	defer rows.Close()

	var pubs []models.Publisher
	for rows.Next() {
		p, err := scanPublisher(rows)
		if err != nil {
			return nil, storageErr("scan publisher", err)
		}
		pubs = append(pubs, *p)
	}
	return pubs, storageErr("list publishers", rows.Err())
}

// GetPublisher returns the publisher with the given id, or nil if absent.
func (s *Store) GetPublisher(id int64) (*models.Publisher, error) {
	row := s.conn.QueryRow(`SELECT `+publisherColumns+` FROM publishers WHERE pub_id = ?`, id)
	p, err := scanPublisher(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get publisher", err)
	}
	return p, nil
}

func scanPublisher(r rowScanner) (*models.Publisher, error) {
	var p models.Publisher
	var pending int
	var createdAt, updatedAt string
	err := r.Scan(&p.PubID, &p.Name, &p.Email, &p.Phone, &pending, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.Pending = pending != 0
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}
