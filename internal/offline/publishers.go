package offline

import (
	"context"
	"time"

	"github.com/libris/pos/internal/connectivity"
	"github.com/libris/pos/internal/models"
	"github.com/libris/pos/internal/remote"
	"github.com/libris/pos/internal/store"
	possync "github.com/libris/pos/internal/sync"
)

// Publishers is the offline-aware API for publishers. The REST surface only
// supports listing and creating, so that is all that is exposed here.
type Publishers struct {
	store  *store.Store
	remote *remote.Client
	net    *connectivity.Monitor
	engine *possync.Engine
	ids    *tempIDs
}

// GetAll lists publishers, mirroring server results into the cache and
// falling back to the cache when unreachable.
func (p *Publishers) GetAll(ctx context.Context) ([]models.Publisher, error) {
	if p.net.IsOnline() {
		pubs, err := p.remote.ListPublishers(ctx)
		if err == nil {
			if err := p.store.PutPublishers(pubs); err != nil {
				return nil, err
			}
			return pubs, nil
		}
		if !offlinePath(err) {
			return nil, err
		}
		p.net.SetOnline(false)
	}
	return p.store.ListPublishers()
}

// GetByID returns a publisher from the cache; publishers are small and fully
// mirrored, so there is no per-id server round trip.
func (p *Publishers) GetByID(ctx context.Context, id int64) (*models.Publisher, error) {
	return p.store.GetPublisher(id)
}

// Create adds a publisher, queueing it under a temporary id when offline.
func (p *Publishers) Create(ctx context.Context, pub *models.Publisher) (*models.Publisher, error) {
	if pub.Name == "" {
		return nil, &ValidationError{Field: "name", Msg: "required"}
	}

	if p.net.IsOnline() {
		created, err := p.remote.CreatePublisher(ctx, pub)
		if err == nil {
			if err := p.store.PutPublisher(created); err != nil {
				return nil, err
			}
			return created, nil
		}
		if !offlinePath(err) {
			return nil, err
		}
		p.net.SetOnline(false)
	}

	local := *pub
	local.PubID = p.ids.next()
	local.Pending = true
	now := time.Now()
	local.CreatedAt = now
	local.UpdatedAt = now
	if err := p.store.PutPublisher(&local); err != nil {
		return nil, err
	}
	if _, err := p.engine.Enqueue(models.OpCreatePublisher, local.PubID, &local); err != nil {
		return nil, err
	}
	return &local, nil
}
