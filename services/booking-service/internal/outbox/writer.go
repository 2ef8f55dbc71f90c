package outbox

import (
	"context"

	"github.com/md-rashed-zaman/staffops/libs/db"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/events"
)

// Writer publishes a single event by inserting it into the outbox outside of
// any caller transaction, then wakes the relay. Use it where the state change
// has already been committed.
type Writer struct {
	pool   *db.Pool
	repo   *Repository
	notify interface{ Wake() }
}

func NewWriter(pool *db.Pool, repo *Repository, notify interface{ Wake() }) *Writer {
	return &Writer{pool: pool, repo: repo, notify: notify}
}

func (w *Writer) Publish(ctx context.Context, e events.Event) error {
	if err := w.repo.Insert(ctx, w.pool, e); err != nil {
		return err
	}
	if w.notify != nil {
		w.notify.Wake()
	}
	return nil
}

var _ events.Publisher = (*Writer)(nil)
