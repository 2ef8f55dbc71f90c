package attendance

import (
	"context"

	"github.com/md-rashed-zaman/staffops/libs/db"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/storage"
)

type Inbox interface {
	// Record returns false when eventID was already recorded.
	Record(ctx context.Context, eventID, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type InboxRepository struct {
	pool *db.Pool
}

func NewInboxRepository(pool *db.Pool) *InboxRepository {
	return &InboxRepository{pool: pool}
}

func (r *InboxRepository) Record(ctx context.Context, eventID, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if storage.IsUniqueViolation(err) {
		return false, nil
	}
	return false, err
}

// Forget removes an entry so a redelivery of a failed message is processed.
func (r *InboxRepository) Forget(ctx context.Context, eventID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM inbox_events WHERE event_id = $1`, eventID)
	return err
}
