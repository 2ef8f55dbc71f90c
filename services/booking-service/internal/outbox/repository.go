package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/staffops/libs/db"
	otelx "github.com/md-rashed-zaman/staffops/libs/otel"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/events"
)

// Execer is satisfied by pgx.Tx and *db.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Envelope is the message body written for every outbox record.
type Envelope struct {
	EventID       string         `json:"event_id"`
	Type          string         `json:"type"`
	AggregateType string         `json:"aggregate_type"`
	AggregateID   string         `json:"aggregate_id"`
	CorrelationID string         `json:"correlation_id"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Data          map[string]any `json:"data"`
}

func Encode(e events.Event) ([]byte, error) {
	return json.Marshal(Envelope{
		EventID:       e.ID,
		Type:          e.Type,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		CorrelationID: e.CorrelationID,
		OccurredAt:    e.OccurredAt,
		Data:          e.Payload,
	})
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, q Execer, e events.Event) error {
	payload, err := Encode(e)
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.Type, err)
	}
	tc := otelx.CaptureTraceContext(ctx)
	_, err = q.Exec(ctx, `
		INSERT INTO outbox_events
			(event_id, aggregate_type, aggregate_id, event_type, correlation_id, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.AggregateType, e.AggregateID, e.Type, e.CorrelationID, payload, tc.Parent, tc.State)
	return err
}

type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	CorrelationID string
	Payload       []byte
	Trace         otelx.TraceContext
	CreatedAt     time.Time
}

// Claim locks up to limit unpublished records, hands them to fn and marks them
// published when fn succeeds. Concurrent relays skip each other's rows.
func (r *Repository) Claim(ctx context.Context, limit int, fn func([]Record) error) (int, error) {
	var n int
	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		records, err := r.fetchUnpublished(ctx, tx, limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		if err := fn(records); err != nil {
			return err
		}
		ids := make([]int64, 0, len(records))
		for _, rec := range records {
			ids = append(ids, rec.ID)
		}
		if err := r.markPublished(ctx, tx, ids); err != nil {
			return err
		}
		n = len(records)
		return nil
	})
	return n, err
}

func (r *Repository) fetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id::text, aggregate_type, aggregate_id, event_type, correlation_id,
			payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.AggregateType, &rec.AggregateID, &rec.EventType,
			&rec.CorrelationID, &rec.Payload, &rec.Trace.Parent, &rec.Trace.State, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func (r *Repository) markPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET published_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}
