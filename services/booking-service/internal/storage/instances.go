package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/model"
)

const instanceColumns = `
	id::text, booking_id::text, date, start_time, end_time, COALESCE(location_id::text, ''),
	COALESCE(field_manager_id, ''), status, preparation_status, check_in_required,
	COALESCE(special_instructions, ''), COALESCE(cancellation_reason, ''), completed_at,
	created_at, updated_at`

type instanceRepo struct{ tx pgx.Tx }

func scanInstance(row pgx.Row) (model.EventInstance, error) {
	var i model.EventInstance
	err := row.Scan(
		&i.ID,
		&i.BookingID,
		&i.Date,
		&i.StartTime,
		&i.EndTime,
		&i.LocationID,
		&i.FieldManagerID,
		&i.Status,
		&i.PreparationStatus,
		&i.CheckInRequired,
		&i.SpecialInstructions,
		&i.CancellationReason,
		&i.CompletedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

// InsertBatch sends one INSERT per instance in a single round trip.
func (r instanceRepo) InsertBatch(ctx context.Context, instances []model.EventInstance) ([]string, error) {
	batch := &pgx.Batch{}
	for _, i := range instances {
		batch.Queue(`
			INSERT INTO event_instances
				(id, booking_id, date, start_time, end_time, location_id, status, preparation_status,
				 check_in_required, special_instructions)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))
			RETURNING id::text
		`, i.ID, i.BookingID, i.Date, i.StartTime, i.EndTime, nullIfEmpty(i.LocationID),
			string(i.Status), string(i.PreparationStatus), i.CheckInRequired, i.SpecialInstructions)
	}

	br := r.tx.SendBatch(ctx, batch)
	ids := make([]string, 0, len(instances))
	for range instances {
		var id string
		if err := br.QueryRow().Scan(&id); err != nil {
			_ = br.Close()
			return nil, fmt.Errorf("insert event instance: %w", err)
		}
		ids = append(ids, id)
	}
	if err := br.Close(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r instanceRepo) Get(ctx context.Context, id string) (model.EventInstance, error) {
	i, err := scanInstance(r.tx.QueryRow(ctx, `SELECT `+instanceColumns+` FROM event_instances WHERE id = $1`, id))
	return i, translate(err)
}

func (r instanceRepo) GetForUpdate(ctx context.Context, id string) (model.EventInstance, error) {
	i, err := scanInstance(r.tx.QueryRow(ctx, `SELECT `+instanceColumns+` FROM event_instances WHERE id = $1 FOR UPDATE`, id))
	return i, translate(err)
}

func (r instanceRepo) Update(ctx context.Context, i model.EventInstance) error {
	return rowsAffected(r.tx.Exec(ctx, `
		UPDATE event_instances
		SET field_manager_id = NULLIF($2, ''),
			status = $3,
			preparation_status = $4,
			cancellation_reason = NULLIF($5, ''),
			completed_at = $6,
			updated_at = now()
		WHERE id = $1
	`, i.ID, i.FieldManagerID, string(i.Status), string(i.PreparationStatus), i.CancellationReason, i.CompletedAt))
}

func (r instanceRepo) ListByBooking(ctx context.Context, bookingID string) ([]model.EventInstance, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+instanceColumns+`
		FROM event_instances
		WHERE booking_id = $1
		ORDER BY date, id
	`, bookingID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []model.EventInstance
	for rows.Next() {
		i, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r instanceRepo) StatusesByBooking(ctx context.Context, bookingID string) ([]model.EventStatus, error) {
	rows, err := r.tx.Query(ctx, `SELECT status FROM event_instances WHERE booking_id = $1`, bookingID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []model.EventStatus
	for rows.Next() {
		var s model.EventStatus
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
