package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/workflow"
)

const bookingColumns = `
	id::text, client_id, title, start_date, end_date, start_time, end_time,
	COALESCE(location_id::text, ''), recurrence, COALESCE(special_instructions, ''),
	status, event_generation_status, event_count, series_start_date, series_end_date,
	last_event_generated_at, COALESCE(approved_by, ''), approved_at, COALESCE(admin_notes, ''),
	created_at, updated_at`

type bookingRepo struct{ tx pgx.Tx }

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID,
		&b.ClientID,
		&b.Title,
		&b.StartDate,
		&b.EndDate,
		&b.StartTime,
		&b.EndTime,
		&b.LocationID,
		&b.Recurrence,
		&b.SpecialInstructions,
		&b.Status,
		&b.EventGenerationState,
		&b.EventCount,
		&b.SeriesStartDate,
		&b.SeriesEndDate,
		&b.LastEventGeneratedAt,
		&b.ApprovedBy,
		&b.ApprovedAt,
		&b.AdminNotes,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return model.Booking{}, translate(err)
	}
	return b, nil
}

func (r bookingRepo) Get(ctx context.Context, id string) (model.Booking, error) {
	return scanBooking(r.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
}

func (r bookingRepo) GetForUpdate(ctx context.Context, id string) (model.Booking, error) {
	return scanBooking(r.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
}

func (r bookingRepo) Review(ctx context.Context, id string, rv workflow.Review) error {
	return rowsAffected(r.tx.Exec(ctx, `
		UPDATE bookings
		SET status = $2,
			approved_by = $3,
			approved_at = $4,
			admin_notes = NULLIF($5, ''),
			event_generation_status = COALESCE(NULLIF($6, ''), event_generation_status),
			updated_at = now()
		WHERE id = $1
	`, id, string(rv.Status), rv.ReviewerID, rv.At, rv.Notes, string(rv.Generation)))
}

func (r bookingRepo) SetGenerationResult(ctx context.Context, id string, res workflow.GenerationResult) error {
	return rowsAffected(r.tx.Exec(ctx, `
		UPDATE bookings
		SET event_generation_status = $2,
			event_count = $3,
			series_start_date = $4,
			series_end_date = $5,
			last_event_generated_at = $6,
			updated_at = now()
		WHERE id = $1
	`, id, string(res.Status), res.Count, res.SeriesStart, res.SeriesEnd, res.GeneratedAt))
}

func (r bookingRepo) SetStatus(ctx context.Context, id string, status model.BookingStatus) error {
	return rowsAffected(r.tx.Exec(ctx, `
		UPDATE bookings SET status = $2, updated_at = now() WHERE id = $1
	`, id, string(status)))
}
