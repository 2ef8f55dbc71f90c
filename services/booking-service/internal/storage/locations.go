package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/staffops/libs/db"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/workflow"
)

const locationColumns = `
	id::text, name, address, latitude, longitude, COALESCE(formatted_address, ''),
	COALESCE(place_id, ''), status, COALESCE(created_by, ''), COALESCE(reviewed_by, ''),
	COALESCE(review_notes, ''), created_at, updated_at`

// LocationRepository persists locations. Deleted rows are kept with
// deleted_at set and are invisible to every read.
type LocationRepository struct {
	pool *db.Pool
}

func NewLocationRepository(pool *db.Pool) *LocationRepository {
	return &LocationRepository{pool: pool}
}

func scanLocation(row pgx.Row) (model.Location, error) {
	var l model.Location
	err := row.Scan(
		&l.ID,
		&l.Name,
		&l.Address,
		&l.Latitude,
		&l.Longitude,
		&l.FormattedAddress,
		&l.PlaceID,
		&l.Status,
		&l.CreatedBy,
		&l.ReviewedBy,
		&l.ReviewNotes,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return model.Location{}, translate(err)
	}
	return l, nil
}

func (r *LocationRepository) Create(ctx context.Context, l model.Location) (model.Location, error) {
	if l.Status == "" {
		l.Status = model.LocationPending
	}
	return scanLocation(r.pool.QueryRow(ctx, `
		INSERT INTO locations
			(name, address, latitude, longitude, formatted_address, place_id, status, created_by)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, NULLIF($8, ''))
		RETURNING `+locationColumns,
		l.Name, l.Address, l.Latitude, l.Longitude, l.FormattedAddress, l.PlaceID, string(l.Status), l.CreatedBy))
}

func (r *LocationRepository) Update(ctx context.Context, l model.Location) (model.Location, error) {
	return scanLocation(r.pool.QueryRow(ctx, `
		UPDATE locations
		SET name = $2,
			address = $3,
			latitude = $4,
			longitude = $5,
			formatted_address = NULLIF($6, ''),
			place_id = NULLIF($7, ''),
			updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+locationColumns,
		l.ID, l.Name, l.Address, l.Latitude, l.Longitude, l.FormattedAddress, l.PlaceID))
}

func (r *LocationRepository) Review(ctx context.Context, id string, status model.LocationStatus, reviewerID, notes string) (model.Location, error) {
	return scanLocation(r.pool.QueryRow(ctx, `
		UPDATE locations
		SET status = $2,
			reviewed_by = NULLIF($3, ''),
			review_notes = NULLIF($4, ''),
			updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+locationColumns,
		id, string(status), reviewerID, notes))
}

func (r *LocationRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE locations SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *LocationRepository) Get(ctx context.Context, id string) (model.Location, error) {
	return scanLocation(r.pool.QueryRow(ctx, `
		SELECT `+locationColumns+` FROM locations WHERE id = $1 AND deleted_at IS NULL
	`, id))
}
