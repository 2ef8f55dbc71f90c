package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/model"
)

const assignmentColumns = `
	id::text, event_instance_id::text, user_id, role, status, checked_in_at, checked_out_at,
	COALESCE(hours_worked, 0)::float8, created_at, updated_at`

type assignmentRepo struct{ tx pgx.Tx }

func scanAssignment(row pgx.Row) (model.StaffAssignment, error) {
	var a model.StaffAssignment
	err := row.Scan(
		&a.ID,
		&a.EventInstanceID,
		&a.UserID,
		&a.Role,
		&a.Status,
		&a.CheckedInAt,
		&a.CheckedOutAt,
		&a.HoursWorked,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

func (r assignmentRepo) Upsert(ctx context.Context, a model.StaffAssignment) (bool, error) {
	tag, err := r.tx.Exec(ctx, `
		INSERT INTO staff_assignments (id, event_instance_id, user_id, role, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_instance_id, user_id, role) DO NOTHING
	`, a.ID, a.EventInstanceID, a.UserID, a.Role, string(a.Status))
	if err != nil {
		return false, translate(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r assignmentRepo) ListByInstance(ctx context.Context, instanceID string, status model.AssignmentStatus) ([]model.StaffAssignment, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+assignmentColumns+`
		FROM staff_assignments
		WHERE event_instance_id = $1
			AND ($2::text = '' OR status = $2::text)
		ORDER BY created_at, id
	`, instanceID, string(status))
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []model.StaffAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r assignmentRepo) CancelByInstance(ctx context.Context, instanceID string) (int64, error) {
	tag, err := r.tx.Exec(ctx, `
		UPDATE staff_assignments
		SET status = 'cancelled', updated_at = now()
		WHERE event_instance_id = $1 AND status <> 'cancelled'
	`, instanceID)
	if err != nil {
		return 0, translate(err)
	}
	return tag.RowsAffected(), nil
}

func (r assignmentRepo) GetForUpdate(ctx context.Context, instanceID, userID, role string) (model.StaffAssignment, error) {
	a, err := scanAssignment(r.tx.QueryRow(ctx, `
		SELECT `+assignmentColumns+`
		FROM staff_assignments
		WHERE event_instance_id = $1 AND user_id = $2 AND role = $3 AND status <> 'cancelled'
		FOR UPDATE
	`, instanceID, userID, role))
	return a, translate(err)
}

func (r assignmentRepo) Update(ctx context.Context, a model.StaffAssignment) error {
	return rowsAffected(r.tx.Exec(ctx, `
		UPDATE staff_assignments
		SET status = $2,
			checked_in_at = $3,
			checked_out_at = $4,
			hours_worked = $5,
			updated_at = now()
		WHERE id = $1
	`, a.ID, string(a.Status), a.CheckedInAt, a.CheckedOutAt, a.HoursWorked))
}
