package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/model"
)

type issueRepo struct{ tx pgx.Tx }

func (r issueRepo) Insert(ctx context.Context, issue model.EventIssue) (string, error) {
	var id string
	err := r.tx.QueryRow(ctx, `
		INSERT INTO event_issues
			(id, event_instance_id, reported_by, issue_type, severity, description, photo_urls, status)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)
		RETURNING id::text
	`, issue.ID, issue.EventInstanceID, issue.ReportedBy, issue.IssueType, string(issue.Severity),
		issue.Description, issue.PhotoURLs, issue.Status).Scan(&id)
	if err != nil {
		return "", translate(err)
	}
	return id, nil
}

func (r issueRepo) ListByInstance(ctx context.Context, instanceID string) ([]model.EventIssue, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT id::text, event_instance_id::text, COALESCE(reported_by, ''), issue_type, severity,
			description, photo_urls, status, created_at
		FROM event_issues
		WHERE event_instance_id = $1
		ORDER BY created_at, id
	`, instanceID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []model.EventIssue
	for rows.Next() {
		var i model.EventIssue
		if err := rows.Scan(&i.ID, &i.EventInstanceID, &i.ReportedBy, &i.IssueType, &i.Severity,
			&i.Description, &i.PhotoURLs, &i.Status, &i.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
