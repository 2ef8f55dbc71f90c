package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/staffops/libs/db"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/workflow"
)

// Store implements workflow.Store on Postgres.
type Store struct {
	pool   db.Beginner
	outbox *outbox.Repository
}

func NewStore(pool db.Beginner, outboxRepo *outbox.Repository) *Store {
	return &Store{pool: pool, outbox: outboxRepo}
}

func (s *Store) Begin(ctx context.Context) (workflow.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx, outbox: s.outbox}, nil
}

type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *pgTx) Bookings() workflow.BookingRepository       { return bookingRepo{t.tx} }
func (t *pgTx) Instances() workflow.InstanceRepository     { return instanceRepo{t.tx} }
func (t *pgTx) Assignments() workflow.AssignmentRepository { return assignmentRepo{t.tx} }
func (t *pgTx) Issues() workflow.IssueRepository           { return issueRepo{t.tx} }
func (t *pgTx) Outbox() workflow.OutboxAppender            { return outboxAppender{t} }

func (t *pgTx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

type outboxAppender struct{ t *pgTx }

func (a outboxAppender) Append(ctx context.Context, e events.Event) error {
	return a.t.outbox.Insert(ctx, a.t.tx, e)
}

// translate maps missing rows and malformed ids to workflow.ErrNotFound.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
		return workflow.ErrNotFound
	}
	return err
}

func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func rowsAffected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}
