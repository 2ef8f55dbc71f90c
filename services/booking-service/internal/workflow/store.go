package workflow

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/model"
)

// Store opens transactions. Every repository reached through a Tx shares that
// transaction, so a coordinator operation either commits all of its writes
// (including outbox rows) or none of them.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

type Tx interface {
	Bookings() BookingRepository
	Instances() InstanceRepository
	Assignments() AssignmentRepository
	Issues() IssueRepository
	Outbox() OutboxAppender

	Commit(ctx context.Context) error
	// Rollback is a no-op once Commit has succeeded.
	Rollback(ctx context.Context) error
}

// Review captures an approval or rejection decision.
type Review struct {
	Status     model.BookingStatus
	ReviewerID string
	Notes      string
	At         time.Time
	// Generation, when set, resets the event generation state.
	Generation model.GenerationStatus
}

type GenerationResult struct {
	Status      model.GenerationStatus
	Count       int
	SeriesStart time.Time
	SeriesEnd   time.Time
	GeneratedAt time.Time
}

type BookingRepository interface {
	Get(ctx context.Context, id string) (model.Booking, error)
	GetForUpdate(ctx context.Context, id string) (model.Booking, error)
	Review(ctx context.Context, id string, r Review) error
	SetGenerationResult(ctx context.Context, id string, res GenerationResult) error
	SetStatus(ctx context.Context, id string, status model.BookingStatus) error
}

type InstanceRepository interface {
	InsertBatch(ctx context.Context, instances []model.EventInstance) ([]string, error)
	Get(ctx context.Context, id string) (model.EventInstance, error)
	GetForUpdate(ctx context.Context, id string) (model.EventInstance, error)
	Update(ctx context.Context, inst model.EventInstance) error
	ListByBooking(ctx context.Context, bookingID string) ([]model.EventInstance, error)
	StatusesByBooking(ctx context.Context, bookingID string) ([]model.EventStatus, error)
}

type AssignmentRepository interface {
	// Upsert inserts a when no row exists for its (instance, user, role) and
	// reports whether a row was written.
	Upsert(ctx context.Context, a model.StaffAssignment) (bool, error)
	// ListByInstance returns assignments of the instance; an empty status
	// returns all of them.
	ListByInstance(ctx context.Context, instanceID string, status model.AssignmentStatus) ([]model.StaffAssignment, error)
	CancelByInstance(ctx context.Context, instanceID string) (int64, error)
	// GetForUpdate locks the active assignment identified by (instance, user,
	// role).
	GetForUpdate(ctx context.Context, instanceID, userID, role string) (model.StaffAssignment, error)
	Update(ctx context.Context, a model.StaffAssignment) error
}

type IssueRepository interface {
	Insert(ctx context.Context, issue model.EventIssue) (string, error)
	ListByInstance(ctx context.Context, instanceID string) ([]model.EventIssue, error)
}

type OutboxAppender interface {
	Append(ctx context.Context, e events.Event) error
}

// Notifier is told that outbox rows were committed.
type Notifier interface {
	Wake()
}

type nopNotifier struct{}

func (nopNotifier) Wake() {}
