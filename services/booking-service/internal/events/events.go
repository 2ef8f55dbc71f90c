package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Workflow event types.
const (
	BookingApproved         = "BOOKING_APPROVED"
	BookingRejected         = "BOOKING_REJECTED"
	BookingCancelled        = "BOOKING_CANCELLED"
	BookingCompleted        = "BOOKING_COMPLETED"
	EventInstancesGenerated = "EVENT_INSTANCES_GENERATED"
	EventAssignedToManager  = "EVENT_ASSIGNED_TO_MANAGER"
	EventPreparationStarted = "EVENT_PREPARATION_STARTED"
	EventReady              = "EVENT_READY"
	EventStarted            = "EVENT_STARTED"
	EventCompleted          = "EVENT_COMPLETED"
	EventCancelled          = "EVENT_CANCELLED"
	EventIssueReported      = "EVENT_ISSUE_REPORTED"
	StaffAssigned           = "STAFF_ASSIGNED"
	StaffCheckedIn          = "STAFF_CHECKED_IN"
	StaffCheckedOut         = "STAFF_CHECKED_OUT"
)

// Location event types.
const (
	LocationCreated  = "location.created"
	LocationUpdated  = "location.updated"
	LocationApproved = "location.approved"
	LocationRejected = "location.rejected"
	LocationDeleted  = "location.deleted"
)

const (
	AggregateBooking  = "booking"
	AggregateEvent    = "event_instance"
	AggregateLocation = "location"
)

// Event is an immutable notification about a committed state change.
type Event struct {
	ID            string
	Type          string
	AggregateType string
	AggregateID   string
	CorrelationID string
	OccurredAt    time.Time
	Payload       map[string]any
}

// New builds an event stamped with a fresh id and the correlation id carried by ctx.
func New(ctx context.Context, eventType, aggregateType, aggregateID string, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		CorrelationID: CorrelationID(ctx),
		OccurredAt:    time.Now().UTC(),
		Payload:       payload,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, e Event) error

func (f PublisherFunc) Publish(ctx context.Context, e Event) error { return f(ctx, e) }
