package model

import "time"

type EventStatus string

const (
	EventScheduled     EventStatus = "scheduled"
	EventPreparation   EventStatus = "preparation"
	EventInProgress    EventStatus = "in_progress"
	EventCompleted     EventStatus = "completed"
	EventCancelled     EventStatus = "cancelled"
	EventIssueReported EventStatus = "issue_reported"
)

func (s EventStatus) Terminal() bool {
	return s == EventCompleted || s == EventCancelled
}

type PreparationStatus string

const (
	PreparationNotStarted PreparationStatus = "not_started"
	PreparationInProgress PreparationStatus = "in_progress"
	PreparationCompleted  PreparationStatus = "completed"
)

// EventInstance is one dated occurrence generated from a Booking.
type EventInstance struct {
	ID                  string
	BookingID           string
	Date                time.Time
	StartTime           string
	EndTime             string
	LocationID          string
	FieldManagerID      string
	Status              EventStatus
	PreparationStatus   PreparationStatus
	CheckInRequired     bool
	SpecialInstructions string
	CancellationReason  string
	CompletedAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
