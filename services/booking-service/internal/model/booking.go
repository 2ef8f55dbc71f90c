package model

import "time"

type BookingStatus string

const (
	BookingDraft     BookingStatus = "draft"
	BookingPending   BookingStatus = "pending"
	BookingApproved  BookingStatus = "approved"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
	BookingRejected  BookingStatus = "rejected"
)

// Reviewable reports whether the booking can still be approved or rejected.
func (s BookingStatus) Reviewable() bool {
	return s == BookingDraft || s == BookingPending
}

func (s BookingStatus) Terminal() bool {
	return s == BookingCompleted || s == BookingCancelled || s == BookingRejected
}

type GenerationStatus string

const (
	GenerationPending   GenerationStatus = "pending"
	GenerationCompleted GenerationStatus = "completed"
	GenerationFailed    GenerationStatus = "failed"
)

// Booking is a client's request for one or more occurrences of an activity.
// Recurrence holds the serialized rule exactly as stored; it is parsed by the
// recurrence package when events are generated.
type Booking struct {
	ID                   string
	ClientID             string
	Title                string
	StartDate            time.Time
	EndDate              *time.Time
	StartTime            string
	EndTime              string
	LocationID           string
	Recurrence           []byte
	SpecialInstructions  string
	Status               BookingStatus
	EventGenerationState GenerationStatus
	EventCount           int
	SeriesStartDate      *time.Time
	SeriesEndDate        *time.Time
	LastEventGeneratedAt *time.Time
	ApprovedBy           string
	ApprovedAt           *time.Time
	AdminNotes           string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
