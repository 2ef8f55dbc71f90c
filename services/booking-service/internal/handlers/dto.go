package handlers

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/workflow"
)

const dateLayout = "2006-01-02"

type bookingResponse struct {
	ID                  string          `json:"id"`
	ClientID            string          `json:"client_id"`
	Title               string          `json:"title"`
	StartDate           string          `json:"start_date"`
	EndDate             string          `json:"end_date,omitempty"`
	StartTime           string          `json:"start_time"`
	EndTime             string          `json:"end_time"`
	LocationID          string          `json:"location_id,omitempty"`
	Recurrence          json.RawMessage `json:"recurrence,omitempty"`
	SpecialInstructions string          `json:"special_instructions,omitempty"`
	Status              string          `json:"status"`
	EventGeneration     string          `json:"event_generation_status"`
	EventCount          int             `json:"event_count"`
	SeriesStartDate     string          `json:"series_start_date,omitempty"`
	SeriesEndDate       string          `json:"series_end_date,omitempty"`
	ApprovedBy          string          `json:"approved_by,omitempty"`
	ApprovedAt          string          `json:"approved_at,omitempty"`
	AdminNotes          string          `json:"admin_notes,omitempty"`
	CreatedAt           string          `json:"created_at"`
	UpdatedAt           string          `json:"updated_at"`
}

func toBooking(b model.Booking) bookingResponse {
	out := bookingResponse{
		ID:                  b.ID,
		ClientID:            b.ClientID,
		Title:               b.Title,
		StartDate:           b.StartDate.Format(dateLayout),
		EndDate:             formatDate(b.EndDate),
		StartTime:           b.StartTime,
		EndTime:             b.EndTime,
		LocationID:          b.LocationID,
		SpecialInstructions: b.SpecialInstructions,
		Status:              string(b.Status),
		EventGeneration:     string(b.EventGenerationState),
		EventCount:          b.EventCount,
		SeriesStartDate:     formatDate(b.SeriesStartDate),
		SeriesEndDate:       formatDate(b.SeriesEndDate),
		ApprovedBy:          b.ApprovedBy,
		ApprovedAt:          formatTime(b.ApprovedAt),
		AdminNotes:          b.AdminNotes,
		CreatedAt:           b.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:           b.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if json.Valid(b.Recurrence) {
		out.Recurrence = b.Recurrence
	}
	return out
}

type eventResponse struct {
	ID                  string `json:"id"`
	BookingID           string `json:"booking_id"`
	Date                string `json:"date"`
	StartTime           string `json:"start_time"`
	EndTime             string `json:"end_time"`
	LocationID          string `json:"location_id,omitempty"`
	FieldManagerID      string `json:"field_manager_id,omitempty"`
	Status              string `json:"status"`
	PreparationStatus   string `json:"preparation_status"`
	CheckInRequired     bool   `json:"check_in_required"`
	SpecialInstructions string `json:"special_instructions,omitempty"`
	CancellationReason  string `json:"cancellation_reason,omitempty"`
	CompletedAt         string `json:"completed_at,omitempty"`
}

func toEvent(e model.EventInstance) eventResponse {
	return eventResponse{
		ID:                  e.ID,
		BookingID:           e.BookingID,
		Date:                e.Date.Format(dateLayout),
		StartTime:           e.StartTime,
		EndTime:             e.EndTime,
		LocationID:          e.LocationID,
		FieldManagerID:      e.FieldManagerID,
		Status:              string(e.Status),
		PreparationStatus:   string(e.PreparationStatus),
		CheckInRequired:     e.CheckInRequired,
		SpecialInstructions: e.SpecialInstructions,
		CancellationReason:  e.CancellationReason,
		CompletedAt:         formatTime(e.CompletedAt),
	}
}

type assignmentResponse struct {
	UserID       string  `json:"user_id"`
	Role         string  `json:"role"`
	Status       string  `json:"status"`
	CheckedInAt  string  `json:"checked_in_at,omitempty"`
	CheckedOutAt string  `json:"checked_out_at,omitempty"`
	HoursWorked  float64 `json:"hours_worked"`
}

type issueResponse struct {
	ID          string   `json:"id"`
	ReportedBy  string   `json:"reported_by"`
	IssueType   string   `json:"issue_type"`
	Severity    string   `json:"severity"`
	Description string   `json:"description"`
	PhotoURLs   []string `json:"photo_urls,omitempty"`
	Status      string   `json:"status"`
	CreatedAt   string   `json:"created_at"`
}

type eventDetailsResponse struct {
	eventResponse
	Staff  []assignmentResponse `json:"staff"`
	Issues []issueResponse      `json:"issues"`
}

func toEventDetails(d workflow.EventDetails) eventDetailsResponse {
	out := eventDetailsResponse{
		eventResponse: toEvent(d.Instance),
		Staff:         make([]assignmentResponse, 0, len(d.Assignments)),
		Issues:        make([]issueResponse, 0, len(d.Issues)),
	}
	for _, a := range d.Assignments {
		out.Staff = append(out.Staff, assignmentResponse{
			UserID:       a.UserID,
			Role:         a.Role,
			Status:       string(a.Status),
			CheckedInAt:  formatTime(a.CheckedInAt),
			CheckedOutAt: formatTime(a.CheckedOutAt),
			HoursWorked:  a.HoursWorked,
		})
	}
	for _, i := range d.Issues {
		out.Issues = append(out.Issues, issueResponse{
			ID:          i.ID,
			ReportedBy:  i.ReportedBy,
			IssueType:   i.IssueType,
			Severity:    string(i.Severity),
			Description: i.Description,
			PhotoURLs:   i.PhotoURLs,
			Status:      i.Status,
			CreatedAt:   i.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

type locationResponse struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Address          string   `json:"address"`
	Latitude         *float64 `json:"latitude,omitempty"`
	Longitude        *float64 `json:"longitude,omitempty"`
	FormattedAddress string   `json:"formatted_address,omitempty"`
	PlaceID          string   `json:"place_id,omitempty"`
	Status           string   `json:"status"`
	CreatedBy        string   `json:"created_by,omitempty"`
	ReviewedBy       string   `json:"reviewed_by,omitempty"`
	ReviewNotes      string   `json:"review_notes,omitempty"`
}

func toLocation(l model.Location) locationResponse {
	return locationResponse{
		ID:               l.ID,
		Name:             l.Name,
		Address:          l.Address,
		Latitude:         l.Latitude,
		Longitude:        l.Longitude,
		FormattedAddress: l.FormattedAddress,
		PlaceID:          l.PlaceID,
		Status:           string(l.Status),
		CreatedBy:        l.CreatedBy,
		ReviewedBy:       l.ReviewedBy,
		ReviewNotes:      l.ReviewNotes,
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
