package model

import "time"

type AssignmentStatus string

const (
	AssignmentAssigned   AssignmentStatus = "assigned"
	AssignmentCheckedIn  AssignmentStatus = "checked_in"
	AssignmentCheckedOut AssignmentStatus = "checked_out"
	AssignmentCancelled  AssignmentStatus = "cancelled"
)

const RoleFieldManager = "field_manager"

type StaffAssignment struct {
	ID              string
	EventInstanceID string
	UserID          string
	Role            string
	Status          AssignmentStatus
	CheckedInAt     *time.Time
	CheckedOutAt    *time.Time
	HoursWorked     float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type IssueSeverity string

const (
	SeverityLow      IssueSeverity = "low"
	SeverityMedium   IssueSeverity = "medium"
	SeverityHigh     IssueSeverity = "high"
	SeverityCritical IssueSeverity = "critical"
)

func (s IssueSeverity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// EventIssue is an incident attached to an EventInstance.
type EventIssue struct {
	ID              string
	EventInstanceID string
	ReportedBy      string
	IssueType       string
	Severity        IssueSeverity
	Description     string
	PhotoURLs       []string
	Status          string
	CreatedAt       time.Time
}
