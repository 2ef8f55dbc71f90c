package model

import "time"

type LocationStatus string

const (
	LocationPending  LocationStatus = "pending"
	LocationApproved LocationStatus = "approved"
	LocationRejected LocationStatus = "rejected"
)

type Location struct {
	ID               string
	Name             string
	Address          string
	Latitude         *float64
	Longitude        *float64
	FormattedAddress string
	PlaceID          string
	Status           LocationStatus
	CreatedBy        string
	ReviewedBy       string
	ReviewNotes      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
