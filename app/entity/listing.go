package entity

import "time"

// Listing is the sellable offering for one bet or parlay.
type Listing struct {
	ID uint64

	ResourceType string
	ResourceID   string

	CompanyID  string
	PriceCents int64
	Currency   string

	PlanID *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
