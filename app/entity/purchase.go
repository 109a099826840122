package entity

import "time"

const (
	PurchaseStatusPending   = "pending"
	PurchaseStatusSucceeded = "succeeded"
	PurchaseStatusRefunded  = "refunded"
)

const (
	ResourceTypeBet    = "bet"
	ResourceTypeParlay = "parlay"
)

// Purchase is one attempted payment for one sellable resource by one buyer.
// Rows are append-only: refunds flip the status but never delete the row.
type Purchase struct {
	ID uint64

	// CheckoutID is the provider's correlation id for the checkout attempt.
	// Exactly one Purchase exists per (CheckoutID, ListingID) pair.
	CheckoutID string
	ListingID  uint64

	ResourceType string
	ResourceID   string
	BuyerID      string

	AmountCents int64
	Currency    string

	CompanyID string
	PlanID    *string
	ProductID *string

	Status string

	CreatedAt time.Time
	UpdatedAt time.Time
}
