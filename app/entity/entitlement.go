package entity

import "time"

const GrantProvenancePurchase = "purchase"

// EntitlementGrant authorizes one buyer to view one paywalled resource.
// At most one active grant exists per (resource, buyer) pair.
type EntitlementGrant struct {
	ID uint64

	ResourceType string
	ResourceID   string
	BuyerID      string

	Provenance string

	CreatedAt time.Time
}
