package entity

import "time"

type PurchaseEvent struct {
	ID uint64

	PurchaseID uint64

	EventType string

	OldStatus *string
	NewStatus string

	ProviderEventID *string
	PayloadJSON     *string

	CreatedAt time.Time
}
