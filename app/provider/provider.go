package provider

import (
	"context"
	"time"
)

const ReceiptStatusSucceeded = "succeeded"

type CheckoutInput struct {
	PlanID      string
	AmountCents int64
	Currency    string
	Metadata    map[string]string
}

type CheckoutSession struct {
	ID     string
	URL    string
	PlanID string
}

type ReceiptQuery struct {
	PlanID   string
	Status   string
	PageSize int32
}

type Receipt struct {
	ID        string
	BuyerID   string
	PlanID    string
	Status    string
	CreatedAt time.Time
}

// Client is a capability object presenting one company's credentials to the
// payment provider. Instances are constructed per call through a Factory and
// passed explicitly, never looked up from global state.
type Client interface {
	CreateCheckout(ctx context.Context, input *CheckoutInput) (*CheckoutSession, error)
	ListReceipts(ctx context.Context, query ReceiptQuery) ([]Receipt, error)
	VerifyUserToken(ctx context.Context, token string) (string, error)
}

// ClientFactory builds provider clients scoped to a seller company.
type ClientFactory interface {
	ClientFor(companyID string) Client
}
