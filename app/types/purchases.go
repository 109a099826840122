package types

import (
	"errors"
	"io"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/danielnogueira8/whopBetTracker-sub000/app/entity"
)

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// WebhookAck is the acknowledgement body for the provider webhook endpoint.
// The provider only acts on the status code, but a body makes manual replay
// and log correlation easier.
type WebhookAck struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type Purchase struct {
	ID           uint64 `json:"id"`
	CheckoutID   string `json:"checkoutId"`
	ResourceType string `json:"resourceType"`
	ResourceID   string `json:"resourceId"`
	BuyerID      string `json:"buyerId"`
	AmountCents  int64  `json:"amountCents"`
	Currency     string `json:"currency"`
	PlanID       string `json:"planId,omitempty"`
	Status       string `json:"status"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

type CreateCheckoutRequest struct {
	ResourceType string
	ResourceID   string
}

type CreateCheckoutResponse struct {
	Purchase    *Purchase `json:"purchase"`
	CheckoutURL string    `json:"checkoutUrl,omitempty"`
}

type ConfirmPurchaseRequest struct {
	ResourceType string
	ResourceID   string
	CheckoutID   string `json:"checkoutId"`
}

type AccessResponse struct {
	Granted bool `json:"granted"`
}

type ConfirmPurchaseResponse struct {
	Purchase     *Purchase `json:"purchase"`
	AutoApproved bool      `json:"autoApproved,omitempty"`
	Reconciled   bool      `json:"reconciled,omitempty"`
}

// resourceTypeFromPath maps the plural path segment to the stored resource
// type. Unknown segments fall through to Validate.
func resourceTypeFromPath(segment string) string {
	switch strings.ToLower(strings.TrimSpace(segment)) {
	case "bets":
		return entity.ResourceTypeBet
	case "parlays":
		return entity.ResourceTypeParlay
	default:
		return ""
	}
}

func NewCreateCheckoutRequestFromContext(ctx echo.Context) (*CreateCheckoutRequest, error) {
	return &CreateCheckoutRequest{
		ResourceType: resourceTypeFromPath(ctx.Param("resourceType")),
		ResourceID:   strings.TrimSpace(ctx.Param("id")),
	}, nil
}

func (r *CreateCheckoutRequest) Validate() error {
	return validateResourcePath(r.ResourceType, r.ResourceID)
}

type AccessRequest struct {
	ResourceType string
	ResourceID   string
}

func NewAccessRequestFromContext(ctx echo.Context) (*AccessRequest, error) {
	return &AccessRequest{
		ResourceType: resourceTypeFromPath(ctx.Param("resourceType")),
		ResourceID:   strings.TrimSpace(ctx.Param("id")),
	}, nil
}

func (r *AccessRequest) Validate() error {
	return validateResourcePath(r.ResourceType, r.ResourceID)
}

func validateResourcePath(resourceType, resourceID string) error {
	if resourceType == "" {
		return errors.New("resource type must be bets or parlays")
	}
	if resourceID == "" {
		return errors.New("resource id is required")
	}
	return nil
}

func NewConfirmPurchaseRequestFromContext(ctx echo.Context) (*ConfirmPurchaseRequest, error) {
	var body ConfirmPurchaseRequest
	if err := ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.ResourceType = resourceTypeFromPath(ctx.Param("resourceType"))
	body.ResourceID = strings.TrimSpace(ctx.Param("id"))
	body.CheckoutID = strings.TrimSpace(body.CheckoutID)
	return &body, nil
}

func (r *ConfirmPurchaseRequest) Validate() error {
	if r.ResourceType == "" {
		return errors.New("resource type must be bets or parlays")
	}
	if r.ResourceID == "" {
		return errors.New("resource id is required")
	}
	if r.CheckoutID == "" {
		return errors.New("checkoutId is required")
	}
	return nil
}
