package controller

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/danielnogueira8/whopBetTracker-sub000/app/factory"
	"github.com/danielnogueira8/whopBetTracker-sub000/app/service"
	"github.com/danielnogueira8/whopBetTracker-sub000/app/types"
	"github.com/danielnogueira8/whopBetTracker-sub000/app/webhook"
)

type WebhookController struct {
	purchaseService *service.PurchaseService
	validator       *webhook.Validator
	secretSet       bool
	logger          logrus.FieldLogger
}

func NewWebhookController(purchaseService *service.PurchaseService, validator *webhook.Validator, secretSet bool) *WebhookController {
	return &WebhookController{
		purchaseService: purchaseService,
		validator:       validator,
		secretSet:       secretSet,
		logger:          factory.NewModuleLogger("webhook-controller"),
	}
}

// Liveness answers provider dashboard "test endpoint" probes, which GET the
// webhook URL before any event is sent.
func (c *WebhookController) Liveness(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.WebhookAck{Ok: true})
}

// HandleEvent verifies and applies one provider delivery. Verification
// failures are the caller's fault and return 4xx; only internal faults return
// 500, which tells the provider to redeliver.
func (c *WebhookController) HandleEvent(ctx echo.Context) error {
	if !c.secretSet {
		// Deployment misconfiguration. Rejecting before reading headers keeps
		// an unsigned endpoint from ever processing events.
		return c.writeError(ctx, http.StatusBadRequest, "missing webhook secret")
	}

	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "unreadable request body")
	}

	triple, err := webhook.ResolveHeaders(ctx.Request().Header)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "missing signature headers")
	}

	event, err := c.validator.Verify(triple, body, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrMissingSignatureHeaders):
			return c.writeError(ctx, http.StatusBadRequest, "missing signature headers")
		case errors.Is(err, webhook.ErrTimestampOutOfRange):
			return c.writeError(ctx, http.StatusBadRequest, "timestamp out of range")
		case errors.Is(err, webhook.ErrInvalidSignature):
			c.logger.WithFields(logrus.Fields{
				"family":    triple.Family,
				"signature": webhook.SignaturePreview(triple.Signature),
			}).Warn("webhook signature rejected")
			return c.writeError(ctx, http.StatusUnauthorized, "invalid signature")
		case errors.Is(err, webhook.ErrMalformedEvent):
			return c.writeError(ctx, http.StatusBadRequest, "malformed event payload")
		default:
			c.logger.WithError(err).Error("Webhook verification failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal error")
		}
	}

	result, err := c.purchaseService.HandleWebhookEvent(ctx.Request().Context(), event)
	if err != nil {
		c.logger.WithError(err).WithField("action", event.ActionTag()).Error("Webhook event processing failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal error")
	}

	c.logger.WithFields(logrus.Fields{
		"action":      event.ActionTag(),
		"disposition": result.Disposition,
		"purchase_id": result.PurchaseID,
	}).Info("webhook event handled")

	return ctx.JSON(http.StatusOK, &types.WebhookAck{Ok: true})
}

func (c *WebhookController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.WebhookAck{Ok: false, Error: message})
}
