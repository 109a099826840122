package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/danielnogueira8/whopBetTracker-sub000/app/factory"
	"github.com/danielnogueira8/whopBetTracker-sub000/app/mapper"
	"github.com/danielnogueira8/whopBetTracker-sub000/app/service"
	"github.com/danielnogueira8/whopBetTracker-sub000/app/types"
)

type PurchaseController struct {
	purchaseService *service.PurchaseService
	logger          logrus.FieldLogger
}

func NewPurchaseController(purchaseService *service.PurchaseService) *PurchaseController {
	return &PurchaseController{
		purchaseService: purchaseService,
		logger:          factory.NewModuleLogger("purchase-controller"),
	}
}

func (c *PurchaseController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *PurchaseController) CreateCheckout(ctx echo.Context) error {
	req, err := types.NewCreateCheckoutRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	purchase, checkoutURL, err := c.purchaseService.CreateCheckout(ctx.Request().Context(), &service.CreateCheckoutInput{
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		BuyerID:      BuyerID(ctx),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrPlanNotConfigured):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrResourceNotFound):
			return c.writeError(ctx, http.StatusNotFound, "resource not found")
		default:
			c.logger.WithError(err).Error("Create checkout failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusCreated, &types.CreateCheckoutResponse{
		Purchase:    mapper.PurchaseToResponse(purchase),
		CheckoutURL: checkoutURL,
	})
}

func (c *PurchaseController) ConfirmPurchase(ctx echo.Context) error {
	req, err := types.NewConfirmPurchaseRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	outcome, err := c.purchaseService.ConfirmPurchase(ctx.Request().Context(), &service.ConfirmPurchaseInput{
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		BuyerID:      BuyerID(ctx),
		CheckoutID:   req.CheckoutID,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrResourceNotFound):
			return c.writeError(ctx, http.StatusNotFound, "resource not found")
		case errors.Is(err, service.ErrPurchaseNotFound):
			return c.writeError(ctx, http.StatusNotFound, "purchase not found")
		case errors.Is(err, service.ErrBuyerMismatch):
			return c.writeError(ctx, http.StatusForbidden, "purchase belongs to another user")
		case errors.Is(err, service.ErrPaymentNotCompleted):
			return c.writeError(ctx, http.StatusConflict, "Payment not completed")
		default:
			c.logger.WithError(err).Error("Confirm purchase failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.ConfirmPurchaseResponse{
		Purchase:     mapper.PurchaseToResponse(outcome.Purchase),
		AutoApproved: outcome.AutoApproved,
		Reconciled:   outcome.Reconciled,
	})
}

func (c *PurchaseController) CheckAccess(ctx echo.Context) error {
	req, err := types.NewAccessRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	granted, err := c.purchaseService.CheckAccess(ctx.Request().Context(), req.ResourceType, req.ResourceID, BuyerID(ctx))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrResourceNotFound):
			return c.writeError(ctx, http.StatusNotFound, "resource not found")
		default:
			c.logger.WithError(err).Error("Check access failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.AccessResponse{Granted: granted})
}

func (c *PurchaseController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
