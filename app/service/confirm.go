package service

import (
	"context"
	"fmt"

	"github.com/danielnogueira8/whopBetTracker-sub000/app/entity"
)

type ConfirmPurchaseInput struct {
	ResourceType string
	ResourceID   string
	BuyerID      string
	CheckoutID   string
}

type ConfirmOutcome struct {
	Purchase     *entity.Purchase
	AutoApproved bool
	Reconciled   bool
}

// ConfirmPurchase is the client-polled fallback for when the webhook is
// delayed or lost. It only ever moves a purchase forward along the same
// state machine as the webhook path, so both paths may race safely.
func (s *PurchaseService) ConfirmPurchase(ctx context.Context, input *ConfirmPurchaseInput) (*ConfirmOutcome, error) {
	if input.ResourceID == "" || input.BuyerID == "" || input.CheckoutID == "" {
		return nil, ErrInvalidRequest
	}

	listing, err := s.listingRepo.FindByResource(ctx, input.ResourceType, input.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("find listing for %s %s: %w", input.ResourceType, input.ResourceID, err)
	}
	if listing == nil {
		return nil, ErrResourceNotFound
	}

	purchase, err := s.purchaseRepo.FindByCheckoutID(ctx, input.CheckoutID, listing.ID)
	if err != nil {
		return nil, fmt.Errorf("find purchase by checkout id: %w", err)
	}
	if purchase == nil {
		return nil, ErrPurchaseNotFound
	}
	if purchase.BuyerID != input.BuyerID {
		return nil, ErrBuyerMismatch
	}

	switch purchase.Status {
	case entity.PurchaseStatusSucceeded:
		// Re-grant covers the crash window between grant and status update.
		if err := s.entitlementRepo.InsertIfAbsent(ctx, purchase.ResourceType, purchase.ResourceID, purchase.BuyerID, entity.GrantProvenancePurchase); err != nil {
			return nil, fmt.Errorf("insert entitlement grant: %w", err)
		}
		return &ConfirmOutcome{Purchase: purchase}, nil

	case entity.PurchaseStatusRefunded:
		return nil, ErrPaymentNotCompleted
	}

	if purchase.AmountCents == 0 {
		// Free purchases have no provider receipt to check.
		if err := s.settlePurchase(ctx, purchase, nil, nil, "purchase_auto_approved"); err != nil {
			return nil, err
		}
		s.logger.WithField("purchase_id", purchase.ID).Info("zero-amount purchase auto-approved")
		return &ConfirmOutcome{Purchase: purchase, AutoApproved: true}, nil
	}

	settled, err := s.reconcileAgainstReceipts(ctx, purchase, listing)
	if err != nil {
		return nil, err
	}
	if !settled {
		return nil, ErrPaymentNotCompleted
	}
	return &ConfirmOutcome{Purchase: purchase, Reconciled: true}, nil
}

// CheckAccess reports whether the buyer holds an entitlement grant for the
// resource. The resource must exist; a missing listing is distinguishable
// from a missing grant.
func (s *PurchaseService) CheckAccess(ctx context.Context, resourceType, resourceID, buyerID string) (bool, error) {
	if resourceID == "" || buyerID == "" {
		return false, ErrInvalidRequest
	}

	listing, err := s.listingRepo.FindByResource(ctx, resourceType, resourceID)
	if err != nil {
		return false, fmt.Errorf("find listing for %s %s: %w", resourceType, resourceID, err)
	}
	if listing == nil {
		return false, ErrResourceNotFound
	}

	return s.entitlementRepo.Exists(ctx, resourceType, resourceID, buyerID)
}
