package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/danielnogueira8/whopBetTracker-sub000/app/entity"
	"github.com/danielnogueira8/whopBetTracker-sub000/app/factory"
	"github.com/danielnogueira8/whopBetTracker-sub000/app/provider"
	"github.com/danielnogueira8/whopBetTracker-sub000/config"
)

const (
	defaultBatchSize       = int32(100)
	defaultReceiptPageSize = int32(50)
)

type purchaseRepository interface {
	Create(ctx context.Context, purchase *entity.Purchase) error
	UpdateStatus(ctx context.Context, id uint64, status string, planID, productID *string, now time.Time) error
	FindByCheckoutID(ctx context.Context, checkoutID string, listingID uint64) (*entity.Purchase, error)
	ListStalePending(ctx context.Context, before time.Time, limit int32) ([]*entity.Purchase, error)
}

type listingRepository interface {
	FindByID(ctx context.Context, id uint64) (*entity.Listing, error)
	FindByResource(ctx context.Context, resourceType, resourceID string) (*entity.Listing, error)
}

type entitlementRepository interface {
	InsertIfAbsent(ctx context.Context, resourceType, resourceID, buyerID, provenance string) error
	Delete(ctx context.Context, resourceType, resourceID, buyerID string) error
	Exists(ctx context.Context, resourceType, resourceID, buyerID string) (bool, error)
}

type purchaseEventRepository interface {
	Create(ctx context.Context, event *entity.PurchaseEvent) error
}

type PurchaseService struct {
	purchaseRepo    purchaseRepository
	listingRepo     listingRepository
	entitlementRepo entitlementRepository
	eventRepo       purchaseEventRepository
	providerFactory provider.ClientFactory
	purchasesCfg    config.PurchasesConfig
	logger          logrus.FieldLogger
}

func NewPurchaseService(
	purchaseRepo purchaseRepository,
	listingRepo listingRepository,
	entitlementRepo entitlementRepository,
	eventRepo purchaseEventRepository,
	providerFactory provider.ClientFactory,
	purchasesCfg config.PurchasesConfig,
) *PurchaseService {
	return &PurchaseService{
		purchaseRepo:    purchaseRepo,
		listingRepo:     listingRepo,
		entitlementRepo: entitlementRepo,
		eventRepo:       eventRepo,
		providerFactory: providerFactory,
		purchasesCfg:    purchasesCfg,
		logger:          factory.NewModuleLogger("purchase-service"),
	}
}

type CreateCheckoutInput struct {
	ResourceType string
	ResourceID   string
	BuyerID      string
}

// CreateCheckout opens a checkout session for one listing and records the
// pending Purchase keyed by the provider's checkout id. Zero-priced listings
// never reach the provider: they get a locally generated correlation id and
// settle through the confirm endpoint's auto-approval path.
func (s *PurchaseService) CreateCheckout(ctx context.Context, input *CreateCheckoutInput) (*entity.Purchase, string, error) {
	if strings.TrimSpace(input.ResourceID) == "" || strings.TrimSpace(input.BuyerID) == "" {
		return nil, "", ErrInvalidRequest
	}

	listing, err := s.listingRepo.FindByResource(ctx, input.ResourceType, input.ResourceID)
	if err != nil {
		return nil, "", err
	}
	if listing == nil {
		return nil, "", ErrResourceNotFound
	}

	checkoutID := "free_" + uuid.NewString()
	checkoutURL := ""
	var planID *string

	if listing.PriceCents > 0 {
		plan := s.resolvePlanID(nil, listing)
		if plan == "" {
			return nil, "", ErrPlanNotConfigured
		}
		planID = &plan

		client := s.providerFactory.ClientFor(listing.CompanyID)
		session, err := client.CreateCheckout(ctx, &provider.CheckoutInput{
			PlanID:      plan,
			AmountCents: listing.PriceCents,
			Currency:    listing.Currency,
			Metadata:    checkoutMetadata(listing),
		})
		if err != nil {
			return nil, "", err
		}
		checkoutID = session.ID
		checkoutURL = session.URL
	}

	now := time.Now().UTC()
	purchase := &entity.Purchase{
		CheckoutID:   checkoutID,
		ListingID:    listing.ID,
		ResourceType: listing.ResourceType,
		ResourceID:   listing.ResourceID,
		BuyerID:      input.BuyerID,
		AmountCents:  listing.PriceCents,
		Currency:     listing.Currency,
		CompanyID:    listing.CompanyID,
		PlanID:       planID,
		Status:       entity.PurchaseStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.purchaseRepo.Create(ctx, purchase); err != nil {
		return nil, "", err
	}

	s.recordEvent(ctx, purchase.ID, "purchase_created", nil, purchase.Status, nil)

	return purchase, checkoutURL, nil
}

// RunReconcileBatch replays the receipt reconciliation for pending purchases
// that have not moved in a while, covering webhooks that were lost and
// clients that stopped polling.
func (s *PurchaseService) RunReconcileBatch(ctx context.Context) error {
	now := time.Now().UTC()
	before := now.Add(-s.purchasesCfg.ReconcileStaleAfter)

	items, err := s.purchaseRepo.ListStalePending(ctx, before, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, purchase := range items {
		if purchase == nil || purchase.AmountCents <= 0 {
			continue
		}

		listing, err := s.listingRepo.FindByID(ctx, purchase.ListingID)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if listing == nil {
			continue
		}

		settled, err := s.reconcileAgainstReceipts(ctx, purchase, listing)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if settled {
			s.logger.WithFields(logrus.Fields{
				"purchase_id": purchase.ID,
				"checkout_id": purchase.CheckoutID,
			}).Info("stale purchase reconciled from receipts")
		}
	}

	return firstErr
}

// reconcileAgainstReceipts asks the provider for succeeded receipts on the
// purchase's plan and settles the purchase when one belongs to its buyer.
// Provider failures and timeouts report false without error: the caller
// treats them the same as "no matching receipt yet".
func (s *PurchaseService) reconcileAgainstReceipts(ctx context.Context, purchase *entity.Purchase, listing *entity.Listing) (bool, error) {
	planID := s.resolvePlanID(purchase, listing)
	if planID == "" {
		s.logger.WithFields(logrus.Fields{
			"purchase_id": purchase.ID,
			"price_cents": listing.PriceCents,
		}).Warn("no plan id resolvable for purchase, cannot reconcile")
		return false, nil
	}

	client := s.providerFactory.ClientFor(listing.CompanyID)
	receipts, err := client.ListReceipts(ctx, provider.ReceiptQuery{
		PlanID:   planID,
		Status:   provider.ReceiptStatusSucceeded,
		PageSize: s.receiptPageSize(),
	})
	if err != nil {
		s.logger.WithError(err).WithField("purchase_id", purchase.ID).Warn("receipt query failed")
		return false, nil
	}

	for _, receipt := range receipts {
		if receipt.BuyerID != purchase.BuyerID {
			continue
		}
		if err := s.settlePurchase(ctx, purchase, &planID, nil, "purchase_reconciled"); err != nil {
			return false, err
		}
		return true, nil
	}

	return false, nil
}

// settlePurchase grants the entitlement and then marks the purchase
// succeeded. The order matters: a crash after the grant leaves a pending row
// that a repeat call or webhook redelivery converges safely.
func (s *PurchaseService) settlePurchase(ctx context.Context, purchase *entity.Purchase, planID, productID *string, eventType string) error {
	if err := s.entitlementRepo.InsertIfAbsent(ctx, purchase.ResourceType, purchase.ResourceID, purchase.BuyerID, entity.GrantProvenancePurchase); err != nil {
		return err
	}

	if purchase.Status == entity.PurchaseStatusSucceeded {
		return nil
	}

	now := time.Now().UTC()
	if err := s.purchaseRepo.UpdateStatus(ctx, purchase.ID, entity.PurchaseStatusSucceeded, planID, productID, now); err != nil {
		return err
	}

	oldStatus := purchase.Status
	purchase.Status = entity.PurchaseStatusSucceeded
	purchase.UpdatedAt = now

	s.recordEvent(ctx, purchase.ID, eventType, &oldStatus, entity.PurchaseStatusSucceeded, nil)

	return nil
}

// refundPurchase revokes the entitlement and then marks the purchase
// refunded. Revoking a grant that does not exist is a no-op.
func (s *PurchaseService) refundPurchase(ctx context.Context, purchase *entity.Purchase, eventType string, providerEventID *string) error {
	if err := s.entitlementRepo.Delete(ctx, purchase.ResourceType, purchase.ResourceID, purchase.BuyerID); err != nil {
		return err
	}

	if purchase.Status == entity.PurchaseStatusRefunded {
		return nil
	}

	now := time.Now().UTC()
	if err := s.purchaseRepo.UpdateStatus(ctx, purchase.ID, entity.PurchaseStatusRefunded, nil, nil, now); err != nil {
		return err
	}

	oldStatus := purchase.Status
	purchase.Status = entity.PurchaseStatusRefunded
	purchase.UpdatedAt = now

	s.recordEvent(ctx, purchase.ID, eventType, &oldStatus, entity.PurchaseStatusRefunded, providerEventID)

	return nil
}

func (s *PurchaseService) recordEvent(ctx context.Context, purchaseID uint64, eventType string, oldStatus *string, newStatus string, providerEventID *string) {
	_ = s.eventRepo.Create(ctx, &entity.PurchaseEvent{
		PurchaseID:      purchaseID,
		EventType:       eventType,
		OldStatus:       oldStatus,
		NewStatus:       newStatus,
		ProviderEventID: providerEventID,
		CreatedAt:       time.Now().UTC(),
	})
}

// resolvePlanID prefers the plan persisted on the purchase, then the
// listing's own plan, then the startup price-tier map.
func (s *PurchaseService) resolvePlanID(purchase *entity.Purchase, listing *entity.Listing) string {
	if purchase != nil && purchase.PlanID != nil && strings.TrimSpace(*purchase.PlanID) != "" {
		return strings.TrimSpace(*purchase.PlanID)
	}
	if listing.PlanID != nil && strings.TrimSpace(*listing.PlanID) != "" {
		return strings.TrimSpace(*listing.PlanID)
	}
	return s.purchasesCfg.PriceTierPlans[listing.PriceCents]
}

func (s *PurchaseService) batchSize() int32 {
	if s.purchasesCfg.JobBatchSize > 0 {
		return s.purchasesCfg.JobBatchSize
	}
	return defaultBatchSize
}

func (s *PurchaseService) receiptPageSize() int32 {
	if s.purchasesCfg.ReceiptPageSize > 0 {
		return s.purchasesCfg.ReceiptPageSize
	}
	return defaultReceiptPageSize
}

func checkoutMetadata(listing *entity.Listing) map[string]string {
	metadata := map[string]string{
		"listingId": formatUint(listing.ID),
		"companyId": listing.CompanyID,
	}
	switch listing.ResourceType {
	case entity.ResourceTypeParlay:
		metadata["type"] = "parlay_purchase"
		metadata["parlayId"] = listing.ResourceID
	default:
		metadata["type"] = "bet_purchase"
		metadata["betId"] = listing.ResourceID
	}
	return metadata
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func keepFirstErr(firstErr, err error) error {
	if firstErr != nil {
		return firstErr
	}
	return err
}
