package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/danielnogueira8/whopBetTracker-sub000/app/entity"
	"github.com/danielnogueira8/whopBetTracker-sub000/app/provider"
	"github.com/danielnogueira8/whopBetTracker-sub000/app/webhook"
	"github.com/danielnogueira8/whopBetTracker-sub000/config"
)

type fakePurchaseRepo struct {
	purchases     map[uint64]*entity.Purchase
	nextID        uint64
	updateCalls   int
	listStaleErr  error
	stalePending  []*entity.Purchase
	failureOnFind error
}

func newFakePurchaseRepo() *fakePurchaseRepo {
	return &fakePurchaseRepo{purchases: map[uint64]*entity.Purchase{}, nextID: 1}
}

func (r *fakePurchaseRepo) Create(_ context.Context, purchase *entity.Purchase) error {
	purchase.ID = r.nextID
	r.nextID++
	clone := *purchase
	r.purchases[purchase.ID] = &clone
	return nil
}

func (r *fakePurchaseRepo) UpdateStatus(_ context.Context, id uint64, status string, planID, productID *string, now time.Time) error {
	r.updateCalls++
	stored, ok := r.purchases[id]
	if !ok {
		return errors.New("purchase not found")
	}
	stored.Status = status
	if planID != nil {
		stored.PlanID = planID
	}
	if productID != nil {
		stored.ProductID = productID
	}
	stored.UpdatedAt = now
	return nil
}

func (r *fakePurchaseRepo) FindByCheckoutID(_ context.Context, checkoutID string, listingID uint64) (*entity.Purchase, error) {
	if r.failureOnFind != nil {
		return nil, r.failureOnFind
	}
	for _, stored := range r.purchases {
		if stored.CheckoutID == checkoutID && stored.ListingID == listingID {
			clone := *stored
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakePurchaseRepo) ListStalePending(_ context.Context, _ time.Time, _ int32) ([]*entity.Purchase, error) {
	if r.listStaleErr != nil {
		return nil, r.listStaleErr
	}
	return r.stalePending, nil
}

type fakeListingRepo struct {
	listings map[uint64]*entity.Listing
}

func newFakeListingRepo(listings ...*entity.Listing) *fakeListingRepo {
	repo := &fakeListingRepo{listings: map[uint64]*entity.Listing{}}
	for _, listing := range listings {
		repo.listings[listing.ID] = listing
	}
	return repo
}

func (r *fakeListingRepo) FindByID(_ context.Context, id uint64) (*entity.Listing, error) {
	if listing, ok := r.listings[id]; ok {
		clone := *listing
		return &clone, nil
	}
	return nil, nil
}

func (r *fakeListingRepo) FindByResource(_ context.Context, resourceType, resourceID string) (*entity.Listing, error) {
	for _, listing := range r.listings {
		if listing.ResourceType == resourceType && listing.ResourceID == resourceID {
			clone := *listing
			return &clone, nil
		}
	}
	return nil, nil
}

type fakeEntitlementRepo struct {
	grants      map[string]string
	insertCalls int
	deleteCalls int
}

func newFakeEntitlementRepo() *fakeEntitlementRepo {
	return &fakeEntitlementRepo{grants: map[string]string{}}
}

func grantKey(resourceType, resourceID, buyerID string) string {
	return fmt.Sprintf("%s/%s/%s", resourceType, resourceID, buyerID)
}

func (r *fakeEntitlementRepo) InsertIfAbsent(_ context.Context, resourceType, resourceID, buyerID, provenance string) error {
	r.insertCalls++
	key := grantKey(resourceType, resourceID, buyerID)
	if _, exists := r.grants[key]; !exists {
		r.grants[key] = provenance
	}
	return nil
}

func (r *fakeEntitlementRepo) Delete(_ context.Context, resourceType, resourceID, buyerID string) error {
	r.deleteCalls++
	delete(r.grants, grantKey(resourceType, resourceID, buyerID))
	return nil
}

func (r *fakeEntitlementRepo) Exists(_ context.Context, resourceType, resourceID, buyerID string) (bool, error) {
	return r.has(resourceType, resourceID, buyerID), nil
}

func (r *fakeEntitlementRepo) has(resourceType, resourceID, buyerID string) bool {
	_, ok := r.grants[grantKey(resourceType, resourceID, buyerID)]
	return ok
}

type fakeEventRepo struct {
	events []*entity.PurchaseEvent
}

func (r *fakeEventRepo) Create(_ context.Context, event *entity.PurchaseEvent) error {
	r.events = append(r.events, event)
	return nil
}

type fakeProviderClient struct {
	receipts        []provider.Receipt
	receiptsErr     error
	session         *provider.CheckoutSession
	checkoutErr     error
	checkoutCalls   int
	receiptCalls    int
	lastCheckoutIn  *provider.CheckoutInput
	lastReceiptsQry provider.ReceiptQuery
}

func (c *fakeProviderClient) CreateCheckout(_ context.Context, input *provider.CheckoutInput) (*provider.CheckoutSession, error) {
	c.checkoutCalls++
	c.lastCheckoutIn = input
	if c.checkoutErr != nil {
		return nil, c.checkoutErr
	}
	return c.session, nil
}

func (c *fakeProviderClient) ListReceipts(_ context.Context, query provider.ReceiptQuery) ([]provider.Receipt, error) {
	c.receiptCalls++
	c.lastReceiptsQry = query
	if c.receiptsErr != nil {
		return nil, c.receiptsErr
	}
	return c.receipts, nil
}

func (c *fakeProviderClient) VerifyUserToken(_ context.Context, _ string) (string, error) {
	return "", errors.New("not implemented")
}

type fakeProviderFactory struct {
	client *fakeProviderClient
}

func (f *fakeProviderFactory) ClientFor(_ string) provider.Client {
	return f.client
}

type serviceFixture struct {
	service      *PurchaseService
	purchases    *fakePurchaseRepo
	listings     *fakeListingRepo
	entitlements *fakeEntitlementRepo
	events       *fakeEventRepo
	client       *fakeProviderClient
}

func newServiceFixture(t *testing.T, listings ...*entity.Listing) *serviceFixture {
	t.Helper()
	purchases := newFakePurchaseRepo()
	entitlements := newFakeEntitlementRepo()
	events := &fakeEventRepo{}
	client := &fakeProviderClient{}
	listingRepo := newFakeListingRepo(listings...)

	svc := NewPurchaseService(purchases, listingRepo, entitlements, events, &fakeProviderFactory{client: client}, config.PurchasesConfig{
		PriceTierPlans:     map[int64]string{500: "plan_tier_500"},
		ReceiptPageSize:    50,
		ReconcileStaleAfter: 10 * time.Minute,
	})

	return &serviceFixture{
		service:      svc,
		purchases:    purchases,
		listings:     listingRepo,
		entitlements: entitlements,
		events:       events,
		client:       client,
	}
}

func paidListing() *entity.Listing {
	return &entity.Listing{
		ID:           7,
		ResourceType: entity.ResourceTypeBet,
		ResourceID:   "bet-42",
		CompanyID:    "biz_1",
		PriceCents:   500,
		Currency:     "usd",
	}
}

func freeListing() *entity.Listing {
	return &entity.Listing{
		ID:           8,
		ResourceType: entity.ResourceTypeParlay,
		ResourceID:   "parlay-9",
		CompanyID:    "biz_1",
		PriceCents:   0,
		Currency:     "usd",
	}
}

func seedPendingPurchase(t *testing.T, fx *serviceFixture, listing *entity.Listing, checkoutID, buyerID string) *entity.Purchase {
	t.Helper()
	purchase := &entity.Purchase{
		CheckoutID:   checkoutID,
		ListingID:    listing.ID,
		ResourceType: listing.ResourceType,
		ResourceID:   listing.ResourceID,
		BuyerID:      buyerID,
		AmountCents:  listing.PriceCents,
		Currency:     listing.Currency,
		CompanyID:    listing.CompanyID,
		Status:       entity.PurchaseStatusPending,
	}
	if err := fx.purchases.Create(context.Background(), purchase); err != nil {
		t.Fatalf("seed purchase: %v", err)
	}
	return purchase
}

func successEvent(checkoutID string, listing *entity.Listing) *webhook.Event {
	return &webhook.Event{
		Action: "payment.succeeded",
		Data: webhook.EventData{
			ID:         "evt_123",
			Status:     "paid",
			CheckoutID: checkoutID,
			Metadata: map[string]interface{}{
				"type":      "bet_purchase",
				"listingId": fmt.Sprintf("%d", listing.ID),
			},
		},
	}
}

func TestHandleWebhookEventSettlesPurchase(t *testing.T) {
	listing := paidListing()
	fx := newServiceFixture(t, listing)
	purchase := seedPendingPurchase(t, fx, listing, "ch_abc", "user_1")

	result, err := fx.service.HandleWebhookEvent(context.Background(), successEvent("ch_abc", listing))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Disposition != DispositionProcessed {
		t.Fatalf("expected processed, got %q", result.Disposition)
	}
	if result.Outcome != OutcomeSuccess {
		t.Fatalf("expected success outcome, got %d", result.Outcome)
	}

	stored := fx.purchases.purchases[purchase.ID]
	if stored.Status != entity.PurchaseStatusSucceeded {
		t.Fatalf("expected succeeded, got %q", stored.Status)
	}
	if !fx.entitlements.has(listing.ResourceType, listing.ResourceID, "user_1") {
		t.Fatal("expected entitlement grant")
	}
}

func TestHandleWebhookEventDoubleDelivery(t *testing.T) {
	listing := paidListing()
	fx := newServiceFixture(t, listing)
	purchase := seedPendingPurchase(t, fx, listing, "ch_abc", "user_1")
	event := successEvent("ch_abc", listing)

	for i := 0; i < 2; i++ {
		if _, err := fx.service.HandleWebhookEvent(context.Background(), event); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}

	if got := len(fx.entitlements.grants); got != 1 {
		t.Fatalf("expected exactly one grant, got %d", got)
	}
	if fx.purchases.updateCalls != 1 {
		t.Fatalf("expected one status update, got %d", fx.purchases.updateCalls)
	}
	if fx.purchases.purchases[purchase.ID].Status != entity.PurchaseStatusSucceeded {
		t.Fatal("expected purchase to stay succeeded")
	}
}

func TestHandleWebhookEventRefundAfterSuccess(t *testing.T) {
	listing := paidListing()
	fx := newServiceFixture(t, listing)
	purchase := seedPendingPurchase(t, fx, listing, "ch_abc", "user_1")

	if _, err := fx.service.HandleWebhookEvent(context.Background(), successEvent("ch_abc", listing)); err != nil {
		t.Fatalf("success event: %v", err)
	}

	refund := successEvent("ch_abc", listing)
	refund.Action = "payment.refunded"
	refund.Data.Status = "refunded"
	result, err := fx.service.HandleWebhookEvent(context.Background(), refund)
	if err != nil {
		t.Fatalf("refund event: %v", err)
	}
	if result.Outcome != OutcomeRefund {
		t.Fatalf("expected refund outcome, got %d", result.Outcome)
	}

	if fx.entitlements.has(listing.ResourceType, listing.ResourceID, "user_1") {
		t.Fatal("expected grant to be revoked")
	}
	if fx.purchases.purchases[purchase.ID].Status != entity.PurchaseStatusRefunded {
		t.Fatal("expected refunded status")
	}
}

func TestHandleWebhookEventSuccessAfterRefundIgnored(t *testing.T) {
	listing := paidListing()
	fx := newServiceFixture(t, listing)
	purchase := seedPendingPurchase(t, fx, listing, "ch_abc", "user_1")
	fx.purchases.purchases[purchase.ID].Status = entity.PurchaseStatusRefunded

	result, err := fx.service.HandleWebhookEvent(context.Background(), successEvent("ch_abc", listing))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Disposition != DispositionIgnoredOutcome {
		t.Fatalf("expected ignored outcome, got %q", result.Disposition)
	}
	if fx.purchases.purchases[purchase.ID].Status != entity.PurchaseStatusRefunded {
		t.Fatal("refunded purchase must not move back to succeeded")
	}
	if fx.entitlements.has(listing.ResourceType, listing.ResourceID, "user_1") {
		t.Fatal("no grant may appear after refund")
	}
}

func TestHandleWebhookEventIgnoresForeignEventType(t *testing.T) {
	listing := paidListing()
	fx := newServiceFixture(t, listing)
	seedPendingPurchase(t, fx, listing, "ch_abc", "user_1")

	event := successEvent("ch_abc", listing)
	event.Data.Metadata["type"] = "subscription_purchase"

	result, err := fx.service.HandleWebhookEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Disposition != DispositionIgnoredEventType {
		t.Fatalf("expected ignored event type, got %q", result.Disposition)
	}
	if fx.purchases.updateCalls != 0 {
		t.Fatal("foreign events must not touch purchases")
	}
}

func TestHandleWebhookEventUnknownPurchase(t *testing.T) {
	listing := paidListing()
	fx := newServiceFixture(t, listing)

	result, err := fx.service.HandleWebhookEvent(context.Background(), successEvent("ch_missing", listing))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Disposition != DispositionUnknownPurchase {
		t.Fatalf("expected unknown purchase, got %q", result.Disposition)
	}
}

func TestHandleWebhookEventCheckoutSessionFallback(t *testing.T) {
	listing := paidListing()
	fx := newServiceFixture(t, listing)
	seedPendingPurchase(t, fx, listing, "ch_session", "user_1")

	event := successEvent("", listing)
	event.Data.CheckoutSessionID = "ch_session"

	result, err := fx.service.HandleWebhookEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Disposition != DispositionProcessed {
		t.Fatalf("expected processed via checkout_session_id, got %q", result.Disposition)
	}
}

func TestClassifyOutcome(t *testing.T) {
	cases := []struct {
		action string
		status string
		want   EventOutcome
	}{
		{"payment.succeeded", "", OutcomeSuccess},
		{"payment_succeeded", "paid", OutcomeSuccess},
		{"charge.completed", "", OutcomeSuccess},
		{"payment.updated", "success", OutcomeSuccess},
		{"payment.refunded", "", OutcomeRefund},
		{"payment.refund_succeeded", "", OutcomeRefund},
		{"dispute.chargeback", "", OutcomeRefund},
		{"payment.reversed", "succeeded", OutcomeRefund},
		{"payment.pending", "pending", OutcomeIgnored},
		{"membership.went_valid", "", OutcomeIgnored},
	}
	for _, tc := range cases {
		if got := ClassifyOutcome(tc.action, tc.status); got != tc.want {
			t.Errorf("ClassifyOutcome(%q, %q) = %d, want %d", tc.action, tc.status, got, tc.want)
		}
	}
}

func TestConfirmPurchaseAutoApprovesFree(t *testing.T) {
	listing := freeListing()
	fx := newServiceFixture(t, listing)
	purchase := seedPendingPurchase(t, fx, listing, "free_xyz", "user_1")

	outcome, err := fx.service.ConfirmPurchase(context.Background(), &ConfirmPurchaseInput{
		ResourceType: listing.ResourceType,
		ResourceID:   listing.ResourceID,
		BuyerID:      "user_1",
		CheckoutID:   "free_xyz",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.AutoApproved {
		t.Fatal("expected auto-approval")
	}
	if fx.client.receiptCalls != 0 {
		t.Fatal("free confirmation must not query the provider")
	}
	if fx.purchases.purchases[purchase.ID].Status != entity.PurchaseStatusSucceeded {
		t.Fatal("expected succeeded status")
	}
	if !fx.entitlements.has(listing.ResourceType, listing.ResourceID, "user_1") {
		t.Fatal("expected entitlement grant")
	}
}

func TestConfirmPurchaseReconcilesAgainstReceipts(t *testing.T) {
	listing := paidListing()
	fx := newServiceFixture(t, listing)
	seedPendingPurchase(t, fx, listing, "ch_abc", "user_1")
	fx.client.receipts = []provider.Receipt{
		{ID: "rec_other", BuyerID: "user_9", Status: provider.ReceiptStatusSucceeded},
		{ID: "rec_1", BuyerID: "user_1", Status: provider.ReceiptStatusSucceeded},
	}

	outcome, err := fx.service.ConfirmPurchase(context.Background(), &ConfirmPurchaseInput{
		ResourceType: listing.ResourceType,
		ResourceID:   listing.ResourceID,
		BuyerID:      "user_1",
		CheckoutID:   "ch_abc",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Reconciled {
		t.Fatal("expected reconciliation")
	}
	if fx.client.lastReceiptsQry.PlanID != "plan_tier_500" {
		t.Fatalf("expected price-tier plan, got %q", fx.client.lastReceiptsQry.PlanID)
	}
	if !fx.entitlements.has(listing.ResourceType, listing.ResourceID, "user_1") {
		t.Fatal("expected entitlement grant")
	}
}

func TestConfirmPurchaseUnresolvedIsRetryable(t *testing.T) {
	listing := paidListing()
	fx := newServiceFixture(t, listing)
	purchase := seedPendingPurchase(t, fx, listing, "ch_abc", "user_1")

	input := &ConfirmPurchaseInput{
		ResourceType: listing.ResourceType,
		ResourceID:   listing.ResourceID,
		BuyerID:      "user_1",
		CheckoutID:   "ch_abc",
	}

	if _, err := fx.service.ConfirmPurchase(context.Background(), input); !errors.Is(err, ErrPaymentNotCompleted) {
		t.Fatalf("expected ErrPaymentNotCompleted, got %v", err)
	}
	if fx.purchases.purchases[purchase.ID].Status != entity.PurchaseStatusPending {
		t.Fatal("unresolved confirmation must leave the purchase pending")
	}

	// The receipt shows up later and the same call succeeds.
	fx.client.receipts = []provider.Receipt{{ID: "rec_1", BuyerID: "user_1", Status: provider.ReceiptStatusSucceeded}}
	outcome, err := fx.service.ConfirmPurchase(context.Background(), input)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !outcome.Reconciled {
		t.Fatal("expected reconciliation on retry")
	}
}

func TestConfirmPurchaseProviderErrorIsRetryable(t *testing.T) {
	listing := paidListing()
	fx := newServiceFixture(t, listing)
	seedPendingPurchase(t, fx, listing, "ch_abc", "user_1")
	fx.client.receiptsErr = errors.New("upstream timeout")

	_, err := fx.service.ConfirmPurchase(context.Background(), &ConfirmPurchaseInput{
		ResourceType: listing.ResourceType,
		ResourceID:   listing.ResourceID,
		BuyerID:      "user_1",
		CheckoutID:   "ch_abc",
	})
	if !errors.Is(err, ErrPaymentNotCompleted) {
		t.Fatalf("provider failure must map to ErrPaymentNotCompleted, got %v", err)
	}
}

func TestConfirmPurchaseAlreadySucceededRegrants(t *testing.T) {
	listing := paidListing()
	fx := newServiceFixture(t, listing)
	purchase := seedPendingPurchase(t, fx, listing, "ch_abc", "user_1")
	fx.purchases.purchases[purchase.ID].Status = entity.PurchaseStatusSucceeded

	outcome, err := fx.service.ConfirmPurchase(context.Background(), &ConfirmPurchaseInput{
		ResourceType: listing.ResourceType,
		ResourceID:   listing.ResourceID,
		BuyerID:      "user_1",
		CheckoutID:   "ch_abc",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.AutoApproved || outcome.Reconciled {
		t.Fatal("settled purchase needs no approval flags")
	}
	if !fx.entitlements.has(listing.ResourceType, listing.ResourceID, "user_1") {
		t.Fatal("expected grant to be re-inserted")
	}
	if fx.client.receiptCalls != 0 {
		t.Fatal("settled purchase must not query the provider")
	}
}

func TestConfirmPurchaseRefundedRejected(t *testing.T) {
	listing := paidListing()
	fx := newServiceFixture(t, listing)
	purchase := seedPendingPurchase(t, fx, listing, "ch_abc", "user_1")
	fx.purchases.purchases[purchase.ID].Status = entity.PurchaseStatusRefunded

	_, err := fx.service.ConfirmPurchase(context.Background(), &ConfirmPurchaseInput{
		ResourceType: listing.ResourceType,
		ResourceID:   listing.ResourceID,
		BuyerID:      "user_1",
		CheckoutID:   "ch_abc",
	})
	if !errors.Is(err, ErrPaymentNotCompleted) {
		t.Fatalf("expected ErrPaymentNotCompleted, got %v", err)
	}
}

func TestConfirmPurchaseBuyerMismatch(t *testing.T) {
	listing := paidListing()
	fx := newServiceFixture(t, listing)
	seedPendingPurchase(t, fx, listing, "ch_abc", "user_1")

	_, err := fx.service.ConfirmPurchase(context.Background(), &ConfirmPurchaseInput{
		ResourceType: listing.ResourceType,
		ResourceID:   listing.ResourceID,
		BuyerID:      "user_2",
		CheckoutID:   "ch_abc",
	})
	if !errors.Is(err, ErrBuyerMismatch) {
		t.Fatalf("expected ErrBuyerMismatch, got %v", err)
	}
}

func TestConfirmPurchaseNotFoundErrors(t *testing.T) {
	listing := paidListing()
	fx := newServiceFixture(t, listing)

	_, err := fx.service.ConfirmPurchase(context.Background(), &ConfirmPurchaseInput{
		ResourceType: entity.ResourceTypeBet,
		ResourceID:   "no-such-bet",
		BuyerID:      "user_1",
		CheckoutID:   "ch_abc",
	})
	if !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}

	_, err = fx.service.ConfirmPurchase(context.Background(), &ConfirmPurchaseInput{
		ResourceType: listing.ResourceType,
		ResourceID:   listing.ResourceID,
		BuyerID:      "user_1",
		CheckoutID:   "ch_missing",
	})
	if !errors.Is(err, ErrPurchaseNotFound) {
		t.Fatalf("expected ErrPurchaseNotFound, got %v", err)
	}
}

func TestCreateCheckoutPricedListing(t *testing.T) {
	listing := paidListing()
	fx := newServiceFixture(t, listing)
	fx.client.session = &provider.CheckoutSession{ID: "ch_new", URL: "https://whop.com/checkout/ch_new", PlanID: "plan_tier_500"}

	purchase, url, err := fx.service.CreateCheckout(context.Background(), &CreateCheckoutInput{
		ResourceType: listing.ResourceType,
		ResourceID:   listing.ResourceID,
		BuyerID:      "user_1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if purchase.CheckoutID != "ch_new" {
		t.Fatalf("expected provider checkout id, got %q", purchase.CheckoutID)
	}
	if url != "https://whop.com/checkout/ch_new" {
		t.Fatalf("unexpected checkout url %q", url)
	}
	if purchase.Status != entity.PurchaseStatusPending {
		t.Fatalf("expected pending, got %q", purchase.Status)
	}
	if fx.client.lastCheckoutIn.Metadata["listingId"] != "7" {
		t.Fatalf("expected listing id in metadata, got %q", fx.client.lastCheckoutIn.Metadata["listingId"])
	}
	if fx.client.lastCheckoutIn.Metadata["type"] != "bet_purchase" {
		t.Fatalf("expected bet_purchase metadata, got %q", fx.client.lastCheckoutIn.Metadata["type"])
	}
}

func TestCreateCheckoutFreeListingSkipsProvider(t *testing.T) {
	listing := freeListing()
	fx := newServiceFixture(t, listing)

	purchase, url, err := fx.service.CreateCheckout(context.Background(), &CreateCheckoutInput{
		ResourceType: listing.ResourceType,
		ResourceID:   listing.ResourceID,
		BuyerID:      "user_1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fx.client.checkoutCalls != 0 {
		t.Fatal("free listing must not open a provider checkout")
	}
	if url != "" {
		t.Fatalf("expected empty checkout url, got %q", url)
	}
	if len(purchase.CheckoutID) < len("free_")+1 || purchase.CheckoutID[:5] != "free_" {
		t.Fatalf("expected locally generated free_ id, got %q", purchase.CheckoutID)
	}
}

func TestCreateCheckoutUnconfiguredPlan(t *testing.T) {
	listing := paidListing()
	listing.PriceCents = 999 // no tier, no listing plan
	fx := newServiceFixture(t, listing)

	_, _, err := fx.service.CreateCheckout(context.Background(), &CreateCheckoutInput{
		ResourceType: listing.ResourceType,
		ResourceID:   listing.ResourceID,
		BuyerID:      "user_1",
	})
	if !errors.Is(err, ErrPlanNotConfigured) {
		t.Fatalf("expected ErrPlanNotConfigured, got %v", err)
	}
}

func TestCheckAccess(t *testing.T) {
	listing := paidListing()
	fx := newServiceFixture(t, listing)

	granted, err := fx.service.CheckAccess(context.Background(), listing.ResourceType, listing.ResourceID, "user_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if granted {
		t.Fatal("expected no access before purchase")
	}

	purchase := seedPendingPurchase(t, fx, listing, "ch_abc", "user_1")
	if err := fx.service.settlePurchase(context.Background(), purchase, nil, nil, "purchase_succeeded"); err != nil {
		t.Fatalf("settle: %v", err)
	}

	granted, err = fx.service.CheckAccess(context.Background(), listing.ResourceType, listing.ResourceID, "user_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !granted {
		t.Fatal("expected access after settlement")
	}

	if _, err := fx.service.CheckAccess(context.Background(), entity.ResourceTypeBet, "no-such-bet", "user_1"); !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
}

func TestRunReconcileBatchSettlesStalePurchase(t *testing.T) {
	listing := paidListing()
	fx := newServiceFixture(t, listing)
	purchase := seedPendingPurchase(t, fx, listing, "ch_stale", "user_1")
	fx.purchases.stalePending = []*entity.Purchase{purchase}
	fx.client.receipts = []provider.Receipt{{ID: "rec_1", BuyerID: "user_1", Status: provider.ReceiptStatusSucceeded}}

	if err := fx.service.RunReconcileBatch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fx.purchases.purchases[purchase.ID].Status != entity.PurchaseStatusSucceeded {
		t.Fatal("expected stale purchase to settle")
	}
	if !fx.entitlements.has(listing.ResourceType, listing.ResourceID, "user_1") {
		t.Fatal("expected entitlement grant")
	}
}
