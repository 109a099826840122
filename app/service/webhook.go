package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/danielnogueira8/whopBetTracker-sub000/app/entity"
	"github.com/danielnogueira8/whopBetTracker-sub000/app/webhook"
)

// EventOutcome is the classification of a provider event against the
// purchase state machine.
type EventOutcome int

const (
	OutcomeIgnored EventOutcome = iota
	OutcomeSuccess
	OutcomeRefund
)

// Providers vary event-type spelling across subtypes and API versions, so
// classification is substring matching against a central keyword set rather
// than exact equality. Keeping the sets here makes the matching rule one
// reviewable point.
var (
	successKeywords = []string{"succeeded", "success", "paid", "completed"}
	refundKeywords  = []string{"refund", "reversed", "chargeback"}
)

// ClassifyOutcome maps an event's action tag and status string to a state
// machine outcome. Refund keywords are checked first: an action like
// "payment.refund_succeeded" is a refund, not a success.
func ClassifyOutcome(action, status string) EventOutcome {
	haystack := strings.ToLower(action + " " + status)
	for _, keyword := range refundKeywords {
		if strings.Contains(haystack, keyword) {
			return OutcomeRefund
		}
	}
	for _, keyword := range successKeywords {
		if strings.Contains(haystack, keyword) {
			return OutcomeSuccess
		}
	}
	return OutcomeIgnored
}

// Webhook dispositions. The endpoint is shared infrastructure: everything
// that is not an internal fault acknowledges with 200, and the disposition
// records why nothing (or something) happened.
const (
	DispositionProcessed        = "processed"
	DispositionIgnoredEventType = "ignored_event_type"
	DispositionUnknownPurchase  = "unknown_purchase"
	DispositionIgnoredOutcome   = "ignored_outcome"
)

type WebhookResult struct {
	Disposition string
	Outcome     EventOutcome
	PurchaseID  uint64
}

// HandleWebhookEvent applies one verified provider event to the purchase
// state machine. Only the two recognized purchase kinds are processed; an
// unknown event type, an unknown purchase, or an unclassifiable outcome is a
// benign no-op so that unrelated tenants' traffic never errors the shared
// endpoint. Every mutation on this path is idempotent because delivery is
// at-least-once.
func (s *PurchaseService) HandleWebhookEvent(ctx context.Context, event *webhook.Event) (*WebhookResult, error) {
	meta := event.Data.Metadata

	purchaseKind := metaString(meta, "type")
	if purchaseKind != "bet_purchase" && purchaseKind != "parlay_purchase" {
		return &WebhookResult{Disposition: DispositionIgnoredEventType}, nil
	}

	checkoutID := extractCheckoutID(event)
	listingID, ok := extractListingID(meta)
	if checkoutID == "" || !ok {
		return &WebhookResult{Disposition: DispositionUnknownPurchase}, nil
	}

	purchase, err := s.purchaseRepo.FindByCheckoutID(ctx, checkoutID, listingID)
	if err != nil {
		return nil, fmt.Errorf("find purchase by checkout id: %w", err)
	}
	if purchase == nil {
		// May belong to another consumer or predate this deployment.
		return &WebhookResult{Disposition: DispositionUnknownPurchase}, nil
	}

	outcome := ClassifyOutcome(event.ActionTag(), event.Data.Status)

	log := s.logger.WithFields(logrus.Fields{
		"purchase_id": purchase.ID,
		"checkout_id": purchase.CheckoutID,
		"action":      event.ActionTag(),
	})

	switch outcome {
	case OutcomeSuccess:
		if purchase.Status == entity.PurchaseStatusRefunded {
			// Refunded is terminal; a late success event cannot resurrect it.
			return &WebhookResult{Disposition: DispositionIgnoredOutcome, Outcome: outcome, PurchaseID: purchase.ID}, nil
		}
		planID := metaStringPtr(meta, "planId")
		productID := metaStringPtr(meta, "productId")
		if err := s.settlePurchase(ctx, purchase, planID, productID, "purchase_succeeded"); err != nil {
			return nil, err
		}
		log.Info("purchase settled from webhook")

	case OutcomeRefund:
		eventID := providerEventIDPtr(event)
		if err := s.refundPurchase(ctx, purchase, "purchase_refunded", eventID); err != nil {
			return nil, err
		}
		log.Info("purchase refunded from webhook")

	default:
		return &WebhookResult{Disposition: DispositionIgnoredOutcome, PurchaseID: purchase.ID}, nil
	}

	return &WebhookResult{Disposition: DispositionProcessed, Outcome: outcome, PurchaseID: purchase.ID}, nil
}

// extractCheckoutID tries the three field names the provider uses across
// event subtypes, in priority order.
func extractCheckoutID(event *webhook.Event) string {
	for _, candidate := range []string{
		event.Data.CheckoutID,
		event.Data.CheckoutSessionID,
		event.Data.ID,
	} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func extractListingID(meta map[string]interface{}) (uint64, bool) {
	raw := metaString(meta, "listingId")
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func metaString(meta map[string]interface{}, key string) string {
	if meta == nil {
		return ""
	}
	switch v := meta[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return ""
	}
}

func metaStringPtr(meta map[string]interface{}, key string) *string {
	if value := metaString(meta, key); value != "" {
		return &value
	}
	return nil
}

func providerEventIDPtr(event *webhook.Event) *string {
	if id := strings.TrimSpace(event.Data.ID); id != "" {
		return &id
	}
	return nil
}
