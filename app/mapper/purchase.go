package mapper

import (
	"time"

	"github.com/danielnogueira8/whopBetTracker-sub000/app/entity"
	"github.com/danielnogueira8/whopBetTracker-sub000/app/types"
)

func PurchaseToResponse(item *entity.Purchase) *types.Purchase {
	if item == nil {
		return nil
	}

	return &types.Purchase{
		ID:           item.ID,
		CheckoutID:   item.CheckoutID,
		ResourceType: item.ResourceType,
		ResourceID:   item.ResourceID,
		BuyerID:      item.BuyerID,
		AmountCents:  item.AmountCents,
		Currency:     item.Currency,
		PlanID:       derefString(item.PlanID),
		Status:       item.Status,
		CreatedAt:    item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
