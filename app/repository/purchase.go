package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/danielnogueira8/whopBetTracker-sub000/app/entity"
)

var (
	ErrPurchaseNotFound      = errors.New("purchase not found")
	ErrPurchaseAlreadyExists = errors.New("purchase already exists")
)

const purchaseColumns = `
	id, checkout_id, listing_id, resource_type, resource_id, buyer_id,
	amount_cents, currency, company_id, plan_id, product_id, status,
	created_at, updated_at
`

type PurchaseRepository struct {
	db DBTX
}

func NewPurchaseRepository(db DBTX) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

func (r *PurchaseRepository) Create(ctx context.Context, purchase *entity.Purchase) error {
	query := `
		INSERT INTO purchases (
			checkout_id, listing_id, resource_type, resource_id, buyer_id,
			amount_cents, currency, company_id, plan_id, product_id, status,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		purchase.CheckoutID,
		purchase.ListingID,
		purchase.ResourceType,
		purchase.ResourceID,
		purchase.BuyerID,
		purchase.AmountCents,
		purchase.Currency,
		purchase.CompanyID,
		nullableStringValue(purchase.PlanID),
		nullableStringValue(purchase.ProductID),
		purchase.Status,
		purchase.CreatedAt,
		purchase.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPurchaseAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	purchase.ID = uint64(id)
	return nil
}

// UpdateStatus sets the purchase status and persists any seller-side
// identifiers resolved from the provider event. Amount and buyer are
// immutable after creation and are deliberately not part of the update.
func (r *PurchaseRepository) UpdateStatus(ctx context.Context, id uint64, status string, planID, productID *string, now time.Time) error {
	query := `
		UPDATE purchases SET
			status = ?,
			plan_id = COALESCE(?, plan_id),
			product_id = COALESCE(?, product_id),
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		status,
		nullableStringValue(planID),
		nullableStringValue(productID),
		now,
		id,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPurchaseNotFound
	}

	return nil
}

func (r *PurchaseRepository) FindByCheckoutID(ctx context.Context, checkoutID string, listingID uint64) (*entity.Purchase, error) {
	query := `
		SELECT ` + purchaseColumns + `
		FROM purchases
		WHERE checkout_id = ? AND listing_id = ?
		LIMIT 1
	`

	purchase := &entity.Purchase{}
	if err := scanPurchase(r.db.QueryRowContext(ctx, query, checkoutID, listingID), purchase); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return purchase, nil
}

func (r *PurchaseRepository) ListStalePending(ctx context.Context, before time.Time, limit int32) ([]*entity.Purchase, error) {
	query := `
		SELECT ` + purchaseColumns + `
		FROM purchases
		WHERE status = ?
		  AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, entity.PurchaseStatusPending, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]*entity.Purchase, 0)
	for rows.Next() {
		item := &entity.Purchase{}
		if err := scanPurchase(rows, item); err != nil {
			return nil, err
		}
		purchases = append(purchases, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return purchases, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPurchase(scan rowScanner, purchase *entity.Purchase) error {
	var planID sql.NullString
	var productID sql.NullString

	err := scan.Scan(
		&purchase.ID,
		&purchase.CheckoutID,
		&purchase.ListingID,
		&purchase.ResourceType,
		&purchase.ResourceID,
		&purchase.BuyerID,
		&purchase.AmountCents,
		&purchase.Currency,
		&purchase.CompanyID,
		&planID,
		&productID,
		&purchase.Status,
		&purchase.CreatedAt,
		&purchase.UpdatedAt,
	)
	if err != nil {
		return err
	}

	purchase.PlanID = stringPtrFromNull(planID)
	purchase.ProductID = stringPtrFromNull(productID)

	return nil
}
