package repository

import (
	"context"
	"database/sql"

	"github.com/danielnogueira8/whopBetTracker-sub000/app/entity"
)

const listingColumns = `
	id, resource_type, resource_id, company_id, price_cents, currency, plan_id,
	created_at, updated_at
`

type ListingRepository struct {
	db DBTX
}

func NewListingRepository(db DBTX) *ListingRepository {
	return &ListingRepository{db: db}
}

func (r *ListingRepository) FindByID(ctx context.Context, id uint64) (*entity.Listing, error) {
	query := `
		SELECT ` + listingColumns + `
		FROM listings
		WHERE id = ?
		LIMIT 1
	`

	listing := &entity.Listing{}
	if err := scanListing(r.db.QueryRowContext(ctx, query, id), listing); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return listing, nil
}

func (r *ListingRepository) FindByResource(ctx context.Context, resourceType, resourceID string) (*entity.Listing, error) {
	query := `
		SELECT ` + listingColumns + `
		FROM listings
		WHERE resource_type = ? AND resource_id = ?
		LIMIT 1
	`

	listing := &entity.Listing{}
	if err := scanListing(r.db.QueryRowContext(ctx, query, resourceType, resourceID), listing); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return listing, nil
}

func scanListing(scan rowScanner, listing *entity.Listing) error {
	var planID sql.NullString

	err := scan.Scan(
		&listing.ID,
		&listing.ResourceType,
		&listing.ResourceID,
		&listing.CompanyID,
		&listing.PriceCents,
		&listing.Currency,
		&planID,
		&listing.CreatedAt,
		&listing.UpdatedAt,
	)
	if err != nil {
		return err
	}

	listing.PlanID = stringPtrFromNull(planID)

	return nil
}
