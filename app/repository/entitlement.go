package repository

import (
	"context"
	"time"
)

// EntitlementRepository owns the per-resource access grants. Both mutations
// are idempotent at the row level: InsertIfAbsent relies on the unique key
// over (resource_type, resource_id, buyer_id), Delete is a no-op when no
// grant exists. Webhook redelivery and the polling fallback may both issue
// the same mutation; neither ordering nor repetition may change the outcome.
type EntitlementRepository struct {
	db DBTX
}

func NewEntitlementRepository(db DBTX) *EntitlementRepository {
	return &EntitlementRepository{db: db}
}

func (r *EntitlementRepository) InsertIfAbsent(ctx context.Context, resourceType, resourceID, buyerID, provenance string) error {
	query := `
		INSERT IGNORE INTO entitlement_grants (
			resource_type, resource_id, buyer_id, provenance, created_at
		)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, resourceType, resourceID, buyerID, provenance, time.Now().UTC())
	return err
}

func (r *EntitlementRepository) Delete(ctx context.Context, resourceType, resourceID, buyerID string) error {
	query := `
		DELETE FROM entitlement_grants
		WHERE resource_type = ? AND resource_id = ? AND buyer_id = ?
	`

	_, err := r.db.ExecContext(ctx, query, resourceType, resourceID, buyerID)
	return err
}

func (r *EntitlementRepository) Exists(ctx context.Context, resourceType, resourceID, buyerID string) (bool, error) {
	query := `
		SELECT COUNT(1)
		FROM entitlement_grants
		WHERE resource_type = ? AND resource_id = ? AND buyer_id = ?
	`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, resourceType, resourceID, buyerID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
