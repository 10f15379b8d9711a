package store

import (
	"context"
	"fmt"

	"commerce-ledger/internal/models"
)

// UpsertTimeAway replaces the seller's time-away window
func (s *Store) UpsertTimeAway(ctx context.Context, ta *models.SellerTimeAway) error {
	return s.db.QueryRowxContext(ctx, `
		INSERT INTO seller_time_away (seller_id, starts_at, ends_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (seller_id) DO UPDATE
		SET starts_at = EXCLUDED.starts_at, ends_at = EXCLUDED.ends_at, updated_at = NOW()
		RETURNING created_at, updated_at`,
		ta.SellerID, ta.StartsAt, ta.EndsAt).
		Scan(&ta.CreatedAt, &ta.UpdatedAt)
}

// GetTimeAway retrieves the seller's time-away window
func (s *Store) GetTimeAway(ctx context.Context, sellerID int64) (*models.SellerTimeAway, error) {
	var ta models.SellerTimeAway
	err := s.db.GetContext(ctx, &ta, "SELECT * FROM seller_time_away WHERE seller_id = $1", sellerID)
	if isNoRows(err) {
		return nil, ErrTimeAwayNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get time away: %w", err)
	}
	return &ta, nil
}

// DeleteTimeAway removes the seller's time-away window
func (s *Store) DeleteTimeAway(ctx context.Context, sellerID int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM seller_time_away WHERE seller_id = $1", sellerID)
	if err != nil {
		return fmt.Errorf("delete time away: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTimeAwayNotFound
	}
	return nil
}

// GetSellerBadge returns the seller's badge, or the none tier if never evaluated
func (s *Store) GetSellerBadge(ctx context.Context, sellerID int64) (*models.SellerBadge, error) {
	var badge models.SellerBadge
	err := s.db.GetContext(ctx, &badge, "SELECT * FROM seller_badges WHERE seller_id = $1", sellerID)
	if isNoRows(err) {
		return &models.SellerBadge{SellerID: sellerID, Tier: models.BadgeTierNone}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get seller badge: %w", err)
	}
	return &badge, nil
}

// UpsertSellerBadge stores the seller's evaluated tier
func (s *Store) UpsertSellerBadge(ctx context.Context, badge *models.SellerBadge) error {
	return s.db.GetContext(ctx, &badge.EvaluatedAt, `
		INSERT INTO seller_badges (seller_id, tier, delivered_count, evaluated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (seller_id) DO UPDATE
		SET tier = EXCLUDED.tier, delivered_count = EXCLUDED.delivered_count, evaluated_at = NOW()
		RETURNING evaluated_at`,
		badge.SellerID, badge.Tier, badge.DeliveredCount)
}
