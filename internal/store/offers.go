package store

import (
	"context"
	"fmt"
	"time"

	"commerce-ledger/internal/models"
)

// CreateOffer inserts a pending offer
func (s *Store) CreateOffer(ctx context.Context, offer *models.ResaleOffer) error {
	offer.Status = models.OfferStatusPending
	return s.db.QueryRowxContext(ctx, `
		INSERT INTO resale_offers (buyer_id, item_id, seller_id, amount, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		offer.BuyerID, offer.ItemID, offer.SellerID, offer.Amount, offer.Status).
		Scan(&offer.ID, &offer.CreatedAt, &offer.UpdatedAt)
}

// GetOffer retrieves an offer by ID
func (s *Store) GetOffer(ctx context.Context, id int64) (*models.ResaleOffer, error) {
	var offer models.ResaleOffer
	err := s.db.GetContext(ctx, &offer, "SELECT * FROM resale_offers WHERE id = $1", id)
	if isNoRows(err) {
		return nil, ErrOfferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get offer: %w", err)
	}
	return &offer, nil
}

// ListOffersForItem lists all offers made on an item, newest first
func (s *Store) ListOffersForItem(ctx context.Context, itemID int64) ([]models.ResaleOffer, error) {
	offers := []models.ResaleOffer{}
	err := s.db.SelectContext(ctx, &offers,
		"SELECT * FROM resale_offers WHERE item_id = $1 ORDER BY created_at DESC, id DESC", itemID)
	return offers, err
}

// ApplySellerResponse records the seller's answer to a pending offer. Accepting
// agrees on the buyer's amount. ErrStaleState means the offer was no longer pending.
func (s *Store) ApplySellerResponse(ctx context.Context, id int64, status string, message *string, counter *int64, at time.Time) (*models.ResaleOffer, error) {
	var offer models.ResaleOffer
	err := s.db.GetContext(ctx, &offer, `
		UPDATE resale_offers
		SET status = $1::text,
		    seller_response = $2,
		    counter_amount = $3,
		    agreed_amount = CASE WHEN $1::text = 'accepted' THEN amount END,
		    responded_at = $4,
		    updated_at = NOW()
		WHERE id = $5 AND status = $6
		RETURNING *`,
		status, message, counter, at, id, models.OfferStatusPending)
	if isNoRows(err) {
		return nil, ErrStaleState
	}
	if err != nil {
		return nil, fmt.Errorf("apply seller response: %w", err)
	}
	return &offer, nil
}

// ApplyBuyerResponse records the buyer's answer to a countered offer. The
// counter amount only lives while the offer is countered; accepting moves it
// to agreed_amount.
func (s *Store) ApplyBuyerResponse(ctx context.Context, id int64, status string, at time.Time) (*models.ResaleOffer, error) {
	var offer models.ResaleOffer
	err := s.db.GetContext(ctx, &offer, `
		UPDATE resale_offers
		SET status = $1::text,
		    agreed_amount = CASE WHEN $1::text = 'accepted' THEN counter_amount END,
		    counter_amount = NULL,
		    buyer_responded_at = $2,
		    updated_at = NOW()
		WHERE id = $3 AND status = $4
		RETURNING *`,
		status, at, id, models.OfferStatusCountered)
	if isNoRows(err) {
		return nil, ErrStaleState
	}
	if err != nil {
		return nil, fmt.Errorf("apply buyer response: %w", err)
	}
	return &offer, nil
}
