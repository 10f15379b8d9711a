package service

import (
	"context"
	"fmt"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/util"

	"go.uber.org/zap"
)

// badgeThresholds are the delivered-order counts each tier needs, highest first
var badgeThresholds = []struct {
	tier      string
	delivered int
}{
	{models.BadgeTierGold, 50},
	{models.BadgeTierSilver, 10},
	{models.BadgeTierBronze, 1},
}

// TierForDeliveredCount maps a seller's delivered-order count to a badge tier
func TierForDeliveredCount(delivered int) string {
	for _, t := range badgeThresholds {
		if delivered >= t.delivered {
			return t.tier
		}
	}
	return models.BadgeTierNone
}

// BadgeService recomputes seller fulfillment tiers
type BadgeService struct {
	store  BadgeStore
	logger *zap.Logger
}

// NewBadgeService creates a new badge service
func NewBadgeService(store BadgeStore) *BadgeService {
	return &BadgeService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// EvaluateSeller recomputes and stores the seller's tier
func (s *BadgeService) EvaluateSeller(ctx context.Context, sellerID int64) (*models.SellerBadge, error) {
	ctx, span := util.StartSpan(ctx, "BadgeService.EvaluateSeller")
	defer span.End()

	delivered, err := s.store.CountDeliveredOrders(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count delivered orders: %w", err)
	}

	previous, err := s.store.GetSellerBadge(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	badge := &models.SellerBadge{
		SellerID:       sellerID,
		Tier:           TierForDeliveredCount(delivered),
		DeliveredCount: delivered,
	}
	if err := s.store.UpsertSellerBadge(ctx, badge); err != nil {
		return nil, fmt.Errorf("failed to store badge: %w", err)
	}

	if badge.Tier != previous.Tier {
		util.BadgeChangesTotal.WithLabelValues(badge.Tier).Inc()
		s.logger.Info("Seller tier changed",
			zap.Int64("seller_id", sellerID),
			zap.String("from", previous.Tier),
			zap.String("to", badge.Tier),
			zap.Int("delivered", delivered))
	}
	return badge, nil
}

// GetSellerBadge returns the seller's last evaluated tier
func (s *BadgeService) GetSellerBadge(ctx context.Context, sellerID int64) (*models.SellerBadge, error) {
	return s.store.GetSellerBadge(ctx, sellerID)
}
