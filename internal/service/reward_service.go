package service

import (
	"context"
	"errors"
	"fmt"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/store"
	"commerce-ledger/internal/util"

	"go.uber.org/zap"
)

// RedemptionResponse is the result of a successful redemption
type RedemptionResponse struct {
	Redemption      *models.RewardRedemption `json:"redemption"`
	Reward          *models.Reward           `json:"reward"`
	RemainingPoints int64                    `json:"remaining_points"`
}

// RewardService redeems member points for business rewards
type RewardService struct {
	store  RewardStore
	logger *zap.Logger
}

// NewRewardService creates a new reward service
func NewRewardService(store RewardStore) *RewardService {
	return &RewardService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// RedeemReward spends the member's points on a reward. When the redemption
// uses up the reward's limit the reward is closed in a separate step; the
// limit itself is enforced inside the redemption transaction.
func (s *RewardService) RedeemReward(ctx context.Context, memberID, rewardID int64) (*RedemptionResponse, error) {
	ctx, span := util.StartSpan(ctx, "RewardService.RedeemReward")
	defer span.End()

	result, err := s.store.RedeemReward(ctx, memberID, rewardID)
	if err != nil {
		return nil, s.redemptionError(ctx, memberID, rewardID, err)
	}

	util.RewardsRedeemedTotal.Inc()
	s.logger.Info("Reward redeemed",
		zap.Int64("member_id", memberID),
		zap.Int64("reward_id", rewardID),
		zap.Int64("points_spent", result.Redemption.PointsSpent),
		zap.Int64("remaining", result.RemainingPoints))

	reward := result.Reward
	if reward.TimesRedeemed >= reward.RedemptionLimit {
		reward.Status = s.closeRedeemedOut(ctx, reward)
	}

	return &RedemptionResponse{
		Redemption:      result.Redemption,
		Reward:          reward,
		RemainingPoints: result.RemainingPoints,
	}, nil
}

func (s *RewardService) redemptionError(ctx context.Context, memberID, rewardID int64, err error) error {
	var shortfall *store.ShortfallError
	switch {
	case errors.As(err, &shortfall):
		util.RewardRedemptionsRejectedTotal.WithLabelValues("insufficient_points").Inc()
		return &InsufficientPointsError{
			MemberID:  memberID,
			Points:    shortfall.Have,
			Required:  shortfall.Need,
			Shortfall: shortfall.Shortfall(),
		}
	case errors.Is(err, store.ErrRewardUnavailable):
		util.RewardRedemptionsRejectedTotal.WithLabelValues("unavailable").Inc()
		status := models.RewardStatusRedeemedOut
		if reward, getErr := s.store.GetReward(ctx, rewardID); getErr == nil {
			status = reward.Status
			// an earlier close may have failed after the last redemption
			if reward.Status == models.RewardStatusActive && reward.TimesRedeemed >= reward.RedemptionLimit {
				status = s.closeRedeemedOut(ctx, reward)
			}
		}
		return &InvalidStateError{Resource: "reward", ID: rewardID, Status: status, Reason: "reward is no longer active"}
	case errors.Is(err, store.ErrRewardNotFound):
		return notFound(err, rewardID)
	case errors.Is(err, store.ErrMemberNotFound):
		return notFound(err, memberID)
	}
	return fmt.Errorf("failed to redeem reward: %w", err)
}

// closeRedeemedOut flips a reward whose limit is used up to redeemed_out and
// returns the status it ends up with
func (s *RewardService) closeRedeemedOut(ctx context.Context, reward *models.Reward) string {
	closed, err := s.store.MarkRewardRedeemedOut(ctx, reward.ID)
	if err != nil {
		s.logger.Error("Failed to close redeemed-out reward", zap.Int64("reward_id", reward.ID), zap.Error(err))
		return reward.Status
	}
	if closed {
		return models.RewardStatusRedeemedOut
	}
	return reward.Status
}

// ListActiveRewards lists the rewards a business currently offers
func (s *RewardService) ListActiveRewards(ctx context.Context, businessID int64) ([]models.Reward, error) {
	ctx, span := util.StartSpan(ctx, "RewardService.ListActiveRewards")
	defer span.End()

	return s.store.ListActiveRewards(ctx, businessID)
}
