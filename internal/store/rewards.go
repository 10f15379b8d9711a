package store

import (
	"context"
	"fmt"

	"commerce-ledger/internal/models"

	"github.com/jmoiron/sqlx"
)

// RedemptionResult is the committed outcome of a reward redemption
type RedemptionResult struct {
	Redemption      *models.RewardRedemption
	Reward          *models.Reward
	RemainingPoints int64
}

// GetReward retrieves a reward by ID
func (s *Store) GetReward(ctx context.Context, id int64) (*models.Reward, error) {
	var reward models.Reward
	err := s.db.GetContext(ctx, &reward, "SELECT * FROM rewards WHERE id = $1", id)
	if isNoRows(err) {
		return nil, ErrRewardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return &reward, nil
}

// ListActiveRewards lists a business's rewards that can still be redeemed
func (s *Store) ListActiveRewards(ctx context.Context, businessID int64) ([]models.Reward, error) {
	rewards := []models.Reward{}
	err := s.db.SelectContext(ctx, &rewards, `
		SELECT * FROM rewards
		WHERE business_id = $1 AND status = $2 AND times_redeemed < redemption_limit
		ORDER BY points_required, id`,
		businessID, models.RewardStatusActive)
	return rewards, err
}

// RedeemReward spends the member's points on a reward. The reward and member
// rows are locked so the limit and the points balance are checked against
// committed values.
func (s *Store) RedeemReward(ctx context.Context, memberID, rewardID int64) (*RedemptionResult, error) {
	var result *RedemptionResult

	err := s.WithRetry(ctx, DefaultTxOptions(), func(tx *sqlx.Tx) error {
		var reward models.Reward
		err := tx.GetContext(ctx, &reward, "SELECT * FROM rewards WHERE id = $1 FOR UPDATE", rewardID)
		if isNoRows(err) {
			return ErrRewardNotFound
		}
		if err != nil {
			return fmt.Errorf("lock reward: %w", err)
		}
		if reward.Status != models.RewardStatusActive || reward.TimesRedeemed >= reward.RedemptionLimit {
			return ErrRewardUnavailable
		}

		var points int64
		err = tx.GetContext(ctx, &points, "SELECT points FROM members WHERE id = $1 FOR UPDATE", memberID)
		if isNoRows(err) {
			return ErrMemberNotFound
		}
		if err != nil {
			return fmt.Errorf("lock member: %w", err)
		}
		if points < reward.PointsRequired {
			return &ShortfallError{Resource: "points", Have: points, Need: reward.PointsRequired}
		}

		var remaining int64
		err = tx.GetContext(ctx, &remaining, `
			UPDATE members SET points = points - $1, updated_at = NOW()
			WHERE id = $2
			RETURNING points`,
			reward.PointsRequired, memberID)
		if err != nil {
			return fmt.Errorf("debit points: %w", err)
		}

		err = tx.GetContext(ctx, &reward, `
			UPDATE rewards SET times_redeemed = times_redeemed + 1, updated_at = NOW()
			WHERE id = $1
			RETURNING *`,
			rewardID)
		if err != nil {
			return fmt.Errorf("increment redemptions: %w", err)
		}

		redemption := &models.RewardRedemption{
			MemberID:    memberID,
			RewardID:    rewardID,
			PointsSpent: reward.PointsRequired,
		}
		err = tx.QueryRowxContext(ctx, `
			INSERT INTO reward_redemptions (member_id, reward_id, points_spent)
			VALUES ($1, $2, $3)
			RETURNING id, created_at`,
			redemption.MemberID, redemption.RewardID, redemption.PointsSpent).
			Scan(&redemption.ID, &redemption.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert redemption: %w", err)
		}

		result = &RedemptionResult{
			Redemption:      redemption,
			Reward:          &reward,
			RemainingPoints: remaining,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// MarkRewardRedeemedOut closes a reward whose limit has been reached. It is a
// no-op returning false for rewards still under their limit or already closed.
func (s *Store) MarkRewardRedeemedOut(ctx context.Context, rewardID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rewards SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND times_redeemed >= redemption_limit`,
		models.RewardStatusRedeemedOut, rewardID, models.RewardStatusActive)
	if err != nil {
		return false, fmt.Errorf("mark reward redeemed out: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
