package service

import (
	"context"
	"errors"
	"testing"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRewardStore struct {
	points   map[int64]int64
	rewards  map[int64]*models.Reward
	closed   []int64
	closeErr error
}

func (s *fakeRewardStore) GetReward(_ context.Context, id int64) (*models.Reward, error) {
	r, ok := s.rewards[id]
	if !ok {
		return nil, store.ErrRewardNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeRewardStore) ListActiveRewards(_ context.Context, businessID int64) ([]models.Reward, error) {
	var out []models.Reward
	for _, r := range s.rewards {
		if r.BusinessID == businessID && r.Status == models.RewardStatusActive {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeRewardStore) RedeemReward(_ context.Context, memberID, rewardID int64) (*store.RedemptionResult, error) {
	r, ok := s.rewards[rewardID]
	if !ok {
		return nil, store.ErrRewardNotFound
	}
	if r.Status != models.RewardStatusActive || r.TimesRedeemed >= r.RedemptionLimit {
		return nil, store.ErrRewardUnavailable
	}
	have := s.points[memberID]
	if have < r.PointsRequired {
		return nil, &store.ShortfallError{Resource: "points", Have: have, Need: r.PointsRequired}
	}
	s.points[memberID] = have - r.PointsRequired
	r.TimesRedeemed++
	cp := *r
	return &store.RedemptionResult{
		Redemption:      &models.RewardRedemption{MemberID: memberID, RewardID: rewardID, PointsSpent: r.PointsRequired},
		Reward:          &cp,
		RemainingPoints: s.points[memberID],
	}, nil
}

func (s *fakeRewardStore) MarkRewardRedeemedOut(_ context.Context, rewardID int64) (bool, error) {
	if s.closeErr != nil {
		return false, s.closeErr
	}
	r := s.rewards[rewardID]
	if r.Status != models.RewardStatusActive {
		return false, nil
	}
	r.Status = models.RewardStatusRedeemedOut
	s.closed = append(s.closed, rewardID)
	return true, nil
}

func TestRedeemLastReward(t *testing.T) {
	st := &fakeRewardStore{
		points: map[int64]int64{1: 120, 2: 500},
		rewards: map[int64]*models.Reward{
			3: {ID: 3, BusinessID: 5, PointsRequired: 100, RedemptionLimit: 1, Status: models.RewardStatusActive},
		},
	}
	svc := NewRewardService(st)

	result, err := svc.RedeemReward(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(20), result.RemainingPoints)
	assert.Equal(t, models.RewardStatusRedeemedOut, result.Reward.Status)
	assert.Equal(t, []int64{3}, st.closed)

	_, err = svc.RedeemReward(context.Background(), 2, 3)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, int64(500), st.points[2])
}

func TestRedeemWithTooFewPoints(t *testing.T) {
	st := &fakeRewardStore{
		points: map[int64]int64{1: 70},
		rewards: map[int64]*models.Reward{
			3: {ID: 3, PointsRequired: 100, RedemptionLimit: 10, Status: models.RewardStatusActive},
		},
	}
	svc := NewRewardService(st)

	_, err := svc.RedeemReward(context.Background(), 1, 3)

	var pointsErr *InsufficientPointsError
	require.ErrorAs(t, err, &pointsErr)
	assert.Equal(t, int64(30), pointsErr.Shortfall)
	assert.Equal(t, int64(70), st.points[1])
	assert.Zero(t, st.rewards[3].TimesRedeemed)
}

func TestRedeemKeepsRewardOpenBelowLimit(t *testing.T) {
	st := &fakeRewardStore{
		points: map[int64]int64{1: 300},
		rewards: map[int64]*models.Reward{
			3: {ID: 3, PointsRequired: 100, RedemptionLimit: 5, Status: models.RewardStatusActive},
		},
	}
	svc := NewRewardService(st)

	result, err := svc.RedeemReward(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.Equal(t, models.RewardStatusActive, result.Reward.Status)
	assert.Empty(t, st.closed)

	_, err = svc.RedeemReward(context.Background(), 1, 404)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestRedeemedOutRewardClosedOnNextAttempt(t *testing.T) {
	st := &fakeRewardStore{
		points: map[int64]int64{1: 120, 2: 500},
		rewards: map[int64]*models.Reward{
			3: {ID: 3, BusinessID: 5, PointsRequired: 100, RedemptionLimit: 1, Status: models.RewardStatusActive},
		},
		closeErr: errors.New("connection reset"),
	}
	svc := NewRewardService(st)

	result, err := svc.RedeemReward(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.Equal(t, models.RewardStatusActive, result.Reward.Status)
	assert.Empty(t, st.closed)

	st.closeErr = nil
	_, err = svc.RedeemReward(context.Background(), 2, 3)

	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, models.RewardStatusRedeemedOut, stateErr.Status)
	assert.Equal(t, []int64{3}, st.closed)
	assert.Equal(t, models.RewardStatusRedeemedOut, st.rewards[3].Status)
	assert.Equal(t, int64(500), st.points[2])
}
