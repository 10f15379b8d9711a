package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/store"
	"commerce-ledger/internal/util"

	"github.com/raulk/clock"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// PointsPolicy configures scan awards
type PointsPolicy struct {
	DefaultPointsPerScan int64
	TopTierPlan          string
	TopTierMultiplier    int64
	// Location decides where a calendar day starts and ends
	Location *time.Location
}

// ScanAward is the result of a successful scan
type ScanAward struct {
	MemberID    int64     `json:"member_id"`
	BusinessID  int64     `json:"business_id"`
	Awarded     int64     `json:"awarded"`
	TotalPoints int64     `json:"total_points"`
	ScanDay     time.Time `json:"scan_day"`
}

// ScanRequest is a member scanning a business's QR code
type ScanRequest struct {
	BusinessID int64 `json:"business_id" binding:"required"`
}

// PointsService awards points for QR scans
type PointsService struct {
	store  PointsStore
	policy PointsPolicy
	clock  clock.Clock
	logger *zap.Logger
}

// NewPointsService creates a new points service
func NewPointsService(store PointsStore, policy PointsPolicy, clk clock.Clock) *PointsService {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	if policy.TopTierMultiplier < 1 {
		policy.TopTierMultiplier = 1
	}
	return &PointsService{
		store:  store,
		policy: policy,
		clock:  clk,
		logger: util.GetLogger(),
	}
}

// AwardScan grants the member points for scanning a business, at most once
// per business per calendar day
func (s *PointsService) AwardScan(ctx context.Context, memberID, businessID int64) (*ScanAward, error) {
	ctx, span := util.StartSpan(ctx, "PointsService.AwardScan")
	defer span.End()

	member, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, notFound(err, memberID)
	}
	business, err := s.store.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, notFound(err, businessID)
	}
	if business.OwnerMemberID == memberID {
		util.ScansRejectedTotal.WithLabelValues("self_scan").Inc()
		return nil, &AuthorizationError{ActorID: memberID, Action: "scan their own business"}
	}

	categories, err := s.store.GetBusinessCategories(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to read business categories: %w", err)
	}
	configs, err := s.store.GetCategoryPoints(ctx, categories)
	if err != nil {
		return nil, fmt.Errorf("failed to read category points: %w", err)
	}

	award := s.ScanValue(member, configs)
	day := CalendarDay(s.clock.Now(), s.policy.Location)

	scan := &models.QRScan{
		MemberID:      memberID,
		BusinessID:    businessID,
		PointsAwarded: award,
		ScanDay:       day,
	}
	total, err := s.store.RecordScan(ctx, scan)
	if errors.Is(err, store.ErrAlreadyScannedToday) {
		util.ScansRejectedTotal.WithLabelValues("rate_limited").Inc()
		return nil, &RateLimitedError{
			MemberID:   memberID,
			BusinessID: businessID,
			RetryAfter: day.AddDate(0, 0, 1),
		}
	}
	if err != nil {
		return nil, notFound(err, memberID)
	}

	util.PointsAwardedTotal.Add(float64(award))
	s.logger.Info("Scan awarded",
		zap.Int64("member_id", memberID),
		zap.Int64("business_id", businessID),
		zap.Int64("awarded", award),
		zap.Int64("total", total))

	return &ScanAward{
		MemberID:    memberID,
		BusinessID:  businessID,
		Awarded:     award,
		TotalPoints: total,
		ScanDay:     day,
	}, nil
}

// ScanValue is the highest configured points-per-scan among the business's
// categories, or the default when none is configured, multiplied for active
// top-tier subscribers
func (s *PointsService) ScanValue(member *models.Member, configs []models.CategoryPointsConfig) int64 {
	base := s.policy.DefaultPointsPerScan
	if len(configs) > 0 {
		base = lo.Max(lo.Map(configs, func(c models.CategoryPointsConfig, _ int) int64 {
			return c.PointsPerScan
		}))
	}
	if s.isTopTier(member) {
		return base * s.policy.TopTierMultiplier
	}
	return base
}

func (s *PointsService) isTopTier(member *models.Member) bool {
	return member.SubscriptionActive &&
		member.SubscriptionPlan != nil &&
		*member.SubscriptionPlan == s.policy.TopTierPlan
}

// GetMemberPoints returns the member's current point total
func (s *PointsService) GetMemberPoints(ctx context.Context, memberID int64) (*models.Member, error) {
	ctx, span := util.StartSpan(ctx, "PointsService.GetMemberPoints")
	defer span.End()

	member, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, notFound(err, memberID)
	}
	return member, nil
}

// CalendarDay truncates t to midnight of its date in loc
func CalendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
