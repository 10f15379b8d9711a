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
	"go.uber.org/zap"
)

// TimeAwayRequest declares an absence window
type TimeAwayRequest struct {
	StartsAt time.Time `json:"starts_at" binding:"required"`
	EndsAt   time.Time `json:"ends_at" binding:"required"`
}

// Validate checks the window
func (r *TimeAwayRequest) Validate() error {
	if r.StartsAt.IsZero() || r.EndsAt.IsZero() {
		return &ValidationError{Field: "starts_at", Message: "both ends of the window are required"}
	}
	if !r.EndsAt.After(r.StartsAt) {
		return &ValidationError{Field: "ends_at", Message: "must be after starts_at"}
	}
	return nil
}

// TimeAwayWindow is a stored window with its derived sales cutoff
type TimeAwayWindow struct {
	SellerID          int64     `json:"seller_id"`
	StartsAt          time.Time `json:"starts_at"`
	EndsAt            time.Time `json:"ends_at"`
	AllowSalesThrough time.Time `json:"allow_sales_through"`
}

// SellerAvailability is the storefront state at a point in time
type SellerAvailability struct {
	SellerID int64           `json:"seller_id"`
	At       time.Time       `json:"at"`
	Away     bool            `json:"away"`
	Sellable bool            `json:"sellable"`
	Window   *TimeAwayWindow `json:"window,omitempty"`
}

// TimeAwayService manages seller absence windows. Nothing is scheduled: the
// storefront state is derived from the window whenever it is read.
type TimeAwayService struct {
	store          TimeAwayStore
	maxSalesWindow time.Duration
	clock          clock.Clock
	logger         *zap.Logger
}

// NewTimeAwayService creates a new time-away service
func NewTimeAwayService(store TimeAwayStore, maxSalesDays int, clk clock.Clock) *TimeAwayService {
	return &TimeAwayService{
		store:          store,
		maxSalesWindow: time.Duration(maxSalesDays) * 24 * time.Hour,
		clock:          clk,
		logger:         util.GetLogger(),
	}
}

// SetTimeAway replaces the seller's window
func (s *TimeAwayService) SetTimeAway(ctx context.Context, sellerID int64, req *TimeAwayRequest) (*TimeAwayWindow, error) {
	ctx, span := util.StartSpan(ctx, "TimeAwayService.SetTimeAway")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	ta := &models.SellerTimeAway{
		SellerID: sellerID,
		StartsAt: req.StartsAt.UTC(),
		EndsAt:   req.EndsAt.UTC(),
	}
	if err := s.store.UpsertTimeAway(ctx, ta); err != nil {
		return nil, fmt.Errorf("failed to store time away: %w", err)
	}

	s.logger.Info("Time away set",
		zap.Int64("seller_id", sellerID),
		zap.Time("starts_at", ta.StartsAt),
		zap.Time("ends_at", ta.EndsAt))
	return s.window(ta), nil
}

// GetTimeAway returns the seller's window
func (s *TimeAwayService) GetTimeAway(ctx context.Context, sellerID int64) (*TimeAwayWindow, error) {
	ctx, span := util.StartSpan(ctx, "TimeAwayService.GetTimeAway")
	defer span.End()

	ta, err := s.store.GetTimeAway(ctx, sellerID)
	if err != nil {
		return nil, notFound(err, sellerID)
	}
	return s.window(ta), nil
}

// ClearTimeAway removes the seller's window
func (s *TimeAwayService) ClearTimeAway(ctx context.Context, sellerID int64) error {
	ctx, span := util.StartSpan(ctx, "TimeAwayService.ClearTimeAway")
	defer span.End()

	if err := s.store.DeleteTimeAway(ctx, sellerID); err != nil {
		return notFound(err, sellerID)
	}
	return nil
}

// Availability reports whether the seller is away now and whether their
// items may still be sold
func (s *TimeAwayService) Availability(ctx context.Context, sellerID int64) (*SellerAvailability, error) {
	ctx, span := util.StartSpan(ctx, "TimeAwayService.Availability")
	defer span.End()

	now := s.clock.Now()
	avail := &SellerAvailability{SellerID: sellerID, At: now, Sellable: true}

	ta, err := s.store.GetTimeAway(ctx, sellerID)
	if errors.Is(err, store.ErrTimeAwayNotFound) {
		return avail, nil
	}
	if err != nil {
		return nil, err
	}

	avail.Window = s.window(ta)
	avail.Away, avail.Sellable = avail.Window.StateAt(now)
	return avail, nil
}

// StateAt reports whether the seller is away at t and whether sales are allowed.
// Sales continue during an absence up to and including AllowSalesThrough.
func (w *TimeAwayWindow) StateAt(t time.Time) (away, sellable bool) {
	away = !t.Before(w.StartsAt) && t.Before(w.EndsAt)
	if !away {
		return false, true
	}
	return true, !t.After(w.AllowSalesThrough)
}

func (s *TimeAwayService) window(ta *models.SellerTimeAway) *TimeAwayWindow {
	through := ta.StartsAt.Add(s.maxSalesWindow)
	if ta.EndsAt.Before(through) {
		through = ta.EndsAt
	}
	return &TimeAwayWindow{
		SellerID:          ta.SellerID,
		StartsAt:          ta.StartsAt,
		EndsAt:            ta.EndsAt,
		AllowSalesThrough: through,
	}
}
