package worker

import (
	"context"
	"time"

	"commerce-ledger/internal/broker"
	"commerce-ledger/internal/models"
	"commerce-ledger/internal/util"

	"github.com/raulk/clock"
	"go.uber.org/zap"
)

// MessageConsumer feeds Kafka messages to a handler until its context ends
type MessageConsumer interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// SellerEvaluator recomputes a seller's tier
type SellerEvaluator interface {
	EvaluateSeller(ctx context.Context, sellerID int64) (*models.SellerBadge, error)
}

// BadgeWorker consumes badge hooks and recomputes seller tiers
type BadgeWorker struct {
	consumer     MessageConsumer
	eventHandler *broker.EventHandler
	badges       SellerEvaluator
	logger       *zap.Logger
}

// NewBadgeWorker creates a new badge worker
func NewBadgeWorker(consumer MessageConsumer, badges SellerEvaluator) *BadgeWorker {
	w := &BadgeWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		badges:       badges,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnBadgeEvaluationRequested(func(ctx context.Context, e *models.BadgeEvaluationRequestedEvent) error {
		return w.evaluate(ctx, e.SellerID, e.Trigger)
	})
	w.eventHandler.OnSalesMilestoneReached(func(ctx context.Context, e *models.SalesMilestoneReachedEvent) error {
		w.logger.Info("Seller reached sales milestone",
			zap.Int64("seller_id", e.SellerID),
			zap.Int("sale_count", e.SaleCount))
		return w.evaluate(ctx, e.SellerID, "sales_milestone")
	})

	return w
}

func (w *BadgeWorker) evaluate(ctx context.Context, sellerID int64, trigger string) error {
	badge, err := w.badges.EvaluateSeller(ctx, sellerID)
	if err != nil {
		return err
	}
	w.logger.Debug("Seller tier evaluated",
		zap.Int64("seller_id", sellerID),
		zap.String("trigger", trigger),
		zap.String("tier", badge.Tier))
	return nil
}

// Start starts the worker
func (w *BadgeWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting badge worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *BadgeWorker) Stop() error {
	w.logger.Info("Stopping badge worker")
	return w.consumer.Close()
}

// Sweeper flags stale gateway operations
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// ReconciliationWorker runs the gateway-operation sweep on an interval
type ReconciliationWorker struct {
	sweeper  Sweeper
	clock    clock.Clock
	interval time.Duration
	logger   *zap.Logger
}

// NewReconciliationWorker creates a new reconciliation worker
func NewReconciliationWorker(sweeper Sweeper, clk clock.Clock, interval time.Duration) *ReconciliationWorker {
	return &ReconciliationWorker{
		sweeper:  sweeper,
		clock:    clk,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Start sweeps once immediately and then on every tick until ctx is canceled
func (w *ReconciliationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting reconciliation worker", zap.Duration("interval", w.interval))

	ticker := w.clock.Ticker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping reconciliation worker")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ReconciliationWorker) sweep(ctx context.Context) {
	flagged, err := w.sweeper.Sweep(ctx)
	if err != nil {
		w.logger.Error("Reconciliation sweep failed", zap.Int("flagged", flagged), zap.Error(err))
	}
}
