package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/redisclient"
	"commerce-ledger/internal/store"
	"commerce-ledger/internal/util"

	"github.com/google/uuid"
	"github.com/raulk/clock"
	"go.uber.org/zap"
)

// RefundResult describes a committed refund
type RefundResult struct {
	OrderID         int64  `json:"order_id"`
	RefundedAmount  int64  `json:"refunded_amount"`
	PlatformFee     int64  `json:"platform_fee"`
	SellerDeduction int64  `json:"seller_deduction"`
	GatewayRefundID string `json:"gateway_refund_id"`
	Balance         int64  `json:"balance"`
}

// RefundProcessor executes seller-initiated refunds of card orders
type RefundProcessor struct {
	store      LedgerStore
	gateway    PaymentGateway
	locker     SellerLocker
	events     EventPublisher
	reconciler *Reconciler
	fees       FeePolicy
	clock      clock.Clock
	logger     *zap.Logger
}

// NewRefundProcessor creates a new refund processor
func NewRefundProcessor(
	store LedgerStore,
	gateway PaymentGateway,
	locker SellerLocker,
	events EventPublisher,
	reconciler *Reconciler,
	fees FeePolicy,
	clk clock.Clock,
) *RefundProcessor {
	return &RefundProcessor{
		store:      store,
		gateway:    gateway,
		locker:     locker,
		events:     events,
		reconciler: reconciler,
		fees:       fees,
		clock:      clk,
		logger:     util.GetLogger(),
	}
}

// Refund returns the full order total to the buyer through the gateway and
// debits the seller's share of it from their balance. The platform keeps its fee.
//
// The gateway is called with no database transaction open. Only after it
// confirms does one transaction mark the order refunded, write the return
// transaction, debit the balance and restore inventory.
func (p *RefundProcessor) Refund(ctx context.Context, orderID, sellerID int64) (*RefundResult, error) {
	ctx, span := util.StartSpan(ctx, "RefundProcessor.Refund")
	defer span.End()

	order, err := p.refundableOrder(ctx, orderID, sellerID)
	if err != nil {
		return nil, err
	}

	release, err := acquireSellerLock(ctx, p.locker, sellerID)
	if err != nil {
		return nil, err
	}
	defer release()

	// another refund of this order may have committed while we waited for the lease
	order, err = p.refundableOrder(ctx, orderID, sellerID)
	if err != nil {
		return nil, err
	}
	if err := ensureNoUnresolvedOperation(ctx, p.store, sellerID); err != nil {
		return nil, err
	}

	fee := p.fees.PlatformFee(order.Total)
	deduction := order.Total - fee

	bal, err := p.store.GetBalance(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	if bal.Balance < deduction {
		util.LedgerRejectionsTotal.WithLabelValues("refund", "insufficient_funds").Inc()
		return nil, &InsufficientFundsError{
			SellerID:  sellerID,
			Balance:   bal.Balance,
			Required:  deduction,
			Shortfall: deduction - bal.Balance,
		}
	}

	op := &models.GatewayOperation{
		Kind:           models.GatewayOpRefund,
		SellerID:       sellerID,
		OrderID:        &order.ID,
		Amount:         order.Total,
		IdempotencyKey: uuid.New().String(),
	}
	if err := journalOperation(ctx, p.store, op); err != nil {
		return nil, err
	}

	// Past this point the caller going away must not split the gateway call
	// from the local commit.
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	refundID, err := p.gateway.Refund(ctx, *order.PaymentReference, order.Total, op.IdempotencyKey)
	util.GatewayLatency.WithLabelValues(models.GatewayOpRefund).Observe(time.Since(start).Seconds())
	if err != nil {
		util.GatewayFailuresTotal.WithLabelValues(models.GatewayOpRefund).Inc()
		util.FailSpan(span, err)
		msg := err.Error()
		if markErr := p.store.MarkGatewayOperation(ctx, op.ID, models.GatewayOpStatusFailed, nil, &msg); markErr != nil {
			p.logger.Error("Failed to mark refund operation failed", zap.Int64("operation_id", op.ID), zap.Error(markErr))
		}
		p.logger.Warn("Gateway refund failed",
			zap.Int64("order_id", orderID),
			zap.Int64("amount", order.Total),
			zap.Error(err))
		return nil, &ExternalGatewayError{Operation: models.GatewayOpRefund, Err: err}
	}

	newBal, err := p.store.ApplyRefund(ctx, store.RefundParams{
		OrderID:          order.ID,
		SellerID:         sellerID,
		SellerDeduction:  deduction,
		OperationID:      op.ID,
		GatewayReference: refundID,
		Description:      fmt.Sprintf("Refund for order #%d (platform fee %d retained)", order.ID, fee),
	})
	if err != nil {
		util.FailSpan(span, err)
		return nil, p.reconciler.ReportRisk(ctx, op, refundID, err)
	}

	util.RefundsTotal.Inc()
	util.LedgerDebitedCents.WithLabelValues(models.TransactionTypeReturn).Add(float64(deduction))
	p.logger.Info("Order refunded",
		zap.Int64("order_id", order.ID),
		zap.Int64("seller_id", sellerID),
		zap.Int64("refunded", order.Total),
		zap.Int64("seller_deduction", deduction),
		zap.Int64("platform_fee", fee),
		zap.String("gateway_refund_id", refundID))

	event := &models.OrderRefundedEvent{
		BaseEvent:       newBaseEvent(models.EventTypeOrderRefunded, p.clock.Now()),
		OrderID:         order.ID,
		SellerID:        sellerID,
		RefundedAmount:  order.Total,
		SellerDeduction: deduction,
		PlatformFee:     fee,
		GatewayRefundID: refundID,
	}
	if err := p.events.PublishOrderRefunded(ctx, event); err != nil {
		p.logger.Error("Failed to publish OrderRefunded event", zap.Error(err))
	}

	return &RefundResult{
		OrderID:         order.ID,
		RefundedAmount:  order.Total,
		PlatformFee:     fee,
		SellerDeduction: deduction,
		GatewayRefundID: refundID,
		Balance:         newBal.Balance,
	}, nil
}

func (p *RefundProcessor) refundableOrder(ctx context.Context, orderID, sellerID int64) (*models.Order, error) {
	order, err := p.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, notFound(err, orderID)
	}
	if order.SellerID != sellerID {
		return nil, &AuthorizationError{ActorID: sellerID, Action: "refund this order"}
	}
	if order.IsCashOrder() {
		return nil, &ValidationError{Field: "order", Message: "cash orders cannot be refunded, cancel the order instead"}
	}
	if !models.CanTransitionOrder(order.Status, models.OrderStatusRefunded) {
		return nil, &OrderStateError{OrderID: orderID, Status: order.Status, Action: "refund"}
	}
	return order, nil
}

// ensureNoUnresolvedOperation refuses to move money while an earlier gateway
// call for the seller is pending or awaiting reconciliation. That call may
// already have succeeded at the gateway.
func ensureNoUnresolvedOperation(ctx context.Context, ops LedgerStore, sellerID int64) error {
	op, err := ops.FindUnresolvedOperation(ctx, sellerID)
	if errors.Is(err, store.ErrOperationNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check gateway journal: %w", err)
	}
	return unresolvedOperationError(sellerID, op.ID, op.Status)
}

func journalOperation(ctx context.Context, ops LedgerStore, op *models.GatewayOperation) error {
	err := ops.CreateGatewayOperation(ctx, op)
	if errors.Is(err, store.ErrOperationInProgress) {
		return unresolvedOperationError(op.SellerID, 0, "busy")
	}
	if err != nil {
		return fmt.Errorf("failed to journal %s: %w", op.Kind, err)
	}
	return nil
}

func unresolvedOperationError(sellerID, operationID int64, status string) *InvalidStateError {
	reason := "an earlier gateway operation has not been reconciled"
	if operationID > 0 {
		reason = fmt.Sprintf("gateway operation %d has not been reconciled", operationID)
	}
	util.LedgerRejectionsTotal.WithLabelValues("gateway_operation", "unresolved").Inc()
	return &InvalidStateError{
		Resource: "seller balance",
		ID:       sellerID,
		Status:   status,
		Reason:   reason,
	}
}

// acquireSellerLock takes the seller's balance lease and returns its release func
func acquireSellerLock(ctx context.Context, locker SellerLocker, sellerID int64) (func(), error) {
	token, err := locker.AcquireSellerLock(ctx, sellerID)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return nil, &InvalidStateError{
			Resource: "seller balance",
			ID:       sellerID,
			Status:   "busy",
			Reason:   "another refund or payout is in progress",
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock seller balance: %w", err)
	}

	return func() {
		if err := locker.ReleaseSellerLock(context.Background(), sellerID, token); err != nil {
			util.GetLogger().Warn("Failed to release seller lock", zap.Int64("seller_id", sellerID), zap.Error(err))
		}
	}, nil
}
