package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/store"
	"commerce-ledger/internal/util"

	"github.com/google/uuid"
	"github.com/raulk/clock"
	"go.uber.org/zap"
)

// PayoutResult describes a committed payout
type PayoutResult struct {
	SellerID   int64  `json:"seller_id"`
	Amount     int64  `json:"amount"`
	TransferID string `json:"transfer_id"`
	Balance    int64  `json:"balance"`
}

// PayoutAccountRequest registers the seller's destination at the gateway
type PayoutAccountRequest struct {
	Destination string `json:"destination" binding:"required"`
	Verified    bool   `json:"verified"`
}

// PayoutProcessor transfers a seller's available balance to their payout account
type PayoutProcessor struct {
	store      LedgerStore
	gateway    PaymentGateway
	locker     SellerLocker
	events     EventPublisher
	reconciler *Reconciler
	minimum    int64
	clock      clock.Clock
	logger     *zap.Logger
}

// NewPayoutProcessor creates a new payout processor
func NewPayoutProcessor(
	store LedgerStore,
	gateway PaymentGateway,
	locker SellerLocker,
	events EventPublisher,
	reconciler *Reconciler,
	minimumCents int64,
	clk clock.Clock,
) *PayoutProcessor {
	return &PayoutProcessor{
		store:      store,
		gateway:    gateway,
		locker:     locker,
		events:     events,
		reconciler: reconciler,
		minimum:    minimumCents,
		clock:      clk,
		logger:     util.GetLogger(),
	}
}

// Payout transfers the seller's whole available balance. Partial payouts are
// not supported.
func (p *PayoutProcessor) Payout(ctx context.Context, sellerID, actorID int64) (*PayoutResult, error) {
	ctx, span := util.StartSpan(ctx, "PayoutProcessor.Payout")
	defer span.End()

	if sellerID != actorID {
		return nil, &AuthorizationError{ActorID: actorID, Action: "pay out this balance"}
	}

	account, err := p.store.GetPayoutAccount(ctx, sellerID)
	if errors.Is(err, store.ErrPayoutAccountNotFound) {
		return nil, &ValidationError{Field: "payout_account", Message: "no payout destination on file"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payout account: %w", err)
	}
	if !account.Verified {
		return nil, &ValidationError{Field: "payout_account", Message: "payout destination is not verified"}
	}

	release, err := acquireSellerLock(ctx, p.locker, sellerID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := ensureNoUnresolvedOperation(ctx, p.store, sellerID); err != nil {
		return nil, err
	}

	bal, err := p.store.GetBalance(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	if bal.Balance < p.minimum {
		util.LedgerRejectionsTotal.WithLabelValues("payout", "below_minimum").Inc()
		return nil, &InsufficientFundsError{
			SellerID:  sellerID,
			Balance:   bal.Balance,
			Required:  p.minimum,
			Shortfall: p.minimum - bal.Balance,
		}
	}
	amount := bal.Balance

	op := &models.GatewayOperation{
		Kind:           models.GatewayOpTransfer,
		SellerID:       sellerID,
		Amount:         amount,
		IdempotencyKey: uuid.New().String(),
	}
	if err := journalOperation(ctx, p.store, op); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	transferID, err := p.gateway.Transfer(ctx, account.Destination, amount, op.IdempotencyKey)
	util.GatewayLatency.WithLabelValues(models.GatewayOpTransfer).Observe(time.Since(start).Seconds())
	if err != nil {
		util.GatewayFailuresTotal.WithLabelValues(models.GatewayOpTransfer).Inc()
		util.FailSpan(span, err)
		msg := err.Error()
		if markErr := p.store.MarkGatewayOperation(ctx, op.ID, models.GatewayOpStatusFailed, nil, &msg); markErr != nil {
			p.logger.Error("Failed to mark transfer operation failed", zap.Int64("operation_id", op.ID), zap.Error(markErr))
		}
		p.logger.Warn("Gateway transfer failed",
			zap.Int64("seller_id", sellerID),
			zap.Int64("amount", amount),
			zap.Error(err))
		return nil, &ExternalGatewayError{Operation: models.GatewayOpTransfer, Err: err}
	}

	newBal, err := p.store.ApplyPayout(ctx, store.PayoutParams{
		SellerID:         sellerID,
		Amount:           amount,
		OperationID:      op.ID,
		GatewayReference: transferID,
		Description:      "Payout to " + account.Destination,
	})
	if err != nil {
		util.FailSpan(span, err)
		return nil, p.reconciler.ReportRisk(ctx, op, transferID, err)
	}

	util.PayoutsTotal.Inc()
	util.LedgerDebitedCents.WithLabelValues(models.TransactionTypePayout).Add(float64(amount))
	p.logger.Info("Payout completed",
		zap.Int64("seller_id", sellerID),
		zap.Int64("amount", amount),
		zap.String("transfer_id", transferID))

	event := &models.PayoutCompletedEvent{
		BaseEvent:  newBaseEvent(models.EventTypePayoutCompleted, p.clock.Now()),
		SellerID:   sellerID,
		Amount:     amount,
		TransferID: transferID,
	}
	if err := p.events.PublishPayoutCompleted(ctx, event); err != nil {
		p.logger.Error("Failed to publish PayoutCompleted event", zap.Error(err))
	}

	return &PayoutResult{
		SellerID:   sellerID,
		Amount:     amount,
		TransferID: transferID,
		Balance:    newBal.Balance,
	}, nil
}

// RegisterAccount stores the seller's payout destination as reported by the
// gateway's onboarding flow
func (p *PayoutProcessor) RegisterAccount(ctx context.Context, sellerID int64, req *PayoutAccountRequest) (*models.PayoutAccount, error) {
	ctx, span := util.StartSpan(ctx, "PayoutProcessor.RegisterAccount")
	defer span.End()

	destination := strings.TrimSpace(req.Destination)
	if destination == "" {
		return nil, &ValidationError{Field: "destination", Message: "is required"}
	}

	account := &models.PayoutAccount{
		SellerID:    sellerID,
		Destination: destination,
		Verified:    req.Verified,
	}
	if err := p.store.UpsertPayoutAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to store payout account: %w", err)
	}

	p.logger.Info("Payout account registered",
		zap.Int64("seller_id", sellerID),
		zap.Bool("verified", account.Verified))
	return account, nil
}
