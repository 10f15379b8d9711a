package service

import (
	"context"
	"fmt"
	"time"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/util"

	"github.com/hashicorp/go-multierror"
	"github.com/raulk/clock"
	"go.uber.org/zap"
)

const sweepBatchSize = 100

// Reconciler surfaces gateway operations whose local commit is missing. It
// flags and alerts; it never refunds, transfers or reverses anything itself.
type Reconciler struct {
	store      OperationStore
	events     EventPublisher
	clock      clock.Clock
	staleAfter time.Duration
	logger     *zap.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(store OperationStore, events EventPublisher, clk clock.Clock, staleAfter time.Duration) *Reconciler {
	return &Reconciler{
		store:      store,
		events:     events,
		clock:      clk,
		staleAfter: staleAfter,
		logger:     util.GetLogger(),
	}
}

// ReportRisk records that op succeeded at the gateway under reference but its
// local commit failed with cause, and returns the error to hand to the caller
func (r *Reconciler) ReportRisk(ctx context.Context, op *models.GatewayOperation, reference string, cause error) *ReconciliationRiskError {
	riskErr := &ReconciliationRiskError{
		OperationID:      op.ID,
		Kind:             op.Kind,
		SellerID:         op.SellerID,
		OrderID:          op.OrderID,
		Amount:           op.Amount,
		GatewayReference: reference,
		Err:              cause,
	}

	reason := cause.Error()
	if err := r.store.MarkGatewayOperation(ctx, op.ID, models.GatewayOpStatusReconciliationRisk, &reference, &reason); err != nil {
		r.logger.Error("Failed to flag gateway operation", zap.Int64("operation_id", op.ID), zap.Error(err))
	}

	r.alert(ctx, op, reference, reason)
	return riskErr
}

// Sweep flags pending operations older than the stale threshold. A pending row
// that old means the process stopped between the gateway call and the local
// commit, so the gateway may have moved money the ledger does not know about.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.Sweep")
	defer span.End()

	cutoff := r.clock.Now().Add(-r.staleAfter)
	ops, err := r.store.ListStalePendingOperations(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale operations: %w", err)
	}

	var result *multierror.Error
	flagged := 0
	for i := range ops {
		op := &ops[i]
		reason := fmt.Sprintf("pending since %s with no local commit", op.CreatedAt.UTC().Format(time.RFC3339))

		ok, err := r.store.FlagOperation(ctx, op.ID, reason)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("operation %d: %w", op.ID, err))
			continue
		}
		if !ok {
			continue
		}

		flagged++
		reference := ""
		if op.GatewayReference != nil {
			reference = *op.GatewayReference
		}
		r.alert(ctx, op, reference, reason)
	}

	if flagged > 0 {
		r.logger.Warn("Reconciliation sweep flagged operations", zap.Int("count", flagged))
	}
	return flagged, result.ErrorOrNil()
}

func (r *Reconciler) alert(ctx context.Context, op *models.GatewayOperation, reference, reason string) {
	util.ReconciliationRiskTotal.WithLabelValues(op.Kind).Inc()

	fields := []zap.Field{
		zap.Int64("operation_id", op.ID),
		zap.String("kind", op.Kind),
		zap.Int64("seller_id", op.SellerID),
		zap.Int64("amount", op.Amount),
		zap.String("idempotency_key", op.IdempotencyKey),
		zap.String("gateway_reference", reference),
		zap.String("reason", reason),
	}
	if op.OrderID != nil {
		fields = append(fields, zap.Int64("order_id", *op.OrderID))
	}
	r.logger.Error("Reconciliation required", fields...)

	event := &models.ReconciliationAlertEvent{
		BaseEvent:        newBaseEvent(models.EventTypeReconciliationAlert, r.clock.Now()),
		OperationID:      op.ID,
		Kind:             op.Kind,
		SellerID:         op.SellerID,
		OrderID:          op.OrderID,
		Amount:           op.Amount,
		GatewayReference: reference,
		Reason:           reason,
	}
	if err := r.events.PublishReconciliationAlert(ctx, event); err != nil {
		r.logger.Error("Failed to publish ReconciliationAlert event", zap.Error(err))
	}
}
