package store

import (
	"context"
	"fmt"
	"time"

	"commerce-ledger/internal/models"

	"github.com/jmoiron/sqlx"
)

const (
	refundPerOrderIndex      = "idx_gateway_operations_refund_per_order"
	unresolvedPerSellerIndex = "idx_gateway_operations_unresolved_per_seller"
)

// CreateGatewayOperation journals a refund or transfer before it is sent to the
// gateway. It returns ErrOperationInProgress when the seller already has a
// pending or unreconciled operation, or the order already has a refund that did
// not fail.
func (s *Store) CreateGatewayOperation(ctx context.Context, op *models.GatewayOperation) error {
	query := `
		INSERT INTO gateway_operations (kind, seller_id, order_id, amount, idempotency_key, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	if op.Status == "" {
		op.Status = models.GatewayOpStatusPending
	}
	err := s.db.QueryRowxContext(ctx, query,
		op.Kind, op.SellerID, op.OrderID, op.Amount, op.IdempotencyKey, op.Status).
		Scan(&op.ID, &op.CreatedAt, &op.UpdatedAt)
	if IsUniqueViolation(err, refundPerOrderIndex) || IsUniqueViolation(err, unresolvedPerSellerIndex) {
		return ErrOperationInProgress
	}
	return err
}

// FindUnresolvedOperation returns the seller's oldest operation that is still
// pending or flagged for reconciliation, or ErrOperationNotFound
func (s *Store) FindUnresolvedOperation(ctx context.Context, sellerID int64) (*models.GatewayOperation, error) {
	var op models.GatewayOperation
	err := s.db.GetContext(ctx, &op, `
		SELECT * FROM gateway_operations
		WHERE seller_id = $1 AND status IN ($2, $3)
		ORDER BY created_at
		LIMIT 1`,
		sellerID, models.GatewayOpStatusPending, models.GatewayOpStatusReconciliationRisk)
	if isNoRows(err) {
		return nil, ErrOperationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find unresolved operation: %w", err)
	}
	return &op, nil
}

// MarkGatewayOperation records the outcome of a journaled gateway call
func (s *Store) MarkGatewayOperation(ctx context.Context, id int64, status string, reference, errMsg *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE gateway_operations
		SET status = $1,
		    gateway_reference = COALESCE($2, gateway_reference),
		    error = COALESCE($3, error),
		    updated_at = NOW()
		WHERE id = $4`,
		status, reference, errMsg, id)
	return err
}

func markGatewayOperationTx(ctx context.Context, tx *sqlx.Tx, id int64, status string, reference, errMsg *string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE gateway_operations
		SET status = $1,
		    gateway_reference = COALESCE($2, gateway_reference),
		    error = COALESCE($3, error),
		    updated_at = NOW()
		WHERE id = $4`,
		status, reference, errMsg, id)
	if err != nil {
		return fmt.Errorf("mark gateway operation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return ErrOperationNotFound
	}
	return nil
}

// ListStalePendingOperations returns journaled operations still pending since before olderThan
func (s *Store) ListStalePendingOperations(ctx context.Context, olderThan time.Time, limit int) ([]models.GatewayOperation, error) {
	ops := []models.GatewayOperation{}
	err := s.db.SelectContext(ctx, &ops, `
		SELECT * FROM gateway_operations
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
		LIMIT $3`,
		models.GatewayOpStatusPending, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale operations: %w", err)
	}
	return ops, nil
}

// FlagOperation moves a still-pending operation to reconciliation_risk.
// It reports false if another process resolved the operation first.
func (s *Store) FlagOperation(ctx context.Context, id int64, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE gateway_operations
		SET status = $1, error = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		models.GatewayOpStatusReconciliationRisk, reason, id, models.GatewayOpStatusPending)
	if err != nil {
		return false, fmt.Errorf("flag operation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return n == 1, nil
}
