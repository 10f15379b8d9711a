package service

import (
	"context"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/store"
	"commerce-ledger/internal/util"

	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// LedgerService exposes the read side of seller balances
type LedgerService struct {
	store  LedgerStore
	logger *zap.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(store LedgerStore) *LedgerService {
	return &LedgerService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// GetBalance returns the seller's balance; sellers never credited have a zero balance
func (s *LedgerService) GetBalance(ctx context.Context, sellerID int64) (*models.SellerBalance, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.GetBalance")
	defer span.End()

	return s.store.GetBalance(ctx, sellerID)
}

// ListTransactions pages through the seller's ledger, newest first
func (s *LedgerService) ListTransactions(ctx context.Context, sellerID int64, cursor string, limit int) (*store.CursorPage, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.ListTransactions")
	defer span.End()

	if _, err := store.DecodeCursor(cursor); err != nil {
		return nil, &ValidationError{Field: "cursor", Message: "malformed cursor"}
	}
	return s.store.ListTransactions(ctx, sellerID, cursor, ClampPageSize(limit))
}

// AuditSeller recomputes the balance from the ledger and logs any drift
func (s *LedgerService) AuditSeller(ctx context.Context, sellerID int64) (*store.LedgerAudit, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.AuditSeller")
	defer span.End()

	audit, err := s.store.AuditSeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if !audit.Consistent() {
		util.LedgerDriftTotal.Inc()
		s.logger.Error("Ledger drift detected",
			zap.Int64("seller_id", sellerID),
			zap.Int64("balance", audit.Balance),
			zap.Int64("transaction_sum", audit.TransactionSum),
			zap.Int64("lifetime_earned", audit.LifetimeEarned),
			zap.Int64("lifetime_paid_out", audit.LifetimePaidOut),
			zap.Int64("return_sum", audit.ReturnSum))
	}
	return audit, nil
}

// ClampPageSize bounds a requested page size
func ClampPageSize(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
