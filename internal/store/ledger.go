package store

import (
	"context"
	"fmt"

	"commerce-ledger/internal/models"

	"github.com/jmoiron/sqlx"
)

// ShortfallError reports a balance or points precondition that failed under lock
type ShortfallError struct {
	Resource string
	Have     int64
	Need     int64
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("insufficient %s: have=%d need=%d", e.Resource, e.Have, e.Need)
}

// Shortfall is the amount missing to satisfy the precondition
func (e *ShortfallError) Shortfall() int64 {
	return e.Need - e.Have
}

// SaleCreditResult describes a sale credit applied to a seller balance
type SaleCreditResult struct {
	Credited  bool
	Amount    int64
	SaleCount int
	Balance   int64
}

// RefundParams describes the local half of a refund that the gateway already confirmed
type RefundParams struct {
	OrderID          int64
	SellerID         int64
	SellerDeduction  int64
	OperationID      int64
	GatewayReference string
	Description      string
}

// PayoutParams describes the local half of a transfer the gateway already confirmed
type PayoutParams struct {
	SellerID         int64
	Amount           int64
	OperationID      int64
	GatewayReference string
	Description      string
}

// LedgerAudit compares the stored balance with the ledger it must be derived from
type LedgerAudit struct {
	SellerID         int64 `db:"seller_id" json:"seller_id"`
	Balance          int64 `db:"balance" json:"balance"`
	LifetimeEarned   int64 `db:"lifetime_earned" json:"lifetime_earned"`
	LifetimePaidOut  int64 `db:"lifetime_paid_out" json:"lifetime_paid_out"`
	LifetimeRefunded int64 `db:"lifetime_refunded" json:"lifetime_refunded"`
	TransactionSum   int64 `db:"transaction_sum" json:"transaction_sum"`
	ReturnSum        int64 `db:"return_sum" json:"return_sum"`
	TransactionCount int   `db:"transaction_count" json:"transaction_count"`
}

// Consistent reports whether both balance identities hold
func (a *LedgerAudit) Consistent() bool {
	return a.Balance == a.TransactionSum &&
		a.Balance == a.LifetimeEarned-a.LifetimePaidOut-a.ReturnSum
}

// GetBalance returns the seller's balance, or a zero balance if the seller has
// never been credited
func (s *Store) GetBalance(ctx context.Context, sellerID int64) (*models.SellerBalance, error) {
	var bal models.SellerBalance
	err := s.db.GetContext(ctx, &bal, "SELECT * FROM seller_balances WHERE seller_id = $1", sellerID)
	if isNoRows(err) {
		return &models.SellerBalance{SellerID: sellerID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return &bal, nil
}

// CreditSale credits the seller for a card order once; repeated calls for the
// same order are no-ops reporting Credited=false
func (s *Store) CreditSale(ctx context.Context, order *models.Order, amount int64) (*SaleCreditResult, error) {
	var result *SaleCreditResult
	err := s.WithRetry(ctx, DefaultTxOptions(), func(tx *sqlx.Tx) error {
		var err error
		result, err = creditSaleTx(ctx, tx, order, amount)
		return err
	})
	return result, err
}

func creditSaleTx(ctx context.Context, tx *sqlx.Tx, order *models.Order, amount int64) (*SaleCreditResult, error) {
	var txIDs []int64
	err := tx.SelectContext(ctx, &txIDs, `
		INSERT INTO ledger_transactions (seller_id, type, amount, order_id, description)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id) WHERE type = 'sale' DO NOTHING
		RETURNING id`,
		order.SellerID, models.TransactionTypeSale, amount, order.ID,
		fmt.Sprintf("Sale for order #%d", order.ID))
	if err != nil {
		return nil, fmt.Errorf("insert sale transaction: %w", err)
	}
	if len(txIDs) == 0 {
		return &SaleCreditResult{Credited: false}, nil
	}

	result := &SaleCreditResult{Credited: true, Amount: amount}
	err = tx.GetContext(ctx, &result.Balance, `
		INSERT INTO seller_balances (seller_id, balance, lifetime_earned)
		VALUES ($1, $2, $2)
		ON CONFLICT (seller_id) DO UPDATE
		SET balance = seller_balances.balance + EXCLUDED.balance,
		    lifetime_earned = seller_balances.lifetime_earned + EXCLUDED.lifetime_earned,
		    updated_at = NOW()
		RETURNING balance`,
		order.SellerID, amount)
	if err != nil {
		return nil, fmt.Errorf("credit seller balance: %w", err)
	}

	err = tx.GetContext(ctx, &result.SaleCount,
		"SELECT COUNT(*) FROM ledger_transactions WHERE seller_id = $1 AND type = $2",
		order.SellerID, models.TransactionTypeSale)
	if err != nil {
		return nil, fmt.Errorf("count sales: %w", err)
	}

	return result, nil
}

// lockBalanceTx ensures the balance row exists and locks it for the rest of the transaction
func lockBalanceTx(ctx context.Context, tx *sqlx.Tx, sellerID int64) (*models.SellerBalance, error) {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO seller_balances (seller_id) VALUES ($1) ON CONFLICT (seller_id) DO NOTHING", sellerID)
	if err != nil {
		return nil, fmt.Errorf("ensure balance row: %w", err)
	}

	var bal models.SellerBalance
	err = tx.GetContext(ctx, &bal,
		"SELECT * FROM seller_balances WHERE seller_id = $1 FOR UPDATE", sellerID)
	if err != nil {
		return nil, fmt.Errorf("lock balance: %w", err)
	}
	return &bal, nil
}

// ApplyRefund commits a gateway-confirmed refund: the order becomes refunded, a
// return transaction debits the seller, inventory is restored and the gateway
// operation is marked committed. Funds are re-checked under the row lock.
func (s *Store) ApplyRefund(ctx context.Context, p RefundParams) (*models.SellerBalance, error) {
	var bal *models.SellerBalance

	err := s.WithRetry(ctx, DefaultTxOptions(), func(tx *sqlx.Tx) error {
		var status string
		err := tx.GetContext(ctx, &status, "SELECT status FROM orders WHERE id = $1 FOR UPDATE", p.OrderID)
		if isNoRows(err) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if status != models.OrderStatusPaid {
			return fmt.Errorf("%w: order %d is %s", ErrStaleState, p.OrderID, status)
		}

		bal, err = lockBalanceTx(ctx, tx, p.SellerID)
		if err != nil {
			return err
		}
		if bal.Balance < p.SellerDeduction {
			return &ShortfallError{Resource: "balance", Have: bal.Balance, Need: p.SellerDeduction}
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
			models.OrderStatusRefunded, p.OrderID)
		if err != nil {
			return fmt.Errorf("mark order refunded: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_transactions (seller_id, type, amount, order_id, transfer_reference, description)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			p.SellerID, models.TransactionTypeReturn, -p.SellerDeduction, p.OrderID, p.GatewayReference, p.Description)
		if err != nil {
			return fmt.Errorf("insert return transaction: %w", err)
		}

		err = tx.GetContext(ctx, bal, `
			UPDATE seller_balances
			SET balance = balance - $1, lifetime_refunded = lifetime_refunded + $1, updated_at = NOW()
			WHERE seller_id = $2
			RETURNING *`,
			p.SellerDeduction, p.SellerID)
		if err != nil {
			return fmt.Errorf("debit seller balance: %w", err)
		}

		items, err := getOrderItems(ctx, tx, p.OrderID)
		if err != nil {
			return err
		}
		if err := restoreInventoryTx(ctx, tx, items); err != nil {
			return err
		}

		return markGatewayOperationTx(ctx, tx, p.OperationID, models.GatewayOpStatusCommitted, &p.GatewayReference, nil)
	})
	if err != nil {
		return nil, err
	}

	return bal, nil
}

// ApplyPayout commits a gateway-confirmed transfer of the seller's balance
func (s *Store) ApplyPayout(ctx context.Context, p PayoutParams) (*models.SellerBalance, error) {
	var bal *models.SellerBalance

	err := s.WithRetry(ctx, DefaultTxOptions(), func(tx *sqlx.Tx) error {
		var err error
		bal, err = lockBalanceTx(ctx, tx, p.SellerID)
		if err != nil {
			return err
		}
		if bal.Balance < p.Amount {
			return &ShortfallError{Resource: "balance", Have: bal.Balance, Need: p.Amount}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_transactions (seller_id, type, amount, transfer_reference, description)
			VALUES ($1, $2, $3, $4, $5)`,
			p.SellerID, models.TransactionTypePayout, -p.Amount, p.GatewayReference, p.Description)
		if err != nil {
			return fmt.Errorf("insert payout transaction: %w", err)
		}

		err = tx.GetContext(ctx, bal, `
			UPDATE seller_balances
			SET balance = balance - $1, lifetime_paid_out = lifetime_paid_out + $1, updated_at = NOW()
			WHERE seller_id = $2
			RETURNING *`,
			p.Amount, p.SellerID)
		if err != nil {
			return fmt.Errorf("debit seller balance: %w", err)
		}

		return markGatewayOperationTx(ctx, tx, p.OperationID, models.GatewayOpStatusCommitted, &p.GatewayReference, nil)
	})
	if err != nil {
		return nil, err
	}

	return bal, nil
}

// ListTransactions returns a seller's ledger newest first using keyset pagination
func (s *Store) ListTransactions(ctx context.Context, sellerID int64, cursor string, limit int) (*CursorPage, error) {
	c, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	txs := []models.LedgerTransaction{}
	err = s.db.SelectContext(ctx, &txs, `
		SELECT * FROM ledger_transactions
		WHERE seller_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`,
		sellerID, c.CreatedAt, c.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	hasMore := len(txs) > limit
	if hasMore {
		txs = txs[:limit]
	}

	page := &CursorPage{Items: txs, HasMore: hasMore}
	if hasMore && len(txs) > 0 {
		last := txs[len(txs)-1]
		page.NextCursor = EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

// AuditSeller recomputes the seller's balance from the ledger
func (s *Store) AuditSeller(ctx context.Context, sellerID int64) (*LedgerAudit, error) {
	audit := &LedgerAudit{}
	err := s.db.GetContext(ctx, audit, `
		SELECT $1::BIGINT AS seller_id,
		       COALESCE(b.balance, 0)           AS balance,
		       COALESCE(b.lifetime_earned, 0)   AS lifetime_earned,
		       COALESCE(b.lifetime_paid_out, 0) AS lifetime_paid_out,
		       COALESCE(b.lifetime_refunded, 0) AS lifetime_refunded,
		       COALESCE(t.total, 0)             AS transaction_sum,
		       COALESCE(t.returns, 0)           AS return_sum,
		       COALESCE(t.n, 0)                 AS transaction_count
		FROM (SELECT 1) AS one
		LEFT JOIN seller_balances b ON b.seller_id = $1
		LEFT JOIN (
			SELECT SUM(amount) AS total,
			       SUM(CASE WHEN type = 'return' THEN -amount ELSE 0 END) AS returns,
			       COUNT(*) AS n
			FROM ledger_transactions
			WHERE seller_id = $1
		) t ON TRUE`,
		sellerID)
	if err != nil {
		return nil, fmt.Errorf("audit seller: %w", err)
	}
	return audit, nil
}

// GetPayoutAccount retrieves the seller's payout destination
func (s *Store) GetPayoutAccount(ctx context.Context, sellerID int64) (*models.PayoutAccount, error) {
	var acct models.PayoutAccount
	err := s.db.GetContext(ctx, &acct, "SELECT * FROM payout_accounts WHERE seller_id = $1", sellerID)
	if isNoRows(err) {
		return nil, ErrPayoutAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payout account: %w", err)
	}
	return &acct, nil
}

// UpsertPayoutAccount stores the seller's payout destination
func (s *Store) UpsertPayoutAccount(ctx context.Context, acct *models.PayoutAccount) error {
	return s.db.GetContext(ctx, &acct.UpdatedAt, `
		INSERT INTO payout_accounts (seller_id, destination, verified)
		VALUES ($1, $2, $3)
		ON CONFLICT (seller_id) DO UPDATE
		SET destination = EXCLUDED.destination, verified = EXCLUDED.verified, updated_at = NOW()
		RETURNING updated_at`,
		acct.SellerID, acct.Destination, acct.Verified)
}
