package store

import (
	"context"
	"fmt"
	"time"

	"commerce-ledger/internal/models"

	"github.com/jmoiron/sqlx"
)

// CheckoutItem is one requested line of a checkout
type CheckoutItem struct {
	ItemID   int64
	Quantity int
}

// CheckoutParams describes a completed checkout to be recorded as an order
type CheckoutParams struct {
	CheckoutKey      string
	BuyerID          int64
	SellerID         int64
	ShippingCost     int64
	PaymentReference *string
	PrimaryOrderID   *int64
	Items            []CheckoutItem
	// SaleCredit computes the seller credit for a card order from its total.
	// It is not called for cash orders.
	SaleCredit func(total int64) int64
}

// CheckoutResult is the outcome of CreateCheckout
type CheckoutResult struct {
	Order   *models.Order
	Items   []models.OrderItem
	Created bool
	Credit  *SaleCreditResult
}

// CreateCheckout records an order, its line items, the inventory decrement and,
// for card orders, the seller's sale credit in one transaction. A repeated
// checkout key returns the existing order without side effects.
func (s *Store) CreateCheckout(ctx context.Context, p CheckoutParams) (*CheckoutResult, error) {
	var result *CheckoutResult

	err := s.WithRetry(ctx, DefaultTxOptions(), func(tx *sqlx.Tx) error {
		result = &CheckoutResult{}

		var existing models.Order
		err := tx.GetContext(ctx, &existing, "SELECT * FROM orders WHERE checkout_key = $1", p.CheckoutKey)
		if err == nil {
			items, err := getOrderItems(ctx, tx, existing.ID)
			if err != nil {
				return err
			}
			result.Order = &existing
			result.Items = items
			return nil
		}
		if !isNoRows(err) {
			return fmt.Errorf("check checkout key: %w", err)
		}

		var subtotal int64
		prices := make(map[int64]int64, len(p.Items))
		for _, line := range p.Items {
			var item models.Item
			err := tx.GetContext(ctx, &item,
				"SELECT * FROM items WHERE id = $1 FOR UPDATE", line.ItemID)
			if isNoRows(err) {
				return fmt.Errorf("%w: %d", ErrItemNotFound, line.ItemID)
			}
			if err != nil {
				return fmt.Errorf("lock item %d: %w", line.ItemID, err)
			}
			if item.SellerID != p.SellerID {
				return fmt.Errorf("%w: item %d is not sold by seller %d", ErrItemNotFound, item.ID, p.SellerID)
			}
			if item.Quantity < line.Quantity {
				return fmt.Errorf("%w: item %d available=%d requested=%d",
					ErrInsufficientStock, item.ID, item.Quantity, line.Quantity)
			}

			_, err = tx.ExecContext(ctx,
				"UPDATE items SET quantity = quantity - $1, updated_at = NOW() WHERE id = $2",
				line.Quantity, item.ID)
			if err != nil {
				return fmt.Errorf("decrement item %d: %w", item.ID, err)
			}

			prices[item.ID] = item.Price
			subtotal += item.Price * int64(line.Quantity)
		}

		order := &models.Order{}
		err = tx.GetContext(ctx, order, `
			INSERT INTO orders (buyer_id, seller_id, subtotal, shipping_cost, total, status,
			                    payment_reference, primary_order_id, checkout_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING *`,
			p.BuyerID, p.SellerID, subtotal, p.ShippingCost, subtotal+p.ShippingCost,
			models.OrderStatusPaid, p.PaymentReference, p.PrimaryOrderID, p.CheckoutKey)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		items := make([]models.OrderItem, 0, len(p.Items))
		for _, line := range p.Items {
			item := models.OrderItem{
				OrderID:   order.ID,
				ItemID:    line.ItemID,
				Quantity:  line.Quantity,
				UnitPrice: prices[line.ItemID],
			}
			err := tx.GetContext(ctx, &item.ID, `
				INSERT INTO order_items (order_id, item_id, quantity, unit_price)
				VALUES ($1, $2, $3, $4)
				RETURNING id`,
				item.OrderID, item.ItemID, item.Quantity, item.UnitPrice)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
			items = append(items, item)
		}

		if !order.IsCashOrder() && p.SaleCredit != nil {
			credit, err := creditSaleTx(ctx, tx, order, p.SaleCredit(order.Total))
			if err != nil {
				return err
			}
			result.Credit = credit
		}

		result.Order = order
		result.Items = items
		result.Created = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if isNoRows(err) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &order, nil
}

// GetOrderItems retrieves all items for an order
func (s *Store) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	return getOrderItems(ctx, s.db, orderID)
}

func getOrderItems(ctx context.Context, q sqlx.QueryerContext, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := sqlx.SelectContext(ctx, q, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	return items, nil
}

// ListOrdersBySeller retrieves a seller's orders, newest first
func (s *Store) ListOrdersBySeller(ctx context.Context, sellerID int64, limit, offset int) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE seller_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3",
		sellerID, limit, offset)
	return orders, err
}

// ListOrdersByBuyer retrieves a buyer's orders, newest first
func (s *Store) ListOrdersByBuyer(ctx context.Context, buyerID int64, limit, offset int) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3",
		buyerID, limit, offset)
	return orders, err
}

// TransitionOrder moves an order from one status to another. The update only
// applies if the order is still in the from status; otherwise ErrStaleState.
func (s *Store) TransitionOrder(ctx context.Context, orderID int64, from, to string) (*models.Order, error) {
	var stamp string
	switch to {
	case models.OrderStatusShipped:
		stamp = ", shipped_at = NOW()"
	case models.OrderStatusDelivered:
		stamp = ", delivered_at = NOW()"
	}

	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"UPDATE orders SET status = $1, updated_at = NOW()"+stamp+" WHERE id = $2 AND status = $3 RETURNING *",
		to, orderID, from)
	if isNoRows(err) {
		return nil, ErrStaleState
	}
	if err != nil {
		return nil, fmt.Errorf("transition order: %w", err)
	}
	return &order, nil
}

// RecordRefundRequest stores the buyer's refund request on a paid card order
// that has none yet
func (s *Store) RecordRefundRequest(ctx context.Context, orderID int64, reason string, note *string, at time.Time) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, `
		UPDATE orders
		SET refund_requested_at = $1, refund_reason = $2, refund_note = $3, updated_at = NOW()
		WHERE id = $4
		  AND status = $5
		  AND refund_requested_at IS NULL
		  AND payment_reference IS NOT NULL
		RETURNING *`,
		at, reason, note, orderID, models.OrderStatusPaid)
	if isNoRows(err) {
		return nil, ErrStaleState
	}
	if err != nil {
		return nil, fmt.Errorf("record refund request: %w", err)
	}
	return &order, nil
}

// RelistOrder restores the inventory of a canceled cash order exactly once
func (s *Store) RelistOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	var order models.Order
	var items []models.OrderItem

	err := s.WithRetry(ctx, DefaultTxOptions(), func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &order, `
			UPDATE orders
			SET inventory_restored_at = NOW(), updated_at = NOW()
			WHERE id = $1
			  AND status = $2
			  AND inventory_restored_at IS NULL
			RETURNING *`,
			orderID, models.OrderStatusCanceled)
		if isNoRows(err) {
			return ErrStaleState
		}
		if err != nil {
			return fmt.Errorf("mark inventory restored: %w", err)
		}

		items, err = getOrderItems(ctx, tx, orderID)
		if err != nil {
			return err
		}
		return restoreInventoryTx(ctx, tx, items)
	})
	if err != nil {
		return nil, nil, err
	}

	return &order, items, nil
}

// CountDeliveredOrders counts a seller's delivered orders
func (s *Store) CountDeliveredOrders(ctx context.Context, sellerID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM orders WHERE seller_id = $1 AND status = $2",
		sellerID, models.OrderStatusDelivered)
	return count, err
}

// GetItem retrieves an inventory item
func (s *Store) GetItem(ctx context.Context, id int64) (*models.Item, error) {
	var item models.Item
	err := s.db.GetContext(ctx, &item, "SELECT * FROM items WHERE id = $1", id)
	if isNoRows(err) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &item, nil
}

func restoreInventoryTx(ctx context.Context, tx *sqlx.Tx, items []models.OrderItem) error {
	for _, item := range items {
		_, err := tx.ExecContext(ctx,
			"UPDATE items SET quantity = quantity + $1, updated_at = NOW() WHERE id = $2",
			item.Quantity, item.ItemID)
		if err != nil {
			return fmt.Errorf("restore item %d: %w", item.ItemID, err)
		}
	}
	return nil
}
