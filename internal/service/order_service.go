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
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// salesMilestones are the lifetime sale counts that trigger a milestone hook
var salesMilestones = []int{1, 10, 50, 100}

// OrderService owns the order lifecycle
type OrderService struct {
	store  OrderStore
	events EventPublisher
	hooks  *Dispatcher
	fees   FeePolicy
	clock  clock.Clock
	logger *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	store OrderStore,
	events EventPublisher,
	hooks *Dispatcher,
	fees FeePolicy,
	clk clock.Clock,
) *OrderService {
	return &OrderService{
		store:  store,
		events: events,
		hooks:  hooks,
		fees:   fees,
		clock:  clk,
		logger: util.GetLogger(),
	}
}

// CheckoutRequest records a checkout completed by the storefront
type CheckoutRequest struct {
	CheckoutKey      string                `json:"checkout_key" binding:"required"`
	BuyerID          int64                 `json:"buyer_id" binding:"required"`
	SellerID         int64                 `json:"seller_id" binding:"required"`
	ShippingCost     int64                 `json:"shipping_cost" binding:"min=0"`
	PaymentReference *string               `json:"payment_reference,omitempty"`
	PrimaryOrderID   *int64                `json:"primary_order_id,omitempty"`
	Items            []CheckoutItemRequest `json:"items" binding:"required,min=1,dive"`
}

// CheckoutItemRequest is one line of a checkout
type CheckoutItemRequest struct {
	ItemID   int64 `json:"item_id" binding:"required"`
	Quantity int   `json:"quantity" binding:"required,min=1"`
}

// Validate checks the request independently of transport binding
func (r *CheckoutRequest) Validate() error {
	if strings.TrimSpace(r.CheckoutKey) == "" {
		return &ValidationError{Field: "checkout_key", Message: "is required"}
	}
	if r.BuyerID == r.SellerID {
		return &ValidationError{Field: "buyer_id", Message: "buyer and seller must differ"}
	}
	if r.ShippingCost < 0 {
		return &ValidationError{Field: "shipping_cost", Message: "must not be negative"}
	}
	if len(r.Items) == 0 {
		return &ValidationError{Field: "items", Message: "at least one item is required"}
	}
	for _, item := range r.Items {
		if item.Quantity <= 0 {
			return &ValidationError{Field: "items", Message: fmt.Sprintf("item %d has a non-positive quantity", item.ItemID)}
		}
	}
	ids := lo.Map(r.Items, func(item CheckoutItemRequest, _ int) int64 { return item.ItemID })
	if len(lo.Uniq(ids)) != len(ids) {
		return &ValidationError{Field: "items", Message: "each item may appear once"}
	}
	return nil
}

// CheckoutResponse is the recorded order
type CheckoutResponse struct {
	Order    *models.Order      `json:"order"`
	Items    []models.OrderItem `json:"items"`
	Replayed bool               `json:"replayed"`
}

// OrderDetails is an order with its line items
type OrderDetails struct {
	Order *models.Order      `json:"order"`
	Items []models.OrderItem `json:"items"`
}

// RefundRequest is a buyer's request for a refund of a card order
type RefundRequest struct {
	Reason string  `json:"reason" binding:"required"`
	Note   *string `json:"note,omitempty"`
}

// Validate checks the request independently of transport binding
func (r *RefundRequest) Validate() error {
	if strings.TrimSpace(r.Reason) == "" {
		return &ValidationError{Field: "reason", Message: "is required"}
	}
	if len(r.Reason) > 200 {
		return &ValidationError{Field: "reason", Message: "must be at most 200 characters"}
	}
	if r.Note != nil && len(*r.Note) > 2000 {
		return &ValidationError{Field: "note", Message: "must be at most 2000 characters"}
	}
	return nil
}

// RecordCheckout creates the order for a completed checkout, decrements
// inventory and, for card orders, credits the seller. Replaying a checkout key
// returns the order recorded the first time.
func (s *OrderService) RecordCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.RecordCheckout")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	result, err := s.store.CreateCheckout(ctx, store.CheckoutParams{
		CheckoutKey:      req.CheckoutKey,
		BuyerID:          req.BuyerID,
		SellerID:         req.SellerID,
		ShippingCost:     req.ShippingCost,
		PaymentReference: req.PaymentReference,
		PrimaryOrderID:   req.PrimaryOrderID,
		Items: lo.Map(req.Items, func(item CheckoutItemRequest, _ int) store.CheckoutItem {
			return store.CheckoutItem{ItemID: item.ItemID, Quantity: item.Quantity}
		}),
		SaleCredit: s.fees.SellerShare,
	})
	if errors.Is(err, store.ErrItemNotFound) {
		util.OrdersFailedTotal.WithLabelValues("item_not_found").Inc()
		return nil, &ValidationError{Field: "items", Message: err.Error()}
	}
	if errors.Is(err, store.ErrInsufficientStock) {
		util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
		return nil, &ValidationError{Field: "items", Message: err.Error()}
	}
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to record checkout: %w", err)
	}

	if !result.Created {
		s.logger.Info("Duplicate checkout detected",
			zap.String("checkout_key", req.CheckoutKey),
			zap.Int64("order_id", result.Order.ID))
		return &CheckoutResponse{Order: result.Order, Items: result.Items, Replayed: true}, nil
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order recorded",
		zap.Int64("order_id", result.Order.ID),
		zap.Int64("seller_id", result.Order.SellerID),
		zap.Int64("total", result.Order.Total),
		zap.Bool("cash", result.Order.IsCashOrder()))

	if result.Credit != nil && result.Credit.Credited {
		s.afterSaleCredit(ctx, result.Order, result.Credit)
	}

	return &CheckoutResponse{Order: result.Order, Items: result.Items}, nil
}

func (s *OrderService) afterSaleCredit(ctx context.Context, order *models.Order, credit *store.SaleCreditResult) {
	util.LedgerCreditedCents.WithLabelValues(models.TransactionTypeSale).Add(float64(credit.Amount))

	event := &models.SaleRecordedEvent{
		BaseEvent: newBaseEvent(models.EventTypeSaleRecorded, s.clock.Now()),
		OrderID:   order.ID,
		SellerID:  order.SellerID,
		Amount:    credit.Amount,
	}
	if err := s.events.PublishSaleRecorded(ctx, event); err != nil {
		s.logger.Error("Failed to publish SaleRecorded event", zap.Error(err))
	}

	if !lo.Contains(salesMilestones, credit.SaleCount) {
		return
	}
	sellerID, count := order.SellerID, credit.SaleCount
	at := s.clock.Now()
	s.hooks.Go("sales_milestone", func(ctx context.Context) error {
		return s.events.PublishSalesMilestoneReached(ctx, &models.SalesMilestoneReachedEvent{
			BaseEvent: newBaseEvent(models.EventTypeSalesMilestoneReached, at),
			SellerID:  sellerID,
			SaleCount: count,
		})
	})
}

// GetOrder retrieves an order visible to its buyer or seller
func (s *OrderService) GetOrder(ctx context.Context, orderID, actorID int64) (*OrderDetails, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, notFound(err, orderID)
	}
	if actorID != order.BuyerID && actorID != order.SellerID {
		return nil, &AuthorizationError{ActorID: actorID, Action: "view this order"}
	}

	items, err := s.store.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return &OrderDetails{Order: order, Items: items}, nil
}

// ListSellerOrders lists a seller's orders, newest first
func (s *OrderService) ListSellerOrders(ctx context.Context, sellerID int64, limit, offset int) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListSellerOrders")
	defer span.End()

	return s.store.ListOrdersBySeller(ctx, sellerID, limit, offset)
}

// ListBuyerOrders lists a buyer's orders, newest first
func (s *OrderService) ListBuyerOrders(ctx context.Context, buyerID int64, limit, offset int) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListBuyerOrders")
	defer span.End()

	return s.store.ListOrdersByBuyer(ctx, buyerID, limit, offset)
}

// MarkShipped moves a paid order to shipped
func (s *OrderService) MarkShipped(ctx context.Context, orderID, sellerID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.MarkShipped")
	defer span.End()

	order, err := s.transitionAsSeller(ctx, orderID, sellerID, models.OrderStatusShipped, "ship")
	if err != nil {
		return nil, err
	}

	util.OrderTransitionsTotal.WithLabelValues(models.OrderStatusShipped).Inc()
	s.logger.Info("Order shipped", zap.Int64("order_id", order.ID))
	return order, nil
}

// MarkDelivered moves a shipped order to delivered and schedules a seller
// tier evaluation. The evaluation never affects the status change.
func (s *OrderService) MarkDelivered(ctx context.Context, orderID, sellerID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.MarkDelivered")
	defer span.End()

	order, err := s.transitionAsSeller(ctx, orderID, sellerID, models.OrderStatusDelivered, "deliver")
	if err != nil {
		return nil, err
	}

	util.OrderTransitionsTotal.WithLabelValues(models.OrderStatusDelivered).Inc()
	s.logger.Info("Order delivered", zap.Int64("order_id", order.ID))

	now := s.clock.Now()
	event := &models.OrderDeliveredEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderDelivered, now),
		OrderID:   order.ID,
		SellerID:  order.SellerID,
		BuyerID:   order.BuyerID,
	}
	if err := s.events.PublishOrderDelivered(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderDelivered event", zap.Error(err))
	}

	sellerID = order.SellerID
	s.hooks.Go("badge_evaluation", func(ctx context.Context) error {
		return s.events.PublishBadgeEvaluationRequested(ctx, &models.BadgeEvaluationRequestedEvent{
			BaseEvent: newBaseEvent(models.EventTypeBadgeEvaluationRequested, now),
			SellerID:  sellerID,
			Trigger:   models.EventTypeOrderDelivered,
		})
	})

	return order, nil
}

// RequestRefund records a buyer's refund request on a paid card order. It
// moves no money; the seller executes the refund separately.
func (s *OrderService) RequestRefund(ctx context.Context, orderID, buyerID int64, req *RefundRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.RequestRefund")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, notFound(err, orderID)
	}
	if order.BuyerID != buyerID {
		return nil, &AuthorizationError{ActorID: buyerID, Action: "request a refund for this order"}
	}
	if order.IsCashOrder() {
		return nil, &ValidationError{Field: "order", Message: "cash orders cannot be refunded, ask the seller to cancel instead"}
	}
	if err := refundRequestAllowed(order); err != nil {
		return nil, err
	}

	updated, err := s.store.RecordRefundRequest(ctx, orderID, strings.TrimSpace(req.Reason), req.Note, s.clock.Now())
	if errors.Is(err, store.ErrStaleState) {
		current, getErr := s.store.GetOrderByID(ctx, orderID)
		if getErr != nil {
			return nil, getErr
		}
		if err := refundRequestAllowed(current); err != nil {
			return nil, err
		}
		return nil, &OrderStateError{OrderID: orderID, Status: current.Status, Action: "request a refund for"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record refund request: %w", err)
	}

	s.logger.Info("Refund requested",
		zap.Int64("order_id", orderID),
		zap.String("reason", *updated.RefundReason))
	return updated, nil
}

func refundRequestAllowed(order *models.Order) error {
	if order.Status != models.OrderStatusPaid {
		return &OrderStateError{OrderID: order.ID, Status: order.Status, Action: "request a refund for"}
	}
	if order.RefundRequestedAt != nil {
		return &OrderStateError{OrderID: order.ID, Status: order.Status, Action: "request a refund for", Reason: "a refund was already requested"}
	}
	return nil
}

// Cancel cancels a paid cash order. Inventory stays as it is until the
// seller relists the order.
func (s *OrderService) Cancel(ctx context.Context, orderID, sellerID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Cancel")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, notFound(err, orderID)
	}
	if order.SellerID != sellerID {
		return nil, &AuthorizationError{ActorID: sellerID, Action: "cancel this order"}
	}
	if !order.IsCashOrder() {
		return nil, &OrderStateError{OrderID: orderID, Status: order.Status, Action: "cancel", Reason: "card orders are refunded, not canceled"}
	}

	canceled, err := s.transition(ctx, order, models.OrderStatusCanceled, "cancel")
	if err != nil {
		return nil, err
	}

	util.OrderTransitionsTotal.WithLabelValues(models.OrderStatusCanceled).Inc()
	util.OrdersCancelledTotal.Inc()

	event := &models.OrderCanceledEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderCanceled, s.clock.Now()),
		OrderID:   canceled.ID,
		SellerID:  canceled.SellerID,
	}
	if err := s.events.PublishOrderCanceled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCanceled event", zap.Error(err))
	}

	return canceled, nil
}

// Relist restores the inventory of a canceled cash order. It succeeds once per order.
func (s *OrderService) Relist(ctx context.Context, orderID, sellerID int64) (*OrderDetails, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Relist")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, notFound(err, orderID)
	}
	if order.SellerID != sellerID {
		return nil, &AuthorizationError{ActorID: sellerID, Action: "relist this order"}
	}
	if order.Status != models.OrderStatusCanceled {
		return nil, &OrderStateError{OrderID: orderID, Status: order.Status, Action: "relist"}
	}
	if order.InventoryRestoredAt != nil {
		return nil, &OrderStateError{OrderID: orderID, Status: order.Status, Action: "relist", Reason: "inventory was already restored"}
	}

	relisted, items, err := s.store.RelistOrder(ctx, orderID)
	if errors.Is(err, store.ErrStaleState) {
		return nil, &OrderStateError{OrderID: orderID, Status: order.Status, Action: "relist", Reason: "inventory was already restored"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to relist order: %w", err)
	}

	s.logger.Info("Order relisted",
		zap.Int64("order_id", orderID),
		zap.Int("lines", len(items)))
	return &OrderDetails{Order: relisted, Items: items}, nil
}

func (s *OrderService) transitionAsSeller(ctx context.Context, orderID, sellerID int64, to, action string) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, notFound(err, orderID)
	}
	if order.SellerID != sellerID {
		return nil, &AuthorizationError{ActorID: sellerID, Action: action + " this order"}
	}
	return s.transition(ctx, order, to, action)
}

// transition applies a state machine edge with a compare-and-set on the current status
func (s *OrderService) transition(ctx context.Context, order *models.Order, to, action string) (*models.Order, error) {
	if !models.CanTransitionOrder(order.Status, to) {
		return nil, &OrderStateError{OrderID: order.ID, Status: order.Status, Action: action}
	}

	updated, err := s.store.TransitionOrder(ctx, order.ID, order.Status, to)
	if errors.Is(err, store.ErrStaleState) {
		current, getErr := s.store.GetOrderByID(ctx, order.ID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, &OrderStateError{OrderID: order.ID, Status: current.Status, Action: action}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s order: %w", action, err)
	}
	return updated, nil
}

func newBaseEvent(eventType string, at time.Time) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: at,
	}
}
