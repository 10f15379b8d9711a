package models

import "time"

// Event types
const (
	EventTypeSaleRecorded             = "SALE_RECORDED"
	EventTypeOrderDelivered           = "ORDER_DELIVERED"
	EventTypeOrderRefunded            = "ORDER_REFUNDED"
	EventTypeOrderCanceled            = "ORDER_CANCELED"
	EventTypePayoutCompleted          = "PAYOUT_COMPLETED"
	EventTypeBadgeEvaluationRequested = "BADGE_EVALUATION_REQUESTED"
	EventTypeSalesMilestoneReached    = "SALES_MILESTONE_REACHED"
	EventTypeReconciliationAlert      = "RECONCILIATION_ALERT"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleRecordedEvent published when a sale credit lands on a seller balance
type SaleRecordedEvent struct {
	BaseEvent
	OrderID  int64 `json:"order_id"`
	SellerID int64 `json:"seller_id"`
	Amount   int64 `json:"amount"`
}

// OrderDeliveredEvent published when the seller confirms delivery
type OrderDeliveredEvent struct {
	BaseEvent
	OrderID  int64 `json:"order_id"`
	SellerID int64 `json:"seller_id"`
	BuyerID  int64 `json:"buyer_id"`
}

// OrderRefundedEvent published after a refund commits locally
type OrderRefundedEvent struct {
	BaseEvent
	OrderID         int64  `json:"order_id"`
	SellerID        int64  `json:"seller_id"`
	RefundedAmount  int64  `json:"refunded_amount"`
	SellerDeduction int64  `json:"seller_deduction"`
	PlatformFee     int64  `json:"platform_fee"`
	GatewayRefundID string `json:"gateway_refund_id"`
}

// OrderCanceledEvent published when a cash order is canceled
type OrderCanceledEvent struct {
	BaseEvent
	OrderID  int64 `json:"order_id"`
	SellerID int64 `json:"seller_id"`
}

// PayoutCompletedEvent published after a payout commits locally
type PayoutCompletedEvent struct {
	BaseEvent
	SellerID   int64  `json:"seller_id"`
	Amount     int64  `json:"amount"`
	TransferID string `json:"transfer_id"`
}

// BadgeEvaluationRequestedEvent asks the badge worker to recompute a seller tier
type BadgeEvaluationRequestedEvent struct {
	BaseEvent
	SellerID int64  `json:"seller_id"`
	Trigger  string `json:"trigger"`
}

// SalesMilestoneReachedEvent published when a seller's sale count hits a milestone
type SalesMilestoneReachedEvent struct {
	BaseEvent
	SellerID  int64 `json:"seller_id"`
	SaleCount int   `json:"sale_count"`
}

// ReconciliationAlertEvent published when money moved at the gateway but the
// matching local commit is missing
type ReconciliationAlertEvent struct {
	BaseEvent
	OperationID      int64  `json:"operation_id"`
	Kind             string `json:"kind"`
	SellerID         int64  `json:"seller_id"`
	OrderID          *int64 `json:"order_id,omitempty"`
	Amount           int64  `json:"amount"`
	GatewayReference string `json:"gateway_reference,omitempty"`
	Reason           string `json:"reason"`
}
