package models

import "time"

// Item represents an external inventory record a line item points at
type Item struct {
	ID        int64     `db:"id" json:"id"`
	SellerID  int64     `db:"seller_id" json:"seller_id"`
	Title     string    `db:"title" json:"title"`
	Price     int64     `db:"price" json:"price"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Order represents a completed purchase between a buyer and a seller.
// All amounts are minor currency units.
type Order struct {
	ID                  int64      `db:"id" json:"id"`
	BuyerID             int64      `db:"buyer_id" json:"buyer_id"`
	SellerID            int64      `db:"seller_id" json:"seller_id"`
	Subtotal            int64      `db:"subtotal" json:"subtotal"`
	ShippingCost        int64      `db:"shipping_cost" json:"shipping_cost"`
	Total               int64      `db:"total" json:"total"`
	Status              string     `db:"status" json:"status"`
	PaymentReference    *string    `db:"payment_reference" json:"payment_reference,omitempty"`
	RefundRequestedAt   *time.Time `db:"refund_requested_at" json:"refund_requested_at,omitempty"`
	RefundReason        *string    `db:"refund_reason" json:"refund_reason,omitempty"`
	RefundNote          *string    `db:"refund_note" json:"refund_note,omitempty"`
	ShippedAt           *time.Time `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt         *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	InventoryRestoredAt *time.Time `db:"inventory_restored_at" json:"inventory_restored_at,omitempty"`
	PrimaryOrderID      *int64     `db:"primary_order_id" json:"primary_order_id,omitempty"`
	CheckoutKey         string     `db:"checkout_key" json:"-"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// IsCashOrder reports whether the order was settled outside the payment gateway
func (o *Order) IsCashOrder() bool {
	return o.PaymentReference == nil || *o.PaymentReference == ""
}

// OrderItem represents items in an order
type OrderItem struct {
	ID        int64 `db:"id" json:"id"`
	OrderID   int64 `db:"order_id" json:"order_id"`
	ItemID    int64 `db:"item_id" json:"item_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
	UnitPrice int64 `db:"unit_price" json:"unit_price"`
}

// SellerBalance is the per-seller running balance. It is only ever changed
// together with a LedgerTransaction.
type SellerBalance struct {
	SellerID         int64     `db:"seller_id" json:"seller_id"`
	Balance          int64     `db:"balance" json:"balance"`
	LifetimeEarned   int64     `db:"lifetime_earned" json:"lifetime_earned"`
	LifetimePaidOut  int64     `db:"lifetime_paid_out" json:"lifetime_paid_out"`
	LifetimeRefunded int64     `db:"lifetime_refunded" json:"lifetime_refunded"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// LedgerTransaction is an append-only signed entry explaining one balance change
type LedgerTransaction struct {
	ID                int64     `db:"id" json:"id"`
	SellerID          int64     `db:"seller_id" json:"seller_id"`
	Type              string    `db:"type" json:"type"`
	Amount            int64     `db:"amount" json:"amount"`
	OrderID           *int64    `db:"order_id" json:"order_id,omitempty"`
	TransferReference *string   `db:"transfer_reference" json:"transfer_reference,omitempty"`
	Description       string    `db:"description" json:"description"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// PayoutAccount is the seller's verified destination at the payment gateway
type PayoutAccount struct {
	SellerID    int64     `db:"seller_id" json:"seller_id"`
	Destination string    `db:"destination" json:"destination"`
	Verified    bool      `db:"verified" json:"verified"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// GatewayOperation journals one refund or transfer sent to the payment gateway
type GatewayOperation struct {
	ID               int64     `db:"id" json:"id"`
	Kind             string    `db:"kind" json:"kind"`
	SellerID         int64     `db:"seller_id" json:"seller_id"`
	OrderID          *int64    `db:"order_id" json:"order_id,omitempty"`
	Amount           int64     `db:"amount" json:"amount"`
	IdempotencyKey   string    `db:"idempotency_key" json:"idempotency_key"`
	Status           string    `db:"status" json:"status"`
	GatewayReference *string   `db:"gateway_reference" json:"gateway_reference,omitempty"`
	Error            *string   `db:"error" json:"error,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Member holds the points counter and subscription state of a platform member
type Member struct {
	ID                 int64     `db:"id" json:"id"`
	Points             int64     `db:"points" json:"points"`
	SubscriptionPlan   *string   `db:"subscription_plan" json:"subscription_plan,omitempty"`
	SubscriptionActive bool      `db:"subscription_active" json:"subscription_active"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// Business is a scannable storefront owned by a member
type Business struct {
	ID            int64  `db:"id" json:"id"`
	OwnerMemberID int64  `db:"owner_member_id" json:"owner_member_id"`
	Name          string `db:"name" json:"name"`
}

// CategoryPointsConfig maps a business category to the points one scan is worth
type CategoryPointsConfig struct {
	Category      string `db:"category" json:"category"`
	PointsPerScan int64  `db:"points_per_scan" json:"points_per_scan"`
}

// QRScan records one points award for a member at a business
type QRScan struct {
	ID            int64     `db:"id" json:"id"`
	MemberID      int64     `db:"member_id" json:"member_id"`
	BusinessID    int64     `db:"business_id" json:"business_id"`
	PointsAwarded int64     `db:"points_awarded" json:"points_awarded"`
	ScanDay       time.Time `db:"scan_day" json:"scan_day"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Reward is a business offering redeemable for points
type Reward struct {
	ID              int64     `db:"id" json:"id"`
	BusinessID      int64     `db:"business_id" json:"business_id"`
	Title           string    `db:"title" json:"title"`
	PointsRequired  int64     `db:"points_required" json:"points_required"`
	RedemptionLimit int       `db:"redemption_limit" json:"redemption_limit"`
	TimesRedeemed   int       `db:"times_redeemed" json:"times_redeemed"`
	Status          string    `db:"status" json:"status"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// RewardRedemption is the append-only record of a reward being claimed
type RewardRedemption struct {
	ID          int64     `db:"id" json:"id"`
	MemberID    int64     `db:"member_id" json:"member_id"`
	RewardID    int64     `db:"reward_id" json:"reward_id"`
	PointsSpent int64     `db:"points_spent" json:"points_spent"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ResaleOffer is a buyer's price proposal on a secondary-market item
type ResaleOffer struct {
	ID               int64      `db:"id" json:"id"`
	BuyerID          int64      `db:"buyer_id" json:"buyer_id"`
	ItemID           int64      `db:"item_id" json:"item_id"`
	SellerID         int64      `db:"seller_id" json:"seller_id"`
	Amount           int64      `db:"amount" json:"amount"`
	Status           string     `db:"status" json:"status"`
	SellerResponse   *string    `db:"seller_response" json:"seller_response,omitempty"`
	CounterAmount    *int64     `db:"counter_amount" json:"counter_amount,omitempty"`
	AgreedAmount     *int64     `db:"agreed_amount" json:"agreed_amount,omitempty"`
	RespondedAt      *time.Time `db:"responded_at" json:"responded_at,omitempty"`
	BuyerRespondedAt *time.Time `db:"buyer_responded_at" json:"buyer_responded_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// SellerTimeAway is a declared absence window for a seller's storefront
type SellerTimeAway struct {
	SellerID  int64     `db:"seller_id" json:"seller_id"`
	StartsAt  time.Time `db:"starts_at" json:"starts_at"`
	EndsAt    time.Time `db:"ends_at" json:"ends_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SellerBadge is the seller's current fulfillment tier
type SellerBadge struct {
	SellerID       int64     `db:"seller_id" json:"seller_id"`
	Tier           string    `db:"tier" json:"tier"`
	DeliveredCount int       `db:"delivered_count" json:"delivered_count"`
	EvaluatedAt    time.Time `db:"evaluated_at" json:"evaluated_at"`
}

// Order statuses
const (
	OrderStatusPaid      = "paid"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusRefunded  = "refunded"
	OrderStatusCanceled  = "canceled"
)

// Ledger transaction types
const (
	TransactionTypeSale   = "sale"
	TransactionTypeReturn = "return"
	TransactionTypePayout = "payout"
)

// Gateway operation kinds and statuses
const (
	GatewayOpRefund   = "refund"
	GatewayOpTransfer = "transfer"

	GatewayOpStatusPending            = "pending"
	GatewayOpStatusCommitted          = "committed"
	GatewayOpStatusFailed             = "failed"
	GatewayOpStatusReconciliationRisk = "reconciliation_risk"
)

// Reward statuses
const (
	RewardStatusActive      = "active"
	RewardStatusRedeemedOut = "redeemed_out"
)

// Offer statuses
const (
	OfferStatusPending   = "pending"
	OfferStatusAccepted  = "accepted"
	OfferStatusDeclined  = "declined"
	OfferStatusCountered = "countered"
)

// Seller badge tiers
const (
	BadgeTierNone   = "none"
	BadgeTierBronze = "bronze"
	BadgeTierSilver = "silver"
	BadgeTierGold   = "gold"
)
