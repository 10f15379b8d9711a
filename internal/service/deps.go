package service

import (
	"context"
	"time"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/store"
)

// OrderStore is the persistence used by the order state machine
type OrderStore interface {
	CreateCheckout(ctx context.Context, p store.CheckoutParams) (*store.CheckoutResult, error)
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	ListOrdersBySeller(ctx context.Context, sellerID int64, limit, offset int) ([]models.Order, error)
	ListOrdersByBuyer(ctx context.Context, buyerID int64, limit, offset int) ([]models.Order, error)
	TransitionOrder(ctx context.Context, orderID int64, from, to string) (*models.Order, error)
	RecordRefundRequest(ctx context.Context, orderID int64, reason string, note *string, at time.Time) (*models.Order, error)
	RelistOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error)
}

// OperationStore journals gateway operations
type OperationStore interface {
	CreateGatewayOperation(ctx context.Context, op *models.GatewayOperation) error
	MarkGatewayOperation(ctx context.Context, id int64, status string, reference, errMsg *string) error
	ListStalePendingOperations(ctx context.Context, olderThan time.Time, limit int) ([]models.GatewayOperation, error)
	FlagOperation(ctx context.Context, id int64, reason string) (bool, error)
}

// LedgerStore is the persistence used by the refund and payout processors
type LedgerStore interface {
	OperationStore
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	FindUnresolvedOperation(ctx context.Context, sellerID int64) (*models.GatewayOperation, error)
	GetBalance(ctx context.Context, sellerID int64) (*models.SellerBalance, error)
	GetPayoutAccount(ctx context.Context, sellerID int64) (*models.PayoutAccount, error)
	ApplyRefund(ctx context.Context, p store.RefundParams) (*models.SellerBalance, error)
	ApplyPayout(ctx context.Context, p store.PayoutParams) (*models.SellerBalance, error)
	UpsertPayoutAccount(ctx context.Context, acct *models.PayoutAccount) error
	ListTransactions(ctx context.Context, sellerID int64, cursor string, limit int) (*store.CursorPage, error)
	AuditSeller(ctx context.Context, sellerID int64) (*store.LedgerAudit, error)
}

// PointsStore is the persistence used for scan awards
type PointsStore interface {
	GetMember(ctx context.Context, id int64) (*models.Member, error)
	GetBusiness(ctx context.Context, id int64) (*models.Business, error)
	GetBusinessCategories(ctx context.Context, businessID int64) ([]string, error)
	GetCategoryPoints(ctx context.Context, categories []string) ([]models.CategoryPointsConfig, error)
	RecordScan(ctx context.Context, scan *models.QRScan) (int64, error)
}

// RewardStore is the persistence used for reward redemption
type RewardStore interface {
	GetReward(ctx context.Context, id int64) (*models.Reward, error)
	ListActiveRewards(ctx context.Context, businessID int64) ([]models.Reward, error)
	RedeemReward(ctx context.Context, memberID, rewardID int64) (*store.RedemptionResult, error)
	MarkRewardRedeemedOut(ctx context.Context, rewardID int64) (bool, error)
}

// OfferStore is the persistence used by the offer negotiation
type OfferStore interface {
	GetItem(ctx context.Context, id int64) (*models.Item, error)
	CreateOffer(ctx context.Context, offer *models.ResaleOffer) error
	GetOffer(ctx context.Context, id int64) (*models.ResaleOffer, error)
	ListOffersForItem(ctx context.Context, itemID int64) ([]models.ResaleOffer, error)
	ApplySellerResponse(ctx context.Context, id int64, status string, message *string, counter *int64, at time.Time) (*models.ResaleOffer, error)
	ApplyBuyerResponse(ctx context.Context, id int64, status string, at time.Time) (*models.ResaleOffer, error)
}

// TimeAwayStore is the persistence of seller time-away windows
type TimeAwayStore interface {
	UpsertTimeAway(ctx context.Context, ta *models.SellerTimeAway) error
	GetTimeAway(ctx context.Context, sellerID int64) (*models.SellerTimeAway, error)
	DeleteTimeAway(ctx context.Context, sellerID int64) error
}

// BadgeStore is the persistence used by seller tier evaluation
type BadgeStore interface {
	CountDeliveredOrders(ctx context.Context, sellerID int64) (int, error)
	GetSellerBadge(ctx context.Context, sellerID int64) (*models.SellerBadge, error)
	UpsertSellerBadge(ctx context.Context, badge *models.SellerBadge) error
}

// PaymentGateway moves money outside the platform. Both calls block until the
// gateway answers or the client's timeout expires.
type PaymentGateway interface {
	Refund(ctx context.Context, paymentReference string, amount int64, idempotencyKey string) (string, error)
	Transfer(ctx context.Context, destination string, amount int64, idempotencyKey string) (string, error)
}

// SellerLocker serializes balance-moving operations for one seller across instances
type SellerLocker interface {
	AcquireSellerLock(ctx context.Context, sellerID int64) (string, error)
	ReleaseSellerLock(ctx context.Context, sellerID int64, token string) error
}

// EventPublisher emits domain events after the state they describe has committed
type EventPublisher interface {
	PublishSaleRecorded(ctx context.Context, event *models.SaleRecordedEvent) error
	PublishOrderDelivered(ctx context.Context, event *models.OrderDeliveredEvent) error
	PublishOrderRefunded(ctx context.Context, event *models.OrderRefundedEvent) error
	PublishOrderCanceled(ctx context.Context, event *models.OrderCanceledEvent) error
	PublishPayoutCompleted(ctx context.Context, event *models.PayoutCompletedEvent) error
	PublishBadgeEvaluationRequested(ctx context.Context, event *models.BadgeEvaluationRequestedEvent) error
	PublishSalesMilestoneReached(ctx context.Context, event *models.SalesMilestoneReachedEvent) error
	PublishReconciliationAlert(ctx context.Context, event *models.ReconciliationAlertEvent) error
}
