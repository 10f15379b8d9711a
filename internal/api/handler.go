package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/service"
	"commerce-ledger/internal/store"
	"commerce-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OrderService is the order lifecycle used by the handlers
type OrderService interface {
	RecordCheckout(ctx context.Context, req *service.CheckoutRequest) (*service.CheckoutResponse, error)
	GetOrder(ctx context.Context, orderID, actorID int64) (*service.OrderDetails, error)
	ListSellerOrders(ctx context.Context, sellerID int64, limit, offset int) ([]models.Order, error)
	ListBuyerOrders(ctx context.Context, buyerID int64, limit, offset int) ([]models.Order, error)
	MarkShipped(ctx context.Context, orderID, sellerID int64) (*models.Order, error)
	MarkDelivered(ctx context.Context, orderID, sellerID int64) (*models.Order, error)
	RequestRefund(ctx context.Context, orderID, buyerID int64, req *service.RefundRequest) (*models.Order, error)
	Cancel(ctx context.Context, orderID, sellerID int64) (*models.Order, error)
	Relist(ctx context.Context, orderID, sellerID int64) (*service.OrderDetails, error)
}

// Refunder executes seller refunds
type Refunder interface {
	Refund(ctx context.Context, orderID, sellerID int64) (*service.RefundResult, error)
}

// PayoutRunner executes seller payouts
type PayoutRunner interface {
	Payout(ctx context.Context, sellerID, actorID int64) (*service.PayoutResult, error)
	RegisterAccount(ctx context.Context, sellerID int64, req *service.PayoutAccountRequest) (*models.PayoutAccount, error)
}

// LedgerReader exposes seller balances and history
type LedgerReader interface {
	GetBalance(ctx context.Context, sellerID int64) (*models.SellerBalance, error)
	ListTransactions(ctx context.Context, sellerID int64, cursor string, limit int) (*store.CursorPage, error)
	AuditSeller(ctx context.Context, sellerID int64) (*store.LedgerAudit, error)
}

// TimeAwayManager manages seller absence windows
type TimeAwayManager interface {
	SetTimeAway(ctx context.Context, sellerID int64, req *service.TimeAwayRequest) (*service.TimeAwayWindow, error)
	GetTimeAway(ctx context.Context, sellerID int64) (*service.TimeAwayWindow, error)
	ClearTimeAway(ctx context.Context, sellerID int64) error
	Availability(ctx context.Context, sellerID int64) (*service.SellerAvailability, error)
}

// PointsAwarder awards and reports member points
type PointsAwarder interface {
	AwardScan(ctx context.Context, memberID, businessID int64) (*service.ScanAward, error)
	GetMemberPoints(ctx context.Context, memberID int64) (*models.Member, error)
}

// RewardRedeemer lists and redeems rewards
type RewardRedeemer interface {
	RedeemReward(ctx context.Context, memberID, rewardID int64) (*service.RedemptionResponse, error)
	ListActiveRewards(ctx context.Context, businessID int64) ([]models.Reward, error)
}

// OfferNegotiator runs resale offers
type OfferNegotiator interface {
	CreateOffer(ctx context.Context, buyerID int64, req *service.CreateOfferRequest) (*models.ResaleOffer, error)
	GetOffer(ctx context.Context, offerID, actorID int64) (*models.ResaleOffer, error)
	Respond(ctx context.Context, offerID, actorID int64, req *service.OfferResponseRequest) (*models.ResaleOffer, error)
	ListItemOffers(ctx context.Context, itemID, sellerID int64) ([]models.ResaleOffer, error)
}

// BadgeReader reports seller tiers
type BadgeReader interface {
	GetSellerBadge(ctx context.Context, sellerID int64) (*models.SellerBadge, error)
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the handlers' collaborators
type Services struct {
	Orders   OrderService
	Refunds  Refunder
	Payouts  PayoutRunner
	Ledger   LedgerReader
	TimeAway TimeAwayManager
	Points   PointsAwarder
	Rewards  RewardRedeemer
	Offers   OfferNegotiator
	Badges   BadgeReader
}

// Handler contains HTTP handlers
type Handler struct {
	svc         Services
	auth        *Authenticator
	idempotency IdempotencyCache
	deps        map[string]Pinger
}

// NewHandler creates a new HTTP handler. idempotency may be nil.
func NewHandler(svc Services, auth *Authenticator, idempotency IdempotencyCache, deps map[string]Pinger) *Handler {
	return &Handler{
		svc:         svc,
		auth:        auth,
		idempotency: idempotency,
		deps:        deps,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(h.auth.Middleware(), idempotencyMiddleware(h.idempotency))
	{
		v1.POST("/checkouts", requireRole(RoleSystem), h.recordCheckout)

		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/ship", h.shipOrder)
		v1.POST("/orders/:id/deliver", h.deliverOrder)
		v1.POST("/orders/:id/refund-request", h.requestRefund)
		v1.POST("/orders/:id/refund", h.refundOrder)
		v1.POST("/orders/:id/cancel", h.cancelOrder)
		v1.POST("/orders/:id/relist", h.relistOrder)
		v1.GET("/buyers/:id/orders", h.listBuyerOrders)

		sellers := v1.Group("/sellers/:id")
		{
			sellers.GET("/orders", h.listSellerOrders)
			sellers.GET("/balance", h.getBalance)
			sellers.GET("/transactions", h.listTransactions)
			sellers.GET("/audit", requireRole(RoleSystem), h.auditSeller)
			sellers.POST("/payouts", h.payout)
			sellers.PUT("/payout-account", requireRole(RoleSystem), h.registerPayoutAccount)
			sellers.PUT("/time-away", h.setTimeAway)
			sellers.GET("/time-away", h.getTimeAway)
			sellers.DELETE("/time-away", h.clearTimeAway)
			sellers.GET("/availability", h.availability)
			sellers.GET("/badge", h.getBadge)
		}

		v1.POST("/scans", h.recordScan)
		v1.GET("/members/:id/points", h.getMemberPoints)
		v1.GET("/businesses/:id/rewards", h.listRewards)
		v1.POST("/rewards/:id/redeem", h.redeemReward)

		v1.POST("/offers", h.createOffer)
		v1.GET("/offers/:id", h.getOffer)
		v1.PATCH("/offers/:id", h.respondToOffer)
		v1.GET("/items/:id/offers", h.listItemOffers)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid ID", err)
		return 0, false
	}
	return id, true
}

// selfOrSystem reads the path id and checks the actor is that user or the system
func selfOrSystem(c *gin.Context) (int64, bool) {
	id, ok := pathID(c)
	if !ok {
		return 0, false
	}
	if id != actorID(c) && actorRole(c) != RoleSystem {
		writeError(c, &service.AuthorizationError{ActorID: actorID(c), Action: "access another user's data"})
		return 0, false
	}
	return id, true
}

func pageParams(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.Query("limit"))
	offset, _ = strconv.Atoi(c.Query("offset"))
	if offset < 0 {
		offset = 0
	}
	return service.ClampPageSize(limit), offset
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
