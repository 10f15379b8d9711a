package api

import (
	"net/http"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

// recordCheckout records a completed checkout
func (h *Handler) recordCheckout(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	resp, err := h.svc.Orders.RecordCheckout(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	details, err := h.svc.Orders.GetOrder(c.Request.Context(), orderID, actorID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *Handler) listSellerOrders(c *gin.Context) {
	sellerID, ok := selfOrSystem(c)
	if !ok {
		return
	}

	limit, offset := pageParams(c)
	orders, err := h.svc.Orders.ListSellerOrders(c.Request.Context(), sellerID, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "limit": limit, "offset": offset})
}

func (h *Handler) listBuyerOrders(c *gin.Context) {
	buyerID, ok := selfOrSystem(c)
	if !ok {
		return
	}

	limit, offset := pageParams(c)
	orders, err := h.svc.Orders.ListBuyerOrders(c.Request.Context(), buyerID, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "limit": limit, "offset": offset})
}

// orderAction runs a seller-side transition on the order in the path
func (h *Handler) orderAction(c *gin.Context, action func(*gin.Context, int64, int64) (*models.Order, error)) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	order, err := action(c, orderID, actorID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) shipOrder(c *gin.Context) {
	h.orderAction(c, func(c *gin.Context, orderID, actor int64) (*models.Order, error) {
		return h.svc.Orders.MarkShipped(c.Request.Context(), orderID, actor)
	})
}

func (h *Handler) deliverOrder(c *gin.Context) {
	h.orderAction(c, func(c *gin.Context, orderID, actor int64) (*models.Order, error) {
		return h.svc.Orders.MarkDelivered(c.Request.Context(), orderID, actor)
	})
}

func (h *Handler) cancelOrder(c *gin.Context) {
	h.orderAction(c, func(c *gin.Context, orderID, actor int64) (*models.Order, error) {
		return h.svc.Orders.Cancel(c.Request.Context(), orderID, actor)
	})
}

func (h *Handler) requestRefund(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	var req service.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	order, err := h.svc.Orders.RequestRefund(c.Request.Context(), orderID, actorID(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) refundOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	result, err := h.svc.Refunds.Refund(c.Request.Context(), orderID, actorID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) relistOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	details, err := h.svc.Orders.Relist(c.Request.Context(), orderID, actorID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}
