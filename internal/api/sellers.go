package api

import (
	"net/http"
	"strconv"

	"commerce-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) getBalance(c *gin.Context) {
	sellerID, ok := selfOrSystem(c)
	if !ok {
		return
	}

	balance, err := h.svc.Ledger.GetBalance(c.Request.Context(), sellerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (h *Handler) listTransactions(c *gin.Context) {
	sellerID, ok := selfOrSystem(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	page, err := h.svc.Ledger.ListTransactions(c.Request.Context(), sellerID, c.Query("cursor"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) auditSeller(c *gin.Context) {
	sellerID, ok := pathID(c)
	if !ok {
		return
	}

	audit, err := h.svc.Ledger.AuditSeller(c.Request.Context(), sellerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit": audit, "consistent": audit.Consistent()})
}

func (h *Handler) payout(c *gin.Context) {
	sellerID, ok := pathID(c)
	if !ok {
		return
	}

	result, err := h.svc.Payouts.Payout(c.Request.Context(), sellerID, actorID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) registerPayoutAccount(c *gin.Context) {
	sellerID, ok := pathID(c)
	if !ok {
		return
	}

	var req service.PayoutAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	account, err := h.svc.Payouts.RegisterAccount(c.Request.Context(), sellerID, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *Handler) setTimeAway(c *gin.Context) {
	sellerID, ok := pathID(c)
	if !ok {
		return
	}
	if sellerID != actorID(c) {
		writeError(c, &service.AuthorizationError{ActorID: actorID(c), Action: "set another seller's time away"})
		return
	}

	var req service.TimeAwayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	window, err := h.svc.TimeAway.SetTimeAway(c.Request.Context(), sellerID, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, window)
}

func (h *Handler) getTimeAway(c *gin.Context) {
	sellerID, ok := pathID(c)
	if !ok {
		return
	}

	window, err := h.svc.TimeAway.GetTimeAway(c.Request.Context(), sellerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, window)
}

func (h *Handler) clearTimeAway(c *gin.Context) {
	sellerID, ok := pathID(c)
	if !ok {
		return
	}
	if sellerID != actorID(c) {
		writeError(c, &service.AuthorizationError{ActorID: actorID(c), Action: "clear another seller's time away"})
		return
	}

	if err := h.svc.TimeAway.ClearTimeAway(c.Request.Context(), sellerID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) availability(c *gin.Context) {
	sellerID, ok := pathID(c)
	if !ok {
		return
	}

	avail, err := h.svc.TimeAway.Availability(c.Request.Context(), sellerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, avail)
}

func (h *Handler) getBadge(c *gin.Context) {
	sellerID, ok := pathID(c)
	if !ok {
		return
	}

	badge, err := h.svc.Badges.GetSellerBadge(c.Request.Context(), sellerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, badge)
}
