package api

import (
	"net/http"

	"commerce-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) recordScan(c *gin.Context) {
	var req service.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	award, err := h.svc.Points.AwardScan(c.Request.Context(), actorID(c), req.BusinessID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, award)
}

func (h *Handler) getMemberPoints(c *gin.Context) {
	memberID, ok := selfOrSystem(c)
	if !ok {
		return
	}

	member, err := h.svc.Points.GetMemberPoints(c.Request.Context(), memberID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"member_id": member.ID, "points": member.Points})
}

func (h *Handler) listRewards(c *gin.Context) {
	businessID, ok := pathID(c)
	if !ok {
		return
	}

	rewards, err := h.svc.Rewards.ListActiveRewards(c.Request.Context(), businessID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rewards": rewards})
}

func (h *Handler) redeemReward(c *gin.Context) {
	rewardID, ok := pathID(c)
	if !ok {
		return
	}

	result, err := h.svc.Rewards.RedeemReward(c.Request.Context(), actorID(c), rewardID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}
