package api

import (
	"net/http"

	"commerce-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) createOffer(c *gin.Context) {
	var req service.CreateOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	offer, err := h.svc.Offers.CreateOffer(c.Request.Context(), actorID(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, offer)
}

func (h *Handler) getOffer(c *gin.Context) {
	offerID, ok := pathID(c)
	if !ok {
		return
	}

	offer, err := h.svc.Offers.GetOffer(c.Request.Context(), offerID, actorID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, offer)
}

func (h *Handler) respondToOffer(c *gin.Context) {
	offerID, ok := pathID(c)
	if !ok {
		return
	}

	var req service.OfferResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	offer, err := h.svc.Offers.Respond(c.Request.Context(), offerID, actorID(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, offer)
}

func (h *Handler) listItemOffers(c *gin.Context) {
	itemID, ok := pathID(c)
	if !ok {
		return
	}

	offers, err := h.svc.Offers.ListItemOffers(c.Request.Context(), itemID, actorID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offers": offers})
}
