package service

import (
	"context"
	"errors"
	"fmt"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/store"
	"commerce-ledger/internal/util"

	"github.com/raulk/clock"
	"go.uber.org/zap"
)

// CreateOfferRequest is a buyer's opening offer on an item
type CreateOfferRequest struct {
	ItemID int64 `json:"item_id" binding:"required"`
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// OfferResponseRequest is the body of a response to an offer. Which party is
// responding decides how it is read: see SellerOfferResponse and BuyerOfferResponse.
type OfferResponseRequest struct {
	Status        string  `json:"status" binding:"required"`
	Message       *string `json:"message,omitempty"`
	CounterAmount *int64  `json:"counter_amount,omitempty"`
}

// SellerOfferResponse answers a pending offer
type SellerOfferResponse struct {
	Status        string
	Message       *string
	CounterAmount *int64
}

// Validate checks the response before the offer is loaded
func (r SellerOfferResponse) Validate() error {
	if !models.IsSellerOfferOutcome(r.Status) {
		return &ValidationError{Field: "status", Message: "must be accepted, declined or countered"}
	}
	if r.Status == models.OfferStatusCountered {
		if r.CounterAmount == nil || *r.CounterAmount <= 0 {
			return &ValidationError{Field: "counter_amount", Message: "a counter needs a positive amount"}
		}
	} else if r.CounterAmount != nil {
		return &ValidationError{Field: "counter_amount", Message: "only allowed when countering"}
	}
	return nil
}

// BuyerOfferResponse answers a seller's counter
type BuyerOfferResponse struct {
	Status string
}

// Validate checks the response before the offer is loaded
func (r BuyerOfferResponse) Validate() error {
	if !models.IsBuyerOfferOutcome(r.Status) {
		return &ValidationError{Field: "status", Message: "must be accepted or declined"}
	}
	return nil
}

// OfferService runs the two-round price negotiation on resale items.
// Offers never touch the ledger.
type OfferService struct {
	store  OfferStore
	clock  clock.Clock
	logger *zap.Logger
}

// NewOfferService creates a new offer service
func NewOfferService(store OfferStore, clk clock.Clock) *OfferService {
	return &OfferService{
		store:  store,
		clock:  clk,
		logger: util.GetLogger(),
	}
}

// CreateOffer opens a negotiation on an item
func (s *OfferService) CreateOffer(ctx context.Context, buyerID int64, req *CreateOfferRequest) (*models.ResaleOffer, error) {
	ctx, span := util.StartSpan(ctx, "OfferService.CreateOffer")
	defer span.End()

	if req.Amount <= 0 {
		return nil, &ValidationError{Field: "amount", Message: "must be positive"}
	}

	item, err := s.store.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, notFound(err, req.ItemID)
	}
	if item.SellerID == buyerID {
		return nil, &ValidationError{Field: "item_id", Message: "cannot make an offer on your own item"}
	}

	offer := &models.ResaleOffer{
		BuyerID:  buyerID,
		ItemID:   item.ID,
		SellerID: item.SellerID,
		Amount:   req.Amount,
	}
	if err := s.store.CreateOffer(ctx, offer); err != nil {
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}

	util.OfferTransitionsTotal.WithLabelValues(models.OfferStatusPending).Inc()
	s.logger.Info("Offer created",
		zap.Int64("offer_id", offer.ID),
		zap.Int64("item_id", offer.ItemID),
		zap.Int64("amount", offer.Amount))
	return offer, nil
}

// GetOffer retrieves an offer visible to its buyer or seller
func (s *OfferService) GetOffer(ctx context.Context, offerID, actorID int64) (*models.ResaleOffer, error) {
	ctx, span := util.StartSpan(ctx, "OfferService.GetOffer")
	defer span.End()

	offer, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, notFound(err, offerID)
	}
	if actorID != offer.BuyerID && actorID != offer.SellerID {
		return nil, &AuthorizationError{ActorID: actorID, Action: "view this offer"}
	}
	return offer, nil
}

// ListItemOffers lists every offer made on one of the seller's items, newest first
func (s *OfferService) ListItemOffers(ctx context.Context, itemID, sellerID int64) ([]models.ResaleOffer, error) {
	ctx, span := util.StartSpan(ctx, "OfferService.ListItemOffers")
	defer span.End()

	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, notFound(err, itemID)
	}
	if item.SellerID != sellerID {
		return nil, &AuthorizationError{ActorID: sellerID, Action: "view offers on this item"}
	}

	offers, err := s.store.ListOffersForItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	return offers, nil
}

// Respond applies a response from whichever party actorID is: the seller
// answers a pending offer, the buyer answers a counter
func (s *OfferService) Respond(ctx context.Context, offerID, actorID int64, req *OfferResponseRequest) (*models.ResaleOffer, error) {
	ctx, span := util.StartSpan(ctx, "OfferService.Respond")
	defer span.End()

	offer, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, notFound(err, offerID)
	}

	switch actorID {
	case offer.SellerID:
		return s.RespondAsSeller(ctx, offerID, actorID, SellerOfferResponse{
			Status:        req.Status,
			Message:       req.Message,
			CounterAmount: req.CounterAmount,
		})
	case offer.BuyerID:
		if req.CounterAmount != nil {
			return nil, &ValidationError{Field: "counter_amount", Message: "buyers cannot counter"}
		}
		return s.RespondAsBuyer(ctx, offerID, actorID, BuyerOfferResponse{Status: req.Status})
	}
	return nil, &AuthorizationError{ActorID: actorID, Action: "respond to this offer"}
}

// RespondAsSeller answers a pending offer
func (s *OfferService) RespondAsSeller(ctx context.Context, offerID, sellerID int64, resp SellerOfferResponse) (*models.ResaleOffer, error) {
	ctx, span := util.StartSpan(ctx, "OfferService.RespondAsSeller")
	defer span.End()

	if err := resp.Validate(); err != nil {
		return nil, err
	}

	offer, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, notFound(err, offerID)
	}
	if offer.SellerID != sellerID {
		return nil, &AuthorizationError{ActorID: sellerID, Action: "answer this offer as seller"}
	}
	if offer.Status != models.OfferStatusPending {
		return nil, &InvalidOfferStateError{OfferID: offerID, Status: offer.Status, Expected: models.OfferStatusPending}
	}

	updated, err := s.store.ApplySellerResponse(ctx, offerID, resp.Status, resp.Message, resp.CounterAmount, s.clock.Now())
	if errors.Is(err, store.ErrStaleState) {
		return nil, s.staleOffer(ctx, offerID, models.OfferStatusPending)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to answer offer: %w", err)
	}

	util.OfferTransitionsTotal.WithLabelValues(updated.Status).Inc()
	s.logger.Info("Seller answered offer",
		zap.Int64("offer_id", offerID),
		zap.String("status", updated.Status))
	return updated, nil
}

// RespondAsBuyer answers a countered offer; either answer is final
func (s *OfferService) RespondAsBuyer(ctx context.Context, offerID, buyerID int64, resp BuyerOfferResponse) (*models.ResaleOffer, error) {
	ctx, span := util.StartSpan(ctx, "OfferService.RespondAsBuyer")
	defer span.End()

	if err := resp.Validate(); err != nil {
		return nil, err
	}

	offer, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, notFound(err, offerID)
	}
	if offer.BuyerID != buyerID {
		return nil, &AuthorizationError{ActorID: buyerID, Action: "answer this counter as buyer"}
	}
	if offer.Status != models.OfferStatusCountered {
		return nil, &InvalidOfferStateError{OfferID: offerID, Status: offer.Status, Expected: models.OfferStatusCountered}
	}

	updated, err := s.store.ApplyBuyerResponse(ctx, offerID, resp.Status, s.clock.Now())
	if errors.Is(err, store.ErrStaleState) {
		return nil, s.staleOffer(ctx, offerID, models.OfferStatusCountered)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to answer counter: %w", err)
	}

	util.OfferTransitionsTotal.WithLabelValues(updated.Status).Inc()
	s.logger.Info("Buyer answered counter",
		zap.Int64("offer_id", offerID),
		zap.String("status", updated.Status))
	return updated, nil
}

func (s *OfferService) staleOffer(ctx context.Context, offerID int64, expected string) error {
	current, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return notFound(err, offerID)
	}
	return &InvalidOfferStateError{OfferID: offerID, Status: current.Status, Expected: expected}
}
