package models

import "github.com/samber/lo"

// Offer negotiation has two rounds. The seller answers a pending offer; if the
// answer is a counter, the buyer answers once more. accepted and declined are final.

// SellerOfferOutcomes are the statuses a seller may move a pending offer to
var SellerOfferOutcomes = []string{OfferStatusAccepted, OfferStatusDeclined, OfferStatusCountered}

// BuyerOfferOutcomes are the statuses a buyer may move a countered offer to
var BuyerOfferOutcomes = []string{OfferStatusAccepted, OfferStatusDeclined}

// IsSellerOfferOutcome reports whether status is a valid seller response
func IsSellerOfferOutcome(status string) bool {
	return lo.Contains(SellerOfferOutcomes, status)
}

// IsBuyerOfferOutcome reports whether status is a valid buyer response to a counter
func IsBuyerOfferOutcome(status string) bool {
	return lo.Contains(BuyerOfferOutcomes, status)
}

// IsTerminalOfferStatus reports whether no party may respond to the offer any more
func IsTerminalOfferStatus(status string) bool {
	return status == OfferStatusAccepted || status == OfferStatusDeclined
}

