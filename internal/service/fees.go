package service

import (
	"github.com/shopspring/decimal"
)

// FeePolicy computes the platform's retention on an order total
type FeePolicy struct {
	Rate     decimal.Decimal
	MinCents int64
}

// PlatformFee returns max(MinCents, floor(total * Rate)), never more than the total itself
func (p FeePolicy) PlatformFee(total int64) int64 {
	fee := decimal.NewFromInt(total).Mul(p.Rate).Floor().IntPart()
	if fee < p.MinCents {
		fee = p.MinCents
	}
	if fee > total {
		fee = total
	}
	return fee
}

// SellerShare is the part of the total that belongs to the seller. It is both
// the credit on sale and the deduction on refund.
func (p FeePolicy) SellerShare(total int64) int64 {
	return total - p.PlatformFee(total)
}
