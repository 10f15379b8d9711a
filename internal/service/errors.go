package service

import (
	"errors"
	"fmt"
	"time"

	"commerce-ledger/internal/store"
)

// ErrInvalidState is wrapped by every lifecycle-state error so callers can
// match them with errors.Is regardless of the resource involved
var ErrInvalidState = errors.New("invalid state")

// ValidationError reports malformed input caught before any mutation
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// InvalidStateError reports an operation that is not valid for a resource's current state
type InvalidStateError struct {
	Resource string
	ID       int64
	Status   string
	Reason   string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %d is %s: %s", e.Resource, e.ID, e.Status, e.Reason)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// OrderStateError reports a forbidden order lifecycle transition
type OrderStateError struct {
	OrderID int64
	Status  string
	Action  string
	Reason  string
}

func (e *OrderStateError) Error() string {
	msg := fmt.Sprintf("cannot %s order %d in status %s", e.Action, e.OrderID, e.Status)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *OrderStateError) Unwrap() error { return ErrInvalidState }

// InvalidOfferStateError reports a response to an offer that is not awaiting it
type InvalidOfferStateError struct {
	OfferID  int64
	Status   string
	Expected string
}

func (e *InvalidOfferStateError) Error() string {
	return fmt.Sprintf("offer %d is %s, expected %s", e.OfferID, e.Status, e.Expected)
}

func (e *InvalidOfferStateError) Unwrap() error { return ErrInvalidState }

// AuthorizationError reports an actor who is not the party the operation requires
type AuthorizationError struct {
	ActorID int64
	Action  string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("actor %d is not allowed to %s", e.ActorID, e.Action)
}

// NotFoundError reports a missing resource
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// InsufficientFundsError reports a seller balance below what the operation needs
type InsufficientFundsError struct {
	SellerID  int64
	Balance   int64
	Required  int64
	Shortfall int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("seller %d has insufficient funds: balance=%d required=%d shortfall=%d",
		e.SellerID, e.Balance, e.Required, e.Shortfall)
}

// InsufficientPointsError reports a member point total below a reward's price
type InsufficientPointsError struct {
	MemberID  int64
	Points    int64
	Required  int64
	Shortfall int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("member %d has insufficient points: points=%d required=%d shortfall=%d",
		e.MemberID, e.Points, e.Required, e.Shortfall)
}

// RateLimitedError reports a second scan of the same business on the same day
type RateLimitedError struct {
	MemberID   int64
	BusinessID int64
	RetryAfter time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("member %d already scanned business %d today", e.MemberID, e.BusinessID)
}

// ExternalGatewayError reports a failed or timed out payment gateway call.
// No local state was changed.
type ExternalGatewayError struct {
	Operation string
	Err       error
}

func (e *ExternalGatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s failed: %v", e.Operation, e.Err)
}

func (e *ExternalGatewayError) Unwrap() error { return e.Err }

// ReconciliationRiskError reports money that moved at the gateway without the
// matching local commit. It must be reconciled by an operator and is never retried.
type ReconciliationRiskError struct {
	OperationID      int64
	Kind             string
	SellerID         int64
	OrderID          *int64
	Amount           int64
	GatewayReference string
	Err              error
}

func (e *ReconciliationRiskError) Error() string {
	return fmt.Sprintf("reconciliation required: %s %s of %d for seller %d succeeded at the gateway but was not recorded: %v",
		e.Kind, e.GatewayReference, e.Amount, e.SellerID, e.Err)
}

func (e *ReconciliationRiskError) Unwrap() error { return e.Err }

// notFound translates store sentinels into NotFoundError and passes other errors through
func notFound(err error, id int64) error {
	resources := []struct {
		sentinel error
		name     string
	}{
		{store.ErrOrderNotFound, "order"},
		{store.ErrItemNotFound, "item"},
		{store.ErrMemberNotFound, "member"},
		{store.ErrBusinessNotFound, "business"},
		{store.ErrRewardNotFound, "reward"},
		{store.ErrOfferNotFound, "offer"},
		{store.ErrTimeAwayNotFound, "time away"},
		{store.ErrPayoutAccountNotFound, "payout account"},
	}
	for _, r := range resources {
		if errors.Is(err, r.sentinel) {
			return &NotFoundError{Resource: r.name, ID: id}
		}
	}
	return err
}
