package store

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

const (
	pqUniqueViolation = "23505"
	pqCheckViolation  = "23514"
)

// ClassifyError sorts a database error into retryable and permanent classes
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		}
	}

	return ErrorClassPermanent
}

// IsRetryable reports whether a transaction failing with err may be retried
func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

// IsUniqueViolation reports whether err is a unique constraint violation,
// optionally restricted to the named constraint
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pqUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// IsCheckViolation reports whether err is a CHECK constraint violation
func IsCheckViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqCheckViolation
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrItemNotFound          = errors.New("item not found")
	ErrMemberNotFound        = errors.New("member not found")
	ErrBusinessNotFound      = errors.New("business not found")
	ErrRewardNotFound        = errors.New("reward not found")
	ErrOfferNotFound         = errors.New("offer not found")
	ErrTimeAwayNotFound      = errors.New("time away not found")
	ErrPayoutAccountNotFound = errors.New("payout account not found")
	ErrOperationNotFound     = errors.New("gateway operation not found")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrRewardUnavailable     = errors.New("reward is not available for redemption")
	ErrAlreadyScannedToday   = errors.New("already scanned today")
	ErrStaleState            = errors.New("row changed since it was read")
	ErrOperationInProgress   = errors.New("an unresolved gateway operation already exists")
)
