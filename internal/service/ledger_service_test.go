package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampPageSize(t *testing.T) {
	assert.Equal(t, defaultPageSize, ClampPageSize(0))
	assert.Equal(t, 20, ClampPageSize(20))
	assert.Equal(t, maxPageSize, ClampPageSize(5000))
}

func TestListTransactionsRejectsMalformedCursor(t *testing.T) {
	svc := NewLedgerService(newFakeStore())

	_, err := svc.ListTransactions(context.Background(), 7, "%%%", 10)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "cursor", validationErr.Field)
}

func TestUncreditedSellerHasZeroBalance(t *testing.T) {
	svc := NewLedgerService(newFakeStore())

	bal, err := svc.GetBalance(context.Background(), 42)
	require.NoError(t, err)
	assert.Zero(t, bal.Balance)
}

func TestAuditConsistentBalance(t *testing.T) {
	st := newFakeStore()
	st.setBalance(7, 2000)

	audit, err := NewLedgerService(st).AuditSeller(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, audit.Consistent())
}
