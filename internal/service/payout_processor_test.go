package service

import (
	"context"
	"errors"
	"testing"

	"commerce-ledger/internal/models"

	"github.com/raulk/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payoutFixture struct {
	store   *fakeStore
	gateway *fakeGateway
	events  *fakeEvents
	proc    *PayoutProcessor
}

func newPayoutFixture() *payoutFixture {
	f := &payoutFixture{
		store:   newFakeStore(),
		gateway: &fakeGateway{reference: "tr_456"},
		events:  &fakeEvents{},
	}
	clk := clock.NewMock()
	reconciler := NewReconciler(f.store, f.events, clk, defaultStaleAfter)
	f.proc = NewPayoutProcessor(f.store, f.gateway, &fakeLocker{}, f.events, reconciler, 100, clk)
	f.store.accounts[7] = &models.PayoutAccount{SellerID: 7, Destination: "acct_7", Verified: true}
	return f
}

func TestPayoutTransfersWholeBalance(t *testing.T) {
	f := newPayoutFixture()
	f.store.setBalance(7, 1250)

	result, err := f.proc.Payout(context.Background(), 7, 7)
	require.NoError(t, err)

	assert.Equal(t, int64(1250), result.Amount)
	assert.Equal(t, "tr_456", result.TransferID)
	assert.Equal(t, int64(0), result.Balance)
	assert.Equal(t, int64(0), f.store.balance(7))
	assert.Equal(t, []string{"transfer:acct_7"}, f.gateway.calls)
	require.Len(t, f.store.payouts, 1)
	assert.Equal(t, f.gateway.keys[0], f.store.ops[1].IdempotencyKey)
	assert.True(t, f.events.has(func(ev interface{}) bool {
		e, ok := ev.(*models.PayoutCompletedEvent)
		return ok && e.Amount == 1250
	}))
}

func TestPayoutBelowMinimum(t *testing.T) {
	f := newPayoutFixture()
	f.store.setBalance(7, 60)

	_, err := f.proc.Payout(context.Background(), 7, 7)

	var fundsErr *InsufficientFundsError
	require.ErrorAs(t, err, &fundsErr)
	assert.Equal(t, int64(40), fundsErr.Shortfall)
	assert.Empty(t, f.gateway.calls)
}

func TestPayoutNeedsVerifiedAccount(t *testing.T) {
	f := newPayoutFixture()
	f.store.setBalance(7, 1000)
	f.store.accounts[7].Verified = false

	_, err := f.proc.Payout(context.Background(), 7, 7)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "payout_account", validationErr.Field)

	delete(f.store.accounts, 7)
	_, err = f.proc.Payout(context.Background(), 7, 7)
	assert.ErrorAs(t, err, &validationErr)
	assert.Empty(t, f.gateway.calls)
}

func TestPayoutOnlyBySeller(t *testing.T) {
	f := newPayoutFixture()
	f.store.setBalance(7, 1000)

	_, err := f.proc.Payout(context.Background(), 7, 8)

	var authErr *AuthorizationError
	assert.ErrorAs(t, err, &authErr)
	assert.Equal(t, int64(1000), f.store.balance(7))
}

func TestPayoutGatewayFailure(t *testing.T) {
	f := newPayoutFixture()
	f.store.setBalance(7, 1000)
	f.gateway.err = errors.New("account closed")

	_, err := f.proc.Payout(context.Background(), 7, 7)

	var gwErr *ExternalGatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, int64(1000), f.store.balance(7))
	assert.Equal(t, models.GatewayOpStatusFailed, f.store.operation(1).Status)
}

func TestPayoutCommitFailureAlerts(t *testing.T) {
	f := newPayoutFixture()
	f.store.setBalance(7, 1000)
	f.store.applyErr = errors.New("serialization failure")

	_, err := f.proc.Payout(context.Background(), 7, 7)

	var riskErr *ReconciliationRiskError
	require.ErrorAs(t, err, &riskErr)
	assert.Equal(t, "tr_456", riskErr.GatewayReference)
	assert.Equal(t, models.GatewayOpStatusReconciliationRisk, f.store.operation(1).Status)
	require.Len(t, f.events.alerts(), 1)
	assert.Nil(t, f.events.alerts()[0].OrderID)
}

func TestRegisterPayoutAccount(t *testing.T) {
	f := newPayoutFixture()
	f.store.setBalance(8, 1000)

	_, err := f.proc.RegisterAccount(context.Background(), 8, &PayoutAccountRequest{Destination: "  "})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)

	account, err := f.proc.RegisterAccount(context.Background(), 8, &PayoutAccountRequest{Destination: " acct_8 ", Verified: true})
	require.NoError(t, err)
	assert.Equal(t, "acct_8", account.Destination)

	result, err := f.proc.Payout(context.Background(), 8, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), result.Amount)
	assert.Equal(t, []string{"transfer:acct_8"}, f.gateway.calls)
}

func TestPayoutAfterReconciliationRiskIsRefused(t *testing.T) {
	f := newPayoutFixture()
	f.store.setBalance(7, 1250)
	f.store.applyErr = errors.New("connection lost")

	_, err := f.proc.Payout(context.Background(), 7, 7)
	var riskErr *ReconciliationRiskError
	require.ErrorAs(t, err, &riskErr)

	f.store.applyErr = nil
	_, err = f.proc.Payout(context.Background(), 7, 7)

	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, []string{"transfer:acct_7"}, f.gateway.calls)
	assert.Equal(t, int64(1250), f.store.balance(7))
}

func TestPayoutWaitsForPendingRefund(t *testing.T) {
	f := newPayoutFixture()
	f.store.setBalance(7, 1250)
	orderID := int64(10)
	require.NoError(t, f.store.CreateGatewayOperation(context.Background(), &models.GatewayOperation{
		Kind:     models.GatewayOpRefund,
		SellerID: 7,
		OrderID:  &orderID,
		Amount:   1000,
	}))

	_, err := f.proc.Payout(context.Background(), 7, 7)

	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, models.GatewayOpStatusPending, stateErr.Status)
	assert.Empty(t, f.gateway.calls)
}
