package service

import (
	"context"
	"errors"
	"testing"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/store"

	"github.com/raulk/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderFixture struct {
	store  *fakeStore
	events *fakeEvents
	hooks  *Dispatcher
	svc    *OrderService
}

func newOrderFixture() *orderFixture {
	f := &orderFixture{
		store:  newFakeStore(),
		events: &fakeEvents{},
		hooks:  NewDispatcher(),
	}
	f.svc = NewOrderService(f.store, f.events, f.hooks, testFees(), clock.NewMock())
	return f
}

func validCheckout() *CheckoutRequest {
	ref := "pi_1"
	return &CheckoutRequest{
		CheckoutKey:      "cs_1",
		BuyerID:          2,
		SellerID:         7,
		PaymentReference: &ref,
		Items:            []CheckoutItemRequest{{ItemID: 1, Quantity: 1}},
	}
}

func TestCheckoutValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *CheckoutRequest)
		field  string
	}{
		{"missing key", func(r *CheckoutRequest) { r.CheckoutKey = " " }, "checkout_key"},
		{"self purchase", func(r *CheckoutRequest) { r.BuyerID = r.SellerID }, "buyer_id"},
		{"negative shipping", func(r *CheckoutRequest) { r.ShippingCost = -1 }, "shipping_cost"},
		{"no items", func(r *CheckoutRequest) { r.Items = nil }, "items"},
		{"zero quantity", func(r *CheckoutRequest) { r.Items[0].Quantity = 0 }, "items"},
		{"duplicate item", func(r *CheckoutRequest) {
			r.Items = append(r.Items, CheckoutItemRequest{ItemID: 1, Quantity: 2})
		}, "items"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOrderFixture()
			req := validCheckout()
			tt.mutate(req)

			_, err := f.svc.RecordCheckout(context.Background(), req)

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}

func TestCheckoutStockErrorsAreValidation(t *testing.T) {
	f := newOrderFixture()
	f.store.checkoutErr = store.ErrInsufficientStock

	_, err := f.svc.RecordCheckout(context.Background(), validCheckout())

	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestCheckoutPublishesSaleAndMilestone(t *testing.T) {
	f := newOrderFixture()
	order := cardOrder(1, 2, 7, 1000, models.OrderStatusPaid)
	f.store.checkoutResult = &store.CheckoutResult{
		Order:   order,
		Created: true,
		Credit:  &store.SaleCreditResult{Credited: true, Amount: 950, SaleCount: 10, Balance: 950},
	}

	resp, err := f.svc.RecordCheckout(context.Background(), validCheckout())
	require.NoError(t, err)
	f.hooks.Wait()

	assert.False(t, resp.Replayed)
	assert.True(t, f.events.has(func(ev interface{}) bool {
		e, ok := ev.(*models.SaleRecordedEvent)
		return ok && e.Amount == 950
	}))
	assert.True(t, f.events.has(func(ev interface{}) bool {
		e, ok := ev.(*models.SalesMilestoneReachedEvent)
		return ok && e.SaleCount == 10 && e.SellerID == 7
	}))
}

func TestCheckoutOffMilestoneHasNoHook(t *testing.T) {
	f := newOrderFixture()
	f.store.checkoutResult = &store.CheckoutResult{
		Order:   cardOrder(1, 2, 7, 1000, models.OrderStatusPaid),
		Created: true,
		Credit:  &store.SaleCreditResult{Credited: true, Amount: 950, SaleCount: 11},
	}

	_, err := f.svc.RecordCheckout(context.Background(), validCheckout())
	require.NoError(t, err)
	f.hooks.Wait()

	assert.Equal(t, 1, f.events.count())
}

func TestCheckoutReplayHasNoSideEffects(t *testing.T) {
	f := newOrderFixture()
	f.store.checkoutResult = &store.CheckoutResult{Order: cardOrder(1, 2, 7, 1000, models.OrderStatusPaid)}

	resp, err := f.svc.RecordCheckout(context.Background(), validCheckout())
	require.NoError(t, err)
	f.hooks.Wait()

	assert.True(t, resp.Replayed)
	assert.Equal(t, 0, f.events.count())
}

func TestCheckoutSurvivesPublishFailure(t *testing.T) {
	f := newOrderFixture()
	f.events.err = errors.New("broker down")
	f.store.checkoutResult = &store.CheckoutResult{
		Order:   cardOrder(1, 2, 7, 1000, models.OrderStatusPaid),
		Created: true,
		Credit:  &store.SaleCreditResult{Credited: true, Amount: 950, SaleCount: 1},
	}

	_, err := f.svc.RecordCheckout(context.Background(), validCheckout())
	f.hooks.Wait()
	assert.NoError(t, err)
}

func TestShipThenDeliver(t *testing.T) {
	f := newOrderFixture()
	f.store.addOrder(cardOrder(10, 2, 7, 1000, models.OrderStatusPaid))

	order, err := f.svc.MarkShipped(context.Background(), 10, 7)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, order.Status)

	order, err = f.svc.MarkDelivered(context.Background(), 10, 7)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, order.Status)
	f.hooks.Wait()

	assert.True(t, f.events.has(func(ev interface{}) bool {
		_, ok := ev.(*models.OrderDeliveredEvent)
		return ok
	}))
	assert.True(t, f.events.has(func(ev interface{}) bool {
		e, ok := ev.(*models.BadgeEvaluationRequestedEvent)
		return ok && e.SellerID == 7
	}))
}

func TestInvalidTransitions(t *testing.T) {
	f := newOrderFixture()
	f.store.addOrder(cardOrder(10, 2, 7, 1000, models.OrderStatusPaid))
	f.store.addOrder(cardOrder(11, 2, 7, 1000, models.OrderStatusRefunded))

	_, err := f.svc.MarkDelivered(context.Background(), 10, 7)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.MarkShipped(context.Background(), 11, 7)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.MarkShipped(context.Background(), 10, 8)
	var authErr *AuthorizationError
	assert.ErrorAs(t, err, &authErr)

	assert.Equal(t, models.OrderStatusPaid, f.store.order(10).Status)
}

func TestConcurrentChangeReportsCurrentStatus(t *testing.T) {
	f := newOrderFixture()
	f.store.addOrder(cardOrder(10, 2, 7, 1000, models.OrderStatusPaid))
	f.store.staleNext = true

	_, err := f.svc.MarkShipped(context.Background(), 10, 7)

	var stateErr *OrderStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, models.OrderStatusRefunded, stateErr.Status)
}

func TestRequestRefundOnce(t *testing.T) {
	f := newOrderFixture()
	f.store.addOrder(cardOrder(10, 2, 7, 1000, models.OrderStatusPaid))
	req := &RefundRequest{Reason: "  damaged  "}

	order, err := f.svc.RequestRefund(context.Background(), 10, 2, req)
	require.NoError(t, err)
	require.NotNil(t, order.RefundRequestedAt)
	assert.Equal(t, "damaged", *order.RefundReason)
	assert.Equal(t, models.OrderStatusPaid, order.Status)

	_, err = f.svc.RequestRefund(context.Background(), 10, 2, req)
	var stateErr *OrderStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "a refund was already requested", stateErr.Reason)
}

func TestRequestRefundRules(t *testing.T) {
	f := newOrderFixture()
	f.store.addOrder(cardOrder(10, 2, 7, 1000, models.OrderStatusPaid))
	f.store.addOrder(cashOrder(11, 2, 7, 1000, models.OrderStatusPaid))
	f.store.addOrder(cardOrder(12, 2, 7, 1000, models.OrderStatusShipped))

	_, err := f.svc.RequestRefund(context.Background(), 10, 2, &RefundRequest{})
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)

	_, err = f.svc.RequestRefund(context.Background(), 10, 7, &RefundRequest{Reason: "x"})
	var authErr *AuthorizationError
	assert.ErrorAs(t, err, &authErr)

	_, err = f.svc.RequestRefund(context.Background(), 11, 2, &RefundRequest{Reason: "x"})
	assert.ErrorAs(t, err, &validationErr)

	_, err = f.svc.RequestRefund(context.Background(), 12, 2, &RefundRequest{Reason: "x"})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCancelAndRelistCashOrder(t *testing.T) {
	f := newOrderFixture()
	f.store.addOrder(cashOrder(10, 2, 7, 1000, models.OrderStatusPaid))
	f.store.items[10] = []models.OrderItem{{ID: 1, OrderID: 10, ItemID: 5, Quantity: 2, UnitPrice: 500}}

	_, err := f.svc.Relist(context.Background(), 10, 7)
	assert.ErrorIs(t, err, ErrInvalidState)

	order, err := f.svc.Cancel(context.Background(), 10, 7)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCanceled, order.Status)
	assert.True(t, f.events.has(func(ev interface{}) bool {
		_, ok := ev.(*models.OrderCanceledEvent)
		return ok
	}))

	details, err := f.svc.Relist(context.Background(), 10, 7)
	require.NoError(t, err)
	assert.Len(t, details.Items, 1)
	assert.NotNil(t, details.Order.InventoryRestoredAt)

	_, err = f.svc.Relist(context.Background(), 10, 7)
	var stateErr *OrderStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "inventory was already restored", stateErr.Reason)
}

func TestCancelRejectsCardOrder(t *testing.T) {
	f := newOrderFixture()
	f.store.addOrder(cardOrder(10, 2, 7, 1000, models.OrderStatusPaid))

	_, err := f.svc.Cancel(context.Background(), 10, 7)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, models.OrderStatusPaid, f.store.order(10).Status)
}

func TestGetOrderVisibility(t *testing.T) {
	f := newOrderFixture()
	f.store.addOrder(cardOrder(10, 2, 7, 1000, models.OrderStatusPaid))

	_, err := f.svc.GetOrder(context.Background(), 10, 2)
	assert.NoError(t, err)
	_, err = f.svc.GetOrder(context.Background(), 10, 7)
	assert.NoError(t, err)

	_, err = f.svc.GetOrder(context.Background(), 10, 3)
	var authErr *AuthorizationError
	assert.ErrorAs(t, err, &authErr)

	_, err = f.svc.GetOrder(context.Background(), 404, 2)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}
