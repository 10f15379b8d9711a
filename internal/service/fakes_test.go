package service

import (
	"context"
	"sync"
	"time"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/store"
)

// fakeStore is an in-memory OrderStore and LedgerStore
type fakeStore struct {
	mu        sync.Mutex
	orders    map[int64]*models.Order
	items     map[int64][]models.OrderItem
	balances  map[int64]*models.SellerBalance
	accounts  map[int64]*models.PayoutAccount
	ops       map[int64]*models.GatewayOperation
	nextOpID  int64
	staleNext bool

	checkoutResult *store.CheckoutResult
	checkoutErr    error
	applyErr       error
	refunds        []store.RefundParams
	payouts        []store.PayoutParams
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:   map[int64]*models.Order{},
		items:    map[int64][]models.OrderItem{},
		balances: map[int64]*models.SellerBalance{},
		accounts: map[int64]*models.PayoutAccount{},
		ops:      map[int64]*models.GatewayOperation{},
	}
}

func cardOrder(id, buyerID, sellerID, total int64, status string) *models.Order {
	ref := "pi_test"
	return &models.Order{ID: id, BuyerID: buyerID, SellerID: sellerID, Total: total, Subtotal: total, Status: status, PaymentReference: &ref}
}

func cashOrder(id, buyerID, sellerID, total int64, status string) *models.Order {
	return &models.Order{ID: id, BuyerID: buyerID, SellerID: sellerID, Total: total, Subtotal: total, Status: status}
}

func (f *fakeStore) addOrder(o *models.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[o.ID] = o
}

func (f *fakeStore) setBalance(sellerID, balance int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[sellerID] = &models.SellerBalance{SellerID: sellerID, Balance: balance, LifetimeEarned: balance}
}

func (f *fakeStore) balance(sellerID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[sellerID]; ok {
		return b.Balance
	}
	return 0
}

func (f *fakeStore) order(id int64) models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.orders[id]
}

func (f *fakeStore) CreateCheckout(_ context.Context, p store.CheckoutParams) (*store.CheckoutResult, error) {
	return f.checkoutResult, f.checkoutErr
}

func (f *fakeStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStore) GetOrderItems(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	return f.items[orderID], nil
}

func (f *fakeStore) ListOrdersBySeller(context.Context, int64, int, int) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeStore) ListOrdersByBuyer(context.Context, int64, int, int) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeStore) TransitionOrder(_ context.Context, orderID int64, from, to string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	if f.staleNext {
		f.staleNext = false
		o.Status = models.OrderStatusRefunded
		return nil, store.ErrStaleState
	}
	if o.Status != from {
		return nil, store.ErrStaleState
	}
	o.Status = to
	cp := *o
	return &cp, nil
}

func (f *fakeStore) RecordRefundRequest(_ context.Context, orderID int64, reason string, note *string, at time.Time) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[orderID]
	if o.Status != models.OrderStatusPaid || o.RefundRequestedAt != nil {
		return nil, store.ErrStaleState
	}
	o.RefundRequestedAt = &at
	o.RefundReason = &reason
	o.RefundNote = note
	cp := *o
	return &cp, nil
}

func (f *fakeStore) RelistOrder(_ context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[orderID]
	if o.InventoryRestoredAt != nil {
		return nil, nil, store.ErrStaleState
	}
	now := time.Now()
	o.InventoryRestoredAt = &now
	cp := *o
	return &cp, f.items[orderID], nil
}

func unresolved(op *models.GatewayOperation) bool {
	return op.Status == models.GatewayOpStatusPending || op.Status == models.GatewayOpStatusReconciliationRisk
}

func (f *fakeStore) CreateGatewayOperation(_ context.Context, op *models.GatewayOperation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.ops {
		if existing.SellerID == op.SellerID && unresolved(existing) {
			return store.ErrOperationInProgress
		}
		if op.OrderID != nil && existing.OrderID != nil && *existing.OrderID == *op.OrderID &&
			existing.Kind == models.GatewayOpRefund && existing.Status != models.GatewayOpStatusFailed {
			return store.ErrOperationInProgress
		}
	}
	f.nextOpID++
	op.ID = f.nextOpID
	op.Status = models.GatewayOpStatusPending
	cp := *op
	f.ops[op.ID] = &cp
	return nil
}

func (f *fakeStore) MarkGatewayOperation(_ context.Context, id int64, status string, reference, errMsg *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.ops[id]
	if !ok {
		return store.ErrOperationNotFound
	}
	op.Status = status
	if reference != nil {
		op.GatewayReference = reference
	}
	if errMsg != nil {
		op.Error = errMsg
	}
	return nil
}

func (f *fakeStore) ListStalePendingOperations(_ context.Context, olderThan time.Time, limit int) ([]models.GatewayOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.GatewayOperation
	for _, op := range f.ops {
		if op.Status == models.GatewayOpStatusPending && op.CreatedAt.Before(olderThan) {
			out = append(out, *op)
		}
	}
	return out, nil
}

func (f *fakeStore) FlagOperation(_ context.Context, id int64, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.ops[id]
	if !ok || op.Status != models.GatewayOpStatusPending {
		return false, nil
	}
	op.Status = models.GatewayOpStatusReconciliationRisk
	op.Error = &reason
	return true, nil
}

func (f *fakeStore) FindUnresolvedOperation(_ context.Context, sellerID int64) (*models.GatewayOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var found *models.GatewayOperation
	for _, op := range f.ops {
		if op.SellerID == sellerID && unresolved(op) && (found == nil || op.ID < found.ID) {
			found = op
		}
	}
	if found == nil {
		return nil, store.ErrOperationNotFound
	}
	cp := *found
	return &cp, nil
}

func (f *fakeStore) operation(id int64) models.GatewayOperation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.ops[id]
}

func (f *fakeStore) GetBalance(_ context.Context, sellerID int64) (*models.SellerBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[sellerID]; ok {
		cp := *b
		return &cp, nil
	}
	return &models.SellerBalance{SellerID: sellerID}, nil
}

func (f *fakeStore) GetPayoutAccount(_ context.Context, sellerID int64) (*models.PayoutAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[sellerID]
	if !ok {
		return nil, store.ErrPayoutAccountNotFound
	}
	return a, nil
}

func (f *fakeStore) ApplyRefund(_ context.Context, p store.RefundParams) (*models.SellerBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	b := f.balances[p.SellerID]
	b.Balance -= p.SellerDeduction
	b.LifetimeRefunded += p.SellerDeduction
	f.orders[p.OrderID].Status = models.OrderStatusRefunded
	f.ops[p.OperationID].Status = models.GatewayOpStatusCommitted
	f.refunds = append(f.refunds, p)
	cp := *b
	return &cp, nil
}

func (f *fakeStore) ApplyPayout(_ context.Context, p store.PayoutParams) (*models.SellerBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	b := f.balances[p.SellerID]
	b.Balance -= p.Amount
	b.LifetimePaidOut += p.Amount
	f.ops[p.OperationID].Status = models.GatewayOpStatusCommitted
	f.payouts = append(f.payouts, p)
	cp := *b
	return &cp, nil
}

func (f *fakeStore) UpsertPayoutAccount(_ context.Context, acct *models.PayoutAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *acct
	f.accounts[acct.SellerID] = &cp
	return nil
}

func (f *fakeStore) ListTransactions(_ context.Context, sellerID int64, cursor string, limit int) (*store.CursorPage, error) {
	return &store.CursorPage{Items: []models.LedgerTransaction{}}, nil
}

func (f *fakeStore) AuditSeller(_ context.Context, sellerID int64) (*store.LedgerAudit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.balances[sellerID]
	return &store.LedgerAudit{
		SellerID:         sellerID,
		Balance:          b.Balance,
		LifetimeEarned:   b.LifetimeEarned,
		LifetimePaidOut:  b.LifetimePaidOut,
		LifetimeRefunded: b.LifetimeRefunded,
		TransactionSum:   b.LifetimeEarned,
	}, nil
}

type fakeGateway struct {
	mu        sync.Mutex
	reference string
	err       error
	calls     []string
	keys      []string
}

func (g *fakeGateway) Refund(_ context.Context, paymentReference string, amount int64, key string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "refund:"+paymentReference)
	g.keys = append(g.keys, key)
	return g.reference, g.err
}

func (g *fakeGateway) Transfer(_ context.Context, destination string, amount int64, key string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "transfer:"+destination)
	g.keys = append(g.keys, key)
	return g.reference, g.err
}

type fakeLocker struct {
	mu       sync.Mutex
	err      error
	acquired int
	released int
	// runs once the lease is granted, before the caller continues
	onAcquire func()
}

func (l *fakeLocker) AcquireSellerLock(context.Context, int64) (string, error) {
	l.mu.Lock()
	if l.err != nil {
		l.mu.Unlock()
		return "", l.err
	}
	l.acquired++
	hook := l.onAcquire
	l.mu.Unlock()
	if hook != nil {
		hook()
	}
	return "token", nil
}

// queueLocker lets every caller arrive before granting the lease to any of
// them, then hands it out one at a time
type queueLocker struct {
	arrived sync.WaitGroup
	lease   sync.Mutex
}

func newQueueLocker(callers int) *queueLocker {
	l := &queueLocker{}
	l.arrived.Add(callers)
	return l
}

func (l *queueLocker) AcquireSellerLock(context.Context, int64) (string, error) {
	l.arrived.Done()
	l.arrived.Wait()
	l.lease.Lock()
	return "token", nil
}

func (l *queueLocker) ReleaseSellerLock(context.Context, int64, string) error {
	l.lease.Unlock()
	return nil
}

func (l *fakeLocker) ReleaseSellerLock(context.Context, int64, string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released++
	return nil
}

// fakeEvents records published events by type
type fakeEvents struct {
	mu     sync.Mutex
	events []interface{}
	err    error
}

func (e *fakeEvents) record(event interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return e.err
}

func (e *fakeEvents) PublishSaleRecorded(_ context.Context, ev *models.SaleRecordedEvent) error {
	return e.record(ev)
}

func (e *fakeEvents) PublishOrderDelivered(_ context.Context, ev *models.OrderDeliveredEvent) error {
	return e.record(ev)
}

func (e *fakeEvents) PublishOrderRefunded(_ context.Context, ev *models.OrderRefundedEvent) error {
	return e.record(ev)
}

func (e *fakeEvents) PublishOrderCanceled(_ context.Context, ev *models.OrderCanceledEvent) error {
	return e.record(ev)
}

func (e *fakeEvents) PublishPayoutCompleted(_ context.Context, ev *models.PayoutCompletedEvent) error {
	return e.record(ev)
}

func (e *fakeEvents) PublishBadgeEvaluationRequested(_ context.Context, ev *models.BadgeEvaluationRequestedEvent) error {
	return e.record(ev)
}

func (e *fakeEvents) PublishSalesMilestoneReached(_ context.Context, ev *models.SalesMilestoneReachedEvent) error {
	return e.record(ev)
}

func (e *fakeEvents) PublishReconciliationAlert(_ context.Context, ev *models.ReconciliationAlertEvent) error {
	return e.record(ev)
}

func (e *fakeEvents) alerts() []*models.ReconciliationAlertEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*models.ReconciliationAlertEvent
	for _, ev := range e.events {
		if a, ok := ev.(*models.ReconciliationAlertEvent); ok {
			out = append(out, a)
		}
	}
	return out
}

func (e *fakeEvents) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

func (e *fakeEvents) has(match func(interface{}) bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ev := range e.events {
		if match(ev) {
			return true
		}
	}
	return false
}
