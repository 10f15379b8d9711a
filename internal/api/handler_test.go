package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/redisclient"
	"commerce-ledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type fakeOrders struct {
	OrderService
	checkouts int
}

func (f *fakeOrders) RecordCheckout(_ context.Context, req *service.CheckoutRequest) (*service.CheckoutResponse, error) {
	f.checkouts++
	return &service.CheckoutResponse{Order: &models.Order{ID: 1, SellerID: req.SellerID, BuyerID: req.BuyerID}}, nil
}

func (f *fakeOrders) MarkShipped(_ context.Context, orderID, sellerID int64) (*models.Order, error) {
	if sellerID != 7 {
		return nil, &service.AuthorizationError{ActorID: sellerID, Action: "ship this order"}
	}
	return nil, &service.OrderStateError{OrderID: orderID, Status: models.OrderStatusRefunded, Action: "ship"}
}

type fakeRefunds struct {
	err   error
	calls int
}

func (f *fakeRefunds) Refund(_ context.Context, orderID, _ int64) (*service.RefundResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &service.RefundResult{OrderID: orderID, RefundedAmount: 1000, PlatformFee: 50, SellerDeduction: 950}, nil
}

type fakePoints struct {
	PointsAwarder
}

func (f *fakePoints) AwardScan(_ context.Context, memberID, businessID int64) (*service.ScanAward, error) {
	return nil, &service.RateLimitedError{MemberID: memberID, BusinessID: businessID, RetryAfter: time.Now().Add(time.Hour)}
}

type fakeOffers struct {
	OfferNegotiator
}

func (f *fakeOffers) Respond(_ context.Context, offerID, _ int64, req *service.OfferResponseRequest) (*models.ResaleOffer, error) {
	return nil, &service.InvalidOfferStateError{OfferID: offerID, Status: models.OfferStatusDeclined, Expected: models.OfferStatusPending}
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*redisclient.CachedResponse
}

func (m *memoryCache) ClaimIdempotencyKey(_ context.Context, scope, key string) (string, *redisclient.CachedResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if resp, ok := m.entries[scope+key]; ok {
		if resp == nil {
			return "", nil, redisclient.ErrRequestInFlight
		}
		return "", resp, nil
	}
	m.entries[scope+key] = nil
	return "token", nil, nil
}

func (m *memoryCache) StoreIdempotentResponse(_ context.Context, scope, key, _ string, resp *redisclient.CachedResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	body := make([]byte, len(resp.Body))
	copy(body, resp.Body)
	m.entries[scope+key] = &redisclient.CachedResponse{Status: resp.Status, Body: body}
	return nil
}

func (m *memoryCache) ReleaseIdempotencyKey(_ context.Context, scope, key, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, scope+key)
	return nil
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type testServer struct {
	router *gin.Engine
	auth   *Authenticator
	orders *fakeOrders
}

func newTestServer(t *testing.T, refunds *fakeRefunds, deps map[string]Pinger) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	auth := NewAuthenticator(testSecret)
	orders := &fakeOrders{}
	h := NewHandler(Services{
		Orders:  orders,
		Refunds: refunds,
		Points:  &fakePoints{},
		Offers:  &fakeOffers{},
	}, auth, &memoryCache{entries: map[string]*redisclient.CachedResponse{}}, deps)

	router := gin.New()
	h.SetupRoutes(router)
	return &testServer{router: router, auth: auth, orders: orders}
}

func (s *testServer) do(t *testing.T, method, path string, userID int64, role, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		token, err := s.auth.Issue(userID, role, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeRefunds{}, nil)
	w := s.do(t, http.MethodGet, "/health", 0, "", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadinessReportsFailedDependency(t *testing.T) {
	s := newTestServer(t, &fakeRefunds{}, map[string]Pinger{"postgres": failingPinger{}})
	w := s.do(t, http.MethodGet, "/ready", 0, "", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "postgres")
}

func TestRequestsNeedAValidToken(t *testing.T) {
	s := newTestServer(t, &fakeRefunds{}, nil)

	w := s.do(t, http.MethodGet, "/api/v1/orders/1", 0, "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/orders/1", 0, "", "", map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	auth := NewAuthenticator(testSecret)
	auth.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := auth.Issue(1, RoleMember, time.Hour)
	require.NoError(t, err)

	_, err = NewAuthenticator(testSecret).Verify(token)
	assert.Error(t, err)

	_, err = NewAuthenticator("other-secret").Verify(token)
	assert.Error(t, err)
}

func TestCheckoutRequiresSystemRole(t *testing.T) {
	s := newTestServer(t, &fakeRefunds{}, nil)
	body := `{"checkout_key":"k1","buyer_id":2,"seller_id":3,"shipping_cost":0,"items":[{"item_id":1,"quantity":1}]}`

	w := s.do(t, http.MethodPost, "/api/v1/checkouts", 2, RoleMember, body, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/checkouts", 99, RoleSystem, body, nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, s.orders.checkouts)
}

func TestCheckoutRejectsMalformedBody(t *testing.T) {
	s := newTestServer(t, &fakeRefunds{}, nil)
	w := s.do(t, http.MethodPost, "/api/v1/checkouts", 99, RoleSystem, `{"buyer_id":2}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefundInsufficientFundsReportsShortfall(t *testing.T) {
	s := newTestServer(t, &fakeRefunds{err: &service.InsufficientFundsError{
		SellerID: 7, Balance: 900, Required: 950, Shortfall: 50,
	}}, nil)

	w := s.do(t, http.MethodPost, "/api/v1/orders/10/refund", 7, RoleMember, "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, float64(50), decode(t, w)["shortfall"])
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"gateway", &service.ExternalGatewayError{Operation: "refund", Err: errors.New("timeout")}, http.StatusBadGateway},
		{"reconciliation", &service.ReconciliationRiskError{OperationID: 4, Err: errors.New("db down")}, http.StatusInternalServerError},
		{"not found", &service.NotFoundError{Resource: "order", ID: 10}, http.StatusNotFound},
		{"validation", &service.ValidationError{Field: "order", Message: "cash order"}, http.StatusBadRequest},
		{"state", &service.InvalidStateError{Resource: "seller", ID: 7, Status: "locked", Reason: "busy"}, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, &fakeRefunds{err: tc.err}, nil)
			w := s.do(t, http.MethodPost, "/api/v1/orders/10/refund", 7, RoleMember, "", nil)
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestInvalidTransitionIsConflict(t *testing.T) {
	s := newTestServer(t, &fakeRefunds{}, nil)

	w := s.do(t, http.MethodPost, "/api/v1/orders/10/ship", 7, RoleMember, "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/orders/10/ship", 8, RoleMember, "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestScanRateLimited(t *testing.T) {
	s := newTestServer(t, &fakeRefunds{}, nil)
	w := s.do(t, http.MethodPost, "/api/v1/scans", 3, RoleMember, `{"business_id":5}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestOfferResponseInWrongStateIsConflict(t *testing.T) {
	s := newTestServer(t, &fakeRefunds{}, nil)
	w := s.do(t, http.MethodPatch, "/api/v1/offers/4", 7, RoleMember, `{"status":"accepted"}`, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestIdempotencyKeyReplaysResponse(t *testing.T) {
	s := newTestServer(t, &fakeRefunds{}, nil)
	body := `{"checkout_key":"k1","buyer_id":2,"seller_id":3,"shipping_cost":0,"items":[{"item_id":1,"quantity":1}]}`
	headers := map[string]string{"Idempotency-Key": "abc"}

	first := s.do(t, http.MethodPost, "/api/v1/checkouts", 99, RoleSystem, body, headers)
	require.Equal(t, http.StatusCreated, first.Code)

	second := s.do(t, http.MethodPost, "/api/v1/checkouts", 99, RoleSystem, body, headers)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, s.orders.checkouts)
}

func TestSellerDataIsPrivate(t *testing.T) {
	s := newTestServer(t, &fakeRefunds{}, nil)
	w := s.do(t, http.MethodGet, "/api/v1/sellers/7/balance", 8, RoleMember, "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReconciliationRiskIsReplayedNotRetried(t *testing.T) {
	refunds := &fakeRefunds{err: &service.ReconciliationRiskError{OperationID: 4, Err: errors.New("db down")}}
	s := newTestServer(t, refunds, nil)
	headers := map[string]string{"Idempotency-Key": "refund-10"}

	first := s.do(t, http.MethodPost, "/api/v1/orders/10/refund", 7, RoleMember, "", headers)
	require.Equal(t, http.StatusInternalServerError, first.Code)

	second := s.do(t, http.MethodPost, "/api/v1/orders/10/refund", 7, RoleMember, "", headers)
	assert.Equal(t, http.StatusInternalServerError, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, float64(4), decode(t, second)["operation_id"])
	assert.Equal(t, 1, refunds.calls)
}

func TestServerErrorReleasesIdempotencyKey(t *testing.T) {
	refunds := &fakeRefunds{err: errors.New("database unavailable")}
	s := newTestServer(t, refunds, nil)
	headers := map[string]string{"Idempotency-Key": "refund-11"}

	s.do(t, http.MethodPost, "/api/v1/orders/11/refund", 7, RoleMember, "", headers)
	second := s.do(t, http.MethodPost, "/api/v1/orders/11/refund", 7, RoleMember, "", headers)

	assert.Empty(t, second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 2, refunds.calls)
}
