package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"commerce-ledger/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.GatewayConfig{BaseURL: srv.URL + "/", SecretKey: "sk_test", Timeout: timeout})
}

func TestRefundSendsFormAndIdempotencyKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "op-key-1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "pi_123", r.PostForm.Get("payment_intent"))
		assert.Equal(t, "1000", r.PostForm.Get("amount"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"re_abc","status":"succeeded"}`))
	}, time.Second)

	id, err := c.Refund(context.Background(), "pi_123", 1000, "op-key-1")
	require.NoError(t, err)
	assert.Equal(t, "re_abc", id)
}

func TestTransferSendsDestinationAndCurrency(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transfers", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "acct_9", r.PostForm.Get("destination"))
		assert.Equal(t, "250", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		_, _ = w.Write([]byte(`{"id":"tr_1"}`))
	}, time.Second)

	id, err := c.Transfer(context.Background(), "acct_9", 250, "op-key-2")
	require.NoError(t, err)
	assert.Equal(t, "tr_1", id)
}

func TestGatewayErrorIsParsed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"charge_already_refunded","message":"already refunded"}}`))
	}, time.Second)

	_, err := c.Refund(context.Background(), "pi_1", 100, "k")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusPaymentRequired, apiErr.StatusCode)
	assert.Equal(t, "charge_already_refunded", apiErr.Code)
}

func TestGatewayTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	_, err := c.Transfer(context.Background(), "acct_1", 100, "k")
	assert.Error(t, err)
}

func TestResponseWithoutIDIsAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}, time.Second)

	_, err := c.Refund(context.Background(), "pi_1", 100, "k")
	assert.ErrorContains(t, err, "no id")
}
