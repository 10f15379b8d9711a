package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"commerce-ledger/config"
	"commerce-ledger/internal/util"

	"go.uber.org/zap"
)

// APIError is a non-2xx answer from the gateway
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to a Stripe-compatible payments API
type Client struct {
	baseURL   string
	secretKey string
	currency  string
	http      *http.Client
	logger    *zap.Logger
}

// NewClient creates a gateway client whose calls time out after cfg.Timeout
func NewClient(cfg config.GatewayConfig) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		currency:  "usd",
		http:      &http.Client{Timeout: cfg.Timeout},
		logger:    util.GetLogger(),
	}
}

// Refund returns amount of the captured payment to the buyer
func (c *Client) Refund(ctx context.Context, paymentReference string, amount int64, idempotencyKey string) (string, error) {
	ctx, span := util.StartSpan(ctx, "Gateway.Refund")
	defer span.End()

	form := url.Values{}
	form.Set("payment_intent", paymentReference)
	form.Set("amount", strconv.FormatInt(amount, 10))

	return c.post(ctx, "/v1/refunds", form, idempotencyKey)
}

// Transfer sends amount to a seller's connected account
func (c *Client) Transfer(ctx context.Context, destination string, amount int64, idempotencyKey string) (string, error) {
	ctx, span := util.StartSpan(ctx, "Gateway.Transfer")
	defer span.End()

	form := url.Values{}
	form.Set("destination", destination)
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", c.currency)

	return c.post(ctx, "/v1/transfers", form, idempotencyKey)
}

type objectResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, form url.Values, idempotencyKey string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var parsed errorResponse
		if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
			apiErr.Type = parsed.Error.Type
			apiErr.Code = parsed.Error.Code
			apiErr.Message = parsed.Error.Message
		}
		c.logger.Warn("Gateway rejected request",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code))
		return "", apiErr
	}

	var obj objectResponse
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", fmt.Errorf("decode gateway response: %w", err)
	}
	if obj.ID == "" {
		return "", fmt.Errorf("gateway response for %s has no id", path)
	}

	c.logger.Debug("Gateway request succeeded", zap.String("path", path), zap.String("id", obj.ID))
	return obj.ID, nil
}
