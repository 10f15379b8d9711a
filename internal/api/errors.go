package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"commerce-ledger/internal/service"
	"commerce-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError maps a service error onto an HTTP status and JSON body
func writeError(c *gin.Context, err error) {
	var (
		validation *service.ValidationError
		authz      *service.AuthorizationError
		notFound   *service.NotFoundError
		funds      *service.InsufficientFundsError
		points     *service.InsufficientPointsError
		limited    *service.RateLimitedError
		gateway    *service.ExternalGatewayError
		risk       *service.ReconciliationRiskError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "field": validation.Field, "details": validation.Message})

	case errors.Is(err, service.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": "Invalid state", "details": err.Error()})

	case errors.As(err, &authz):
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden", "details": err.Error()})

	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found", "details": err.Error()})

	case errors.As(err, &funds):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     "Insufficient funds",
			"details":   err.Error(),
			"balance":   funds.Balance,
			"required":  funds.Required,
			"shortfall": funds.Shortfall,
		})

	case errors.As(err, &points):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     "Insufficient points",
			"details":   err.Error(),
			"points":    points.Points,
			"required":  points.Required,
			"shortfall": points.Shortfall,
		})

	case errors.As(err, &limited):
		retry := time.Until(limited.RetryAfter).Seconds()
		if retry < 1 {
			retry = 1
		}
		c.Header("Retry-After", strconv.Itoa(int(retry)))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "Already scanned today",
			"details":     err.Error(),
			"retry_after": limited.RetryAfter,
		})

	case errors.As(err, &risk):
		c.Set(retainIdempotencyKey, true)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":        "Reconciliation required",
			"details":      "the payment was processed but could not be recorded; support has been alerted",
			"operation_id": risk.OperationID,
		})

	case errors.As(err, &gateway):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment gateway error", "details": err.Error()})

	default:
		util.GetLogger().Error("Unhandled request error",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func badRequest(c *gin.Context, msg string, err error) {
	body := gin.H{"error": msg}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}
