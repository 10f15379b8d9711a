package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"

	"commerce-ledger/internal/redisclient"
	"commerce-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IdempotencyCache stores the first response for each Idempotency-Key
type IdempotencyCache interface {
	ClaimIdempotencyKey(ctx context.Context, scope, key string) (string, *redisclient.CachedResponse, error)
	StoreIdempotentResponse(ctx context.Context, scope, key, token string, resp *redisclient.CachedResponse) error
	ReleaseIdempotencyKey(ctx context.Context, scope, key, token string) error
}

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// retainIdempotencyKey marks a server error whose response must be replayed
// rather than retried, because the request may already have moved money
const retainIdempotencyKey = "idempotency.retain"

// idempotencyMiddleware replays the stored response when a request repeats an
// Idempotency-Key. Keys are scoped to the acting user. Server errors are not
// stored so the client can retry them, unless the handler set retainIdempotencyKey.
func idempotencyMiddleware(cache IdempotencyCache) gin.HandlerFunc {
	logger := util.GetLogger()

	return func(c *gin.Context) {
		key := c.GetHeader("Idempotency-Key")
		if cache == nil || key == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		scope := strconv.FormatInt(actorID(c), 10) + ":" + c.FullPath()

		token, cached, err := cache.ClaimIdempotencyKey(ctx, scope, key)
		switch {
		case errors.Is(err, redisclient.ErrRequestInFlight):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "A request with this Idempotency-Key is in progress"})
			return
		case err != nil:
			logger.Warn("Idempotency cache unavailable", zap.Error(err))
			c.Next()
			return
		case cached != nil:
			c.Header("Idempotent-Replayed", "true")
			c.Data(cached.Status, "application/json; charset=utf-8", cached.Body)
			c.Abort()
			return
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		status := rec.Status()
		if status >= http.StatusInternalServerError && !c.GetBool(retainIdempotencyKey) {
			if err := cache.ReleaseIdempotencyKey(context.WithoutCancel(ctx), scope, key, token); err != nil {
				logger.Warn("Failed to release idempotency key", zap.Error(err))
			}
			return
		}

		resp := &redisclient.CachedResponse{Status: status, Body: rec.body.Bytes()}
		if err := cache.StoreIdempotentResponse(context.WithoutCancel(ctx), scope, key, token, resp); err != nil {
			logger.Warn("Failed to store idempotent response", zap.Error(err))
		}
	}
}
