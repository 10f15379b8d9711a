package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"commerce-ledger/config"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/jpillora/backoff"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

//go:embed scripts/store_response.lua
var storeResponseScript string

var (
	// ErrLockNotAcquired is returned when another holder keeps the lease past the wait budget
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrRequestInFlight is returned when the same idempotency key is still being processed
	ErrRequestInFlight = errors.New("request with this idempotency key is in flight")
)

const claimPrefix = "claim:"

// CachedResponse is a completed HTTP response stored under an idempotency key
type CachedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

type Client struct {
	rdb            *redis.Client
	releaseScript  *redis.Script
	storeScript    *redis.Script
	lockTTL        time.Duration
	lockWait       time.Duration
	idempotencyTTL time.Duration
}

// NewClient connects to Redis and loads the Lua scripts
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewFromRedis(rdb, cfg), nil
}

// NewFromRedis wraps an existing connection
func NewFromRedis(rdb *redis.Client, cfg config.RedisConfig) *Client {
	return &Client{
		rdb:            rdb,
		releaseScript:  redis.NewScript(releaseLockScript),
		storeScript:    redis.NewScript(storeResponseScript),
		lockTTL:        cfg.SellerLockTTL,
		lockWait:       cfg.SellerLockWait,
		idempotencyTTL: cfg.IdempotencyTTL,
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func sellerLockKey(sellerID int64) string {
	return fmt.Sprintf("lock:seller:%d", sellerID)
}

// AcquireSellerLock takes the seller's balance lease, polling until the
// configured wait elapses. The returned token is needed to release it.
func (c *Client) AcquireSellerLock(ctx context.Context, sellerID int64) (string, error) {
	key := sellerLockKey(sellerID)
	token := uuid.NewString()

	b := &backoff.Backoff{
		Min:    20 * time.Millisecond,
		Max:    500 * time.Millisecond,
		Factor: 2,
		Jitter: true,
	}
	deadline := time.Now().Add(c.lockWait)

	for {
		ok, err := c.rdb.SetNX(ctx, key, token, c.lockTTL).Result()
		if err != nil {
			return "", fmt.Errorf("acquire seller lock: %w", err)
		}
		if ok {
			return token, nil
		}

		wait := b.Duration()
		if time.Now().Add(wait).After(deadline) {
			return "", ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
}

// ReleaseSellerLock drops the lease if token still owns it
func (c *Client) ReleaseSellerLock(ctx context.Context, sellerID int64, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{sellerLockKey(sellerID)}, token).Result()
	if err != nil {
		return fmt.Errorf("release seller lock script failed: %w", err)
	}
	return nil
}

func idempotencyKey(scope, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", scope, key)
}

// ClaimIdempotencyKey reserves key for one request. It returns a claim token
// for a fresh key, the stored response for a completed one, or
// ErrRequestInFlight while another request holds the claim.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, scope, key string) (string, *CachedResponse, error) {
	rkey := idempotencyKey(scope, key)
	token := claimPrefix + uuid.NewString()

	ok, err := c.rdb.SetNX(ctx, rkey, token, c.lockTTL).Result()
	if err != nil {
		return "", nil, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return token, nil, nil
	}

	val, err := c.rdb.Get(ctx, rkey).Result()
	if errors.Is(err, redis.Nil) {
		// claim expired between SETNX and GET
		return "", nil, ErrRequestInFlight
	}
	if err != nil {
		return "", nil, fmt.Errorf("read idempotency key: %w", err)
	}
	if strings.HasPrefix(val, claimPrefix) {
		return "", nil, ErrRequestInFlight
	}

	var cached CachedResponse
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		return "", nil, fmt.Errorf("decode cached response: %w", err)
	}
	return "", &cached, nil
}

// StoreIdempotentResponse replaces the claim with the final response
func (c *Client) StoreIdempotentResponse(ctx context.Context, scope, key, token string, resp *CachedResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode cached response: %w", err)
	}

	_, err = c.storeScript.Run(ctx, c.rdb,
		[]string{idempotencyKey(scope, key)},
		token, string(data), c.idempotencyTTL.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("store response script failed: %w", err)
	}
	return nil
}

// ReleaseIdempotencyKey drops an unfinished claim so the request can be retried
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, scope, key, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{idempotencyKey(scope, key)}, token).Result()
	if err != nil {
		return fmt.Errorf("release idempotency key script failed: %w", err)
	}
	return nil
}
