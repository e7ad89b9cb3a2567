package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// WasCallbackSeen reports whether a provider checkout reference has already
// been reconciled. This is a fast-path dedupe only; the database status
// guard is what actually makes callback processing idempotent.
func (c *Client) WasCallbackSeen(ctx context.Context, checkoutRequestID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, fmt.Sprintf("callback:%s", checkoutRequestID)).Result()
	return n > 0, err
}

// MarkCallbackSeen records a reconciled checkout reference. Callers must
// only mark after the terminal transition committed, or a provider retry
// after a transient failure would be dropped as a duplicate.
func (c *Client) MarkCallbackSeen(ctx context.Context, checkoutRequestID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("callback:%s", checkoutRequestID), "1", ttl).Result()
}

// CacheDashboard stores a serialized dashboard payload with TTL
func (c *Client) CacheDashboard(ctx context.Context, businessID int64, payload []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("dashboard:%d", businessID), payload, ttl).Err()
}

// GetCachedDashboard retrieves a cached dashboard payload, or nil on miss
func (c *Client) GetCachedDashboard(ctx context.Context, businessID int64) ([]byte, error) {
	payload, err := c.rdb.Get(ctx, fmt.Sprintf("dashboard:%d", businessID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
