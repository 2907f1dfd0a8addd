package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// CallbackDedupe implements ports.CallbackDedupe using Redis SET NX. It is a
// best-effort fast path: the transaction status compare-and-set remains the
// authoritative duplicate guard.
type CallbackDedupe struct {
	client *goredis.Client
	prefix string
}

// NewCallbackDedupe creates a new Redis-backed callback dedupe.
func NewCallbackDedupe(client *goredis.Client) *CallbackDedupe {
	return &CallbackDedupe{
		client: client,
		prefix: "callback:",
	}
}

// CheckAndSet atomically checks if a callback key exists, sets it if not.
// Returns true if the callback is new, false if it was already seen.
func (d *CallbackDedupe) CheckAndSet(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	result, err := d.client.SetArgs(ctx, d.prefix+key, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if err == goredis.Nil {
			// Key already exists — duplicate callback
			return false, nil
		}
		return false, fmt.Errorf("redis callback dedupe: %w", err)
	}
	return result == "OK", nil
}
