package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// ViewTracker implements ports.ViewTracker using Redis SET NX: the first
// SET for a (link, viewer) pair within the TTL wins, repeats are not unique.
type ViewTracker struct {
	client *goredis.Client
	prefix string
}

// NewViewTracker creates a new Redis-backed view tracker.
func NewViewTracker(client *goredis.Client) *ViewTracker {
	return &ViewTracker{
		client: client,
		prefix: "linkview:",
	}
}

// MarkViewed returns true when this viewer had not seen the link within the
// tracking window.
func (t *ViewTracker) MarkViewed(ctx context.Context, linkID uuid.UUID, viewerKey string, ttl time.Duration) (bool, error) {
	key := t.prefix + linkID.String() + ":" + viewerKey
	result, err := t.client.SetArgs(ctx, key, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if err == goredis.Nil {
			// Key already exists — repeat view
			return false, nil
		}
		return false, fmt.Errorf("redis view tracker: %w", err)
	}
	return result == "OK", nil
}
