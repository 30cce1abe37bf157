// Package history remembers candidate ids across runs so the same lead is
// not surfaced twice within a retention window.
package history

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/topic-leads/internal/dedup"
	"github.com/sells-group/topic-leads/internal/store"
)

// DefaultTTL is how long an emitted id stays seen.
const DefaultTTL = 7 * 24 * time.Hour

// StoreHistory keeps seen ids in the run store.
type StoreHistory struct {
	store store.Store
	ttl   time.Duration
}

var _ dedup.History = (*StoreHistory)(nil)

// NewStoreHistory creates a StoreHistory. ttl <= 0 uses DefaultTTL.
func NewStoreHistory(st store.Store, ttl time.Duration) *StoreHistory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &StoreHistory{store: st, ttl: ttl}
}

// Seen implements dedup.History.
func (h *StoreHistory) Seen(ctx context.Context, ids []string) (map[string]bool, error) {
	seen, err := h.store.SeenIDs(ctx, ids)
	return seen, eris.Wrap(err, "history: store seen")
}

// Mark implements dedup.History.
func (h *StoreHistory) Mark(ctx context.Context, ids []string) error {
	return eris.Wrap(h.store.MarkSeen(ctx, ids, h.ttl), "history: store mark")
}

// RedisClient is the subset of go-redis used here.
type RedisClient interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

// RedisHistory keeps seen ids as expiring Redis keys.
type RedisHistory struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

var _ dedup.History = (*RedisHistory)(nil)

// NewRedisHistory creates a RedisHistory. Keys are prefix + id.
func NewRedisHistory(client RedisClient, prefix string, ttl time.Duration) *RedisHistory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = "topic-leads:seen:"
	}
	return &RedisHistory{client: client, prefix: prefix, ttl: ttl}
}

// Seen implements dedup.History.
func (h *RedisHistory) Seen(ctx context.Context, ids []string) (map[string]bool, error) {
	seen := make(map[string]bool)
	if len(ids) == 0 {
		return seen, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = h.prefix + id
	}
	vals, err := h.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, eris.Wrap(err, "history: redis mget")
	}
	for i, v := range vals {
		if v != nil && i < len(ids) {
			seen[ids[i]] = true
		}
	}
	return seen, nil
}

// Mark implements dedup.History. All ids are written in one pipelined
// round trip.
func (h *RedisHistory) Mark(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	stamp := time.Now().UTC().Format(time.RFC3339)
	_, err := h.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Set(ctx, h.prefix+id, stamp, h.ttl)
		}
		return nil
	})
	return eris.Wrapf(err, "history: redis pipelined set of %d ids", len(ids))
}

// NewRedisClient opens a go-redis client from a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "history: parse redis url")
	}
	return redis.NewClient(opts), nil
}
