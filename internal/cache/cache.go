// Package cache provides the gateway's response cache: a Redis-backed
// lookaside cache keyed by a deterministic fingerprint of the chat request,
// skipped entirely for streaming requests (see internal/fingerprint).
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/howard-nolan/aigateway/internal/fingerprint"
	"github.com/howard-nolan/aigateway/internal/provider"
	"github.com/redis/go-redis/v9"
)

// Cache wraps a redis client with the gateway's chat-response caching
// semantics. A disabled Cache behaves as an always-miss cache so callers
// don't need to branch on whether caching is configured. A nil *Cache is
// not usable.
type Cache struct {
	rdb     *redis.Client
	ttl     time.Duration
	enabled bool
}

// New constructs a Cache. Pass enabled=false to get a no-op cache (every
// Lookup misses, every Store is a no-op) without touching rdb — used when
// the operator disables caching in config but still wants the rest of the
// wiring (metrics, admin routes) to work unconditionally.
func New(rdb *redis.Client, ttl time.Duration, enabled bool) *Cache {
	return &Cache{rdb: rdb, ttl: ttl, enabled: enabled}
}

// Lookup returns the cached response for req, if present. Only chat
// requests are ever cached — callers must not call Lookup for req.Stream
// == true; the streaming handler never reaches the cache at all, and
// Lookup itself misses for a streaming request.
func (c *Cache) Lookup(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, bool) {
	if !c.enabled || req.Stream {
		return nil, false
	}

	key := fingerprint.Key(req)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}

	var resp provider.ChatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false
	}
	resp.Gateway.Cached = true
	return &resp, true
}

// Store writes resp under req's fingerprint key, with the configured TTL.
// Errors are swallowed — a failed cache write degrades to a cache miss
// next time, never the request itself.
func (c *Cache) Store(ctx context.Context, req *provider.ChatRequest, resp *provider.ChatResponse) {
	if !c.enabled || req.Stream {
		return
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}

	key := fingerprint.Key(req)
	c.rdb.Set(ctx, key, raw, c.ttl)
}

// Invalidate deletes every cache entry whose key matches pattern (a
// redis-glob pattern, e.g. "ai:cache:*"), used by the admin cache-flush
// endpoint. It scans rather than KEYS to avoid blocking redis on a large
// keyspace.
func (c *Cache) Invalidate(ctx context.Context, pattern string) (int, error) {
	if !c.enabled {
		return 0, nil
	}

	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return count, err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return count, err
			}
			count += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return count, nil
}

// Enabled reports whether caching is active, for /health/detailed.
func (c *Cache) Enabled() bool {
	return c.enabled
}
