package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/medcase/medcase-backend/internal/pkg/logger"
)

// Cache is a small JSON read-through layer over redis. A nil *Cache is
// valid and behaves as a permanent miss, so callers never branch on
// whether redis is configured.
type Cache struct {
	log *logger.Logger
	rdb *goredis.Client
}

// New connects to REDIS_ADDR. An empty address returns (nil, nil): caching
// is optional and the service runs without it.
func New(log *logger.Logger) (*Cache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    os.Getenv("REDIS_PASSWORD"),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Cache{
		log: log.With("service", "Cache"),
		rdb: rdb,
	}, nil
}

// GetJSON loads key into dest. Returns false on a miss or any redis error;
// reads never fail the caller.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) bool {
	if c == nil || c.rdb == nil {
		return false
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return false
	}
	if err != nil {
		c.log.Warn("cache read error", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.log.Warn("cache payload corrupt", "key", key, "error", err)
		return false
	}
	return true
}

// SetJSON stores val under key with a TTL. Write errors are logged and
// swallowed.
func (c *Cache) SetJSON(ctx context.Context, key string, val any, ttl time.Duration) {
	if c == nil || c.rdb == nil {
		return
	}
	raw, err := json.Marshal(val)
	if err != nil {
		c.log.Warn("cache encode error", "key", key, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.log.Warn("cache write error", "key", key, "error", err)
	}
}

// Invalidate drops keys. Errors are logged and swallowed.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || c.rdb == nil || len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("cache invalidate error", "error", err)
	}
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
