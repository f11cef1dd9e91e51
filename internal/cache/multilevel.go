package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Stats() map[string]interface{}
	Health(ctx context.Context) error
	Close() error
}

var (
	_ Cache = (*MemoryCache)(nil)
	_ Cache = (*RedisCache)(nil)
	_ Cache = (*MultiLevelCache)(nil)
)

// MultiLevelCache reads through an in-process L1 to an optional Redis L2.
// L2 failures degrade to misses so a Redis outage never fails a request.
type MultiLevelCache struct {
	l1     *MemoryCache
	l2     *RedisCache
	l1TTL  time.Duration
	shared []string
	logger *slog.Logger
}

func NewMultiLevelCache(l1 *MemoryCache, l2 *RedisCache, logger *slog.Logger) *MultiLevelCache {
	if l1 == nil {
		l1 = NewMemoryCache(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiLevelCache{
		l1:     l1,
		l2:     l2,
		l1TTL:  time.Minute,
		logger: logger,
	}
}

// BypassL1 makes keys with any of the prefixes live in L2 only, so every
// instance sees the same value. Without an L2 it has no effect.
func (c *MultiLevelCache) BypassL1(prefixes ...string) *MultiLevelCache {
	c.shared = append(c.shared, prefixes...)
	return c
}

func (c *MultiLevelCache) sharedOnly(key string) bool {
	if c.l2 == nil {
		return false
	}
	for _, p := range c.shared {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func (c *MultiLevelCache) l1Expiry(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > c.l1TTL {
		return c.l1TTL
	}
	return ttl
}

func (c *MultiLevelCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.sharedOnly(key) {
		return c.l2.Set(ctx, key, value, ttl)
	}

	if err := c.l1.Set(ctx, key, value, c.l1Expiry(ttl)); err != nil {
		return err
	}

	if c.l2 != nil {
		if err := c.l2.Set(ctx, key, value, ttl); err != nil {
			c.logger.WarnContext(ctx, "l2 cache set failed", "key", key, "error", err)
		}
	}
	return nil
}

func (c *MultiLevelCache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.sharedOnly(key) {
		err := c.l2.Get(ctx, key, dest)
		if err != nil && !errors.Is(err, ErrCacheMiss) {
			c.logger.WarnContext(ctx, "l2 cache get failed", "key", key, "error", err)
			return ErrCacheMiss
		}
		return err
	}

	err := c.l1.Get(ctx, key, dest)
	if err == nil || !errors.Is(err, ErrCacheMiss) {
		return err
	}

	if c.l2 == nil {
		return ErrCacheMiss
	}

	err = c.l2.Get(ctx, key, dest)
	switch {
	case err == nil:
		if setErr := c.l1.Set(ctx, key, dest, c.l1TTL); setErr != nil {
			c.logger.WarnContext(ctx, "l1 cache backfill failed", "key", key, "error", setErr)
		}
		return nil
	case errors.Is(err, ErrCacheMiss):
		return ErrCacheMiss
	default:
		c.logger.WarnContext(ctx, "l2 cache get failed", "key", key, "error", err)
		return ErrCacheMiss
	}
}

// Delete removes keys from both levels. An L2 failure is returned so callers
// that rely on invalidation (token revocation) can react.
func (c *MultiLevelCache) Delete(ctx context.Context, keys ...string) error {
	_ = c.l1.Delete(ctx, keys...)

	if c.l2 != nil {
		return c.l2.Delete(ctx, keys...)
	}
	return nil
}

// Exists fails closed: an L2 error is returned rather than read as absent,
// since the revocation denylist is checked through it.
func (c *MultiLevelCache) Exists(ctx context.Context, key string) (bool, error) {
	if ok, _ := c.l1.Exists(ctx, key); ok {
		return true, nil
	}

	if c.l2 != nil {
		ok, err := c.l2.Exists(ctx, key)
		if err != nil {
			c.logger.WarnContext(ctx, "l2 cache exists failed", "key", key, "error", err)
			return false, err
		}
		return ok, nil
	}
	return false, nil
}

func (c *MultiLevelCache) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"l1": c.l1.Stats(),
	}

	if c.l2 != nil {
		stats["l2"] = c.l2.Stats()
	}

	return stats
}

func (c *MultiLevelCache) Health(ctx context.Context) error {
	if c.l2 != nil {
		return c.l2.Health(ctx)
	}
	return nil
}

func (c *MultiLevelCache) Close() error {
	_ = c.l1.Close()
	if c.l2 != nil {
		return c.l2.Close()
	}
	return nil
}
