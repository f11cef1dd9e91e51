package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/TNEM22/synera-app-backend/internal/config"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrCacheDown = errors.New("cache unavailable")
)

type RedisCache struct {
	client  *redis.Client
	breaker *CircuitBreaker
	metrics *CacheMetrics
	prefix  string
}

type CacheConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// CacheConfigFrom maps the application Redis settings onto client options.
func CacheConfigFrom(cfg *config.Config) *CacheConfig {
	return &CacheConfig{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}
}

// NewRedisClient builds the client shared by the cache, the project locker
// and the job queue.
func NewRedisClient(cacheConfig *CacheConfig) *redis.Client {
	if cacheConfig == nil {
		cacheConfig = DefaultCacheConfig()
	}

	return redis.NewClient(&redis.Options{
		Addr:         cacheConfig.Addr,
		Password:     cacheConfig.Password,
		DB:           cacheConfig.DB,
		PoolSize:     cacheConfig.PoolSize,
		MinIdleConns: cacheConfig.MinIdleConns,
		MaxRetries:   cacheConfig.MaxRetries,
		DialTimeout:  cacheConfig.DialTimeout,
		ReadTimeout:  cacheConfig.ReadTimeout,
		WriteTimeout: cacheConfig.WriteTimeout,
	})
}

func NewRedisCache(cacheConfig *CacheConfig) *RedisCache {
	return NewRedisCacheFromClient(NewRedisClient(cacheConfig))
}

func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		breaker: NewCircuitBreaker(nil),
		metrics: NewCacheMetrics(),
		prefix:  "synera:",
	}
}

func (r *RedisCache) Client() *redis.Client {
	return r.client
}

func (r *RedisCache) Metrics() *CacheMetrics {
	return r.metrics
}

func (r *RedisCache) key(k string) string {
	return r.prefix + k
}

// do runs fn through the circuit breaker with a bounded timeout. A miss is
// not a failure as far as the breaker is concerned.
func (r *RedisCache) do(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	var miss bool
	err := r.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		err := fn(ctx)
		if errors.Is(err, redis.Nil) {
			miss = true
			return nil
		}
		return err
	})
	if miss {
		return ErrCacheMiss
	}
	if errors.Is(err, ErrCircuitBreakerOpen) {
		r.metrics.RecordError()
		return ErrCacheDown
	}
	if err != nil {
		r.metrics.RecordError()
	}
	return err
}

func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	err = r.do(ctx, 3*time.Second, func(ctx context.Context) error {
		return r.client.Set(ctx, r.key(key), data, expiration).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	r.metrics.RecordSet()
	return nil
}

func (r *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	var data string
	err := r.do(ctx, 3*time.Second, func(ctx context.Context) error {
		var err error
		data, err = r.client.Get(ctx, r.key(key)).Result()
		return err
	})
	switch {
	case errors.Is(err, ErrCacheMiss):
		r.metrics.RecordMiss()
		return ErrCacheMiss
	case errors.Is(err, ErrCacheDown):
		return ErrCacheDown
	case err != nil:
		return fmt.Errorf("failed to get from cache: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cached data: %w", err)
	}
	r.metrics.RecordHit()
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	err := r.do(ctx, 3*time.Second, func(ctx context.Context) error {
		return r.client.Del(ctx, full...).Err()
	})
	if err == nil {
		r.metrics.RecordDelete()
	}
	return err
}

func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := r.do(ctx, 3*time.Second, func(ctx context.Context) error {
		var err error
		n, err = r.client.Exists(ctx, r.key(key)).Result()
		return err
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisCache) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Stats() map[string]interface{} {
	poolStats := r.client.PoolStats()
	m := r.metrics.GetStats()

	return map[string]interface{}{
		"hits":          m.Hits,
		"misses":        m.Misses,
		"errors":        m.Errors,
		"hit_rate":      r.metrics.HitRate(),
		"breaker":       r.breaker.GetStats(),
		"pool_hits":     poolStats.Hits,
		"pool_misses":   poolStats.Misses,
		"pool_timeouts": poolStats.Timeouts,
		"pool_total":    poolStats.TotalConns,
		"pool_idle":     poolStats.IdleConns,
	}
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
