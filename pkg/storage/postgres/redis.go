package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/vahanmetrics/vahan/pkg/observability"
	"github.com/vahanmetrics/vahan/pkg/registration"
	"github.com/vahanmetrics/vahan/pkg/storage"
)

// RedisCache decorates PostgresStorage with a Redis read cache. Writes pass
// through and invalidate every cached read, keeping the cache trivially
// coherent at the cost of cold reads after each import.
type RedisCache struct {
	storage *PostgresStorage
	redis   *redis.Client
	ttl     map[string]time.Duration
	metrics *observability.Metrics
}

// NewRedisClient builds a redis client from storage config and verifies the
// connection.
func NewRedisClient(cfg storage.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB >= 0 {
		opts.DB = cfg.RedisDB
	}
	if cfg.RedisMaxRetries > 0 {
		opts.MaxRetries = cfg.RedisMaxRetries
	}
	if cfg.RedisPoolSize > 0 {
		opts.PoolSize = cfg.RedisPoolSize
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisCache wraps a PostgresStorage with a Redis cache layer.
func NewRedisCache(pg *PostgresStorage, client *redis.Client, ttl map[string]time.Duration) *RedisCache {
	if ttl == nil {
		ttl = storage.DefaultConfig().CacheTTL
	}
	return &RedisCache{storage: pg, redis: client, ttl: ttl}
}

// SetMetrics attaches instruments for cache hit and miss counts.
func (c *RedisCache) SetMetrics(m *observability.Metrics) {
	c.metrics = m
}

// ReplaceYear writes through and flushes cached reads.
func (c *RedisCache) ReplaceYear(ctx context.Context, year int, records []registration.Record) error {
	if err := c.storage.ReplaceYear(ctx, year, records); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// InsertRecords writes through and flushes cached reads.
func (c *RedisCache) InsertRecords(ctx context.Context, records []registration.Record) error {
	if err := c.storage.InsertRecords(ctx, records); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// Records serves range queries from cache when possible.
func (c *RedisCache) Records(ctx context.Context, from, to registration.Period) ([]registration.Record, error) {
	key := fmt.Sprintf("records:%s:%s", from, to)

	var cached []registration.Record
	if c.get(ctx, key, &cached) {
		return cached, nil
	}

	records, err := c.storage.Records(ctx, from, to)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, records, c.ttl["records"])
	return records, nil
}

// ManufacturerRecords serves per-manufacturer queries from cache.
func (c *RedisCache) ManufacturerRecords(ctx context.Context, manufacturer string, from, to registration.Period) ([]registration.Record, error) {
	key := fmt.Sprintf("records:%s:%s:%s", manufacturer, from, to)

	var cached []registration.Record
	if c.get(ctx, key, &cached) {
		return cached, nil
	}

	records, err := c.storage.ManufacturerRecords(ctx, manufacturer, from, to)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, records, c.ttl["records"])
	return records, nil
}

// Manufacturers serves the name list from cache.
func (c *RedisCache) Manufacturers(ctx context.Context) ([]string, error) {
	const key = "manufacturers"

	var cached []string
	if c.get(ctx, key, &cached) {
		return cached, nil
	}

	names, err := c.storage.Manufacturers(ctx)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, names, c.ttl["manufacturers"])
	return names, nil
}

// Bounds passes through; the two-row query is cheaper than cache round trips
// once the period index is warm.
func (c *RedisCache) Bounds(ctx context.Context) (registration.Period, registration.Period, bool, error) {
	return c.storage.Bounds(ctx)
}

// Snapshot passes through: dataset construction already dominates the cost.
func (c *RedisCache) Snapshot(ctx context.Context) (*registration.Dataset, error) {
	return c.storage.Snapshot(ctx)
}

// HealthCheck verifies both postgres and redis.
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	if err := c.storage.HealthCheck(ctx); err != nil {
		return err
	}
	return c.redis.Ping(ctx).Err()
}

// Close closes redis and the underlying store.
func (c *RedisCache) Close() error {
	if err := c.redis.Close(); err != nil {
		c.storage.Close()
		return err
	}
	return c.storage.Close()
}

// get loads and unmarshals a cached value; corrupt entries are evicted.
func (c *RedisCache) get(ctx context.Context, key string, dest interface{}) bool {
	data, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		c.metrics.RecordCacheMiss("redis")
		return false
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		c.redis.Del(ctx, key)
		c.metrics.RecordCacheMiss("redis")
		return false
	}
	c.metrics.RecordCacheHit("redis")
	return true
}

// set stores a value best-effort; cache failures never fail reads.
func (c *RedisCache) set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.redis.Set(ctx, key, data, ttl)
}

// invalidate drops all cached reads after a write.
func (c *RedisCache) invalidate(ctx context.Context) {
	iter := c.redis.Scan(ctx, 0, "records:*", 0).Iterator()
	for iter.Next(ctx) {
		c.redis.Del(ctx, iter.Val())
	}
	c.redis.Del(ctx, "manufacturers")
}
