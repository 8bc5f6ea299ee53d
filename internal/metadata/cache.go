package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL is how long a resolved name is kept
const DefaultCacheTTL = time.Hour

// Cache stores resolved names. Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// CandidateKey is the cache key for a candidate name
func CandidateKey(id string) string {
	return fmt.Sprintf("docking:meta:candidate:%s", id)
}

// TargetKey is the cache key for a target name
func TargetKey(id string) string {
	return fmt.Sprintf("docking:meta:target:%s", id)
}

// RedisCache implements Cache using go-redis/v9
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a RedisCache from a Redis URL
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// CachedResolver serves names from a cache before asking next.
// Unknown names are cached too, so missing ids are not looked up on every request.
type CachedResolver struct {
	next   Resolver
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedResolver wraps next with cache
func NewCachedResolver(next Resolver, cache Cache, ttl time.Duration, logger *slog.Logger) *CachedResolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedResolver{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

func (r *CachedResolver) CandidateName(ctx context.Context, id string) (string, error) {
	return r.cached(ctx, CandidateKey(id), func(ctx context.Context) (string, error) {
		return r.next.CandidateName(ctx, id)
	})
}

func (r *CachedResolver) TargetName(ctx context.Context, id string) (string, error) {
	return r.cached(ctx, TargetKey(id), func(ctx context.Context) (string, error) {
		return r.next.TargetName(ctx, id)
	})
}

func (r *CachedResolver) cached(ctx context.Context, key string, load func(context.Context) (string, error)) (string, error) {
	name, found, err := r.cache.Get(ctx, key)
	if err != nil {
		// Cache trouble is not fatal; go to the source
		r.logger.Warn("Metadata cache read failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	} else if found {
		return name, nil
	}

	name, err = load(ctx)
	if err != nil {
		return "", err
	}

	if err := r.cache.Set(ctx, key, name, r.ttl); err != nil {
		r.logger.Warn("Metadata cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	return name, nil
}
