package middleware

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"verihunt/config"
)

// VerifyRateLimiter throttles POST /verify per caller IP, adapted 1:1
// from the teacher's SenderRateLimiter/RedisStorage: same Redis-backed
// fiber.Storage when Redis is enabled, same in-memory fallback
// otherwise, keyed here on client IP instead of a user+sender pair
// since this service has no account concept.
func VerifyRateLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.AppConfig.VerifyRateLimit,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "verify:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many verification requests. Please slow down.",
				"retry_after": "1 minute",
			})
		},
		Storage: createRateLimitStorage(),
	})
}

func createRateLimitStorage() fiber.Storage {
	if config.AppConfig.Redis.Enabled {
		return NewRedisStorage(config.AppConfig.Redis)
	}
	return nil
}

// RedisStorage implements fiber.Storage for Redis, and also backs the
// catch-all domain negative/positive cache in front of
// CatchAllDomainRepository.Find.
type RedisStorage struct {
	client *redis.Client
}

// NewRedisStorage builds a RedisStorage from cfg.
func NewRedisStorage(cfg config.RedisConfig) *RedisStorage {
	return &RedisStorage{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (r *RedisStorage) Get(key string) ([]byte, error) {
	val, err := r.client.Get(context.Background(), key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

func (r *RedisStorage) Set(key string, val []byte, exp time.Duration) error {
	return r.client.Set(context.Background(), key, val, exp).Err()
}

func (r *RedisStorage) Delete(key string) error {
	return r.client.Del(context.Background(), key).Err()
}

func (r *RedisStorage) Reset() error {
	return r.client.FlushDB(context.Background()).Err()
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}

// CatchAllCache is a small TTL cache for known catch-all domains,
// fronting CatchAllDomainRepository.Find so the "no SMTP connection
// once a domain is known catch-all" invariant stays cheap under load
// even before a repository round-trip.
type CatchAllCache struct {
	storage *RedisStorage
	ttl     time.Duration
}

// NewCatchAllCache wraps storage with a fixed TTL for positive entries.
func NewCatchAllCache(storage *RedisStorage, ttl time.Duration) *CatchAllCache {
	return &CatchAllCache{storage: storage, ttl: ttl}
}

// Get reports a cached catch-all verdict for domain, if any.
func (c *CatchAllCache) Get(domain string) (known bool, found bool) {
	if c.storage == nil {
		return false, false
	}
	val, err := c.storage.Get("catchall:" + domain)
	if err != nil || val == nil {
		return false, false
	}
	return string(val) == "1", true
}

// Set records domain's catch-all verdict for the cache's TTL.
func (c *CatchAllCache) Set(domain string, isCatchAll bool) {
	if c.storage == nil {
		return
	}
	value := "0"
	if isCatchAll {
		value = "1"
	}
	_ = c.storage.Set("catchall:"+domain, []byte(value), c.ttl)
}
