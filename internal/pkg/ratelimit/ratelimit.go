package ratelimit

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/TicketFox/internal/pkg/cache"
	"github.com/ManuelReschke/TicketFox/internal/pkg/env"
)

// storageDB keeps limiter counters away from the cache database.
const storageDB = 1

type Config struct {
	Max        int
	Expiration time.Duration
}

// ConfigFromEnv reads RATE_LIMIT_MAX and RATE_LIMIT_WINDOW.
func ConfigFromEnv() Config {
	return Config{
		Max:        env.GetEnvInt("RATE_LIMIT_MAX", 30),
		Expiration: env.GetEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
	}
}

// NewStorage creates Redis storage for limiter counters so that limits hold
// across instances. Connection details follow the cache client.
func NewStorage() fiber.Storage {
	cacheClient := cache.GetClient()
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		// Prefer password from the underlying client if present
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: storageDB,
		Reset:    false,
	})
}

// New returns a sliding window limiter keyed by client address. A nil
// storage keeps counters in process memory.
func New(cfg Config, storage fiber.Storage, key func(*fiber.Ctx) string) fiber.Handler {
	if cfg.Max <= 0 {
		cfg.Max = 30
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = time.Minute
	}
	return limiter.New(limiter.Config{
		Max:               cfg.Max,
		Expiration:        cfg.Expiration,
		KeyGenerator:      key,
		Storage:           storage,
		LimiterMiddleware: limiter.SlidingWindow{},
		LimitReached: func(c *fiber.Ctx) error {
			log.Warnf("[RateLimit] %s exceeded %d requests per %s on %s", key(c), cfg.Max, cfg.Expiration, c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests, slow down",
			})
		},
	})
}
