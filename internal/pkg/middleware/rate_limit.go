package middleware

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/CollectFox/internal/pkg/env"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
)

type RateLimitConfig struct {
	Max        int
	Expiration time.Duration
	Storage    fiber.Storage // nil keeps counters in memory
}

func LoadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Max:        env.GetEnvInt("API_RATE_LIMIT", 120),
		Expiration: time.Duration(env.GetEnvInt("API_RATE_WINDOW_SECONDS", 60)) * time.Second,
	}
}

// NewRedisLimiterStorage shares the cache server but keeps limiter counters in
// their own database.
func NewRedisLimiterStorage(client *goredis.Client) fiber.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client != nil {
		if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: env.GetEnvInt("RATE_LIMIT_REDIS_DB", 2),
		Reset:    false,
	})
}

// RateLimit limits requests per tenant, or per client IP before the tenant is known.
func RateLimit(cfg RateLimitConfig) fiber.Handler {
	if cfg.Max <= 0 {
		cfg.Max = 120
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = time.Minute
	}
	return limiter.New(limiter.Config{
		Max:        cfg.Max,
		Expiration: cfg.Expiration,
		Storage:    cfg.Storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			if scope, ok := tenant.FromCtx(c); ok {
				return fmt.Sprintf("tenant:%d", scope.TenantID)
			}
			return "ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited", "message": "Too many requests"})
		},
	})
}
