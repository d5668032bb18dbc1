package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
)

// Allower is the rate limit check consumed by the HTTP middleware.
type Allower interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// Config configures the HTTP middleware.
type Config struct {
	// Name scopes the counters, so separate routes can be limited independently.
	Name   string
	Limit  int
	Window time.Duration
	// KeyFunc derives the client key. Defaults to the client IP.
	KeyFunc func(c *fiber.Ctx) string
	// ErrorBody builds the 429 response body.
	ErrorBody func(result *Result) any
	Logger    types.Logger
}

// maxClientIDLength limits client ID length to prevent abuse.
const maxClientIDLength = 128

// New returns a fiber handler enforcing cfg with limiter. Requests are let
// through when the limiter itself fails.
func New(limiter Allower, cfg Config) fiber.Handler {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *fiber.Ctx) string { return c.IP() }
	}
	if cfg.ErrorBody == nil {
		cfg.ErrorBody = func(_ *Result) any {
			return fiber.Map{"error": "rate_limited", "message": "too many requests"}
		}
	}

	return func(c *fiber.Ctx) error {
		clientID := cfg.KeyFunc(c)
		if len(clientID) > maxClientIDLength {
			clientID = clientID[:maxClientIDLength]
		}
		if clientID == "" {
			clientID = "anonymous"
		}

		result, err := limiter.Allow(c.UserContext(), cfg.Name+":"+clientID, cfg.Limit, cfg.Window)
		if err != nil {
			if cfg.Logger != nil {
				cfg.Logger.Error("Rate limit check failed", "limiter", cfg.Name, "client_id", clientID, "error", err)
			}
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			retryAfter := result.RetryAfter(time.Now())
			if cfg.Logger != nil {
				cfg.Logger.Warn("Rate limit exceeded",
					"limiter", cfg.Name,
					"client_id", clientID,
					"limit", result.Limit,
					"reset_at", result.ResetAt)
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(retryAfter/time.Second)))
			return c.Status(fiber.StatusTooManyRequests).JSON(cfg.ErrorBody(result))
		}

		return c.Next()
	}
}
