package api

import (
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/example/task-manager/middleware/ratelimit"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware tags each request with a UUID, keeping one supplied by
// the client.
func RequestIDMiddleware() fiber.Handler {
	return requestid.New(requestid.Config{
		Header:     RequestIDHeader,
		Generator:  uuid.NewString,
		ContextKey: "requestid",
	})
}

// AccessLogMiddleware writes one line per request.
func AccessLogMiddleware() fiber.Handler {
	return logger.New(logger.Config{
		Format: "[${time}] ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	})
}

// RecoverMiddleware turns panics into 500 responses.
func RecoverMiddleware() fiber.Handler {
	return recover.New()
}

// LoginThrottle limits credential endpoints per client IP. It returns nil
// when limiter is nil.
func LoginThrottle(limiter ratelimit.Allower, limit int, window time.Duration, log types.Logger) fiber.Handler {
	if limiter == nil {
		return nil
	}
	return ratelimit.New(limiter, ratelimit.Config{
		Name:   "login",
		Limit:  limit,
		Window: window,
		ErrorBody: func(_ *ratelimit.Result) any {
			return ErrorResponse{
				Error:     "rate_limited",
				Message:   "too many login attempts, try again later",
				Retryable: true,
			}
		},
		Logger: log,
	})
}
