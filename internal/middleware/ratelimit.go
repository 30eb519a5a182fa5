package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/qkrun/internal/observability"
	"github.com/vyrodovalexey/qkrun/internal/ratelimit"
)

// KeyFunc extracts the rate limit key from a request.
type KeyFunc func(c *gin.Context) string

// ClientIPKey keys requests by gin's resolved client IP.
func ClientIPKey(c *gin.Context) string {
	return c.ClientIP()
}

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	Limiter ratelimit.Limiter
	KeyFunc KeyFunc
	Logger  observability.Logger

	// OnReject is called for every rejected request, e.g. to count it.
	OnReject func(c *gin.Context)

	// IncludeHeaders adds X-RateLimit-* headers to every response.
	IncludeHeaders bool
}

// RateLimit returns a middleware that rejects requests over the limit with
// 429 and a Retry-After header. Limiter errors let the request through.
func RateLimit(config RateLimitConfig) gin.HandlerFunc {
	if config.Limiter == nil {
		config.Limiter = ratelimit.NewNoopLimiter()
	}
	if config.KeyFunc == nil {
		config.KeyFunc = ClientIPKey
	}
	if config.Logger == nil {
		config.Logger = observability.NopLogger()
	}

	return func(c *gin.Context) {
		key := config.KeyFunc(c)

		result, err := config.Limiter.Allow(c.Request.Context(), key)
		if err != nil {
			config.Logger.Error("rate limit check failed",
				observability.String("key", key),
				observability.Error(err),
			)
			c.Next()
			return
		}

		if config.IncludeHeaders {
			c.Header(HeaderRateLimitLimit, strconv.Itoa(result.Limit))
			c.Header(HeaderRateLimitRemaining, strconv.Itoa(result.Remaining))
		}

		if !result.Allowed {
			retryAfter := result.RetryAfterSeconds()
			c.Header(HeaderRetryAfter, strconv.Itoa(retryAfter))

			if config.OnReject != nil {
				config.OnReject(c)
			}

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       http.StatusText(http.StatusTooManyRequests),
				"message":     "Rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}
