package middlewares

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter enforces a fixed-window request budget per derived key,
// counted in redis so every instance shares the same window.
type RateLimiter struct {
	redisdb *redis.Client
	window  time.Duration
	limit   int
}

func NewRateLimiter(redisdb *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redisdb: redisdb,
		limit:   limit,
		window:  window,
	}
}

func rateKey(key string) string {
	return "ratelimit:" + key
}

// RateLimiterMiddleware returns a gin.HandlerFunc that enforces the
// budget for a derived key. Fails open when redis is unreachable.
func (rl *RateLimiter) RateLimiterMiddleware(keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)

		if key == "" {
			// fallback to IP if key cannot be derived

			key = clientIP(c)
		}

		ctx := c.Request.Context()

		count, err := rl.redisdb.Incr(ctx, rateKey(key)).Result()

		if err != nil {
			c.Next()
			return
		}

		// NX opens the window on the first hit and re-attaches an
		// expiry to a counter that lost its TTL (crash between the
		// increment and the expire)
		if err := rl.redisdb.ExpireNX(ctx, rateKey(key), rl.window).Err(); err != nil {
			c.Next()
			return
		}

		if count > int64(rl.limit) {
			retryAfter := int(rl.window.Seconds())

			ttl, err := rl.redisdb.TTL(ctx, rateKey(key)).Result()

			if err == nil && ttl > 0 {
				retryAfter = int(ttl.Seconds())
			}

			c.Header("Retry-After", strconv.Itoa(retryAfter))

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "rate_limited",
					"message": "Too many requests. Please try again shortly.",
				},
			})

			return
		}

		c.Next()
	}
}

// helper functions

// for unauthenticated endpoints: rate limit by IP
func KeyByIP(c *gin.Context) string {
	return clientIP(c)
}

// For authenticated endpoints: rate limit by userID if available

func KeyByUserOrIP(c *gin.Context) string {
	id, ok := UserIDFromContext(c)

	if ok && id != "" {
		return "user:" + id
	}

	return clientIP(c)
}

func clientIP(c *gin.Context) string {
	// Gin's ClientIP respects X-Forwarded-For / X-Real-IP if configured.
	ip := c.ClientIP()

	// Normalize host:port forms

	host, _, err := net.SplitHostPort(ip)

	if err == nil && host != "" {
		return host
	}

	return ip
}
