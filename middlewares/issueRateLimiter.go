package middlewares

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter counts one hit for key and reports whether it is within the limit. When it is
// not, retryAfter says how long until the next hit would be accepted.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// RedisLimiter is a fixed window counter per key, shared by every instance of the service.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	// Create individual key for each user
	userKey := l.prefix + ":" + key

	count, err := l.client.Incr(ctx, userKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("redis error incrementing count: %w", err)
	}
	// Set TTL only for the first increment
	if count == 1 {
		if err := l.client.Expire(ctx, userKey, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("redis error setting TTL: %w", err)
		}
	}
	if count > int64(l.limit) {
		retryAfter, _ := l.client.TTL(ctx, userKey).Result()
		return false, retryAfter, nil
	}
	return true, 0, nil
}

// LocalLimiter is an in-process token bucket per key, refilling limit tokens per window.
// Used when Redis is not configured; counts are per process.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    rate.Limit
	burst    int
	now      func() time.Time
}

func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	if limit < 1 {
		limit = 1
	}
	return &LocalLimiter{
		limiters: make(map[string]*rate.Limiter),
		every:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
		now:      time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.every, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()

	now := l.now()
	r := lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}

// IssueRateLimiter limits how many issues a reporter may submit. It must run after
// AuthMiddleware.
func IssueRateLimiter(l Limiter, log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(c *gin.Context) {
		userID := c.GetString(UserIDKey)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "No authorization token provided"})
			c.Abort()
			return
		}

		allowed, retryAfter, err := l.Allow(c.Request.Context(), userID)
		if err != nil {
			log.Error("rate limiter failed", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
			c.Abort()
			return
		}
		if !allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", int(math.Ceil(retryAfter.Seconds()))))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
