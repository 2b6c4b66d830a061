package middleware

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"rescuedispatch/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Requests     int           // Number of requests allowed
	Window       time.Duration // Time window
	KeyPrefix    string        // Key prefix in the window store
	ErrorMessage string
}

// WindowStore records a hit and reports how many hits the key already had
// inside the window.
type WindowStore interface {
	Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (prior int64, err error)
}

// RateLimiter limits requests per caller, keyed by user id and falling back
// to the client IP. Store failures let the request through.
type RateLimiter struct {
	config RateLimitConfig
	store  WindowStore
}

func NewRateLimiter(config RateLimitConfig, store WindowStore) *RateLimiter {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "rate_limit"
	}
	if config.ErrorMessage == "" {
		config.ErrorMessage = "Rate limit exceeded"
	}
	return &RateLimiter{config: config, store: store}
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rl.getKey(c)
		now := time.Now()

		prior, err := rl.store.Hit(c.Request.Context(), key, now, rl.config.Window, rl.config.Requests)
		if err != nil {
			logrus.WithError(err).Warn("Rate limit check failed, allowing request")
			c.Next()
			return
		}

		remaining := rl.config.Requests - int(prior) - 1
		if remaining < 0 {
			remaining = 0
		}
		resetTime := now.Add(rl.config.Window)
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

		if prior >= int64(rl.config.Requests) {
			c.Header("Retry-After", strconv.Itoa(int(rl.config.Window.Seconds())))
			logrus.WithFields(logrus.Fields{
				"key":    key,
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Warn("Rate limit exceeded")
			utils.RateLimitResponse(c, rl.config.ErrorMessage)
			c.Abort()
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) getKey(c *gin.Context) string {
	if userID := utils.GetUserID(c); userID != "" {
		return fmt.Sprintf("%s:user:%s", rl.config.KeyPrefix, userID)
	}
	return fmt.Sprintf("%s:ip:%s", rl.config.KeyPrefix, c.ClientIP())
}

// RedisWindowStore is a sliding window log on a Redis sorted set.
type RedisWindowStore struct {
	client *redis.Client
}

func NewRedisWindowStore(client *redis.Client) *RedisWindowStore {
	return &RedisWindowStore{client: client}
}

func (rs *RedisWindowStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (int64, error) {
	member := strconv.FormatInt(now.UnixNano(), 10)

	pipe := rs.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(now.Add(-window).UnixNano(), 10))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{Score: float64(now.UnixNano()), Member: member})
	pipe.Expire(ctx, key, window+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	prior := count.Val()
	if prior >= int64(limit) {
		// Rejected requests do not consume the window.
		rs.client.ZRem(ctx, key, member)
	}
	return prior, nil
}

// MemoryWindowStore keeps the sliding window in process, for deployments
// without Redis.
type MemoryWindowStore struct {
	mu   sync.Mutex
	hits map[string][]time.Time
}

func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{hits: make(map[string][]time.Time)}
}

func (ms *MemoryWindowStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	cutoff := now.Add(-window)
	kept := ms.hits[key][:0]
	for _, t := range ms.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	prior := int64(len(kept))
	if prior < int64(limit) {
		kept = append(kept, now)
	}
	ms.hits[key] = kept
	return prior, nil
}

// Predefined rate limiters

// DefaultRateLimit applies the general per-caller budget, 100 per minute
// when perMinute is not positive.
func DefaultRateLimit(store WindowStore, perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		perMinute = 100
	}
	return NewRateLimiter(RateLimitConfig{
		Requests:     perMinute,
		Window:       time.Minute,
		KeyPrefix:    "rate_limit",
		ErrorMessage: "Too many requests. Please try again later.",
	}, store).Middleware()
}

// SOSCreateRateLimit guards alert creation more strictly.
func SOSCreateRateLimit(store WindowStore, perMinute int) gin.HandlerFunc {
	return NewRateLimiter(RateLimitConfig{
		Requests:     perMinute,
		Window:       time.Minute,
		KeyPrefix:    "sos_create_rate_limit",
		ErrorMessage: "Too many SOS requests. Please wait before raising another alert.",
	}, store).Middleware()
}
