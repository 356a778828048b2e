package api

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"keystone/config"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "keystone:ratelimit:"
	maxWindow      = 24 * time.Hour
)

// RedisRateLimiter shares per-IP limits across instances. Each key may make
// burst requests per window of burst/rps seconds, counted in Redis with
// INCR on a window-scoped key.
type RedisRateLimiter struct {
	client redis.UniversalClient
	burst  int64
	window time.Duration
	now    func() time.Time
}

// NewRedisRateLimiter limits over client. The limiter owns client and
// closes it on Close. rps must be positive and finite.
func NewRedisRateLimiter(client redis.UniversalClient, rps float64, burst int) (*RedisRateLimiter, error) {
	if !(rps > 0) || math.IsInf(rps, 1) {
		return nil, config.NewError("RATE_LIMIT_RPS", fmt.Sprintf("must be a positive number for the shared limiter, got %v", rps))
	}
	if burst < 1 {
		burst = 1
	}
	window := maxWindow
	if w := math.Ceil(float64(burst) / rps * float64(time.Second)); w < float64(maxWindow) {
		window = time.Duration(w)
	}
	if window < time.Millisecond {
		window = time.Millisecond
	}
	return &RedisRateLimiter{client: client, burst: int64(burst), window: window, now: time.Now}, nil
}

// DialRedisRateLimiter connects to rawURL and verifies the connection.
func DialRedisRateLimiter(ctx context.Context, rawURL string, rps float64, burst int) (*RedisRateLimiter, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, config.WrapError("RATE_LIMIT_REDIS_URL", "is not a valid Redis URL", err)
	}
	client := redis.NewClient(opts)
	rl, err := NewRedisRateLimiter(client, rps, burst)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach rate limit Redis at %s: %w", opts.Addr, err)
	}
	return rl, nil
}

// Allow counts one request for key in the current window.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	slot := rl.now().UnixNano() / int64(rl.window)
	redisKey := redisKeyPrefix + key + ":" + strconv.FormatInt(slot, 10)

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.PExpire(ctx, redisKey, 2*rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return incr.Val() <= rl.burst, nil
}

// Window returns the counting window.
func (rl *RedisRateLimiter) Window() time.Duration { return rl.window }

// Close releases the Redis client.
func (rl *RedisRateLimiter) Close() error {
	return rl.client.Close()
}
