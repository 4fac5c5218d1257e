package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	ErrLimiterNotConfigured = errors.New("attempt limiter not configured")
	ErrLimiterKeyEmpty      = errors.New("attempt limiter key is empty")
	ErrLimiterRate          = errors.New("attempt limiter rate and burst must be positive")
)

// AttemptWindow allows burst attempts per key inside a fixed window of
// burst/rate seconds. The counter lives in redis so every replica shares it.
type AttemptWindow struct {
	client *redis.Client
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

func NewAttemptWindow(client *redis.Client) *AttemptWindow {
	if client == nil {
		return nil
	}
	return &AttemptWindow{client: client}
}

func (w *AttemptWindow) Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	switch {
	case w == nil || w.client == nil:
		return &RateLimitResult{}, ErrLimiterNotConfigured
	case key == "":
		return &RateLimitResult{}, ErrLimiterKeyEmpty
	case rate <= 0 || burst <= 0:
		return &RateLimitResult{}, ErrLimiterRate
	}

	window := attemptWindow(rate, burst)
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := w.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return &RateLimitResult{}, err
	}

	remainingWindow := ttl.Val()
	if remainingWindow <= 0 {
		// first attempt in a window, or a key left without expiry
		if err := w.client.PExpire(ctx, key, window).Err(); err != nil {
			return &RateLimitResult{}, err
		}
		remainingWindow = window
	}

	return windowResult(incr.Val(), burst, remainingWindow, time.Now()), nil
}

func windowResult(count int64, burst int, remainingWindow time.Duration, now time.Time) *RateLimitResult {
	res := &RateLimitResult{
		Allowed:   count <= int64(burst),
		Limit:     burst,
		ResetTime: now.Add(remainingWindow),
	}
	if res.Allowed {
		res.Remaining = burst - int(count)
	} else {
		res.RetryAfter = remainingWindow
	}
	return res
}

// attemptWindow is the time the rate needs to refill a full burst, at least one second.
func attemptWindow(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Ceil(float64(burst) / rate)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}
