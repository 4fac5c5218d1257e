package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jarednorman/solidus-friendly-promotions/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

const (
	keyOrderLock      = "promotions:order:%s"
	keyCouponAttempts = "promotions:coupon_attempts:%s"
)

// OrderGuard serializes recalculations per order and throttles coupon
// attempts. A nil or disabled guard allows everything.
type OrderGuard struct {
	enabled bool

	client   *redis.Client
	attempts *AttemptWindow
	locker   *Locker

	lockTTL     time.Duration
	couponRate  float64
	couponBurst int
}

func NewOrderGuard(lc fx.Lifecycle, cfg config.Config) (*OrderGuard, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, nil
	}
	if cfg.OrderLockTTLSeconds <= 0 {
		return nil, errors.New("order lock ttl must be positive")
	}
	if cfg.CouponAttemptRate <= 0 || cfg.CouponAttemptBurst <= 0 {
		return nil, errors.New("coupon attempt rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error { return client.Close() },
		})
	}

	return NewOrderGuardWithClient(client, time.Duration(cfg.OrderLockTTLSeconds)*time.Second, cfg.CouponAttemptRate, cfg.CouponAttemptBurst), nil
}

func NewOrderGuardWithClient(client *redis.Client, lockTTL time.Duration, couponRate float64, couponBurst int) *OrderGuard {
	if client == nil {
		return nil
	}
	return &OrderGuard{
		enabled:     true,
		client:      client,
		attempts:    NewAttemptWindow(client),
		locker:      NewLocker(client),
		lockTTL:     lockTTL,
		couponRate:  couponRate,
		couponBurst: couponBurst,
	}
}

func (g *OrderGuard) Enabled() bool {
	return g != nil && g.enabled
}

// TryLockOrder returns a release token when the order was free.
func (g *OrderGuard) TryLockOrder(ctx context.Context, orderID string) (string, bool, error) {
	if !g.Enabled() {
		return "", true, nil
	}
	return g.locker.TryLock(ctx, OrderLockKey(orderID), g.lockTTL)
}

func (g *OrderGuard) ReleaseOrder(ctx context.Context, orderID, token string) error {
	if !g.Enabled() {
		return nil
	}
	return g.locker.Release(ctx, OrderLockKey(orderID), token)
}

func (g *OrderGuard) AllowCouponAttempt(ctx context.Context, orderID string) (*RateLimitResult, error) {
	if !g.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return g.attempts.Allow(ctx, fmt.Sprintf(keyCouponAttempts, strings.TrimSpace(orderID)), g.couponRate, g.couponBurst)
}

func OrderLockKey(orderID string) string {
	return fmt.Sprintf(keyOrderLock, strings.TrimSpace(orderID))
}
