package cache

import (
	"strings"
	"time"

	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
	"go.uber.org/fx"
)

const defaultAdvertisedTTL = time.Minute

var Module = fx.Module("cache",
	fx.Provide(NewPromotionCache),
)

// PromotionCache holds the advertised promotion listing between writes.
type PromotionCache interface {
	GetAdvertised(scope string) ([]*domain.Promotion, bool)
	SetAdvertised(scope string, promos []*domain.Promotion)
	Invalidate()
}

type promotionCache struct {
	advertised Cache[string, []*domain.Promotion]
	ttl        time.Duration
}

func NewPromotionCache() PromotionCache {
	return &promotionCache{
		advertised: NewTTLCache[string, []*domain.Promotion](),
		ttl:        defaultAdvertisedTTL,
	}
}

func (c *promotionCache) GetAdvertised(scope string) ([]*domain.Promotion, bool) {
	return c.advertised.Get(cacheKey("advertised", scope))
}

func (c *promotionCache) SetAdvertised(scope string, promos []*domain.Promotion) {
	c.advertised.Set(cacheKey("advertised", scope), promos, c.ttl)
}

func (c *promotionCache) Invalidate() {
	c.advertised.Purge()
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
