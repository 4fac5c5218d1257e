package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TypePromotionsRecalculated = "order.promotions_recalculated"
	TypeCheckoutRestarted      = "order.checkout_restarted"
	TypeCouponApplied          = "order.coupon_applied"
	TypeCouponRemoved          = "order.coupon_removed"
)

// Event is the envelope published for every domain event. Key keeps events of
// one order on one partition.
type Event struct {
	Type       string         `json:"type"`
	Key        string         `json:"key"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// RecalculatedPayload summarizes a finished recalculation.
func RecalculatedPayload(orderID string, promoTotal, total decimal.Decimal, created, updated, removed int) map[string]any {
	return map[string]any{
		"order_id":    orderID,
		"promo_total": promoTotal.StringFixed(2),
		"total":       total.StringFixed(2),
		"created":     created,
		"updated":     updated,
		"removed":     removed,
	}
}

type nopPublisher struct{}

// NewNopPublisher drops every event. Used when no broker is configured.
func NewNopPublisher() Publisher { return nopPublisher{} }

func (nopPublisher) Publish(context.Context, Event) error { return nil }

func (nopPublisher) Close() error { return nil }
