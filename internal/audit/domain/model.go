package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	ActionPromotionCreated   = "promotion.created"
	ActionPromotionDestroyed = "promotion.destroyed"
	ActionCheckoutRestarted  = "order.checkout_restarted"
	ActionCouponApplied      = "order.coupon_applied"
	ActionCouponRemoved      = "order.coupon_removed"

	TargetPromotion = "promotion"
	TargetOrder     = "order"

	ActorSystem = "system"
	ActorAPI    = "api"
)

type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	ActorType  string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID    *string           `gorm:"type:text" json:"actor_id,omitempty"`
	Action     string            `gorm:"type:text;not null" json:"action"`
	TargetType string            `gorm:"type:text;not null" json:"target_type"`
	TargetID   *string           `gorm:"type:text" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
