package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	// Load returns the order with line items, shipments and promotion adjustments, or nil.
	Load(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	LoadForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	SaveTotals(ctx context.Context, db *gorm.DB, order *Order) error
	UpdateState(ctx context.Context, db *gorm.DB, order *Order) error

	InsertAdjustment(ctx context.Context, db *gorm.DB, adj *Adjustment) error
	UpdateAdjustment(ctx context.Context, db *gorm.DB, adj *Adjustment) error
	DeleteAdjustments(ctx context.Context, db *gorm.DB, ids []snowflake.ID) error

	// CountCompletedOrders counts the user's completed orders other than excludeOrderID.
	CountCompletedOrders(ctx context.Context, db *gorm.DB, userID snowflake.ID, excludeOrderID snowflake.ID) (int64, error)
}
