package engine

import (
	"context"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
	"gorm.io/gorm"
)

// RepositoryLookup answers rule history and usage questions against one
// connection, usually the recalculation transaction.
type RepositoryLookup struct {
	DB         *gorm.DB
	Orders     orderdomain.Repository
	Promotions domain.Repository
}

func (l RepositoryLookup) CompletedOrderCount(ctx context.Context, userID, excludeOrderID snowflake.ID) (int64, error) {
	return l.Orders.CountCompletedOrders(ctx, l.DB, userID, excludeOrderID)
}

func (l RepositoryLookup) UsedBy(ctx context.Context, promotionID, userID snowflake.ID, excludedOrderIDs []snowflake.ID) (bool, error) {
	return l.Promotions.UsedBy(ctx, l.DB, promotionID, userID, excludedOrderIDs)
}

func (l RepositoryLookup) UsageCount(ctx context.Context, promotionID snowflake.ID, excludedOrderIDs []snowflake.ID) (int64, error) {
	return l.Promotions.UsageCount(ctx, l.DB, promotionID, excludedOrderIDs)
}

func (l RepositoryLookup) CodeUsageCount(ctx context.Context, codeID snowflake.ID, excludedOrderIDs []snowflake.ID) (int64, error) {
	return l.Promotions.CodeUsageCount(ctx, l.DB, codeID, excludedOrderIDs)
}

// NewEvaluatorFor binds an evaluator to db.
func NewEvaluatorFor(db *gorm.DB, orders orderdomain.Repository, promotions domain.Repository) *Evaluator {
	lookup := RepositoryLookup{DB: db, Orders: orders, Promotions: promotions}
	return NewEvaluator(lookup, lookup)
}
