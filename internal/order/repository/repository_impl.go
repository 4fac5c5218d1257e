package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		for _, li := range order.LineItems {
			li.OrderID = order.ID
			if err := tx.Create(li).Error; err != nil {
				return err
			}
		}
		for _, s := range order.Shipments {
			s.OrderID = order.ID
			if err := tx.Create(s).Error; err != nil {
				return err
			}
		}
		order.LinkChildren()
		return nil
	})
}

func (r *repo) Load(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	return r.load(ctx, db.WithContext(ctx), id)
}

func (r *repo) LoadForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	stmt := db.WithContext(ctx)
	if stmt.Dialector.Name() != "sqlite" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.load(ctx, stmt, id)
}

func (r *repo) load(ctx context.Context, stmt *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var orders []domain.Order
	if err := stmt.Where("id = ?", id).Limit(1).Find(&orders).Error; err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	order := &orders[0]

	db := stmt.Session(&gorm.Session{NewDB: true}).WithContext(ctx)
	if err := db.Where("order_id = ?", id).Order("id ASC").Find(&order.LineItems).Error; err != nil {
		return nil, err
	}
	if err := db.Where("order_id = ?", id).Order("id ASC").Find(&order.Shipments).Error; err != nil {
		return nil, err
	}
	if err := db.Where("order_id = ? AND source_type = ?", id, domain.SourceTypePromotionAction).
		Order("id ASC").
		Find(&order.Adjustments).Error; err != nil {
		return nil, err
	}
	order.LinkChildren()
	return order, nil
}

func (r *repo) SaveTotals(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	now := time.Now().UTC()
	stmt := db.WithContext(ctx)
	for _, li := range order.LineItems {
		if err := stmt.Exec(
			`UPDATE line_items SET promo_total = ?, adjustment_total = ?, updated_at = ? WHERE id = ?`,
			li.PromoTotal, li.AdjustmentTotal, now, li.ID,
		).Error; err != nil {
			return err
		}
	}
	for _, s := range order.Shipments {
		if err := stmt.Exec(
			`UPDATE shipments SET promo_total = ?, adjustment_total = ?, updated_at = ? WHERE id = ?`,
			s.PromoTotal, s.AdjustmentTotal, now, s.ID,
		).Error; err != nil {
			return err
		}
	}
	order.UpdatedAt = now
	return stmt.Exec(
		`UPDATE orders
		 SET item_total = ?, shipment_total = ?, promo_total = ?, adjustment_total = ?, total = ?, updated_at = ?
		 WHERE id = ?`,
		order.ItemTotal,
		order.ShipmentTotal,
		order.PromoTotal,
		order.AdjustmentTotal,
		order.Total,
		now,
		order.ID,
	).Error
}

func (r *repo) UpdateState(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	if !order.State.Valid() {
		return domain.ErrInvalidState
	}
	order.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET state = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		order.State,
		order.CompletedAt,
		order.UpdatedAt,
		order.ID,
	).Error
}

func (r *repo) InsertAdjustment(ctx context.Context, db *gorm.DB, adj *domain.Adjustment) error {
	return db.WithContext(ctx).Create(adj).Error
}

func (r *repo) UpdateAdjustment(ctx context.Context, db *gorm.DB, adj *domain.Adjustment) error {
	return db.WithContext(ctx).Exec(
		`UPDATE adjustments
		 SET label = ?, amount = ?, eligible = ?, promotion_code_id = ?, updated_at = ?
		 WHERE id = ?`,
		adj.Label,
		adj.Amount,
		adj.Eligible,
		adj.PromotionCodeID,
		adj.UpdatedAt,
		adj.ID,
	).Error
}

func (r *repo) DeleteAdjustments(ctx context.Context, db *gorm.DB, ids []snowflake.ID) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(`DELETE FROM adjustments WHERE id IN ?`, ids).Error
}

func (r *repo) CountCompletedOrders(ctx context.Context, db *gorm.DB, userID snowflake.ID, excludeOrderID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM orders
		 WHERE user_id = ? AND state = ? AND id <> ?`,
		userID,
		domain.StateComplete,
		excludeOrderID,
	).Scan(&count).Error
	return count, err
}
