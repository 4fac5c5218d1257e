package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
	pkgdb "github.com/jarednorman/solidus-friendly-promotions/pkg/db"
	"github.com/jarednorman/solidus-friendly-promotions/pkg/db/option"
	"github.com/jarednorman/solidus-friendly-promotions/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, promo *domain.Promotion) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(promo).Error; err != nil {
			return pkgdb.TranslateDuplicate(err, domain.ErrDuplicatePath)
		}
		for _, rule := range promo.Rules {
			rule.PromotionID = promo.ID
			if err := tx.Create(rule).Error; err != nil {
				return err
			}
		}
		for _, action := range promo.Actions {
			action.PromotionID = &promo.ID
			if err := tx.Create(action).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, promo *domain.Promotion) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE promotions
		 SET name = ?, description = ?, customer_label = ?, path = ?, category_id = ?, lane = ?,
		     match_policy = ?, usage_limit = ?, per_code_usage_limit = ?, starts_at = ?, expires_at = ?,
		     apply_automatically = ?, advertise = ?, updated_at = ?
		 WHERE id = ?`,
		promo.Name,
		promo.Description,
		promo.CustomerLabel,
		promo.Path,
		promo.CategoryID,
		promo.Lane,
		promo.MatchPolicy,
		promo.UsageLimit,
		promo.PerCodeUsageLimit,
		promo.StartsAt,
		promo.ExpiresAt,
		promo.ApplyAutomatically,
		promo.Advertise,
		promo.UpdatedAt,
		promo.ID,
	)
	if result.Error != nil {
		return pkgdb.TranslateDuplicate(result.Error, domain.ErrDuplicatePath)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Promotion, error) {
	var promos []*domain.Promotion
	if err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&promos).Error; err != nil {
		return nil, err
	}
	if len(promos) == 0 {
		return nil, nil
	}
	return promos[0], nil
}

func (r *repo) Load(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Promotion, error) {
	promos, err := r.LoadMany(ctx, db, []snowflake.ID{id})
	if err != nil || len(promos) == 0 {
		return nil, err
	}
	return promos[0], nil
}

// LoadMany returns the promotions with rules and attached actions, ordered by id.
func (r *repo) LoadMany(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*domain.Promotion, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	stmt := db.WithContext(ctx)

	var promos []*domain.Promotion
	if err := stmt.Where("id IN ?", ids).Order("id ASC").Find(&promos).Error; err != nil {
		return nil, err
	}
	if len(promos) == 0 {
		return nil, nil
	}

	byID := make(map[snowflake.ID]*domain.Promotion, len(promos))
	for _, p := range promos {
		byID[p.ID] = p
	}

	var rules []*domain.PromotionRule
	if err := stmt.Where("promotion_id IN ?", ids).Order("id ASC").Find(&rules).Error; err != nil {
		return nil, err
	}
	for _, rule := range rules {
		if p := byID[rule.PromotionID]; p != nil {
			p.Rules = append(p.Rules, rule)
		}
	}

	var actions []*domain.PromotionAction
	if err := stmt.Where("promotion_id IN ?", ids).Order("id ASC").Find(&actions).Error; err != nil {
		return nil, err
	}
	for _, action := range actions {
		if action.PromotionID == nil {
			continue
		}
		if p := byID[*action.PromotionID]; p != nil {
			p.Actions = append(p.Actions, action)
		}
	}
	return promos, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Promotion, error) {
	stmt := db.WithContext(ctx).Model(&domain.Promotion{})
	if filter.Advertised {
		stmt = option.ApplyOperator(option.Condition{Field: "advertise", Operator: option.EQ, Value: true}).Apply(stmt)
	}
	if filter.Coupons {
		stmt = stmt.Where(`EXISTS (SELECT 1 FROM promotion_codes pc WHERE pc.promotion_id = promotions.id)`)
	}
	if filter.HasActions || filter.ActiveAt != nil {
		stmt = stmt.Where(`EXISTS (SELECT 1 FROM promotion_actions pa WHERE pa.promotion_id = promotions.id)`)
	}
	if filter.ActiveAt != nil {
		stmt = activeAt(stmt, *filter.ActiveAt)
	}
	if filter.Automatic != nil {
		stmt = option.ApplyOperator(option.Condition{Field: "apply_automatically", Operator: option.EQ, Value: *filter.Automatic}).Apply(stmt)
	}
	if filter.CategoryID != nil {
		stmt = option.ApplyOperator(option.Condition{Field: "category_id", Operator: option.EQ, Value: *filter.CategoryID}).Apply(stmt)
	}
	stmt = option.ApplyPagination(filter.Limit, filter.Offset).Apply(stmt)

	var promos []*domain.Promotion
	if err := stmt.Order("id ASC").Find(&promos).Error; err != nil {
		return nil, err
	}
	return promos, nil
}

func activeAt(stmt *gorm.DB, at time.Time) *gorm.DB {
	return stmt.
		Where("(starts_at IS NULL OR starts_at <= ?)", at).
		Where("(expires_at IS NULL OR expires_at >= ?)", at)
}

func (r *repo) ActiveAutomaticIDs(ctx context.Context, db *gorm.DB, at time.Time) ([]snowflake.ID, error) {
	automatic := true
	promos, err := r.List(ctx, db, domain.ListFilter{ActiveAt: &at, Automatic: &automatic})
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(promos))
	for _, p := range promos {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

// Destroy removes the promotion and everything it owns. Actions are detached
// rather than deleted so adjustments on past orders keep their source.
func (r *repo) Destroy(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`UPDATE promotion_actions SET promotion_id = NULL WHERE promotion_id = ?`, id).Error; err != nil {
			return err
		}
		for _, table := range []string{"promotion_rules", "promotion_codes", "promotion_code_batches", "order_promotions"} {
			if err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE promotion_id = ?`, table), id).Error; err != nil {
				return err
			}
		}
		result := tx.Exec(`DELETE FROM promotions WHERE id = ?`, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *repo) InsertRule(ctx context.Context, db *gorm.DB, rule *domain.PromotionRule) error {
	return repository.ProvideStore[domain.PromotionRule](db).Create(ctx, rule)
}

func (r *repo) DeleteRule(ctx context.Context, db *gorm.DB, promotionID, ruleID snowflake.ID) error {
	result := db.WithContext(ctx).Exec(`DELETE FROM promotion_rules WHERE promotion_id = ? AND id = ?`, promotionID, ruleID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

func (r *repo) InsertAction(ctx context.Context, db *gorm.DB, action *domain.PromotionAction) error {
	return repository.ProvideStore[domain.PromotionAction](db).Create(ctx, action)
}

func (r *repo) FindAction(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PromotionAction, error) {
	return repository.ProvideStore[domain.PromotionAction](db).FindOne(ctx, &domain.PromotionAction{ID: id})
}

// DeleteAction drops the action's adjustments on open orders and returns those
// orders so their totals can be refreshed. An action that still sources
// adjustments on completed, canceled or returned orders is detached instead of deleted.
func (r *repo) DeleteAction(ctx context.Context, db *gorm.DB, promotionID, actionID snowflake.ID) ([]snowflake.ID, error) {
	var affected []snowflake.ID
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var found int64
		if err := tx.Raw(
			`SELECT COUNT(*) FROM promotion_actions WHERE id = ? AND promotion_id = ?`,
			actionID,
			promotionID,
		).Scan(&found).Error; err != nil {
			return err
		}
		if found == 0 {
			return domain.ErrActionNotFound
		}

		closed := []orderdomain.State{orderdomain.StateComplete, orderdomain.StateCanceled, orderdomain.StateReturned}
		if err := tx.Raw(
			`SELECT DISTINCT a.order_id
			 FROM adjustments a
			 JOIN orders o ON o.id = a.order_id
			 WHERE a.source_type = ? AND a.source_id = ? AND o.state NOT IN ?
			 ORDER BY a.order_id`,
			orderdomain.SourceTypePromotionAction,
			actionID,
			closed,
		).Scan(&affected).Error; err != nil {
			return err
		}
		if len(affected) > 0 {
			if err := tx.Exec(
				`DELETE FROM adjustments WHERE source_type = ? AND source_id = ? AND order_id IN ?`,
				orderdomain.SourceTypePromotionAction,
				actionID,
				affected,
			).Error; err != nil {
				return err
			}
		}

		var remaining int64
		if err := tx.Raw(
			`SELECT COUNT(*) FROM adjustments WHERE source_type = ? AND source_id = ?`,
			orderdomain.SourceTypePromotionAction,
			actionID,
		).Scan(&remaining).Error; err != nil {
			return err
		}
		if remaining > 0 {
			return tx.Exec(`UPDATE promotion_actions SET promotion_id = NULL WHERE id = ?`, actionID).Error
		}
		return tx.Exec(`DELETE FROM promotion_actions WHERE id = ?`, actionID).Error
	})
	if err != nil {
		return nil, err
	}
	return affected, nil
}

func (r *repo) InsertCategory(ctx context.Context, db *gorm.DB, category *domain.PromotionCategory) error {
	return repository.ProvideStore[domain.PromotionCategory](db).Create(ctx, category)
}

func (r *repo) InsertCodes(ctx context.Context, db *gorm.DB, codes []*domain.PromotionCode) error {
	return pkgdb.TranslateDuplicate(repository.ProvideStore[domain.PromotionCode](db).BatchCreate(ctx, codes), domain.ErrDuplicateCode)
}

func (r *repo) FindCode(ctx context.Context, db *gorm.DB, value string) (*domain.PromotionCode, error) {
	return repository.ProvideStore[domain.PromotionCode](db).FindOne(ctx, &domain.PromotionCode{Value: domain.NormalizeCode(value)})
}

func (r *repo) FindCodeByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PromotionCode, error) {
	return repository.ProvideStore[domain.PromotionCode](db).FindOne(ctx, &domain.PromotionCode{ID: id})
}

func (r *repo) InsertCodeBatch(ctx context.Context, db *gorm.DB, batch *domain.PromotionCodeBatch) error {
	return repository.ProvideStore[domain.PromotionCodeBatch](db).Create(ctx, batch)
}

func (r *repo) UpdateCodeBatch(ctx context.Context, db *gorm.DB, batch *domain.PromotionCodeBatch) error {
	return db.WithContext(ctx).Exec(
		`UPDATE promotion_code_batches SET state = ?, error = ?, updated_at = ? WHERE id = ?`,
		batch.State,
		batch.Error,
		batch.UpdatedAt,
		batch.ID,
	).Error
}

func (r *repo) OrderPromotions(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.OrderPromotion, error) {
	var links []domain.OrderPromotion
	err := db.WithContext(ctx).Where("order_id = ?", orderID).Order("id ASC").Find(&links).Error
	return links, err
}

func (r *repo) InsertOrderPromotion(ctx context.Context, db *gorm.DB, op *domain.OrderPromotion) error {
	return db.WithContext(ctx).Create(op).Error
}

func (r *repo) DeleteOrderPromotions(ctx context.Context, db *gorm.DB, ids []snowflake.ID) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(`DELETE FROM order_promotions WHERE id IN ?`, ids).Error
}

const usageJoin = `FROM orders o
	JOIN adjustments a ON a.order_id = o.id
	JOIN promotion_actions pa ON pa.id = a.source_id
	WHERE a.source_type = ? AND a.eligible = ? AND o.state = ?`

func (r *repo) UsageCount(ctx context.Context, db *gorm.DB, promotionID snowflake.ID, excludedOrderIDs []snowflake.ID) (int64, error) {
	query := `SELECT COUNT(DISTINCT o.id) ` + usageJoin + ` AND pa.promotion_id = ?`
	args := []any{orderdomain.SourceTypePromotionAction, true, orderdomain.StateComplete, promotionID}
	return count(ctx, db, query, args, excludedOrderIDs)
}

func (r *repo) CodeUsageCount(ctx context.Context, db *gorm.DB, codeID snowflake.ID, excludedOrderIDs []snowflake.ID) (int64, error) {
	query := `SELECT COUNT(DISTINCT o.id) ` + usageJoin + ` AND pa.promotion_id IS NOT NULL AND a.promotion_code_id = ?`
	args := []any{orderdomain.SourceTypePromotionAction, true, orderdomain.StateComplete, codeID}
	return count(ctx, db, query, args, excludedOrderIDs)
}

func (r *repo) UsedBy(ctx context.Context, db *gorm.DB, promotionID, userID snowflake.ID, excludedOrderIDs []snowflake.ID) (bool, error) {
	query := `SELECT COUNT(DISTINCT o.id) ` + usageJoin + ` AND pa.promotion_id = ? AND o.user_id = ?`
	args := []any{orderdomain.SourceTypePromotionAction, true, orderdomain.StateComplete, promotionID, userID}
	n, err := count(ctx, db, query, args, excludedOrderIDs)
	return n > 0, err
}

func count(ctx context.Context, db *gorm.DB, query string, args []any, excluded []snowflake.ID) (int64, error) {
	if len(excluded) > 0 {
		query += ` AND o.id NOT IN ?`
		args = append(args, excluded)
	}
	var n int64
	err := db.WithContext(ctx).Raw(query, args...).Scan(&n).Error
	return n, err
}
