package repository

import (
	"context"
	"strings"

	"github.com/jarednorman/solidus-friendly-promotions/internal/audit/domain"
	"github.com/jarednorman/solidus-friendly-promotions/pkg/db/option"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Create(entry).Error
}

// List returns the newest entries first.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	opts := make([]option.QueryOption, 0, 6)
	for field, value := range map[string]string{
		"action":      filter.Action,
		"target_type": filter.TargetType,
		"target_id":   filter.TargetID,
	} {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			opts = append(opts, option.ApplyOperator(option.Condition{Field: field, Operator: option.EQ, Value: trimmed}))
		}
	}
	if filter.StartAt != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "created_at", Operator: option.GTE, Value: filter.StartAt.UTC()}))
	}
	if filter.EndAt != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "created_at", Operator: option.LTE, Value: filter.EndAt.UTC()}))
	}
	opts = append(opts, option.ApplyPagination(filter.Limit, 0))

	stmt := db.WithContext(ctx).Model(&domain.AuditLog{})
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}

	var logs []*domain.AuditLog
	if err := stmt.Order("created_at DESC, id DESC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
