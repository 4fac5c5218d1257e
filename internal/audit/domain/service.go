package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)

// Entry is one audited change. DB, when set, writes inside the caller's transaction.
type Entry struct {
	DB         *gorm.DB
	ActorType  string
	ActorID    *string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	StartAt    *time.Time
	EndAt      *time.Time
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, filter ListFilter) ([]*AuditLog, error)
}
