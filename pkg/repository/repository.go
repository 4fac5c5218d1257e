package repository

import (
	"context"

	"github.com/jarednorman/solidus-friendly-promotions/pkg/db/option"
)

// Repository is a generic gorm-backed store for a single model type.
// Bind it to a transaction by passing the tx handle to ProvideStore.
type Repository[T any] interface {
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	// FindOne returns nil, nil when nothing matches.
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	// BatchCreate inserts in chunks of DefaultBatchSize rows.
	BatchCreate(ctx context.Context, resources []*T) error
	Count(ctx context.Context, query *T) (int64, error)
}
