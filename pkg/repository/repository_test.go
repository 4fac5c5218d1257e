package repository

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/jarednorman/solidus-friendly-promotions/pkg/db/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type widget struct {
	ID    int64 `gorm:"primaryKey"`
	Kind  string
	Score int
}

func setupStore(t *testing.T) (*gorm.DB, Repository[widget]) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&widget{}))
	return db, ProvideStore[widget](db)
}

func TestStoreFindWithOptions(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.BatchCreate(ctx, []*widget{
		{ID: 1, Kind: "a", Score: 10},
		{ID: 2, Kind: "a", Score: 30},
		{ID: 3, Kind: "b", Score: 20},
	}))

	found, err := store.Find(ctx, &widget{Kind: "a"},
		option.ApplyOperator(option.Condition{Field: "score", Operator: option.GTE, Value: 20}),
	)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, int64(2), found[0].ID)

	sorted, err := store.Find(ctx, &widget{},
		option.WithSortBy(option.QuerySortBy{Field: "score", Desc: true, Allow: map[string]bool{"score": true}}),
		option.ApplyPagination(2, 0),
	)
	require.NoError(t, err)
	require.Len(t, sorted, 2)
	assert.Equal(t, []int64{2, 3}, []int64{sorted[0].ID, sorted[1].ID})
}

func TestStoreFindOneMissingReturnsNil(t *testing.T) {
	_, store := setupStore(t)
	got, err := store.FindOne(context.Background(), &widget{ID: 99})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStoreBoundToTransactionRollsBack(t *testing.T) {
	db, store := setupStore(t)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := ProvideStore[widget](tx).Create(ctx, &widget{ID: 5, Kind: "c"}); err != nil {
			return err
		}
		return gorm.ErrInvalidTransaction
	})
	require.Error(t, err)

	count, err := store.Count(ctx, &widget{Kind: "c"})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStoreBatchCreateChunks(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()

	widgets := make([]*widget, 0, DefaultBatchSize+3)
	for i := 0; i < DefaultBatchSize+3; i++ {
		widgets = append(widgets, &widget{ID: int64(i + 1), Kind: "bulk"})
	}
	require.NoError(t, store.BatchCreate(ctx, widgets))
	require.NoError(t, store.BatchCreate(ctx, nil))

	count, err := store.Count(ctx, &widget{Kind: "bulk"})
	require.NoError(t, err)
	assert.EqualValues(t, DefaultBatchSize+3, count)
}
