package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/jarednorman/solidus-friendly-promotions/internal/audit/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/audit/repository"
	"github.com/jarednorman/solidus-friendly-promotions/internal/clock"
	"github.com/jarednorman/solidus-friendly-promotions/internal/migration"
	obscontext "github.com/jarednorman/solidus-friendly-promotions/internal/observability/context"
	"github.com/jarednorman/solidus-friendly-promotions/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (auditdomain.Service, *clock.FakeClock, *gorm.DB) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: clk,
	})
	return svc, clk, conn
}

func TestRecordMasksCodesAndCarriesRequestContext(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = correlation.ContextWithCorrelationID(ctx, "corr-1")

	require.NoError(t, svc.Record(ctx, auditdomain.Entry{
		Action:     auditdomain.ActionCouponApplied,
		TargetType: auditdomain.TargetOrder,
		TargetID:   "42",
		Metadata:   map[string]any{"code": "SPRING20", "promotion_id": "7"},
	}))

	logs, err := svc.List(context.Background(), auditdomain.ListFilter{TargetID: "42"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	entry := logs[0]
	assert.Equal(t, auditdomain.ActorSystem, entry.ActorType)
	assert.Equal(t, auditdomain.ActionCouponApplied, entry.Action)
	assert.Equal(t, "****NG20", entry.Metadata["code"])
	assert.Equal(t, "7", entry.Metadata["promotion_id"])
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
	assert.Equal(t, "corr-1", entry.Metadata["correlation_id"])
}

func TestRecordRequiresAction(t *testing.T) {
	svc, _, _ := setup(t)

	err := svc.Record(context.Background(), auditdomain.Entry{Action: "  "})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestRecordInsideCallerTransaction(t *testing.T) {
	svc, _, conn := setup(t)

	_ = conn.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, svc.Record(context.Background(), auditdomain.Entry{
			DB:         tx,
			Action:     auditdomain.ActionPromotionCreated,
			TargetType: auditdomain.TargetPromotion,
			TargetID:   "1",
		}))
		return assert.AnError
	})

	logs, err := svc.List(context.Background(), auditdomain.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestListFilters(t *testing.T) {
	svc, clk, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, auditdomain.Entry{Action: auditdomain.ActionPromotionCreated, TargetType: auditdomain.TargetPromotion, TargetID: "1"}))
	clk.Advance(48 * time.Hour)
	require.NoError(t, svc.Record(ctx, auditdomain.Entry{Action: auditdomain.ActionPromotionDestroyed, TargetType: auditdomain.TargetPromotion, TargetID: "1"}))

	logs, err := svc.List(ctx, auditdomain.ListFilter{Action: auditdomain.ActionPromotionDestroyed})
	require.NoError(t, err)
	require.Len(t, logs, 1)

	start := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	logs, err = svc.List(ctx, auditdomain.ListFilter{StartAt: &start})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, auditdomain.ActionPromotionDestroyed, logs[0].Action)

	logs, err = svc.List(ctx, auditdomain.ListFilter{TargetType: auditdomain.TargetPromotion, Limit: 1})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, auditdomain.ActionPromotionDestroyed, logs[0].Action)

	end := start.Add(-time.Hour)
	_, err = svc.List(ctx, auditdomain.ListFilter{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
