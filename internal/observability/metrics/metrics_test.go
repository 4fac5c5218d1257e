package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("lane", "pre"),
		attribute.String("order_id", "456"),
		attribute.String("level", "line_item"),
	)
	assert.Len(t, attrs, 2)
	for _, attr := range attrs {
		assert.NotEqual(t, attribute.Key("order_id"), attr.Key)
	}
}

func TestClassifyReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "deadline", err: fmt.Errorf("adjust: %w", context.DeadlineExceeded), want: ReasonDeadlineExceeded},
		{name: "lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: ReasonDBLockTimeout},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: ReasonSerializationFailure},
		{name: "duplicate", err: gorm.ErrDuplicatedKey, want: ReasonUniqueViolation},
		{name: "not_found", err: gorm.ErrRecordNotFound, want: ReasonNotFound},
		{name: "unknown", err: errors.New("boom"), want: ReasonUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyReason(tc.err))
		})
	}
}

func TestAdjusterMetricsCounts(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewAdjusterMetrics(registry, Config{ServiceName: "promotions", Environment: "test"})

	m.AddAdjustments("created", 3)
	m.AddAdjustments("created", 0)
	m.IncError("friendly", ReasonInProgress)
	m.ObserveDuration("friendly", 20*time.Millisecond)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.adjustments.WithLabelValues("created")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.errors.WithLabelValues("friendly", ReasonInProgress)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordDiscount(context.Background(), "default", "line_item", -2)
	var am *AdjusterMetrics
	am.IncError("friendly", ReasonUnknown)

	assert.NotNil(t, Noop())
}
