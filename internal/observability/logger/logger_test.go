package logger

import (
	"context"
	"testing"

	obscontext "github.com/jarednorman/solidus-friendly-promotions/internal/observability/context"
	"github.com/jarednorman/solidus-friendly-promotions/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithOrderID(ctx, "77")
	ctx = correlation.ContextWithCorrelationID(ctx, "cid-1")

	WithContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "77", fields["order_id"])
	assert.Equal(t, "cid-1", fields["correlation_id"])
	assert.NotContains(t, fields, "trace_id")
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("  select * from promotions"))
	assert.Equal(t, "DELETE", operationFromSQL("DELETE FROM adjustments WHERE id = 1"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestNormalizeFormat(t *testing.T) {
	assert.Equal(t, "console", normalizeFormat(" Console "))
	assert.Equal(t, "json", normalizeFormat("logfmt"))
}
