package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jarednorman/solidus-friendly-promotions/pkg/telemetry/correlation"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherWritesEnvelopeAndHeaders(t *testing.T) {
	writer := &fakeWriter{}
	pub := NewKafkaPublisher(writer, zap.NewNop())
	pub.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	ctx := correlation.ContextWithCorrelationID(context.Background(), "corr-1")
	err := pub.Publish(ctx, Event{
		Type:    TypePromotionsRecalculated,
		Key:     "42",
		Payload: RecalculatedPayload("42", decimal.RequireFromString("-4"), decimal.RequireFromString("36"), 2, 0, 0),
	})
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "42", string(msg.Key))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, TypePromotionsRecalculated, headers["event_type"])
	assert.Equal(t, "corr-1", headers["correlation_id"])

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, TypePromotionsRecalculated, decoded.Type)
	assert.Equal(t, "-4.00", decoded.Payload["promo_total"])
	assert.Equal(t, "36.00", decoded.Payload["total"])
	assert.True(t, decoded.OccurredAt.Equal(pub.now()))

	require.NoError(t, pub.Close())
	assert.True(t, writer.closed)
}

func TestKafkaPublisherWrapsWriteErrors(t *testing.T) {
	boom := errors.New("broker down")
	pub := NewKafkaPublisher(&fakeWriter{err: boom}, zap.NewNop())
	err := pub.Publish(context.Background(), Event{Type: TypeCouponApplied, Key: "1"})
	assert.ErrorIs(t, err, boom)
}

func TestNopPublisher(t *testing.T) {
	pub := NewNopPublisher()
	assert.NoError(t, pub.Publish(context.Background(), Event{Type: TypeCheckoutRestarted}))
	assert.NoError(t, pub.Close())
}
