package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jarednorman/solidus-friendly-promotions/internal/config"
	"github.com/jarednorman/solidus-friendly-promotions/pkg/telemetry/correlation"
	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(NewPublisher),
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON to one topic.
type KafkaPublisher struct {
	writer messageWriter
	log    *zap.Logger
	now    func() time.Time
}

func NewKafkaPublisher(writer messageWriter, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, log: log.Named("events.kafka"), now: time.Now}
}

// NewPublisher returns a kafka publisher when brokers are configured, a no-op otherwise.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		log.Info("kafka brokers not configured, domain events disabled")
		return NewNopPublisher()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	pub := NewKafkaPublisher(writer, log)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return pub.Close() },
	})
	return pub
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	msg, err := p.message(ctx, event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Warn("failed to publish event", zap.String("type", event.Type), zap.String("key", event.Key), zap.Error(err))
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) message(ctx context.Context, event Event) (kafka.Message, error) {
	now := p.now().UTC()
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now
	}
	body, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal %s: %w", event.Type, err)
	}

	headers := []kafka.Header{{Key: "event_type", Value: []byte(event.Type)}}
	for key, value := range correlation.EventHeaders(ctx, now) {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	return kafka.Message{
		Key:     []byte(event.Key),
		Value:   body,
		Headers: headers,
		Time:    now,
	}, nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
