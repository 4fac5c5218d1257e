package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes promotion engine instruments.
type Metrics struct {
	recalculations     metric.Int64Counter
	discountsApplied   metric.Int64Counter
	discountAmount     metric.Float64Counter
	checkoutRestarts   metric.Int64Counter
	couponApplications metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "promotions"
	}
	meter := provider.Meter(name)

	recalculations, err := meter.Int64Counter("promotions_order_recalculations_total")
	if err != nil {
		return nil, err
	}
	discountsApplied, err := meter.Int64Counter("promotions_discounts_applied_total")
	if err != nil {
		return nil, err
	}
	discountAmount, err := meter.Float64Counter("promotions_discount_amount_total")
	if err != nil {
		return nil, err
	}
	checkoutRestarts, err := meter.Int64Counter("promotions_checkout_restarts_total")
	if err != nil {
		return nil, err
	}
	couponApplications, err := meter.Int64Counter("promotions_coupon_applications_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		recalculations:     recalculations,
		discountsApplied:   discountsApplied,
		discountAmount:     discountAmount,
		checkoutRestarts:   checkoutRestarts,
		couponApplications: couponApplications,
	}, nil
}

// Noop returns instruments bound to a no-op meter, for tests and tools.
func Noop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordRecalculation(ctx context.Context, adjuster, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("adjuster", strings.TrimSpace(adjuster)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.recalculations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDiscount counts one applied discount and adds its absolute amount.
func (m *Metrics) RecordDiscount(ctx context.Context, lane, level string, amount float64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("lane", strings.TrimSpace(lane)),
		attribute.String("level", strings.TrimSpace(level)),
	)
	m.discountsApplied.Add(ctx, 1, metric.WithAttributes(attrs...))
	if amount < 0 {
		amount = -amount
	}
	m.discountAmount.Add(ctx, amount, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordCheckoutRestart(ctx context.Context, fromState string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("order_state", strings.TrimSpace(fromState)))
	m.checkoutRestarts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordCouponApplication(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.couponApplications.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"adjuster":    {},
	"outcome":     {},
	"lane":        {},
	"level":       {},
	"order_state": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
