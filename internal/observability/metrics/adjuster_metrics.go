package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	ReasonDeadlineExceeded     = "deadline_exceeded"
	ReasonDBLockTimeout        = "db_lock_timeout"
	ReasonSerializationFailure = "serialization_failure"
	ReasonUniqueViolation      = "unique_violation"
	ReasonNotFound             = "not_found"
	ReasonInProgress           = "in_progress"
	ReasonUnknown              = "unknown"
)

// AdjusterMetrics tracks recalculation latency and failures on the prometheus registry
// scraped at /metrics.
type AdjusterMetrics struct {
	duration    *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	adjustments *prometheus.CounterVec
}

var (
	adjusterMetricsOnce sync.Once
	adjusterMetrics     *AdjusterMetrics
)

// Adjuster returns the process-wide adjuster metrics registered on the default registry.
func Adjuster(cfg Config) *AdjusterMetrics {
	adjusterMetricsOnce.Do(func() {
		adjusterMetrics = NewAdjusterMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return adjusterMetrics
}

func NewAdjusterMetrics(registerer prometheus.Registerer, cfg Config) *AdjusterMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "promotions"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{"service": serviceName, "env": environment}

	m := &AdjusterMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "promotions_adjuster_duration_seconds",
			Help:        "Order promotion recalculation latency.",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			ConstLabels: constLabels,
		}, []string{"adjuster"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "promotions_adjuster_errors_total",
			Help:        "Order promotion recalculation failures by reason.",
			ConstLabels: constLabels,
		}, []string{"adjuster", "reason"}),
		adjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "promotions_adjuster_adjustments_total",
			Help:        "Adjustment rows written by the adjuster, by operation.",
			ConstLabels: constLabels,
		}, []string{"operation"}),
	}
	registerer.MustRegister(m.duration, m.errors, m.adjustments)
	return m
}

func (m *AdjusterMetrics) ObserveDuration(adjuster string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(adjuster).Observe(elapsed.Seconds())
}

func (m *AdjusterMetrics) IncError(adjuster, reason string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(adjuster, reason).Inc()
}

// AddAdjustments counts created, updated and deleted adjustment rows.
func (m *AdjusterMetrics) AddAdjustments(operation string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.adjustments.WithLabelValues(operation).Add(float64(n))
}

// ClassifyReason maps a recalculation error onto a low-cardinality reason label.
func ClassifyReason(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ReasonUniqueViolation
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ReasonNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return ReasonDBLockTimeout
		case "40001":
			return ReasonSerializationFailure
		case "23505":
			return ReasonUniqueViolation
		}
	}
	return ReasonUnknown
}
