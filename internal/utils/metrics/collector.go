// internal/utils/metrics/collector.go
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rovshanmuradov/tokenmill/internal/types"
)

const namespace = "tokenmill"

// Collector владеет метриками операций рынка
type Collector struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	fees       *prometheus.CounterVec
	buyback    *prometheus.GaugeVec
	supply     *prometheus.GaugeVec
	migrations prometheus.Counter
}

// NewCollector создает коллектор и регистрирует метрики в reg.
// nil reg означает prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of market operations processed",
			},
			[]string{"status", "operation", "code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Operation duration in seconds, lock wait included",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"operation"},
		),
		fees: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fees_lamports_total",
				Help:      "Fees produced by purchases, by component",
			},
			[]string{"kind"},
		),
		buyback: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "buyback_lamports",
				Help:      "Cumulative buyback spend per market",
			},
			[]string{"market"},
		),
		supply: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "curve_supply",
				Help:      "Base units sold through the curve per market",
			},
			[]string{"market"},
		),
		migrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_total",
			Help:      "Markets migrated",
		}),
	}

	reg.MustRegister(c.operations, c.duration, c.fees, c.buyback, c.supply, c.migrations)
	return c
}

// Reset сбрасывает все метрики (полезно для тестирования)
func (c *Collector) Reset() {
	c.operations.Reset()
	c.duration.Reset()
	c.fees.Reset()
	c.buyback.Reset()
	c.supply.Reset()
}

// RecordOperation записывает результат операции. Ошибки домена
// помечаются своим кодом.
func (c *Collector) RecordOperation(ctx context.Context, operation string, duration time.Duration, err error) {
	status, code := "success", ""
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		status = "cancelled"
	default:
		status = "failed"
		var terr *types.Error
		if errors.As(err, &terr) {
			code = terr.Name
		}
	}
	c.operations.WithLabelValues(status, operation, code).Inc()
	c.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// AddFee прибавляет lamports к счетчику компонента комиссии
func (c *Collector) AddFee(kind string, lamports uint64) {
	if lamports == 0 {
		return
	}
	c.fees.WithLabelValues(kind).Add(float64(lamports))
}

func (c *Collector) SetBuybackTotal(market string, lamports uint64) {
	c.buyback.WithLabelValues(market).Set(float64(lamports))
}

func (c *Collector) SetSupply(market string, supply uint64) {
	c.supply.WithLabelValues(market).Set(float64(supply))
}

func (c *Collector) IncMigrations() {
	c.migrations.Inc()
}
