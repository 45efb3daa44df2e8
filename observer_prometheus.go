package rescache

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusObserver counts query cache operations and records their latency.
type PrometheusObserver struct {
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusObserver registers the rescache metrics on reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusObserver{
		ops: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rescache_operations_total",
			Help: "Query cache operations by op, driver and result",
		}, []string{"op", "driver", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rescache_operation_duration_seconds",
			Help:    "Query cache operation latency",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}, []string{"op", "driver"}),
	}
}

// OnCacheOp implements Observer.
func (p *PrometheusObserver) OnCacheOp(_ context.Context, op string, _ string, hit bool, err error, dur time.Duration, driver Driver) {
	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case hit:
		result = "hit"
	}
	p.ops.WithLabelValues(op, string(driver), result).Inc()
	p.duration.WithLabelValues(op, string(driver)).Observe(dur.Seconds())
}
