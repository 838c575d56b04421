// Package metrics defines the Prometheus instrumentation for the
// streaming service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the service exports.
type Metrics struct {
	TicksProcessed   *prometheus.CounterVec
	BarsCompleted    *prometheus.CounterVec
	ActiveClients    prometheus.Gauge
	ActiveGroups     prometheus.Gauge
	ActiveContexts   prometheus.Gauge
	BackfillDuration prometheus.Histogram
	CalcDuration     prometheus.Histogram
	DroppedSends     prometheus.Counter
	HTTPRequests     *prometheus.CounterVec
}

// New registers all collectors on the given registerer and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TicksProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chartstream_ticks_processed_total",
			Help: "Ticks consumed from the live tick channels.",
		}, []string{"instrument"}),

		BarsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chartstream_bars_completed_total",
			Help: "Bars completed by resamplers, labelled by interval.",
		}, []string{"interval"}),

		ActiveClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chartstream_active_clients",
			Help: "Currently connected websocket clients.",
		}),

		ActiveGroups: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chartstream_active_groups",
			Help: "Live subscription groups, one per instrument.",
		}),

		ActiveContexts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chartstream_active_regression_contexts",
			Help: "Initialized live regression contexts.",
		}),

		BackfillDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartstream_backfill_duration_seconds",
			Help:    "Time spent replaying the intraday tick cache per subscription.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),

		CalcDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartstream_regression_calc_duration_seconds",
			Help:    "Time spent per periodic regression recalculation.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),

		DroppedSends: factory.NewCounter(prometheus.CounterOpts{
			Name: "chartstream_dropped_sends_total",
			Help: "Messages dropped because a client send buffer was full.",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chartstream_http_requests_total",
			Help: "HTTP requests served, labelled by route and status.",
		}, []string{"route", "status"}),
	}
}

// NewDefault registers on the default Prometheus registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
