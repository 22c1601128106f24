// Package promexport exposes driver metrics to Prometheus.
//
// The Observer plugs into aio.Options.Observer and records on a dedicated
// registry, so several drivers in one process (or tests) never collide on
// the global default registry. Server serves that registry over HTTP.
package promexport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	aio "github.com/ehrlich-b/go-aio"
)

// Observer is the Prometheus implementation of aio.Observer.
type Observer struct {
	registry *prometheus.Registry

	opsTotal          *prometheus.CounterVec
	opDuration        *prometheus.HistogramVec
	bytesTotal        *prometheus.CounterVec
	admissions        *prometheus.CounterVec
	active            prometheus.Gauge
	continuations     prometheus.Counter
	lostContinuations prometheus.Counter
}

// NewObserver registers the driver metrics on a fresh registry. driver is
// attached as a constant label.
func NewObserver(driver string) *Observer {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"driver": driver}
	f := promauto.With(reg)

	return &Observer{
		registry: reg,
		opsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "aio_operations_total",
				Help:        "Finished operations by type and status",
				ConstLabels: labels,
			},
			[]string{"type", "status"},
		),
		opDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "aio_operation_duration_seconds",
				Help:        "Time from admission to finalization",
				ConstLabels: labels,
				Buckets:     prometheus.ExponentialBuckets(0.00001, 10, 8), // 10us .. 100s
			},
			[]string{"type"},
		),
		bytesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "aio_bytes_total",
				Help:        "Bytes moved by finished operations",
				ConstLabels: labels,
			},
			[]string{"direction"},
		),
		admissions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "aio_admissions_total",
				Help:        "Throttle decisions",
				ConstLabels: labels,
			},
			[]string{"result"},
		),
		active: f.NewGauge(
			prometheus.GaugeOpts{
				Name:        "aio_active_operations",
				Help:        "Permits held at the last admission decision",
				ConstLabels: labels,
			},
		),
		continuations: f.NewCounter(
			prometheus.CounterOpts{
				Name:        "aio_continuations_total",
				Help:        "Operations handed back to the scheduler",
				ConstLabels: labels,
			},
		),
		lostContinuations: f.NewCounter(
			prometheus.CounterOpts{
				Name:        "aio_lost_continuations_total",
				Help:        "Continuations the scheduler refused",
				ConstLabels: labels,
			},
		),
	}
}

// Registry returns the registry the metrics live on
func (o *Observer) Registry() *prometheus.Registry {
	return o.registry
}

func (o *Observer) ObserveOp(typ aio.OpType, status aio.Status, bytes uint64, latencyNs uint64) {
	t := typ.String()
	o.opsTotal.WithLabelValues(t, status.String()).Inc()
	o.opDuration.WithLabelValues(t).Observe(float64(latencyNs) / 1e9)
	if bytes == 0 {
		return
	}
	direction := "write"
	if typ == aio.OpRead || typ == aio.OpUpdate {
		direction = "read"
	}
	o.bytesTotal.WithLabelValues(direction).Add(float64(bytes))
}

func (o *Observer) ObserveAdmission(admitted bool, active int64) {
	result := "admitted"
	if !admitted {
		result = "refused"
	}
	o.admissions.WithLabelValues(result).Inc()
	o.active.Set(float64(active))
}

func (o *Observer) ObserveContinuation() {
	o.continuations.Inc()
}

func (o *Observer) ObserveLostContinuation() {
	o.lostContinuations.Inc()
}

var _ aio.Observer = (*Observer)(nil)
