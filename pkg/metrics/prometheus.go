package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	rowsIngested *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
	forecastRuns *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		rowsIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cropcast_rows_ingested_total",
				Help: "Total number of daily metric rows ingested",
			},
			[]string{"commodity"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cropcast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cropcast_last_price",
				Help: "Last observed close price for a commodity",
			},
			[]string{"commodity"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cropcast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		forecastRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cropcast_forecast_runs_total",
				Help: "Completed forecast and simulation runs",
			},
			[]string{"commodity", "kind"},
		),
	}
}

// RecordIngest records stored daily metric rows.
func (r *Recorder) RecordIngest(commodity string, rows int) {
	r.rowsIngested.WithLabelValues(commodity).Add(float64(rows))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last close price for a commodity.
func (r *Recorder) RecordLastPrice(commodity string, price float64) {
	r.lastPrice.WithLabelValues(commodity).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordForecast records one completed run of the given kind.
func (r *Recorder) RecordForecast(commodity, kind string) {
	r.forecastRuns.WithLabelValues(commodity, kind).Inc()
}
