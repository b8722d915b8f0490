package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdftoolkit",
			Name:      "operations_total",
			Help:      "Total engine operations by operation and result (ok or error kind)",
		},
		[]string{"operation", "result"},
	)

	operationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdftoolkit",
			Name:      "operation_duration_seconds",
			Help:      "Duration of engine operations by operation",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	outputBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdftoolkit",
			Name:      "output_bytes",
			Help:      "Size of produced artifacts by operation",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 4, 8),
		},
		[]string{"operation"},
	)

	batchSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pdftoolkit",
			Name:      "batch_skipped_total",
			Help:      "Images skipped by batch runs",
		},
	)

	inflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pdftoolkit",
			Name:      "inflight_operations",
			Help:      "Operations currently holding a processing slot",
		},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(operations, operationLatency, outputBytes, batchSkipped, inflight)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

// ObserveOperation records one finished operation. result is "ok" or an error kind.
func ObserveOperation(operation, result string, dur time.Duration) {
	operations.WithLabelValues(operation, result).Inc()
	operationLatency.WithLabelValues(operation).Observe(dur.Seconds())
}

func ObserveOutput(operation string, size int) { outputBytes.WithLabelValues(operation).Observe(float64(size)) }

func AddBatchSkipped(n int) { batchSkipped.Add(float64(n)) }

func SetInflight(n int) { inflight.Set(float64(n)) }
