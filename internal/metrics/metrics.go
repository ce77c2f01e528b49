// Package metrics exposes Prometheus collectors for bulk reconciliation,
// map composition and the feature collection cache.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "geoatlas"

var (
	bulkRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bulk",
		Name:      "rows_total",
		Help:      "Rows reconciled by bulk imports, by dataset and outcome.",
	}, []string{"dataset", "outcome"})

	bulkDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "bulk",
		Name:      "duration_seconds",
		Help:      "Wall time of bulk import calls.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"dataset", "status"})

	mapDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "map",
		Name:      "compose_duration_seconds",
		Help:      "Wall time of map composition, by dataset and cache result.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"dataset", "cache"})

	importsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "bulk",
		Name:      "active_imports",
		Help:      "Bulk imports currently holding a limiter slot.",
	})
)

// ObserveBulk records the outcome of one bulk import call.
// status is "ok", "cancelled" or "error".
func ObserveBulk(dataset, status string, created, updated, failed int, d time.Duration) {
	bulkRows.WithLabelValues(dataset, "created").Add(float64(created))
	bulkRows.WithLabelValues(dataset, "updated").Add(float64(updated))
	bulkRows.WithLabelValues(dataset, "failed").Add(float64(failed))
	bulkDuration.WithLabelValues(dataset, status).Observe(d.Seconds())
}

// ObserveMap records one map composition.
func ObserveMap(dataset string, cached bool, d time.Duration) {
	result := "miss"
	if cached {
		result = "hit"
	}
	mapDuration.WithLabelValues(dataset, result).Observe(d.Seconds())
}

// ImportStarted and ImportFinished track limiter occupancy.
func ImportStarted()  { importsActive.Inc() }
func ImportFinished() { importsActive.Dec() }

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
