/*
metrics.go - Prometheus counters for portal operations

PURPOSE:
  Counts the outcomes operators care about. Domain services expose
  observer hooks (OnRow, OnMerge, OnDelete); NewHandler connects them here.

METRICS:
  clubportal_import_rows_total{schema,outcome}
  clubportal_merges_total{outcome}
  clubportal_log_submissions_total{status}
  clubportal_sheet_deletes_total{outcome}

SEE ALSO:
  - server.go: Serves /metrics
*/
package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clubportal"

type Metrics struct {
	Registry       *prometheus.Registry
	ImportRows     *prometheus.CounterVec
	Merges         *prometheus.CounterVec
	LogSubmissions *prometheus.CounterVec
	SheetDeletes   *prometheus.CounterVec
}

// NewMetrics builds the counters on a private registry, so tests can
// create as many handlers as they like.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ImportRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_total",
			Help:      "CSV rows processed by bulk import.",
		}, []string{"schema", "outcome"}),
		Merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_total",
			Help:      "Profile syncs run on sign-in.",
		}, []string{"outcome"}),
		LogSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_submissions_total",
			Help:      "Confirmed log submissions by resulting status.",
		}, []string{"status"}),
		SheetDeletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sheet_deletes_total",
			Help:      "Sheet delete cascades by outcome.",
		}, []string{"outcome"}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ImportRows,
		m.Merges,
		m.LogSubmissions,
		m.SheetDeletes,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
