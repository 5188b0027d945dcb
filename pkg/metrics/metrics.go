// Package metrics exposes the Prometheus registry the ingest packages
// register into. Metrics are defined next to the code that updates them
// (client, retry, sink, runstore, ingest) to avoid import cycles.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer promauto uses in every ingest package.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects everything registered in Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Names lists the metric families of the ingest packages.
func Names() []string {
	return []string{
		// pkg/client
		"ingest_http_requests_total",
		"ingest_http_request_duration_seconds",
		"ingest_http_errors_total",
		"ingest_http_pacing_wait_seconds",
		// pkg/retry
		"ingest_retries_total",
		"ingest_retry_backoff_seconds",
		"ingest_retry_exhausted_total",
		// pkg/sink
		"ingest_sink_files_written_total",
		"ingest_sink_bytes_written_total",
		"ingest_sink_collisions_total",
		"ingest_mirror_uploads_total",
		// pkg/runstore
		"ingest_runstore_errors_total",
		"ingest_runs_recorded_total",
		// pkg/ingest
		"ingest_runs_total",
		"ingest_run_duration_seconds",
		"ingest_pages_total",
		"ingest_records_total",
	}
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - ingest_http_requests_total{host, status} (Counter)
//   - ingest_http_request_duration_seconds{host} (Histogram)
//   - ingest_http_errors_total{class} (Counter): client, server, rate_limit, network
//   - ingest_http_pacing_wait_seconds (Histogram): time spent waiting for the rate limiter
//
// Retry Metrics (pkg/retry):
//   - ingest_retries_total{error_class} (Counter)
//   - ingest_retry_backoff_seconds{error_class} (Histogram)
//   - ingest_retry_exhausted_total{error_class} (Counter)
//
// Output Metrics (pkg/sink):
//   - ingest_sink_files_written_total{policy} (Counter)
//   - ingest_sink_bytes_written_total (Counter)
//   - ingest_sink_collisions_total{policy} (Counter)
//   - ingest_mirror_uploads_total{result} (Counter)
//
// Run Store Metrics (pkg/runstore):
//   - ingest_runstore_errors_total{operation} (Counter)
//   - ingest_runs_recorded_total{backend} (Counter)
//
// Run Metrics (pkg/ingest):
//   - ingest_runs_total{result} (Counter)
//   - ingest_run_duration_seconds (Histogram)
//   - ingest_pages_total (Counter)
//   - ingest_records_total (Counter)
//
// Example Prometheus Queries:
//
//   # Failed run ratio
//   sum(rate(ingest_runs_total{result="error"}[1h])) / sum(rate(ingest_runs_total[1h]))
//
//   # Records per run
//   rate(ingest_records_total[1h]) / rate(ingest_runs_total{result="ok"}[1h])
//
//   # P95 request latency per host
//   histogram_quantile(0.95, sum by (host, le) (rate(ingest_http_request_duration_seconds_bucket[5m])))
