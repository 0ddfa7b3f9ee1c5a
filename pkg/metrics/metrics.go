// Package metrics provides the Prometheus registry shared by all cdr-recordings packages.
// Metrics are defined in their respective packages (client, history cache, queue, download)
// to maintain modularity and avoid circular dependencies.
//
// A CLI run is short-lived, so metrics are exported with WriteTextfile for
// node_exporter's textfile collector instead of being scraped.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects everything registered with Registry.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// WriteTextfile writes all gathered metrics to path in the text exposition
// format. The file is replaced atomically.
func WriteTextfile(path string) error {
	return writeTextfile(path, Gatherer)
}

func writeTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - cdr_http_requests_total{host, status} (Counter): Requests by host and HTTP status
//   - cdr_http_request_duration_seconds{host} (Histogram): Time to response headers by host
//   - cdr_http_errors_total{class} (Counter): Errors by class (client, server, network)
//
// Cache Metrics (pkg/cache):
//   - cdr_cache_hits_total (Counter): Page cache hits
//   - cdr_cache_misses_total (Counter): Page cache misses
//   - cdr_cache_stored_bytes_total (Counter): Bytes written to the page cache
//   - cdr_cache_errors_total{operation} (Counter): Cache operation errors
//
// Queue Metrics (pkg/queue):
//   - cdr_queue_active{queue} (Gauge): Running tasks, queue is "fetch" or "download"
//   - cdr_queue_pending{queue} (Gauge): Tasks waiting for a slot
//   - cdr_queue_tasks_total{queue, result} (Counter): Settled tasks by result (success, error)
//
// Download Metrics (pkg/download):
//   - cdr_downloads_total{result} (Counter): Downloads by result (success, error)
//   - cdr_download_bytes_total (Counter): Bytes written to the sink
//   - cdr_download_duration_seconds (Histogram): Time per recording
//
// Example Prometheus Queries:
//
//   # Download failure ratio of the last run
//   cdr_downloads_total{result="error"} / ignoring(result) sum(cdr_downloads_total)
//
//   # Page cache hit rate
//   sum(cdr_cache_hits_total) / (sum(cdr_cache_hits_total) + sum(cdr_cache_misses_total))
//
//   # Server-side failures
//   cdr_http_errors_total{class="server"}
