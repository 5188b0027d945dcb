package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	_ "github.com/Sternrassler/rest-ingest/pkg/ingest"
	"github.com/Sternrassler/rest-ingest/pkg/metrics"
	_ "github.com/Sternrassler/rest-ingest/pkg/retry"
)

func TestRegistry(t *testing.T) {
	if metrics.Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
	if metrics.Gatherer != prometheus.DefaultGatherer {
		t.Error("Gatherer should be the default Prometheus gatherer")
	}
}

func TestHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body, _ := io.ReadAll(rec.Body)
	// unlabelled families are exported before their first update
	for _, name := range []string{
		"ingest_pages_total",
		"ingest_records_total",
		"ingest_run_duration_seconds",
		"ingest_http_pacing_wait_seconds",
		"ingest_sink_bytes_written_total",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestNames(t *testing.T) {
	seen := map[string]bool{}
	for _, name := range metrics.Names() {
		if !strings.HasPrefix(name, "ingest_") {
			t.Errorf("metric %q lacks the ingest_ prefix", name)
		}
		if seen[name] {
			t.Errorf("metric %q listed twice", name)
		}
		seen[name] = true
	}
}
