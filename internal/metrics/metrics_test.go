package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetrics_NoPanic(t *testing.T) {
	var m *Metrics
	m.JobSubmitted()
	m.JobPolled()
	m.JobOutcome("finished")
	m.Acquired("primary")
	m.ExplanationLookup("hit")
	m.ExplanationGenerated(true)
	m.PrefetchScheduled(3)
	m.SessionStarted()

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("nil metrics handler status = %d, want 404", rr.Code)
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.JobPolled()
	m.JobPolled()
	m.ExplanationGenerated(false)

	if got := testutil.ToFloat64(m.jobPolls); got != 2 {
		t.Errorf("job polls = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.explainGenerated.WithLabelValues("failure")); got != 1 {
		t.Errorf("failed generations = %v, want 1", got)
	}
}

func TestHandler_ExposesNamespace(t *testing.T) {
	m := New()
	m.Acquired("fallback")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `tubelearn_acquisitions_total{source="fallback"} 1`) {
		t.Fatalf("metrics output missing acquisition counter:\n%s", body)
	}
}
