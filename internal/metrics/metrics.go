// Package metrics exposes Prometheus counters for the agent. All methods are
// safe to call on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tubelearn"

type Metrics struct {
	registry *prometheus.Registry

	jobSubmissions   prometheus.Counter
	jobPolls         prometheus.Counter
	jobOutcomes      *prometheus.CounterVec
	acquisitions     *prometheus.CounterVec
	explainLookups   *prometheus.CounterVec
	explainGenerated *prometheus.CounterVec
	prefetchQueued   prometheus.Counter
	sessionsStarted  prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		jobSubmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_submissions_total",
			Help:      "Transcription jobs pushed to the job service.",
		}),
		jobPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_polls_total",
			Help:      "Job status requests issued.",
		}),
		jobOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_outcomes_total",
			Help:      "Terminal outcomes of transcription jobs.",
		}, []string{"outcome"}),
		acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquisitions_total",
			Help:      "Transcript acquisitions by resulting source.",
		}, []string{"source"}),
		explainLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explanation_lookups_total",
			Help:      "Explanation cache lookups by result.",
		}, []string{"result"}),
		explainGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explanation_generations_total",
			Help:      "Upstream explanation generations by outcome.",
		}, []string{"outcome"}),
		prefetchQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prefetch_scheduled_total",
			Help:      "Prefetch generations scheduled.",
		}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Video sessions started.",
		}),
	}

	reg.MustRegister(
		m.jobSubmissions,
		m.jobPolls,
		m.jobOutcomes,
		m.acquisitions,
		m.explainLookups,
		m.explainGenerated,
		m.prefetchQueued,
		m.sessionsStarted,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) JobSubmitted() {
	if m != nil {
		m.jobSubmissions.Inc()
	}
}

func (m *Metrics) JobPolled() {
	if m != nil {
		m.jobPolls.Inc()
	}
}

// JobOutcome records finished, failed, timeout or error.
func (m *Metrics) JobOutcome(outcome string) {
	if m != nil {
		m.jobOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Acquired(source string) {
	if m != nil {
		m.acquisitions.WithLabelValues(source).Inc()
	}
}

// ExplanationLookup records hit, miss or shared (joined an in-flight call).
func (m *Metrics) ExplanationLookup(result string) {
	if m != nil {
		m.explainLookups.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) ExplanationGenerated(ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.explainGenerated.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PrefetchScheduled(n int) {
	if m != nil && n > 0 {
		m.prefetchQueued.Add(float64(n))
	}
}

func (m *Metrics) SessionStarted() {
	if m != nil {
		m.sessionsStarted.Inc()
	}
}
