// Package metrics exposes Prometheus instrumentation for the analysis
// pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "market_echo"

const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeError    = "error"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	analyses         *prometheus.CounterVec
	stageFailures    *prometheus.CounterVec
	analysisDuration prometheus.Histogram
	verdicts         *prometheus.CounterVec
	transactions     *prometheus.CounterVec
	backfilled       prometheus.Counter
}

// New registers collectors on reg. Passing a fresh prometheus.NewRegistry()
// keeps tests isolated.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		analyses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Analyses completed by outcome.",
		}, []string{"outcome"}),
		stageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_stage_failures_total",
			Help:      "Failures per pipeline stage and error kind, terminal or absorbed.",
		}, []string{"stage", "kind"}),
		analysisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of one analysis request.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		}),
		verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_verdicts_total",
			Help:      "Reasoning service verdicts by agreement.",
		}, []string{"agreement"}),
		transactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_recorded_total",
			Help:      "Transactions written, split by whether an embedding was stored.",
		}, []string{"embedded"}),
		backfilled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embeddings_backfilled_total",
			Help:      "Embeddings generated for previously unembedded transactions.",
		}),
	}
}

func (m *Metrics) ObserveAnalysis(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(outcome).Inc()
	m.analysisDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) StageFailure(stage, kind string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(stage, kind).Inc()
}

func (m *Metrics) Verdict(agreement bool) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(strconv.FormatBool(agreement)).Inc()
}

func (m *Metrics) TransactionRecorded(embedded bool) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(strconv.FormatBool(embedded)).Inc()
}

func (m *Metrics) Backfilled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.backfilled.Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
