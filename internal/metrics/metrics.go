// Package metrics exposes Prometheus instrumentation for the sync pipeline. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kelsos/ledger-sync/internal/models"
)

const namespace = "ledger_sync"

type Metrics struct {
	registry         *prometheus.Registry
	chainsTotal      *prometheus.CounterVec
	phaseDuration    *prometheus.HistogramVec
	runsTotal        *prometheus.CounterVec
	newAccountsTotal prometheus.Counter
	progress         prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		chainsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chains_total",
			Help:      "Chains that finished a pipeline run, by final status.",
		}, []string{"status"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chain_phase_duration_seconds",
			Help:      "Time spent per chain in each pipeline phase.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"phase"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by kind and outcome.",
		}, []string{"kind", "outcome"}),
		newAccountsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deep_scan_new_accounts_total",
			Help:      "Accounts added by deep scans.",
		}),
		progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "progress_percentage",
			Help:      "Progress of the running pipeline.",
		}),
	}

	m.registry.MustRegister(m.chainsTotal, m.phaseDuration, m.runsTotal, m.newAccountsTotal, m.progress)
	return m
}

// Handler serves the metrics of this instance
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ChainFinished(status models.Status) {
	if m == nil {
		return
	}
	m.chainsTotal.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) ObservePhase(phase models.SyncPhase, started time.Time) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(string(phase)).Observe(time.Since(started).Seconds())
}

func (m *Metrics) RunFinished(kind, outcome string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) NewAccounts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.newAccountsTotal.Add(float64(n))
}

func (m *Metrics) Progress(p models.SyncProgress) {
	if m == nil {
		return
	}
	m.progress.Set(float64(p.Percentage))
}
