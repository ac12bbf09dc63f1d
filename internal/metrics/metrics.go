// Package metrics exports engine events as Prometheus metrics by
// implementing the observability hooks.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matzehuels/blockflow/pkg/errors"
	"github.com/matzehuels/blockflow/pkg/observability"
)

const namespace = "blockflow"

// Metrics holds the collectors. It implements every hook interface of
// package observability.
type Metrics struct {
	reg *prometheus.Registry

	commits        *prometheus.CounterVec
	commitDuration prometheus.Histogram
	rollbacks      *prometheus.CounterVec
	rejections     *prometheus.CounterVec

	adjustments    *prometheus.CounterVec
	adjustDuration *prometheus.HistogramVec
	nodesMoved     *prometheus.HistogramVec
	measureRetries prometheus.Counter
	measureGiveUps prometheus.Counter

	transitions *prometheus.CounterVec

	storageReads  *prometheus.CounterVec
	storageWrites *prometheus.CounterVec
	storageBytes  *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry, together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,

		commits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_changes_total",
			Help:      "Committed graph changes by change kind",
		}, []string{"kind"}),
		commitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_commit_duration_seconds",
			Help:      "Duration of committed graph transactions",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		rollbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_rollbacks_total",
			Help:      "Rolled back graph transactions by error code",
		}, []string{"code"}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Connections refused by the validator by reason",
		}, []string{"reason"}),

		adjustments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layout_adjustments_total",
			Help:      "Layout passes by priority and result",
		}, []string{"priority", "result"}),
		adjustDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "layout_adjust_duration_seconds",
			Help:      "Duration of layout passes",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"priority"}),
		nodesMoved: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "layout_nodes_moved",
			Help:      "Nodes moved per layout pass",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}, []string{"priority"}),
		measureRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layout_measure_retries_total",
			Help:      "Deferred layout attempts that found the node unmeasured",
		}),
		measureGiveUps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layout_measure_abandoned_total",
			Help:      "Nodes whose size never arrived",
		}),

		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spawner_transitions_total",
			Help:      "Edge-drop spawner state transitions",
		}, []string{"from", "to"}),

		storageReads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_reads_total",
			Help:      "Storage reads by backend and result",
		}, []string{"backend", "result"}),
		storageWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_writes_total",
			Help:      "Storage writes by backend",
		}, []string{"backend"}),
		storageBytes: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_write_bytes",
			Help:      "Size of stored documents",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		}, []string{"backend"}),
	}
}

// Install registers m as the process-wide observability hooks.
func (m *Metrics) Install() {
	observability.SetGraphHooks(m)
	observability.SetLayoutHooks(m)
	observability.SetSpawnerHooks(m)
	observability.SetStorageHooks(m)
}

// Registry returns the Prometheus registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) OnCommit(kinds []string, d time.Duration) {
	for _, k := range kinds {
		m.commits.WithLabelValues(k).Inc()
	}
	m.commitDuration.Observe(d.Seconds())
}

func (m *Metrics) OnRollback(err error) {
	code := string(errors.GetCode(err))
	if code == "" {
		code = "unknown"
	}
	m.rollbacks.WithLabelValues(code).Inc()
}

func (m *Metrics) OnConnectionRejected(reason string) {
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) OnAdjust(priority string, moved int, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.adjustments.WithLabelValues(priority, result).Inc()
	m.adjustDuration.WithLabelValues(priority).Observe(d.Seconds())
	if err == nil {
		m.nodesMoved.WithLabelValues(priority).Observe(float64(moved))
	}
}

func (m *Metrics) OnMeasureRetry(string, int) { m.measureRetries.Inc() }

func (m *Metrics) OnMeasureAbandoned(string, int) { m.measureGiveUps.Inc() }

func (m *Metrics) OnTransition(from, to string) {
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) OnStorageHit(_ context.Context, backend string) {
	m.storageReads.WithLabelValues(backend, "hit").Inc()
}

func (m *Metrics) OnStorageMiss(_ context.Context, backend string) {
	m.storageReads.WithLabelValues(backend, "miss").Inc()
}

func (m *Metrics) OnStorageSet(_ context.Context, backend string, size int) {
	m.storageWrites.WithLabelValues(backend).Inc()
	m.storageBytes.WithLabelValues(backend).Observe(float64(size))
}

var (
	_ observability.GraphHooks   = (*Metrics)(nil)
	_ observability.LayoutHooks  = (*Metrics)(nil)
	_ observability.SpawnerHooks = (*Metrics)(nil)
	_ observability.StorageHooks = (*Metrics)(nil)
)
