// Package metrics exposes Prometheus counters for the routine engine. Every
// method is safe on a nil *Metrics so services can run without metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "routines"

type Metrics struct {
	registry *prometheus.Registry

	syncRuns          *prometheus.CounterVec
	versionsCreated   prometheus.Counter
	exercisesUpserted prometheus.Counter
	assignments       prometheus.Counter
	itemEdits         prometheus.Counter
	executions        prometheus.Counter
	measurements      *prometheus.CounterVec
	denials           *prometheus.CounterVec
	auditFailures     prometheus.Counter
	feedArchive       *prometheus.CounterVec
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "catalog_sync_runs_total",
			Help: "Catalog synchronizations by outcome (ok, rejected, error).",
		}, []string{"outcome"}),
		versionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "catalog_versions_created_total",
			Help: "Base routine versions written by synchronization.",
		}),
		exercisesUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "catalog_exercises_upserted_total",
			Help: "Exercise dictionary rows upserted by synchronization.",
		}),
		assignments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "routine_assignments_total",
			Help: "Routines assigned to clients.",
		}),
		itemEdits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "snapshot_item_edits_total",
			Help: "Snapshot item edits.",
		}),
		executions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "executions_recorded_total",
			Help: "Execution records appended.",
		}),
		measurements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "measurement_upserts_total",
			Help: "Measurement upserts by result (created, amended).",
		}, []string{"result"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "authorization_denials_total",
			Help: "Operations rejected by the access policy.",
		}, []string{"operation"}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "audit_write_failures_total",
			Help: "Audit entries that could not be stored.",
		}),
		feedArchive: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "feed_archive_writes_total",
			Help: "Feed archive uploads by outcome (ok, error).",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.syncRuns, m.versionsCreated, m.exercisesUpserted, m.assignments, m.itemEdits,
		m.executions, m.measurements, m.denials, m.auditFailures, m.feedArchive,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SyncRun(outcome string, versions, exercises int) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(outcome).Inc()
	m.versionsCreated.Add(float64(versions))
	m.exercisesUpserted.Add(float64(exercises))
}

func (m *Metrics) Assignment() {
	if m != nil {
		m.assignments.Inc()
	}
}

func (m *Metrics) ItemEdit() {
	if m != nil {
		m.itemEdits.Inc()
	}
}

func (m *Metrics) Execution() {
	if m != nil {
		m.executions.Inc()
	}
}

func (m *Metrics) Measurement(created bool) {
	if m == nil {
		return
	}
	result := "amended"
	if created {
		result = "created"
	}
	m.measurements.WithLabelValues(result).Inc()
}

func (m *Metrics) Denied(operation string) {
	if m != nil {
		m.denials.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) AuditFailure() {
	if m != nil {
		m.auditFailures.Inc()
	}
}

func (m *Metrics) FeedArchive(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.feedArchive.WithLabelValues(outcome).Inc()
}
