// Package metrics registers the small set of Prometheus collectors the
// Local Scheduler, Aggregating Dispatcher and Submission Supervisor each
// update, in the register of ollama-distributed/pkg/monitoring/metrics.go
// but scoped to what the scheduling core itself produces.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every collector one node registers. A nil *Registry is
// valid everywhere it is accepted and simply no-ops, so components can be
// unit-tested without standing up a Prometheus registry.
type Registry struct {
	QueueLength       *prometheus.GaugeVec
	ClustersAfterReduce *prometheus.GaugeVec
	BytesSentUpstream prometheus.Counter
	RetriesIssued     prometheus.Counter
	HeartbeatMisses   prometheus.Counter
	TasksAdmitted     *prometheus.CounterVec
	TasksRejected     *prometheus.CounterVec
}

// NewRegistry creates and registers every collector against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		QueueLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "stars",
			Subsystem: "scheduler",
			Name:      "queue_length",
			Help:      "Number of tasks currently queued at the local scheduler.",
		}, []string{"node"}),
		ClustersAfterReduce: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "stars",
			Subsystem: "summary",
			Name:      "clusters_after_reduce",
			Help:      "Cluster count of the most recently reduced summary, per variant.",
		}, []string{"variant"}),
		BytesSentUpstream: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stars",
			Subsystem: "dispatcher",
			Name:      "bytes_sent_upstream_total",
			Help:      "Total bytes of reduced summaries sent upstream, bandwidth-cap accounted.",
		}),
		RetriesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stars",
			Subsystem: "supervisor",
			Name:      "retries_issued_total",
			Help:      "Total sendRequest retries issued after a request timeout.",
		}),
		HeartbeatMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stars",
			Subsystem: "supervisor",
			Name:      "heartbeat_misses_total",
			Help:      "Total heartbeatDeadline firings treating a worker as dead.",
		}),
		TasksAdmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stars",
			Subsystem: "scheduler",
			Name:      "tasks_admitted_total",
			Help:      "Total tasks admitted by the local scheduler, by policy.",
		}, []string{"policy"}),
		TasksRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stars",
			Subsystem: "scheduler",
			Name:      "tasks_rejected_total",
			Help:      "Total tasks rejected by the local scheduler, by policy.",
		}, []string{"policy"}),
	}
	if reg != nil {
		reg.MustRegister(
			r.QueueLength,
			r.ClustersAfterReduce,
			r.BytesSentUpstream,
			r.RetriesIssued,
			r.HeartbeatMisses,
			r.TasksAdmitted,
			r.TasksRejected,
		)
	}
	return r
}

// NewUnregistered builds a Registry against a fresh, private
// prometheus.Registry, for components and tests that want metrics wired
// without touching the process-global default registerer.
func NewUnregistered() *Registry {
	return NewRegistry(prometheus.NewRegistry())
}
