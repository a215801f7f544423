package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Transaction pool metrics
	TransactionsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mpnode_transactions_submitted_total",
			Help: "Total number of transactions submitted to the pool",
		},
	)

	TransactionsTerminal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpnode_transactions_terminal_total",
			Help: "Total number of transactions that reached a terminal status",
		},
		[]string{"status"},
	)

	PendingQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mpnode_pending_queue_depth",
			Help: "Number of transactions waiting in the pending queue",
		},
	)

	ActiveTransactions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mpnode_active_transactions",
			Help: "Number of transactions tracked in the active map",
		},
	)

	// Execution metrics
	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mpnode_execution_duration_seconds",
			Help:    "Time taken to execute a transaction in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpnode_executions_total",
			Help: "Total number of executions by worker outcome",
		},
		[]string{"outcome"},
	)

	// Container manager metrics
	AgentsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mpnode_agents_running",
			Help: "Number of agent containers currently running",
		},
	)

	ContainerOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mpnode_container_operation_duration_seconds",
			Help:    "Time taken for container lifecycle operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Consensus metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mpnode_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mpnode_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	// Ingress metrics
	IngressRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpnode_ingress_requests_total",
			Help: "Total number of ingress requests by method and status",
		},
		[]string{"method", "status"},
	)

	IngressRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mpnode_ingress_request_duration_seconds",
			Help:    "Ingress request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Proof metrics
	ProofsGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mpnode_proofs_generated_total",
			Help: "Total number of proofs generated for execution results",
		},
	)

	ProofFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mpnode_proof_failures_total",
			Help: "Total number of proof aggregation failures",
		},
	)
)

func init() {
	prometheus.MustRegister(TransactionsSubmitted)
	prometheus.MustRegister(TransactionsTerminal)
	prometheus.MustRegister(PendingQueueDepth)
	prometheus.MustRegister(ActiveTransactions)
	prometheus.MustRegister(ExecutionDuration)
	prometheus.MustRegister(ExecutionsTotal)
	prometheus.MustRegister(AgentsRunning)
	prometheus.MustRegister(ContainerOperationDuration)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(IngressRequestsTotal)
	prometheus.MustRegister(IngressRequestDuration)
	prometheus.MustRegister(ProofsGenerated)
	prometheus.MustRegister(ProofFailures)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a labeled histogram
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
