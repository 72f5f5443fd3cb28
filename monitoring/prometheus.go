package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quartzchain/quartz/logx"
)

type OpRejectedReason string

var (
	OpInsufficientBalance OpRejectedReason = "insufficient_balance"
	OpRollUnderflow       OpRejectedReason = "roll_underflow"
	OpAlreadyExecuted     OpRejectedReason = "already_executed"
	OpVMTrap              OpRejectedReason = "vm_trap"
	OpRejectedUnknown     OpRejectedReason = "other"
)

type execPromMetrics struct {
	nodeUpUnixSeconds  prometheus.Gauge
	finalPeriod        prometheus.Gauge
	candidatePeriod    prometheus.Gauge
	executedSlotCount  prometheus.Counter
	finalizedSlotCount prometheus.Counter
	reorgDepth         prometheus.Histogram
	rejectedOpCount    *prometheus.CounterVec
	eventCount         prometheus.Counter
	readOnlyLatency    prometheus.Histogram
	panicCount         prometheus.Counter
}

func newExecPromMetrics() *execPromMetrics {
	return &execPromMetrics{
		nodeUpUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "quartz_exec_up_timestamp_unix_seconds",
				Help: "Unix timestamp of the execution core start",
			},
		),
		finalPeriod: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "quartz_exec_final_period",
				Help: "Period of the latest slot applied to the final state",
			},
		),
		candidatePeriod: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "quartz_exec_candidate_period",
				Help: "Period of the latest slot applied to the candidate state",
			},
		),
		executedSlotCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "quartz_exec_executed_slot_count",
				Help: "The total number of speculative slot executions, replays included",
			},
		),
		finalizedSlotCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "quartz_exec_finalized_slot_count",
				Help: "The total number of slots applied to the final state",
			},
		),
		reorgDepth: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quartz_exec_reorg_depth",
				Help:    "Number of candidate slots rolled back per blockclique update",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		rejectedOpCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quartz_exec_rejected_op_count",
				Help: "The total number of operations rejected during slot execution",
			},
			[]string{"reason"},
		),
		eventCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "quartz_exec_event_count",
				Help: "The total number of smart contract output events recorded",
			},
		),
		readOnlyLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name: "quartz_exec_readonly_latency_seconds",
				Help: "Latency of read-only execution requests",
			},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "quartz_exec_panic_count",
				Help: "The total number of recovered panics",
			},
		),
	}
}

var execMetrics *execPromMetrics

// InitMetrics initializes metrics but does not expose them yet
func InitMetrics() {
	execMetrics = newExecPromMetrics()
	execMetrics.nodeUpUnixSeconds.SetToCurrentTime()
}

func RegisterMetrics(mux *http.ServeMux) {
	logx.Info("MONITORING", "Registering prometheus metrics")
	mux.Handle("/metrics", promhttp.Handler())
}

func SetFinalPeriod(period uint64) {
	if execMetrics == nil {
		return
	}
	execMetrics.finalPeriod.Set(float64(period))
}

func SetCandidatePeriod(period uint64) {
	if execMetrics == nil {
		return
	}
	execMetrics.candidatePeriod.Set(float64(period))
}

func IncreaseExecutedSlotCount() {
	if execMetrics == nil {
		return
	}
	execMetrics.executedSlotCount.Inc()
}

func IncreaseFinalizedSlotCount() {
	if execMetrics == nil {
		return
	}
	execMetrics.finalizedSlotCount.Inc()
}

func RecordReorgDepth(depth int) {
	if execMetrics == nil {
		return
	}
	execMetrics.reorgDepth.Observe(float64(depth))
}

func RecordRejectedOp(reason OpRejectedReason) {
	if execMetrics == nil {
		return
	}
	execMetrics.rejectedOpCount.With(prometheus.Labels{
		"reason": string(reason),
	}).Inc()
}

func AddEventCount(count int) {
	if execMetrics == nil {
		return
	}
	execMetrics.eventCount.Add(float64(count))
}

func RecordReadOnlyLatency(duration time.Duration) {
	if execMetrics == nil {
		return
	}
	execMetrics.readOnlyLatency.Observe(duration.Seconds())
}

func IncreasePanicCount() {
	if execMetrics == nil {
		return
	}
	execMetrics.panicCount.Inc()
}
