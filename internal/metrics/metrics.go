// Package metrics registers the simulator's prometheus collectors: one
// place every other package's counters/gauges are wired into, grounded
// on the pack's direct client_golang registration style (no metrics
// middleware framework, just NewCounterVec/NewGauge and a MustRegister
// call per collector in NewRegistry).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry is the simulator's collector set. A caller typically
// constructs one Registry per process and passes it to internal/sim's
// Core, which each tick updates Cycles, the ROB/RS occupancy, free
// physical register and L1 hit/miss gauges, and on commit
// InstructionsCommitted and OrderingViolations. CompletedReads,
// CoherenceMsgs, MSHROccupancy, BranchPredicted and BranchMispredict are
// registered but nothing in the simulator updates them.
type Registry struct {
	CompletedReads   prometheus.Counter
	CoherenceMsgs    *prometheus.CounterVec
	MSHROccupancy    *prometheus.GaugeVec
	CacheHits        *prometheus.GaugeVec
	CacheMisses      *prometheus.GaugeVec
	BranchPredicted  prometheus.Counter
	BranchMispredict prometheus.Counter
	InstructionsCommitted prometheus.Counter
	Cycles           prometheus.Counter
	OrderingViolations prometheus.Counter
	FreePhysRegs     *prometheus.GaugeVec
	ROBOccupancy     *prometheus.GaugeVec
	RSOccupancy      *prometheus.GaugeVec
}

// NewRegistry builds and registers every collector against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		CompletedReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "suprax", Subsystem: "mem", Name: "completed_reads_total",
			Help: "memory node reads that have completed and been returned over the bus",
		}),
		CoherenceMsgs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "suprax", Subsystem: "cache", Name: "coherence_messages_total",
			Help: "coherence protocol messages sent, by type",
		}, []string{"msg_type"}),
		MSHROccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "suprax", Subsystem: "cache", Name: "mshr_occupancy",
			Help: "in-flight MSHR entries per L1 client",
		}, []string{"core"}),
		CacheHits: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "suprax", Subsystem: "cache", Name: "l1_hits_total",
			Help: "cumulative L1 accesses served without a miss, by core",
		}, []string{"core"}),
		CacheMisses: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "suprax", Subsystem: "cache", Name: "l1_misses_total",
			Help: "cumulative L1 accesses that started a miss transaction, by core",
		}, []string{"core"}),
		BranchPredicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "suprax", Subsystem: "bpu", Name: "branches_predicted_total",
			Help: "branches the BPU produced a prediction for",
		}),
		BranchMispredict: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "suprax", Subsystem: "bpu", Name: "branch_mispredicts_total",
			Help: "branches whose resolved outcome disagreed with the BPU's prediction",
		}),
		InstructionsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "suprax", Subsystem: "core", Name: "instructions_committed_total",
			Help: "instructions retired at the head of the reorder buffer",
		}),
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "suprax", Subsystem: "core", Name: "cycles_total",
			Help: "ticks simulated",
		}),
		OrderingViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "suprax", Subsystem: "lsu", Name: "ordering_violations_total",
			Help: "loads squashed and refired due to a store-load ordering violation",
		}),
		FreePhysRegs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "suprax", Subsystem: "rename", Name: "free_phys_regs",
			Help: "unallocated physical registers, by bank",
		}, []string{"bank"}),
		ROBOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "suprax", Subsystem: "ooo", Name: "rob_occupancy",
			Help: "reorder buffer entries in use",
		}, []string{"core"}),
		RSOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "suprax", Subsystem: "ooo", Name: "rs_occupancy",
			Help: "reservation station entries in use",
		}, []string{"core"}),
	}

	for _, c := range []prometheus.Collector{
		r.CompletedReads, r.CoherenceMsgs, r.MSHROccupancy, r.CacheHits, r.CacheMisses,
		r.BranchPredicted, r.BranchMispredict, r.InstructionsCommitted, r.Cycles, r.OrderingViolations,
		r.FreePhysRegs, r.ROBOccupancy, r.RSOccupancy,
	} {
		reg.MustRegister(c)
	}
	return r
}
