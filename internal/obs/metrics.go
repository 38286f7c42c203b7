// Package obs collects lightweight counters and latency stats for the
// event pipeline: tick ring drops, order ring drops, affinity failures,
// fill latency, strategy-turn latency. Counters are plain atomics so the
// hot paths never take a lock to record.
package obs

import (
	"sync/atomic"
	"time"
)

// Metrics aggregates counters and latency stats for one engine instance.
// All methods are safe for concurrent use; they back the strategy worker,
// execution worker, and any driver reading a snapshot after stop.
type Metrics struct {
	tickDrops      uint64
	orderDrops     uint64
	affinityFailed uint64
	budgetSkipped  uint64
	oversellCount  uint64

	fillLatency   LatencyStats
	strategyTurn  LatencyStats
	executionTurn LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds using
// compare-and-swap min/max tracking.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	TickDrops      uint64
	OrderDrops     uint64
	AffinityFailed uint64
	BudgetSkipped  uint64
	OversellCount  uint64
	FillLatency    LatencySnapshot
	StrategyTurn   LatencySnapshot
	ExecutionTurn  LatencySnapshot
}

// NewMetrics allocates an empty metrics container.
func NewMetrics() *Metrics { return &Metrics{} }

// IncTickDrop records a tick ring push rejected for being full.
func (m *Metrics) IncTickDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.tickDrops, 1)
}

// IncOrderDrop records an order ring push rejected for being full.
func (m *Metrics) IncOrderDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.orderDrops, 1)
}

// IncAffinityFailed records a failed core-pin attempt.
func (m *Metrics) IncAffinityFailed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.affinityFailed, 1)
}

// IncBudgetSkipped records a signal skipped for a budget reason
// (insufficient cash, sector cap, min reserve).
func (m *Metrics) IncBudgetSkipped() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.budgetSkipped, 1)
}

// IncOversell records an oversell reconciliation event.
func (m *Metrics) IncOversell() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.oversellCount, 1)
}

// ObserveFill records the latency from order-ring pop to fill callback.
func (m *Metrics) ObserveFill(d time.Duration) {
	if m == nil {
		return
	}
	m.fillLatency.Observe(d)
}

// ObserveStrategyTurn records the latency of one strategy-worker batch.
func (m *Metrics) ObserveStrategyTurn(d time.Duration) {
	if m == nil {
		return
	}
	m.strategyTurn.Observe(d)
}

// ObserveExecutionTurn records the latency of one execution-worker batch.
func (m *Metrics) ObserveExecutionTurn(d time.Duration) {
	if m == nil {
		return
	}
	m.executionTurn.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		TickDrops:      atomic.LoadUint64(&m.tickDrops),
		OrderDrops:     atomic.LoadUint64(&m.orderDrops),
		AffinityFailed: atomic.LoadUint64(&m.affinityFailed),
		BudgetSkipped:  atomic.LoadUint64(&m.budgetSkipped),
		OversellCount:  atomic.LoadUint64(&m.oversellCount),
		FillLatency:    m.fillLatency.Snapshot(),
		StrategyTurn:   m.strategyTurn.Snapshot(),
		ExecutionTurn:  m.executionTurn.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
