package db

import (
	"sync/atomic"
	"time"
)

// Metrics tracks statement execution statistics for a Session
type Metrics struct {
	queries atomic.Uint64
	scalars atomic.Uint64
	execs   atomic.Uint64
	errors  atomic.Uint64
	rows    atomic.Uint64

	// nanoseconds
	totalQueryLatency  atomic.Uint64
	totalScalarLatency atomic.Uint64
	totalExecLatency   atomic.Uint64

	txBegun      atomic.Uint64
	txCommitted  atomic.Uint64
	txRolledBack atomic.Uint64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordQuery records a row-returning statement with its latency and row count
func (m *Metrics) RecordQuery(d time.Duration, rows int) {
	m.queries.Add(1)
	m.rows.Add(uint64(rows))
	m.totalQueryLatency.Add(uint64(d.Nanoseconds()))
}

// RecordScalar records a single-value statement
func (m *Metrics) RecordScalar(d time.Duration) {
	m.scalars.Add(1)
	m.totalScalarLatency.Add(uint64(d.Nanoseconds()))
}

// RecordExec records an INSERT/UPDATE statement
func (m *Metrics) RecordExec(d time.Duration) {
	m.execs.Add(1)
	m.totalExecLatency.Add(uint64(d.Nanoseconds()))
}

// RecordError increments the failed statement counter
func (m *Metrics) RecordError() {
	m.errors.Add(1)
}

func (m *Metrics) recordBegin()    { m.txBegun.Add(1) }
func (m *Metrics) recordCommit()   { m.txCommitted.Add(1) }
func (m *Metrics) recordRollback() { m.txRolledBack.Add(1) }

// Snapshot returns a point-in-time copy of the counters
func (m *Metrics) Snapshot() MetricsSnapshot {
	queries := m.queries.Load()
	scalars := m.scalars.Load()
	execs := m.execs.Load()

	return MetricsSnapshot{
		Queries:          queries,
		Scalars:          scalars,
		Execs:            execs,
		Errors:           m.errors.Load(),
		Rows:             m.rows.Load(),
		AvgQueryLatency:  average(m.totalQueryLatency.Load(), queries),
		AvgScalarLatency: average(m.totalScalarLatency.Load(), scalars),
		AvgExecLatency:   average(m.totalExecLatency.Load(), execs),
		TxBegun:          m.txBegun.Load(),
		TxCommitted:      m.txCommitted.Load(),
		TxRolledBack:     m.txRolledBack.Load(),
	}
}

func average(total, n uint64) time.Duration {
	if n == 0 {
		return 0
	}
	return time.Duration(total / n)
}

// Reset resets all counters
func (m *Metrics) Reset() {
	m.queries.Store(0)
	m.scalars.Store(0)
	m.execs.Store(0)
	m.errors.Store(0)
	m.rows.Store(0)
	m.totalQueryLatency.Store(0)
	m.totalScalarLatency.Store(0)
	m.totalExecLatency.Store(0)
	m.txBegun.Store(0)
	m.txCommitted.Store(0)
	m.txRolledBack.Store(0)
}

// MetricsSnapshot represents a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	Queries uint64
	Scalars uint64
	Execs   uint64
	Errors  uint64
	Rows    uint64

	AvgQueryLatency  time.Duration
	AvgScalarLatency time.Duration
	AvgExecLatency   time.Duration

	TxBegun      uint64
	TxCommitted  uint64
	TxRolledBack uint64
}
