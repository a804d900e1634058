package store

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/heysubinoy/pyazkv/pkg/kv"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds timing statistics for store operations.
// Uses atomic operations for thread-safe updates without locks.
type Metrics struct {
	GetCount    atomic.Uint64
	SetCount    atomic.Uint64
	DeleteCount atomic.Uint64
	ListCount   atomic.Uint64

	// Cumulative latencies in nanoseconds
	GetLatencyNs    atomic.Uint64
	SetLatencyNs    atomic.Uint64
	DeleteLatencyNs atomic.Uint64
	ListLatencyNs   atomic.Uint64
}

// InstrumentedStore wraps any kv.Store implementation with timing metrics.
// This pattern works for both in-memory and Raft-backed stores.
type InstrumentedStore struct {
	store   kv.Store
	metrics *Metrics

	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// Compile-time check to ensure InstrumentedStore implements kv.Store.
var _ kv.Store = (*InstrumentedStore)(nil)

// NewInstrumentedStore wraps a store with instrumentation. Prometheus
// collectors are registered on reg when it is non-nil.
func NewInstrumentedStore(store kv.Store, reg prometheus.Registerer) *InstrumentedStore {
	s := &InstrumentedStore{
		store:   store,
		metrics: &Metrics{},
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pyazkv",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Store operations by operation and result.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pyazkv",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Store operation latency.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"op"}),
	}

	if reg != nil {
		keys := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "pyazkv",
			Subsystem: "store",
			Name:      "keys",
			Help:      "Number of keys currently stored.",
		}, func() float64 { return float64(store.Len()) })
		reg.MustRegister(s.ops, s.duration, keys)
	}
	return s
}

func (s *InstrumentedStore) observe(op, result string, elapsed time.Duration) {
	s.ops.WithLabelValues(op, result).Inc()
	s.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, kv.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// Get delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Get(key string) (kv.Value, bool) {
	start := time.Now()
	value, found := s.store.Get(key)
	elapsed := time.Since(start)

	s.metrics.GetCount.Add(1)
	s.metrics.GetLatencyNs.Add(uint64(elapsed.Nanoseconds()))

	result := "ok"
	if !found {
		result = "not_found"
	}
	s.observe("get", result, elapsed)

	return value, found
}

// Set delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Set(key string, value kv.Value) (bool, error) {
	start := time.Now()
	created, err := s.store.Set(key, value)
	elapsed := time.Since(start)

	s.metrics.SetCount.Add(1)
	s.metrics.SetLatencyNs.Add(uint64(elapsed.Nanoseconds()))
	s.observe("set", resultOf(err), elapsed)

	return created, err
}

// Delete delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Delete(key string) error {
	start := time.Now()
	err := s.store.Delete(key)
	elapsed := time.Since(start)

	s.metrics.DeleteCount.Add(1)
	s.metrics.DeleteLatencyNs.Add(uint64(elapsed.Nanoseconds()))
	s.observe("delete", resultOf(err), elapsed)

	return err
}

// All delegates to the wrapped store and records timing.
func (s *InstrumentedStore) All() map[string]kv.Value {
	start := time.Now()
	all := s.store.All()
	elapsed := time.Since(start)

	s.metrics.ListCount.Add(1)
	s.metrics.ListLatencyNs.Add(uint64(elapsed.Nanoseconds()))
	s.observe("list", "ok", elapsed)

	return all
}

// Len is not instrumented.
func (s *InstrumentedStore) Len() int {
	return s.store.Len()
}

// GetMetrics returns a snapshot of current metrics.
func (s *InstrumentedStore) GetMetrics() MetricsSnapshot {
	getCount := s.metrics.GetCount.Load()
	setCount := s.metrics.SetCount.Load()
	deleteCount := s.metrics.DeleteCount.Load()
	listCount := s.metrics.ListCount.Load()

	return MetricsSnapshot{
		Keys:             s.store.Len(),
		GetCount:         getCount,
		SetCount:         setCount,
		DeleteCount:      deleteCount,
		ListCount:        listCount,
		GetAvgLatency:    s.avgLatency(s.metrics.GetLatencyNs.Load(), getCount),
		SetAvgLatency:    s.avgLatency(s.metrics.SetLatencyNs.Load(), setCount),
		DeleteAvgLatency: s.avgLatency(s.metrics.DeleteLatencyNs.Load(), deleteCount),
		ListAvgLatency:   s.avgLatency(s.metrics.ListLatencyNs.Load(), listCount),
	}
}

// ResetMetrics clears the atomic counters. Prometheus counters are monotonic
// and are left alone.
func (s *InstrumentedStore) ResetMetrics() {
	s.metrics.GetCount.Store(0)
	s.metrics.SetCount.Store(0)
	s.metrics.DeleteCount.Store(0)
	s.metrics.ListCount.Store(0)
	s.metrics.GetLatencyNs.Store(0)
	s.metrics.SetLatencyNs.Store(0)
	s.metrics.DeleteLatencyNs.Store(0)
	s.metrics.ListLatencyNs.Store(0)
}

func (s *InstrumentedStore) avgLatency(totalNs, count uint64) time.Duration {
	if count == 0 {
		return 0
	}
	return time.Duration(totalNs / count)
}

// MetricsSnapshot is a point-in-time view of metrics.
type MetricsSnapshot struct {
	Keys             int
	GetCount         uint64
	SetCount         uint64
	DeleteCount      uint64
	ListCount        uint64
	GetAvgLatency    time.Duration
	SetAvgLatency    time.Duration
	DeleteAvgLatency time.Duration
	ListAvgLatency   time.Duration
}
