package upipe

import (
	"sync/atomic"
	"time"

	"github.com/upipe/upipe-go/internal/metrics"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// Buckets cover from 1us to 10s with logarithmic spacing, carried over
// from the teacher's device-metrics histogram for record-processing
// latency instead of block I/O latency.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks the operational statistics of a running pipe graph:
// buffer allocation traffic, record throughput through pipes, control
// calls, and the transfer manager's queue depth (spec §9, "what an
// operator would want to observe"). Same atomics-first, lock-free
// counter shape as the teacher's device metrics.
type Metrics struct {
	// Buffer allocation (internal/ubuf, internal/uref).
	AllocOps    atomic.Uint64 // total buffer/record allocations
	AllocBytes  atomic.Uint64 // total bytes allocated
	AllocErrors atomic.Uint64 // failed allocations

	// Record flow through pipes (Pipe.Input).
	InputOps    atomic.Uint64 // total records delivered to a pipe
	InputBytes  atomic.Uint64 // total payload bytes delivered
	InputErrors atomic.Uint64

	// Control calls (Pipe.Control).
	ControlOps    atomic.Uint64
	ControlErrors atomic.Uint64

	// Transfer manager queue depth (internal/upipe/xfer).
	QueueDepthTotal atomic.Uint64 // cumulative queue depth samples
	QueueDepthCount atomic.Uint64 // number of queue depth measurements
	MaxQueueDepth   atomic.Uint32 // maximum observed queue depth

	// Latency of record processing (alloc-to-input, or input-to-sink,
	// depending on what the caller instruments).
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// Latency histogram buckets (cumulative): bucket[i] counts
	// operations with latency <= LatencyBuckets[i].
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64 // graph start timestamp (UnixNano)
	StopTime  atomic.Int64 // graph stop timestamp (UnixNano), 0 while running
}

// NewMetrics returns a Metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordAlloc records a buffer or record allocation.
func (m *Metrics) RecordAlloc(bytes uint64, latencyNs uint64, success bool) {
	m.AllocOps.Add(1)
	if success {
		m.AllocBytes.Add(bytes)
	} else {
		m.AllocErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordInput records a record delivered to a pipe via Input.
func (m *Metrics) RecordInput(bytes uint64, latencyNs uint64, success bool) {
	m.InputOps.Add(1)
	if success {
		m.InputBytes.Add(bytes)
	} else {
		m.InputErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordControl records a Control call.
func (m *Metrics) RecordControl(latencyNs uint64, success bool) {
	m.ControlOps.Add(1)
	if !success {
		m.ControlErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordQueueDepth records the transfer manager's current FIFO depth.
func (m *Metrics) RecordQueueDepth(depth uint32) {
	m.QueueDepthTotal.Add(uint64(depth))
	m.QueueDepthCount.Add(1)

	for {
		current := m.MaxQueueDepth.Load()
		if depth <= current {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(current, depth) {
			break
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the graph as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics with derived rates
// and percentiles computed.
type MetricsSnapshot struct {
	AllocOps    uint64
	AllocBytes  uint64
	AllocErrors uint64

	InputOps    uint64
	InputBytes  uint64
	InputErrors uint64

	ControlOps    uint64
	ControlErrors uint64

	AvgQueueDepth float64
	MaxQueueDepth uint32

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	InputRecordsPerSec float64
	InputBytesPerSec   float64
	TotalOps           uint64
	TotalBytes         uint64
	ErrorRate          float64 // percentage of failed operations
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		AllocOps:      m.AllocOps.Load(),
		AllocBytes:    m.AllocBytes.Load(),
		AllocErrors:   m.AllocErrors.Load(),
		InputOps:      m.InputOps.Load(),
		InputBytes:    m.InputBytes.Load(),
		InputErrors:   m.InputErrors.Load(),
		ControlOps:    m.ControlOps.Load(),
		ControlErrors: m.ControlErrors.Load(),
		MaxQueueDepth: m.MaxQueueDepth.Load(),
	}

	snap.TotalOps = snap.AllocOps + snap.InputOps + snap.ControlOps
	snap.TotalBytes = snap.AllocBytes + snap.InputBytes

	queueDepthTotal := m.QueueDepthTotal.Load()
	queueDepthCount := m.QueueDepthCount.Load()
	if queueDepthCount > 0 {
		snap.AvgQueueDepth = float64(queueDepthTotal) / float64(queueDepthCount)
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.InputRecordsPerSec = float64(snap.InputOps) / uptimeSeconds
		snap.InputBytesPerSec = float64(snap.InputBytes) / uptimeSeconds
	}

	totalErrors := snap.AllocErrors + snap.InputErrors + snap.ControlErrors
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes all counters, useful for testing.
func (m *Metrics) Reset() {
	m.AllocOps.Store(0)
	m.AllocBytes.Store(0)
	m.AllocErrors.Store(0)
	m.InputOps.Store(0)
	m.InputBytes.Store(0)
	m.InputErrors.Store(0)
	m.ControlOps.Store(0)
	m.ControlErrors.Store(0)
	m.QueueDepthTotal.Store(0)
	m.QueueDepthCount.Store(0)
	m.MaxQueueDepth.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection, so a pipe or manager can
// report through an interface instead of a concrete *Metrics. This is the
// same interface internal/upipe, internal/uref and internal/upipe/xfer
// report through (internal/metrics.Observer) — aliased here so callers
// never need to import the internal package directly.
type Observer = metrics.Observer

// NoOpObserver discards every observation.
type NoOpObserver = metrics.NoOpObserver

// MetricsObserver implements Observer on top of a *Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver returns an observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveAlloc(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordAlloc(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveInput(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordInput(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveControl(latencyNs uint64, success bool) {
	o.metrics.RecordControl(latencyNs, success)
}

func (o *MetricsObserver) ObserveQueueDepth(depth uint32) {
	o.metrics.RecordQueueDepth(depth)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
