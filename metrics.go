package aio

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// Buckets cover from 10us to 100s with logarithmic spacing.
var LatencyBuckets = []uint64{
	10_000,          // 10us
	100_000,         // 100us
	1_000_000,       // 1ms
	10_000_000,      // 10ms
	100_000_000,     // 100ms
	1_000_000_000,   // 1s
	10_000_000_000,  // 10s
	100_000_000_000, // 100s
}

const numLatencyBuckets = 8

// Metrics tracks operation outcomes and throughput of a driver
type Metrics struct {
	// Finished operations per type
	NoopOps   atomic.Uint64
	CreateOps atomic.Uint64
	ReadOps   atomic.Uint64
	UpdateOps atomic.Uint64
	CopyOps   atomic.Uint64
	OtherOps  atomic.Uint64

	// Byte counters
	WriteBytes atomic.Uint64
	ReadBytes  atomic.Uint64

	// Outcomes
	Succeeded         atomic.Uint64
	FailedIO          atomic.Uint64
	FailedAuth        atomic.Uint64
	FailedNoSpace     atomic.Uint64
	FailedUnknown     atomic.Uint64
	SizeMismatches    atomic.Uint64
	ContentMismatches atomic.Uint64

	// Admission and continuation
	Admitted          atomic.Uint64
	Refused           atomic.Uint64
	Continuations     atomic.Uint64
	LostContinuations atomic.Uint64
	MaxActive         atomic.Int64

	// Performance tracking
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// Latency histogram buckets (cumulative counts)
	// Each bucket[i] contains the count of operations with latency <= LatencyBuckets[i]
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64 // UnixNano
	StopTime  atomic.Int64 // UnixNano
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordOp records one finished operation
func (m *Metrics) RecordOp(typ OpType, status Status, bytes uint64, latencyNs uint64) {
	switch typ {
	case OpNoop:
		m.NoopOps.Add(1)
	case OpCreate:
		m.CreateOps.Add(1)
		m.WriteBytes.Add(bytes)
	case OpCopy:
		m.CopyOps.Add(1)
		m.WriteBytes.Add(bytes)
	case OpRead:
		m.ReadOps.Add(1)
		m.ReadBytes.Add(bytes)
	case OpUpdate:
		m.UpdateOps.Add(1)
		m.ReadBytes.Add(bytes)
	default:
		m.OtherOps.Add(1)
	}

	switch status {
	case StatusSucc:
		m.Succeeded.Add(1)
	case StatusFailIO:
		m.FailedIO.Add(1)
	case StatusFailAuth:
		m.FailedAuth.Add(1)
	case StatusFailNoSpace:
		m.FailedNoSpace.Add(1)
	case StatusFailSize:
		m.SizeMismatches.Add(1)
	case StatusFailCorrupt:
		m.ContentMismatches.Add(1)
	default:
		m.FailedUnknown.Add(1)
	}

	m.recordLatency(latencyNs)
}

// RecordAdmission records a throttle decision and the number of
// operations active right after it
func (m *Metrics) RecordAdmission(admitted bool, active int64) {
	if !admitted {
		m.Refused.Add(1)
		return
	}
	m.Admitted.Add(1)
	for {
		current := m.MaxActive.Load()
		if active <= current {
			break
		}
		if m.MaxActive.CompareAndSwap(current, active) {
			break
		}
	}
}

// RecordContinuation records an operation handed back for another invocation
func (m *Metrics) RecordContinuation() {
	m.Continuations.Add(1)
}

// RecordLostContinuation records a continuation the scheduler refused
func (m *Metrics) RecordLostContinuation() {
	m.LostContinuations.Add(1)
}

// recordLatency records operation latency and updates histogram
func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the end of the measured interval
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of the counters
type MetricsSnapshot struct {
	NoopOps   uint64
	CreateOps uint64
	ReadOps   uint64
	UpdateOps uint64
	CopyOps   uint64
	OtherOps  uint64

	WriteBytes uint64
	ReadBytes  uint64

	Succeeded         uint64
	FailedIO          uint64
	FailedAuth        uint64
	FailedNoSpace     uint64
	FailedUnknown     uint64
	SizeMismatches    uint64
	ContentMismatches uint64

	Admitted          uint64
	Refused           uint64
	Continuations     uint64
	LostContinuations uint64
	MaxActive         int64

	AvgLatencyNs uint64
	UptimeNs     uint64

	// Latency percentiles (in nanoseconds)
	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	// Histogram bucket counts (cumulative)
	LatencyHistogram [numLatencyBuckets]uint64

	// Computed statistics
	TotalOps       uint64
	Failures       uint64
	OpsPerSec      float64
	WriteBandwidth float64 // bytes per second
	ReadBandwidth  float64
	ErrorRate      float64 // percentage of failed operations
}

// Snapshot creates a point-in-time snapshot of metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		NoopOps:           m.NoopOps.Load(),
		CreateOps:         m.CreateOps.Load(),
		ReadOps:           m.ReadOps.Load(),
		UpdateOps:         m.UpdateOps.Load(),
		CopyOps:           m.CopyOps.Load(),
		OtherOps:          m.OtherOps.Load(),
		WriteBytes:        m.WriteBytes.Load(),
		ReadBytes:         m.ReadBytes.Load(),
		Succeeded:         m.Succeeded.Load(),
		FailedIO:          m.FailedIO.Load(),
		FailedAuth:        m.FailedAuth.Load(),
		FailedNoSpace:     m.FailedNoSpace.Load(),
		FailedUnknown:     m.FailedUnknown.Load(),
		SizeMismatches:    m.SizeMismatches.Load(),
		ContentMismatches: m.ContentMismatches.Load(),
		Admitted:          m.Admitted.Load(),
		Refused:           m.Refused.Load(),
		Continuations:     m.Continuations.Load(),
		LostContinuations: m.LostContinuations.Load(),
		MaxActive:         m.MaxActive.Load(),
	}

	snap.TotalOps = snap.NoopOps + snap.CreateOps + snap.ReadOps + snap.UpdateOps + snap.CopyOps + snap.OtherOps
	snap.Failures = snap.FailedIO + snap.FailedAuth + snap.FailedNoSpace + snap.FailedUnknown +
		snap.SizeMismatches + snap.ContentMismatches

	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
	}

	startTime := m.StartTime.Load()
	if stopTime := m.StopTime.Load(); stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		seconds := float64(snap.UptimeNs) / 1e9
		snap.OpsPerSec = float64(snap.TotalOps) / seconds
		snap.WriteBandwidth = float64(snap.WriteBytes) / seconds
		snap.ReadBandwidth = float64(snap.ReadBytes) / seconds
	}

	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(snap.Failures) / float64(snap.TotalOps) * 100.0
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

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
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

// Observer allows pluggable metrics collection
type Observer interface {
	// ObserveOp is called once per operation at finalization
	ObserveOp(typ OpType, status Status, bytes uint64, latencyNs uint64)

	// ObserveAdmission is called for every throttle decision
	ObserveAdmission(admitted bool, active int64)

	// ObserveContinuation is called when an operation is handed back
	ObserveContinuation()

	// ObserveLostContinuation is called when the scheduler refuses one
	ObserveLostContinuation()
}

// NoOpObserver is a no-op implementation of Observer
type NoOpObserver struct{}

func (NoOpObserver) ObserveOp(OpType, Status, uint64, uint64) {}
func (NoOpObserver) ObserveAdmission(bool, int64)             {}
func (NoOpObserver) ObserveContinuation()                     {}
func (NoOpObserver) ObserveLostContinuation()                 {}

// MetricsObserver implements Observer using the built-in Metrics
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveOp(typ OpType, status Status, bytes uint64, latencyNs uint64) {
	o.metrics.RecordOp(typ, status, bytes, latencyNs)
}

func (o *MetricsObserver) ObserveAdmission(admitted bool, active int64) {
	o.metrics.RecordAdmission(admitted, active)
}

func (o *MetricsObserver) ObserveContinuation() {
	o.metrics.RecordContinuation()
}

func (o *MetricsObserver) ObserveLostContinuation() {
	o.metrics.RecordLostContinuation()
}

// multiObserver fans out to several observers
type multiObserver []Observer

func (m multiObserver) ObserveOp(typ OpType, status Status, bytes uint64, latencyNs uint64) {
	for _, o := range m {
		o.ObserveOp(typ, status, bytes, latencyNs)
	}
}

func (m multiObserver) ObserveAdmission(admitted bool, active int64) {
	for _, o := range m {
		o.ObserveAdmission(admitted, active)
	}
}

func (m multiObserver) ObserveContinuation() {
	for _, o := range m {
		o.ObserveContinuation()
	}
}

func (m multiObserver) ObserveLostContinuation() {
	for _, o := range m {
		o.ObserveLostContinuation()
	}
}

// Compile-time interface check
var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
var _ Observer = multiObserver(nil)
