package aio

import (
	"testing"
	"time"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	if snap.TotalOps != 0 {
		t.Errorf("Expected 0 initial ops, got %d", snap.TotalOps)
	}

	m.RecordOp(OpCreate, StatusSucc, 2048, 2000000)
	m.RecordOp(OpRead, StatusSucc, 1024, 1000000)
	m.RecordOp(OpRead, StatusFailCorrupt, 512, 500000)
	m.RecordOp(OpCopy, StatusFailNoSpace, 0, 100)

	snap = m.Snapshot()

	if snap.ReadOps != 2 {
		t.Errorf("Expected 2 read ops, got %d", snap.ReadOps)
	}
	if snap.CreateOps != 1 || snap.CopyOps != 1 {
		t.Errorf("Expected 1 create and 1 copy op, got %d and %d", snap.CreateOps, snap.CopyOps)
	}
	if snap.ReadBytes != 1536 {
		t.Errorf("Expected 1536 read bytes, got %d", snap.ReadBytes)
	}
	if snap.WriteBytes != 2048 {
		t.Errorf("Expected 2048 write bytes, got %d", snap.WriteBytes)
	}
	if snap.ContentMismatches != 1 || snap.FailedNoSpace != 1 {
		t.Errorf("Expected one content mismatch and one no-space failure, got %d and %d",
			snap.ContentMismatches, snap.FailedNoSpace)
	}
	if snap.Failures != 2 {
		t.Errorf("Expected 2 failures, got %d", snap.Failures)
	}

	expectedErrorRate := float64(2) / float64(4) * 100.0
	if snap.ErrorRate < expectedErrorRate-0.1 || snap.ErrorRate > expectedErrorRate+0.1 {
		t.Errorf("Expected error rate ~%.1f%%, got %.1f%%", expectedErrorRate, snap.ErrorRate)
	}
}

func TestMetricsStatuses(t *testing.T) {
	tests := []struct {
		status Status
		get    func(MetricsSnapshot) uint64
	}{
		{StatusSucc, func(s MetricsSnapshot) uint64 { return s.Succeeded }},
		{StatusFailIO, func(s MetricsSnapshot) uint64 { return s.FailedIO }},
		{StatusFailAuth, func(s MetricsSnapshot) uint64 { return s.FailedAuth }},
		{StatusFailNoSpace, func(s MetricsSnapshot) uint64 { return s.FailedNoSpace }},
		{StatusFailUnknown, func(s MetricsSnapshot) uint64 { return s.FailedUnknown }},
		{StatusFailSize, func(s MetricsSnapshot) uint64 { return s.SizeMismatches }},
		{StatusFailCorrupt, func(s MetricsSnapshot) uint64 { return s.ContentMismatches }},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			m := NewMetrics()
			m.RecordOp(OpUpdate, tt.status, 0, 1)
			if got := tt.get(m.Snapshot()); got != 1 {
				t.Errorf("Expected counter 1 for %s, got %d", tt.status, got)
			}
		})
	}
}

func TestMetricsAdmission(t *testing.T) {
	m := NewMetrics()

	m.RecordAdmission(true, 1)
	m.RecordAdmission(true, 5)
	m.RecordAdmission(false, 5)
	m.RecordAdmission(true, 3)
	m.RecordContinuation()
	m.RecordContinuation()
	m.RecordLostContinuation()

	snap := m.Snapshot()
	if snap.Admitted != 3 || snap.Refused != 1 {
		t.Errorf("Expected 3 admitted and 1 refused, got %d and %d", snap.Admitted, snap.Refused)
	}
	if snap.MaxActive != 5 {
		t.Errorf("Expected max active 5, got %d", snap.MaxActive)
	}
	if snap.Continuations != 2 || snap.LostContinuations != 1 {
		t.Errorf("Expected 2 continuations and 1 lost, got %d and %d", snap.Continuations, snap.LostContinuations)
	}
}

func TestMetricsLatency(t *testing.T) {
	m := NewMetrics()

	m.RecordOp(OpRead, StatusSucc, 1024, 1000000)
	m.RecordOp(OpCreate, StatusSucc, 1024, 2000000)

	snap := m.Snapshot()

	expectedAvgNs := uint64(1500000)
	if snap.AvgLatencyNs != expectedAvgNs {
		t.Errorf("Expected avg latency %d ns, got %d ns", expectedAvgNs, snap.AvgLatencyNs)
	}

	// 1ms lands in the 1ms bucket, 2ms in the 10ms bucket; buckets are cumulative
	if snap.LatencyHistogram[2] != 1 || snap.LatencyHistogram[3] != 2 {
		t.Errorf("Unexpected histogram %v", snap.LatencyHistogram)
	}
	if snap.LatencyP50Ns == 0 || snap.LatencyP99Ns < snap.LatencyP50Ns {
		t.Errorf("Percentiles out of order: p50=%d p99=%d", snap.LatencyP50Ns, snap.LatencyP99Ns)
	}
}

func TestMetricsUptime(t *testing.T) {
	m := NewMetrics()

	time.Sleep(10 * time.Millisecond)

	snap := m.Snapshot()
	if snap.UptimeNs < 10*1000000 {
		t.Errorf("Expected uptime >= 10ms, got %d ns", snap.UptimeNs)
	}

	m.Stop()
	time.Sleep(5 * time.Millisecond)

	snap2 := m.Snapshot()

	// Uptime should not have increased significantly after stop
	if snap2.UptimeNs > snap.UptimeNs+2*1000000 {
		t.Errorf("Uptime increased too much after stop: %d -> %d", snap.UptimeNs, snap2.UptimeNs)
	}
}

func TestObserver(t *testing.T) {
	observer := &NoOpObserver{}
	observer.ObserveOp(OpRead, StatusSucc, 1024, 1000000)
	observer.ObserveAdmission(true, 1)
	observer.ObserveContinuation()
	observer.ObserveLostContinuation()

	m := NewMetrics()
	fan := multiObserver{NewMetricsObserver(m), NoOpObserver{}}

	fan.ObserveOp(OpRead, StatusSucc, 1024, 1000000)
	fan.ObserveOp(OpCreate, StatusSucc, 2048, 2000000)
	fan.ObserveAdmission(true, 2)
	fan.ObserveContinuation()
	fan.ObserveLostContinuation()

	snap := m.Snapshot()
	if snap.ReadOps != 1 || snap.CreateOps != 1 {
		t.Errorf("Expected 1 read and 1 create op from observer, got %d and %d", snap.ReadOps, snap.CreateOps)
	}
	if snap.ReadBytes != 1024 || snap.WriteBytes != 2048 {
		t.Errorf("Expected 1024/2048 bytes from observer, got %d/%d", snap.ReadBytes, snap.WriteBytes)
	}
	if snap.Admitted != 1 || snap.Continuations != 1 || snap.LostContinuations != 1 {
		t.Errorf("Observer did not forward admission events: %+v", snap)
	}
}

func TestMetricsRates(t *testing.T) {
	m := NewMetrics()

	startTime := time.Now()
	m.StartTime.Store(startTime.UnixNano())

	m.RecordOp(OpRead, StatusSucc, 1024, 1000000)
	m.RecordOp(OpCreate, StatusSucc, 2048, 2000000)

	m.StopTime.Store(startTime.Add(1 * time.Second).UnixNano())

	snap := m.Snapshot()
	if snap.OpsPerSec < 1.9 || snap.OpsPerSec > 2.1 {
		t.Errorf("Expected OpsPerSec ~2.0, got %.2f", snap.OpsPerSec)
	}
	if snap.ReadBandwidth < 1000 || snap.ReadBandwidth > 1050 {
		t.Errorf("Expected ReadBandwidth ~1024, got %.2f", snap.ReadBandwidth)
	}
	if snap.WriteBandwidth < 2000 || snap.WriteBandwidth > 2100 {
		t.Errorf("Expected WriteBandwidth ~2048, got %.2f", snap.WriteBandwidth)
	}
}
