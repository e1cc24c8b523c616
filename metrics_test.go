package binder

import (
	"testing"
	"time"
)

func TestMetricsTransactions(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	if snap.SyncTransactions != 0 || snap.OnewayTransactions != 0 {
		t.Fatalf("expected zero initial transactions, got %+v", snap)
	}

	m.RecordTransaction(128, 1_000_000, false, true)  // sync, 1ms, OK
	m.RecordTransaction(64, 0, true, true)             // oneway
	m.RecordTransaction(32, 500_000, false, false)     // sync, failed

	snap = m.Snapshot()
	if snap.SyncTransactions != 2 {
		t.Errorf("SyncTransactions = %d, want 2", snap.SyncTransactions)
	}
	if snap.OnewayTransactions != 1 {
		t.Errorf("OnewayTransactions = %d, want 1", snap.OnewayTransactions)
	}
	if snap.TransactionErrors != 1 {
		t.Errorf("TransactionErrors = %d, want 1", snap.TransactionErrors)
	}
	if snap.BytesSent != 128+64+32 {
		t.Errorf("BytesSent = %d, want %d", snap.BytesSent, 128+64+32)
	}
	wantErrRate := float64(1) / float64(2) * 100.0
	if snap.ErrorRate < wantErrRate-0.01 || snap.ErrorRate > wantErrRate+0.01 {
		t.Errorf("ErrorRate = %.2f, want ~%.2f", snap.ErrorRate, wantErrRate)
	}
}

func TestMetricsReply(t *testing.T) {
	m := NewMetrics()
	m.RecordReply(256)
	m.RecordReply(64)

	snap := m.Snapshot()
	if snap.Replies != 2 {
		t.Errorf("Replies = %d, want 2", snap.Replies)
	}
	if snap.BytesReceived != 320 {
		t.Errorf("BytesReceived = %d, want 320", snap.BytesReceived)
	}
}

func TestMetricsDeathNotification(t *testing.T) {
	m := NewMetrics()
	m.RecordDeathNotification()
	m.RecordDeathNotification()

	if snap := m.Snapshot(); snap.DeathNotifications != 2 {
		t.Errorf("DeathNotifications = %d, want 2", snap.DeathNotifications)
	}
}

func TestMetricsThreadPoolHighWaterMark(t *testing.T) {
	m := NewMetrics()
	m.RecordThreadJoin()
	m.RecordThreadJoin()
	m.RecordThreadJoin()
	m.RecordThreadExit()

	snap := m.Snapshot()
	if snap.ActiveThreads != 2 {
		t.Errorf("ActiveThreads = %d, want 2", snap.ActiveThreads)
	}
	if snap.MaxThreads != 3 {
		t.Errorf("MaxThreads = %d, want 3 (high-water mark)", snap.MaxThreads)
	}
}

func TestMetricsAverageLatency(t *testing.T) {
	m := NewMetrics()
	m.RecordTransaction(0, 1_000_000, false, true)
	m.RecordTransaction(0, 2_000_000, false, true)

	snap := m.Snapshot()
	wantAvg := uint64(1_500_000)
	if snap.AvgLatencyNs != wantAvg {
		t.Errorf("AvgLatencyNs = %d, want %d", snap.AvgLatencyNs, wantAvg)
	}
}

func TestMetricsUptime(t *testing.T) {
	m := NewMetrics()
	time.Sleep(10 * time.Millisecond)

	snap := m.Snapshot()
	if snap.UptimeNs < 10*uint64(time.Millisecond) {
		t.Errorf("UptimeNs = %d, want >= 10ms", snap.UptimeNs)
	}

	m.Stop()
	time.Sleep(5 * time.Millisecond)
	snap2 := m.Snapshot()
	if snap2.UptimeNs > snap.UptimeNs+uint64(2*time.Millisecond) {
		t.Errorf("uptime grew after Stop: %d -> %d", snap.UptimeNs, snap2.UptimeNs)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordTransaction(128, 1_000_000, false, true)
	m.RecordReply(64)
	m.RecordDeathNotification()

	if snap := m.Snapshot(); snap.SyncTransactions == 0 {
		t.Fatal("expected transactions recorded before reset")
	}

	m.Reset()

	snap := m.Snapshot()
	if snap.SyncTransactions != 0 || snap.BytesSent != 0 || snap.DeathNotifications != 0 {
		t.Errorf("expected zeroed snapshot after Reset, got %+v", snap)
	}
}

func TestMetricsHistogramPercentiles(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < 50; i++ {
		m.RecordTransaction(0, 500_000, false, true) // 500us
	}
	for i := 0; i < 49; i++ {
		m.RecordTransaction(0, 5_000_000, false, true) // 5ms
	}
	m.RecordTransaction(0, 50_000_000, false, true) // 50ms, the P99 tail

	snap := m.Snapshot()
	if snap.SyncTransactions != 100 {
		t.Fatalf("SyncTransactions = %d, want 100", snap.SyncTransactions)
	}
	if snap.LatencyP50Ns < 100_000 || snap.LatencyP50Ns > 1_000_000 {
		t.Errorf("LatencyP50Ns = %d, want in [100us, 1ms]", snap.LatencyP50Ns)
	}
	if snap.LatencyP99Ns < 5_000_000 || snap.LatencyP99Ns > 100_000_000 {
		t.Errorf("LatencyP99Ns = %d, want in [5ms, 100ms]", snap.LatencyP99Ns)
	}

	var total uint64
	for _, c := range snap.LatencyHistogram {
		total += c
	}
	if total == 0 {
		t.Error("expected histogram buckets to be populated")
	}
}

func TestObserver(t *testing.T) {
	noop := NoOpObserver{}
	noop.ObserveTransaction(128, 1_000_000, false, true)
	noop.ObserveReply(64)
	noop.ObserveDeathNotification()
	noop.ObserveThreadPoolSize(1)

	m := NewMetrics()
	obs := NewMetricsObserver(m)
	obs.ObserveTransaction(128, 1_000_000, false, true)
	obs.ObserveReply(64)

	snap := m.Snapshot()
	if snap.SyncTransactions != 1 {
		t.Errorf("SyncTransactions via observer = %d, want 1", snap.SyncTransactions)
	}
	if snap.Replies != 1 {
		t.Errorf("Replies via observer = %d, want 1", snap.Replies)
	}
	if snap.BytesSent != 128 {
		t.Errorf("BytesSent via observer = %d, want 128", snap.BytesSent)
	}
}
