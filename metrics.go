package binder

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the transaction round-trip latency histogram
// buckets in nanoseconds, covering 1us to 10s with logarithmic spacing.
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

// Metrics tracks transaction throughput, latency, and thread-pool occupancy
// for a process's binder runtime.
type Metrics struct {
	// Transaction counters
	SyncTransactions   atomic.Uint64 // Transactions awaiting a reply
	OnewayTransactions atomic.Uint64 // Fire-and-forget transactions
	Replies            atomic.Uint64 // Replies received for sync transactions

	// Byte counters
	BytesSent     atomic.Uint64 // Total payload bytes written to the driver
	BytesReceived atomic.Uint64 // Total payload bytes read from the driver

	// Error counters
	TransactionErrors  atomic.Uint64 // Sync transactions that returned non-OK
	DeathNotifications atomic.Uint64 // BR_DEAD_BINDER deliveries observed

	// Thread-pool occupancy
	ActiveThreads atomic.Int32 // Threads currently parked in JoinThreadPool
	MaxThreads    atomic.Int32 // High-water mark of ActiveThreads

	// Performance tracking
	TotalLatencyNs atomic.Uint64 // Cumulative sync-transaction latency
	OpCount        atomic.Uint64 // Sync transactions completed (for average latency)

	// Latency histogram buckets (cumulative counts); bucket[i] holds the
	// count of transactions with latency <= LatencyBuckets[i].
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Process lifecycle
	StartTime atomic.Int64 // Process binder-init timestamp (UnixNano)
	StopTime  atomic.Int64 // Process shutdown timestamp (UnixNano)
}

// NewMetrics creates a new metrics instance with its start time set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordTransaction records one outgoing transaction, sync or oneway. bytes
// is the size of the data parcel; latencyNs and success are ignored for
// oneway transactions, which never wait on a reply.
func (m *Metrics) RecordTransaction(bytes uint64, latencyNs uint64, oneway bool, success bool) {
	m.BytesSent.Add(bytes)
	if oneway {
		m.OnewayTransactions.Add(1)
		return
	}
	m.SyncTransactions.Add(1)
	if !success {
		m.TransactionErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordReply records a reply received for one of this process's
// transactions; bytes counts toward BytesReceived.
func (m *Metrics) RecordReply(bytes uint64) {
	m.Replies.Add(1)
	m.BytesReceived.Add(bytes)
}

// RecordDeathNotification records one BR_DEAD_BINDER delivery.
func (m *Metrics) RecordDeathNotification() {
	m.DeathNotifications.Add(1)
}

// RecordThreadJoin records a thread entering the pool loop, updating the
// high-water mark if this is the most threads seen at once.
func (m *Metrics) RecordThreadJoin() {
	n := m.ActiveThreads.Add(1)
	for {
		cur := m.MaxThreads.Load()
		if n <= cur {
			break
		}
		if m.MaxThreads.CompareAndSwap(cur, n) {
			break
		}
	}
}

// RecordThreadExit records a thread leaving the pool loop.
func (m *Metrics) RecordThreadExit() {
	m.ActiveThreads.Add(-1)
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

// Stop marks the process's binder runtime as shut down.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics with derived rates.
type MetricsSnapshot struct {
	SyncTransactions   uint64
	OnewayTransactions uint64
	Replies            uint64

	BytesSent     uint64
	BytesReceived uint64

	TransactionErrors  uint64
	DeathNotifications uint64

	ActiveThreads int32
	MaxThreads    int32

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	TransactionsPerSecond float64
	ErrorRate             float64 // Percentage of sync transactions that failed
}

// Snapshot creates a point-in-time snapshot of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		SyncTransactions:   m.SyncTransactions.Load(),
		OnewayTransactions: m.OnewayTransactions.Load(),
		Replies:            m.Replies.Load(),
		BytesSent:          m.BytesSent.Load(),
		BytesReceived:      m.BytesReceived.Load(),
		TransactionErrors:  m.TransactionErrors.Load(),
		DeathNotifications: m.DeathNotifications.Load(),
		ActiveThreads:      m.ActiveThreads.Load(),
		MaxThreads:         m.MaxThreads.Load(),
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
		total := snap.SyncTransactions + snap.OnewayTransactions
		snap.TransactionsPerSecond = float64(total) / uptimeSeconds
	}

	if snap.SyncTransactions > 0 {
		snap.ErrorRate = float64(snap.TransactionErrors) / float64(snap.SyncTransactions) * 100.0
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

// Reset zeroes all counters, useful between test cases.
func (m *Metrics) Reset() {
	m.SyncTransactions.Store(0)
	m.OnewayTransactions.Store(0)
	m.Replies.Store(0)
	m.BytesSent.Store(0)
	m.BytesReceived.Store(0)
	m.TransactionErrors.Store(0)
	m.DeathNotifications.Store(0)
	m.ActiveThreads.Store(0)
	m.MaxThreads.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer lets pluggable metrics collectors (e.g. a Prometheus exporter)
// observe runtime events without depending on Metrics directly.
type Observer interface {
	// ObserveTransaction is called for each outgoing transaction.
	ObserveTransaction(bytes uint64, latencyNs uint64, oneway bool, success bool)
	// ObserveReply is called for each reply this process receives.
	ObserveReply(bytes uint64)
	// ObserveDeathNotification is called for each death notification delivered.
	ObserveDeathNotification()
	// ObserveThreadPoolSize is called whenever the active thread count changes.
	ObserveThreadPoolSize(active int32)
}

// NoOpObserver is a no-op Observer, the default when nothing is wired up.
type NoOpObserver struct{}

func (NoOpObserver) ObserveTransaction(uint64, uint64, bool, bool) {}
func (NoOpObserver) ObserveReply(uint64)                           {}
func (NoOpObserver) ObserveDeathNotification()                     {}
func (NoOpObserver) ObserveThreadPoolSize(int32)                   {}

// MetricsObserver implements Observer by recording into an embedded Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveTransaction(bytes uint64, latencyNs uint64, oneway bool, success bool) {
	o.metrics.RecordTransaction(bytes, latencyNs, oneway, success)
}

func (o *MetricsObserver) ObserveReply(bytes uint64) {
	o.metrics.RecordReply(bytes)
}

func (o *MetricsObserver) ObserveDeathNotification() {
	o.metrics.RecordDeathNotification()
}

func (o *MetricsObserver) ObserveThreadPoolSize(active int32) {
	// Metrics already tracks this via RecordThreadJoin/RecordThreadExit;
	// this hook exists for observers that want the raw gauge value too.
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
