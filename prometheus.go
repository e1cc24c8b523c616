package binder

import "github.com/prometheus/client_golang/prometheus"

// PrometheusObserver mirrors transaction events into Prometheus collectors.
// It is opt-in: constructing one registers its collectors with reg, but
// nothing in this module creates one by default, so a process that never
// calls NewPrometheusObserver carries zero Prometheus footprint.
type PrometheusObserver struct {
	transactions *prometheus.CounterVec
	replies      prometheus.Counter
	bytesSent    prometheus.Counter
	bytesRecv    prometheus.Counter
	deaths       prometheus.Counter
	latency      prometheus.Histogram
	threadPool   prometheus.Gauge
}

// NewPrometheusObserver builds a PrometheusObserver and registers its
// collectors with reg. Pass prometheus.DefaultRegisterer to use the global
// registry, or a dedicated *prometheus.Registry to keep this module's
// metrics isolated from whatever else the host process exports.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	o := &PrometheusObserver{
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "binder",
			Name:      "transactions_total",
			Help:      "Transactions sent, labeled by kind and outcome.",
		}, []string{"kind", "outcome"}),
		replies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "binder",
			Name:      "replies_total",
			Help:      "Replies received.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "binder",
			Name:      "bytes_sent_total",
			Help:      "Transaction payload bytes sent.",
		}),
		bytesRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "binder",
			Name:      "bytes_received_total",
			Help:      "Reply payload bytes received.",
		}),
		deaths: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "binder",
			Name:      "death_notifications_total",
			Help:      "Death notifications delivered.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "binder",
			Name:      "transaction_latency_seconds",
			Help:      "Transaction round-trip latency.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
		threadPool: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "binder",
			Name:      "thread_pool_active",
			Help:      "Active binder thread-pool threads.",
		}),
	}
	reg.MustRegister(o.transactions, o.replies, o.bytesSent, o.bytesRecv, o.deaths, o.latency, o.threadPool)
	return o
}

func (o *PrometheusObserver) ObserveTransaction(bytes uint64, latencyNs uint64, oneway bool, success bool) {
	kind := "sync"
	if oneway {
		kind = "oneway"
	}
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	o.transactions.WithLabelValues(kind, outcome).Inc()
	o.bytesSent.Add(float64(bytes))
	o.latency.Observe(float64(latencyNs) / 1e9)
}

func (o *PrometheusObserver) ObserveReply(bytes uint64) {
	o.replies.Inc()
	o.bytesRecv.Add(float64(bytes))
}

func (o *PrometheusObserver) ObserveDeathNotification() { o.deaths.Inc() }

func (o *PrometheusObserver) ObserveThreadPoolSize(active int32) { o.threadPool.Set(float64(active)) }

var _ Observer = (*PrometheusObserver)(nil)
