package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "auction"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "messages_total",
			Help:      "Protocol messages by role, direction and type.",
		},
		[]string{"role", "direction", "type"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent computing the reply to one message.",
			Buckets:   []float64{1e-5, 1e-4, 1e-3, 1e-2, 1e-1, 1},
		},
		[]string{"role", "type"},
	)
	connections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "connections",
			Help:      "Open protocol connections.",
		},
		[]string{"role"},
	)
	ledgerOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bank",
			Name:      "ledger_operations_total",
			Help:      "Ledger operations by kind and outcome.",
		},
		[]string{"op", "ok"},
	)
	bids = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "house",
			Name:      "bids_total",
			Help:      "Bid engine transitions by outcome.",
		},
		[]string{"outcome"},
	)
	activeTimers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "house",
			Name:      "active_timers",
			Help:      "Armed bid timers.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			messages,
			dispatchDuration,
			connections,
			ledgerOps,
			bids,
			activeTimers,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordMessage(role, direction, msgType string) {
	RegisterMetrics()
	messages.WithLabelValues(role, direction, msgType).Inc()
}

func ObserveDispatch(role, msgType string, d time.Duration) {
	RegisterMetrics()
	dispatchDuration.WithLabelValues(role, msgType).Observe(d.Seconds())
}

func ConnectionOpened(role string) {
	RegisterMetrics()
	connections.WithLabelValues(role).Inc()
}

func ConnectionClosed(role string) {
	RegisterMetrics()
	connections.WithLabelValues(role).Dec()
}

func RecordLedgerOp(op string, ok bool) {
	RegisterMetrics()
	ledgerOps.WithLabelValues(op, strconv.FormatBool(ok)).Inc()
}

// Bid outcomes recorded by the house engine.
const (
	BidRejectedLow    = "rejected_low"
	BidRejectedFunds  = "rejected_funds"
	BidRejectedClosed = "rejected_closed"
	BidAccepted       = "accepted"
	BidOutbid         = "outbid"
	BidWon            = "won"
	BidSold           = "sold"
	BidUnsold         = "unsold"
	BidReleased       = "released"
)

func RecordBid(outcome string) {
	RegisterMetrics()
	bids.WithLabelValues(outcome).Inc()
}

func SetActiveTimers(n int) {
	RegisterMetrics()
	activeTimers.Set(float64(n))
}
