package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeOK              = "ok"
	OutcomeTimeout         = "timeout"
	OutcomeMalformed       = "malformed"
	OutcomeConnectionError = "connection_error"
	OutcomeClosed          = "closed"
	OutcomeCancelled       = "cancelled"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "helpctl",
			Subsystem: "admin_http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "helpctl",
			Subsystem: "admin_http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	commandRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "helpctl",
			Subsystem: "client",
			Name:      "commands_total",
			Help:      "Commands issued to the server by outcome.",
		},
		[]string{"command", "outcome"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "helpctl",
			Subsystem: "client",
			Name:      "command_duration_seconds",
			Help:      "Time from command write to settlement in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command", "outcome"},
	)
	pendingCommands = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "helpctl",
			Subsystem: "client",
			Name:      "pending_commands",
			Help:      "Commands awaiting a correlated reply.",
		},
	)
	connectionsOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "helpctl",
			Subsystem: "client",
			Name:      "connections_opened_total",
			Help:      "Sockets that completed connect and sent the handshake.",
		},
	)
	reconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "helpctl",
			Subsystem: "client",
			Name:      "reconnects_total",
			Help:      "Reconnects triggered by heartbeat absence.",
		},
	)
	heartbeats = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "helpctl",
			Subsystem: "client",
			Name:      "heartbeats_total",
			Help:      "Inbound batches that carried a heartbeat.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			commandRequests,
			commandDuration,
			pendingCommands,
			connectionsOpened,
			reconnects,
			heartbeats,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordCommand(command, outcome string, duration time.Duration) {
	RegisterMetrics()
	commandRequests.WithLabelValues(command, outcome).Inc()
	commandDuration.WithLabelValues(command, outcome).Observe(duration.Seconds())
}

func SetPendingCommands(n int) {
	RegisterMetrics()
	pendingCommands.Set(float64(n))
}

func RecordConnectionOpened() {
	RegisterMetrics()
	connectionsOpened.Inc()
}

func RecordReconnect() {
	RegisterMetrics()
	reconnects.Inc()
}

func RecordHeartbeat() {
	RegisterMetrics()
	heartbeats.Inc()
}
