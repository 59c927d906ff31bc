// Package metrics exposes the hub's Prometheus collectors. Grounded on the
// teacher's root metrics.go: same var-block-of-collectors plus init()
// registration pattern, relabeled from the price-feed/worker-pool domain to
// canvas/shape/lock/presence events, with a Handler function identical
// in shape to the teacher's.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connections
	ConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_connections_total",
		Help: "Total number of WebSocket connections established",
	})
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hub_connections_active",
		Help: "Current number of active WebSocket connections",
	})
	ConnectionsMax = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hub_connections_max",
		Help: "Maximum allowed WebSocket connections",
	})
	DisconnectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_disconnects_total",
		Help: "Total disconnections by reason and who initiated",
	}, []string{"reason", "initiated_by"})

	// Canvas/shape domain
	ShapesCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_shapes_created_total",
		Help: "Total shapes created across all canvases",
	})
	ShapesUpdatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_shapes_updated_total",
		Help: "Total shape mutation messages applied",
	})
	ShapesDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_shapes_deleted_total",
		Help: "Total shapes deleted across all canvases",
	})
	LocksAcquiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_locks_acquired_total",
		Help: "Total shape locks acquired",
	})
	LocksReleasedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_locks_released_total",
		Help: "Total shape locks released, by reason",
	}, []string{"reason"})
	CursorUpdatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_cursor_updates_total",
		Help: "Total cursor move messages accepted (post-throttle)",
	})
	ThrottledMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_throttled_messages_total",
		Help: "Total inbound messages dropped by per-stream throttling",
	}, []string{"stream"})

	// Presence
	PresenceEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_presence_evictions_total",
		Help: "Total stale presence rows cleaned up after PresenceTTL",
	})

	// Broadcast / batch fanout
	BroadcastsDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_broadcasts_dropped_total",
		Help: "Total broadcast sends dropped, by reason",
	}, []string{"reason"})
	BroadcastQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hub_broadcast_queue_depth",
		Help: "Current number of fanout tasks waiting in the broadcast worker pool",
	})
	BroadcastQueueCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hub_broadcast_queue_capacity",
		Help: "Maximum capacity of the broadcast worker pool queue",
	})
	BatchFlushSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hub_batch_flush_size",
		Help:    "Number of envelopes delivered per per-recipient batch flush",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
	})

	// AI generation intake (Kafka)
	AIIntakeProcessedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_ai_intake_processed_total",
		Help: "Total AI generation completion events consumed from Kafka",
	})
	AIIntakeFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_ai_intake_failed_total",
		Help: "Total AI generation completion records that failed to parse or apply",
	})

	// Event outbox (NATS)
	EventPublishFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_event_publish_failures_total",
		Help: "Total failures publishing shape events to NATS",
	})

	// System
	MemoryUsageBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hub_memory_bytes",
		Help: "Current memory usage in bytes",
	})
	CPUUsagePercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hub_cpu_usage_percent",
		Help: "Current CPU usage percentage, relative to container allocation when cgroup-aware",
	})
	GoroutinesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hub_goroutines_active",
		Help: "Current number of active goroutines",
	})

	// Capacity / resource guard
	CapacityRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_capacity_rejections_total",
		Help: "Total connection rejections by the resource guard, by reason",
	}, []string{"reason"})

	// Errors
	ErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_errors_total",
		Help: "Total errors by type and severity",
	}, []string{"type", "severity"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal, ConnectionsActive, ConnectionsMax, DisconnectsTotal,
		ShapesCreatedTotal, ShapesUpdatedTotal, ShapesDeletedTotal,
		LocksAcquiredTotal, LocksReleasedTotal,
		CursorUpdatesTotal, ThrottledMessagesTotal,
		PresenceEvictionsTotal,
		BroadcastsDroppedTotal, BroadcastQueueDepth, BroadcastQueueCapacity, BatchFlushSize,
		AIIntakeProcessedTotal, AIIntakeFailedTotal,
		EventPublishFailuresTotal,
		MemoryUsageBytes, CPUUsagePercent, GoroutinesActive,
		CapacityRejectionsTotal,
		ErrorsTotal,
	)
}

// Error severity levels, mirrored from the teacher's root metrics.go.
const (
	ErrorSeverityWarning  = "warning"
	ErrorSeverityCritical = "critical"
	ErrorSeverityFatal    = "fatal"
)

// Error types for categorization.
const (
	ErrorTypeBroadcast     = "broadcast"
	ErrorTypeSerialization = "serialization"
	ErrorTypeConnection    = "connection"
	ErrorTypeStore         = "store"
	ErrorTypeEvents        = "events"
	ErrorTypeAIIntake      = "ai_intake"
)

// Disconnect reasons.
const (
	DisconnectReasonReadError       = "read_error"
	DisconnectReasonSlowClient      = "slow_client"
	DisconnectReasonPingTimeout     = "ping_timeout"
	DisconnectReasonServerShutdown  = "server_shutdown"
	DisconnectReasonClientInitiated = "client_initiated"
	DisconnectReasonPolicyViolation = "policy_violation"
)

// Lock release reasons.
const (
	LockReleaseExplicit = "explicit"
	LockReleaseExpired  = "expired"
	LockReleaseDisconnect = "disconnect"
)

func RecordError(errorType, severity string) {
	ErrorsTotal.WithLabelValues(errorType, severity).Inc()
}

func RecordDisconnect(reason, initiatedBy string) {
	DisconnectsTotal.WithLabelValues(reason, initiatedBy).Inc()
}

func RecordLockReleased(reason string) {
	LocksReleasedTotal.WithLabelValues(reason).Inc()
}

func RecordThrottled(stream string) {
	ThrottledMessagesTotal.WithLabelValues(stream).Inc()
}

func RecordBroadcastDropped(reason string) {
	BroadcastsDroppedTotal.WithLabelValues(reason).Inc()
}

func RecordCapacityRejection(reason string) {
	CapacityRejectionsTotal.WithLabelValues(reason).Inc()
}

// Handler serves Prometheus metrics for mounting at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Collector periodically refreshes the system gauges (memory, CPU,
// goroutines) that aren't naturally updated by request-path code.
type Collector struct {
	cpuPercentFn func() float64
	liveConnsFn  func() int64
	queueStatsFn func() (depth, capacity int, dropped int64)
	interval     time.Duration
	stopChan     chan struct{}
}

// NewCollector wires the gauges to the hub's own accessors instead of
// duplicating CPU/connection bookkeeping here.
func NewCollector(interval time.Duration, liveConnsFn func() int64, cpuPercentFn func() float64, queueStatsFn func() (int, int, int64)) *Collector {
	return &Collector{
		cpuPercentFn: cpuPercentFn,
		liveConnsFn:  liveConnsFn,
		queueStatsFn: queueStatsFn,
		interval:     interval,
		stopChan:     make(chan struct{}),
	}
}

func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopChan:
				return
			}
		}
	}()
}

func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collect() {
	ConnectionsActive.Set(float64(c.liveConnsFn()))
	CPUUsagePercent.Set(c.cpuPercentFn())

	if c.queueStatsFn != nil {
		depth, capacity, _ := c.queueStatsFn()
		BroadcastQueueDepth.Set(float64(depth))
		BroadcastQueueCapacity.Set(float64(capacity))
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	MemoryUsageBytes.Set(float64(mem.Alloc))
	GoroutinesActive.Set(float64(runtime.NumGoroutine()))
}
