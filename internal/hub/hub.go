// Package hub implements the per-canvas realtime collaboration core: session
// admission and termination, the message router, shape locking, throttling
// and batching, presence and reconnect sync. Grounded throughout on the
// teacher's ws/server.go Server/Client lifecycle, generalized from a
// single global price-feed broadcaster to a canvas-scoped hub with an
// explicit CanvasStore dependency instead of a Kafka feed.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/odin-collab/canvas-ws-hub/internal/identity"
	"github.com/odin-collab/canvas-ws-hub/internal/metrics"
	"github.com/odin-collab/canvas-ws-hub/internal/resource"
	"github.com/odin-collab/canvas-ws-hub/internal/store"
	"github.com/odin-collab/canvas-ws-hub/internal/transport"
	"github.com/odin-collab/canvas-ws-hub/internal/wire"
)

// Config carries the tunable timings named in spec §6. LockTTL is
// deliberately not here — it is fixed as a single named constant (locks.go)
// per the spec's resolution of the source's 5s/10s ambiguity.
type Config struct {
	HeartbeatInterval       time.Duration
	PresenceTTL             time.Duration
	CursorThrottle          time.Duration
	ShapeThrottle           time.Duration
	BatchInterval           time.Duration
	PresenceCleanupInterval time.Duration
	LockSweepInterval       time.Duration
	MaxBatchSize            int
	DevMode                 bool
}

// DefaultConfig matches the values named in spec §6.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:       30 * time.Second,
		PresenceTTL:             30 * time.Second,
		CursorThrottle:          25 * time.Millisecond,
		ShapeThrottle:           33 * time.Millisecond,
		BatchInterval:           16 * time.Millisecond,
		PresenceCleanupInterval: 60 * time.Second,
		LockSweepInterval:       1 * time.Second,
		MaxBatchSize:            100,
	}
}

// EventPublisher is the outbound edge for fire-and-forget canvas mutation
// notifications (internal/events' NATS-backed outbox). Optional: a nil
// publisher simply means no events go out.
type EventPublisher interface {
	PublishShapeEvent(canvasID, event string, payload any)
}

type priority int

const (
	priorityLow priority = iota
	priorityHigh
)

// Hub is the top-level coordinator: it owns the listener's session
// registry, the timer loops, and orchestrates graceful shutdown (spec
// §2 item 9, §5).
type Hub struct {
	cfg      Config
	logger   zerolog.Logger
	store    store.CanvasStore
	resolver *identity.Resolver
	events   EventPublisher

	registry        *registry
	cursorThrottle  *throttle
	shapeThrottle   *throttle
	batch           *batchQueue
	activity        *activityTracker
	router          map[string]handlerFunc
	broadcastPool   *workerPool

	connCounter  int64
	liveConns    int64
	shuttingDown int32
	guard        *resource.Guard

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type handlerFunc func(h *Hub, s *Session, env wire.Envelope)

func New(cfg Config, logger zerolog.Logger, canvasStore store.CanvasStore, resolver *identity.Resolver, events EventPublisher) *Hub {
	h := &Hub{
		cfg:            cfg,
		logger:         logger,
		store:          canvasStore,
		resolver:       resolver,
		events:         events,
		registry:       newRegistry(),
		cursorThrottle: newThrottle(cfg.CursorThrottle),
		shapeThrottle:  newThrottle(cfg.ShapeThrottle),
		batch:          newBatchQueue(),
		activity:       newActivityTracker(),
	}
	h.router = buildRouter()
	h.guard = resource.NewGuard(resource.DefaultConfig(), logger, &h.liveConns)
	workers := runtime.GOMAXPROCS(0) * 2
	h.broadcastPool = newWorkerPool(workers, workers*100, logger)
	return h
}

// SetGuard overrides the resource guard built from resource.DefaultConfig
// in New, so callers can size limits to their actual deployment. cfg's
// connection count is always wired to this hub's own live-connection
// counter, since that is the only accurate source for it.
func (h *Hub) SetGuard(cfg resource.Config) {
	h.guard = resource.NewGuard(cfg, h.logger, &h.liveConns)
}

// Start launches the background timer loops: heartbeat, lock sweep, batch
// flush, and presence cleanup. Call once; Shutdown stops everything it
// starts here.
func (h *Hub) Start(ctx context.Context) {
	h.ctx, h.cancel = context.WithCancel(ctx)

	h.broadcastPool.start(h.ctx)

	h.wg.Add(4)
	go h.heartbeatLoop()
	go h.lockSweepLoop()
	go h.batchFlushLoop()
	go h.presenceCleanupLoop()

	if h.guard != nil {
		h.guard.StartMonitoring(h.ctx, 5*time.Second)
	}
}

// Shutdown stops timers, flushes remaining batches, and closes every
// connection with code 1000 (spec §5).
func (h *Hub) Shutdown(drainGrace time.Duration) {
	atomic.StoreInt32(&h.shuttingDown, 1)
	h.cancel()
	h.wg.Wait()
	h.broadcastPool.stop()

	h.flushAllBatches()

	deadline := time.Now().Add(drainGrace)
	for _, s := range h.registry.all() {
		transport.WriteClose(s.conn, transport.CloseNormal, "server shutting down")
		_ = deadline
	}
}

func (h *Hub) rejectingConnections() bool {
	return atomic.LoadInt32(&h.shuttingDown) == 1
}

func (h *Hub) nextConnectionID() string {
	n := atomic.AddInt64(&h.connCounter, 1)
	return fmt.Sprintf("conn-%d-%d", time.Now().UnixNano(), n)
}

// ServeHTTP upgrades the request and runs admission (spec §4.1). It never
// returns until the connection's pumps exit.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.rejectingConnections() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	if h.guard != nil {
		if ok, reason := h.guard.ShouldAcceptConnection(); !ok {
			h.logger.Warn().Str("reason", reason).Msg("rejecting connection, resource guard tripped")
			metrics.RecordCapacityRejection(reason)
			http.Error(w, "server at capacity", http.StatusServiceUnavailable)
			return
		}
	}

	conn, err := transport.Upgrade(w, r)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	h.admit(conn, r)
}

// --- send primitives ---

// sendTo delivers one envelope to a single session, bypassing the
// per-recipient batch (used for CANVAS_SYNC, ERROR, and other
// request/response replies that must go out immediately).
func (h *Hub) sendTo(s *Session, env wire.Envelope, _ priority) {
	env.Timestamp = time.Now().UnixMilli()
	data, err := serializeEnvelope(s, env)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to serialize envelope")
		return
	}
	h.deliver(s, data)
}

// broadcast sends env to every session subscribed to canvasID except
// excludeConnectionID (spec §4.3). High priority sends immediately; low
// priority enqueues onto the recipient's batch, flushed on the next tick.
func (h *Hub) broadcast(canvasID string, env wire.Envelope, excludeConnectionID string, p priority) {
	if h.guard != nil && !h.guard.AllowBroadcast() {
		h.logger.Warn().Str("canvas_id", canvasID).Msg("broadcast dropped, guard rate limit exceeded")
		return
	}

	env.Timestamp = time.Now().UnixMilli()
	env.CanvasID = canvasID

	for _, s := range h.registry.subscribers(canvasID) {
		if s.ConnectionID == excludeConnectionID {
			continue
		}
		s := s
		h.broadcastPool.submit(func() {
			data, err := serializeEnvelope(s, env)
			if err != nil {
				h.logger.Error().Err(err).Msg("failed to serialize broadcast envelope")
				return
			}
			if p == priorityHigh {
				h.deliver(s, data)
			} else {
				h.batch.enqueue(s.ConnectionID, data)
			}
		})
	}
}

func serializeEnvelope(s *Session, env wire.Envelope) ([]byte, error) {
	env.Seq = s.seqGen.next()
	return json.Marshal(env)
}

// deliver attempts an immediate, non-blocking send, applying the teacher's
// three-strikes slow-client disconnect policy (grounded on ws/server.go's
// broadcast()).
func (h *Hub) deliver(s *Session, data []byte) {
	if s.trySend(data) {
		atomic.StoreInt32(&s.sendFails, 0)
		return
	}
	fails := atomic.AddInt32(&s.sendFails, 1)
	metrics.RecordBroadcastDropped("send_buffer_full")
	if fails >= 3 {
		h.logger.Warn().Str("connection_id", s.ConnectionID).Msg("disconnecting slow client")
		metrics.RecordDisconnect(metrics.DisconnectReasonSlowClient, "server")
		transport.WriteClose(s.conn, transport.ClosePolicyViolation, "client too slow to process messages")
	}
}

func (h *Hub) flushAllBatches() {
	h.flushBatchTick()
}

// LiveConnections returns the current number of admitted sessions, for the
// metrics collector and the resource guard's own bookkeeping.
func (h *Hub) LiveConnections() int64 {
	return atomic.LoadInt64(&h.liveConns)
}

// BroadcastQueueStats reports the fanout worker pool's queue occupancy.
func (h *Hub) BroadcastQueueStats() (depth, capacity int, dropped int64) {
	return h.broadcastPool.queueDepth(), h.broadcastPool.queueCapacity(), h.broadcastPool.droppedCount()
}

// Guard exposes the resource guard for callers that need its CPU/memory
// snapshot (e.g. the metrics collector's CPU gauge).
func (h *Hub) Guard() *resource.Guard {
	return h.guard
}
