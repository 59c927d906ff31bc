package hub

import (
	"context"
	"time"

	"github.com/odin-collab/canvas-ws-hub/internal/metrics"
	"github.com/odin-collab/canvas-ws-hub/internal/store"
	"github.com/odin-collab/canvas-ws-hub/internal/transport"
)

func storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (h *Hub) heartbeatLoop() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			for _, s := range h.registry.all() {
				if err := transport.WritePing(s.conn); err != nil {
					h.logger.Debug().Str("connection_id", s.ConnectionID).Err(err).Msg("ping failed")
				}
			}
		}
	}
}

// lockSweepLoop implements spec §4.5: periodically release locks whose TTL
// has elapsed and whose holder shows no recent cursor activity.
func (h *Hub) lockSweepLoop() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.cfg.LockSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.sweepExpiredLocks()
		}
	}
}

func (h *Hub) sweepExpiredLocks() {
	for _, canvasID := range h.registry.canvasesWithSubscribers() {
		h.sweepCanvasLocks(canvasID)
	}
}

func (h *Hub) sweepCanvasLocks(canvasID string) {
	ctx, cancel := storeCtx()
	defer cancel()

	now := time.Now()
	expired, err := h.store.GetExpiredLocks(ctx, canvasID, now.Add(-LockTTL))
	if err != nil {
		h.logger.Error().Err(err).Str("canvas_id", canvasID).Msg("lock sweep query failed")
		return
	}

	for _, sh := range expired {
		if sh.LockedBy == nil {
			continue
		}
		if last, ok := h.activity.lastActive(*sh.LockedBy); ok && now.Sub(last) < LockTTL {
			continue
		}

		var nilTime *time.Time
		var nilStr *string
		updated, err := h.store.UpdateShape(ctx, sh.ID, *sh.LockedBy, store.ShapeUpdateData{
			LockedAt: &nilTime,
			LockedBy: &nilStr,
		})
		if err != nil {
			h.logger.Error().Err(err).Str("shape_id", sh.ID).Msg("lock sweep release failed")
			continue
		}

		metrics.RecordLockReleased(metrics.LockReleaseExpired)
		h.broadcast(canvasID, shapeUpdateEnvelope(updated), "", priorityHigh)
	}
}

func (h *Hub) batchFlushLoop() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.cfg.BatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.flushBatchTick()
		}
	}
}

func (h *Hub) flushBatchTick() {
	drained := h.batch.drain()
	for connID, frames := range drained {
		s := h.registry.get(connID)
		if s == nil {
			continue
		}
		for _, frame := range frames {
			h.deliver(s, frame)
		}
	}
}

func (h *Hub) presenceCleanupLoop() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.cfg.PresenceCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := storeCtx()
			n, err := h.store.CleanupStalePresence(ctx, time.Now().Add(-h.cfg.PresenceTTL))
			cancel()
			if err != nil {
				h.logger.Error().Err(err).Msg("presence cleanup failed")
				continue
			}
			if n > 0 {
				metrics.PresenceEvictionsTotal.Add(float64(n))
				h.logger.Debug().Int("removed", n).Msg("cleaned up stale presence rows")
			}
		}
	}
}
