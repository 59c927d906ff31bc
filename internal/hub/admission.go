package hub

import (
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"

	"github.com/odin-collab/canvas-ws-hub/internal/metrics"
	"github.com/odin-collab/canvas-ws-hub/internal/store"
	"github.com/odin-collab/canvas-ws-hub/internal/transport"
	"github.com/odin-collab/canvas-ws-hub/internal/wire"
)

// admit runs the eight-step admission sequence (spec §4.1): validate the
// target canvas, resolve identity, check access, register the session,
// snapshot-sync the client, then announce it to the rest of the canvas.
func (h *Hub) admit(conn net.Conn, r *http.Request) {
	query := r.URL.Query()
	canvasID := query.Get("canvasId")
	if !isValidCanvasID(canvasID) {
		transport.WriteClose(conn, transport.ClosePolicyViolation, "invalid or missing canvasId")
		return
	}

	ctx, cancel := storeCtx()
	user, err := h.resolver.Resolve(ctx, query)
	cancel()
	if err != nil {
		h.logger.Warn().Err(err).Msg("admission: identity resolution failed")
		transport.WriteClose(conn, transport.ClosePolicyViolation, "authentication failed")
		return
	}

	ctx, cancel = storeCtx()
	allowed, err := h.store.CheckAccess(ctx, canvasID, user.ID)
	cancel()
	if err != nil {
		h.logger.Error().Err(err).Msg("admission: access check failed")
		transport.WriteClose(conn, transport.CloseInternalError, "internal error")
		return
	}
	if !allowed {
		transport.WriteClose(conn, transport.ClosePolicyViolation, "not authorized for this canvas")
		return
	}

	s := newSession(h.nextConnectionID(), canvasID, user, conn)
	h.registry.add(s)
	atomic.AddInt64(&h.liveConns, 1)
	metrics.ConnectionsTotal.Inc()

	ctx, cancel = storeCtx()
	_ = h.store.UpsertPresence(ctx, store.Presence{
		UserID:        user.ID,
		CanvasID:      canvasID,
		Color:         user.AvatarColor,
		ConnectionID:  s.ConnectionID,
		LastHeartbeat: time.Now(),
		IsActive:      true,
	})
	_ = h.store.SetUserOnline(ctx, user.ID, true)
	cancel()

	h.sendSync(s, canvasID)
	h.broadcast(canvasID, wire.Envelope{Type: wire.TypeUserJoin, Payload: mustMarshal(userBrief(user))}, s.ConnectionID, priorityHigh)
	h.broadcastActiveUsers(canvasID)

	go h.writePump(s)
	h.readPump(s)

	h.terminate(s)
}

// sendSync assembles and sends the CANVAS_SYNC reply used by both fresh
// admission and RECONNECT_REQUEST/CANVAS_SYNC_REQUEST (spec §4.8).
func (h *Hub) sendSync(s *Session, canvasID string) {
	ctx, cancel := storeCtx()
	defer cancel()

	canvas, err := h.store.FindCanvasByID(ctx, canvasID)
	if err != nil || canvas == nil {
		h.sendError(s, ErrCodeNotFound, "canvas not found")
		return
	}
	shapes, err := h.store.GetShapes(ctx, canvasID)
	if err != nil {
		h.sendError(s, ErrCodeInternal, "failed to load shapes")
		return
	}
	presence, err := h.store.GetActivePresence(ctx, canvasID, time.Now().Add(-h.cfg.PresenceTTL))
	if err != nil {
		h.sendError(s, ErrCodeInternal, "failed to load presence")
		return
	}

	users := make([]wire.UserBrief, 0, len(presence))
	for _, p := range presence {
		users = append(users, wire.UserBrief{UserID: p.UserID, Color: p.Color})
	}

	payload := wire.CanvasSyncPayload{
		Canvas:      canvasBrief(canvas),
		Shapes:      shapeBriefs(shapes),
		ActiveUsers: users,
	}
	h.sendTo(s, wire.Envelope{Type: wire.TypeCanvasSync, Payload: mustMarshal(payload)}, priorityHigh)
}

func (h *Hub) broadcastActiveUsers(canvasID string) {
	ctx, cancel := storeCtx()
	presence, err := h.store.GetActivePresence(ctx, canvasID, time.Now().Add(-h.cfg.PresenceTTL))
	cancel()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load active users for broadcast")
		return
	}
	users := make([]wire.UserBrief, 0, len(presence))
	for _, p := range presence {
		users = append(users, wire.UserBrief{UserID: p.UserID, Color: p.Color})
	}
	h.broadcast(canvasID, wire.Envelope{Type: wire.TypeActiveUsers, Payload: mustMarshal(wire.ActiveUsersPayload{Users: users})}, "", priorityHigh)
}

// readPump owns the connection's read side until the peer disconnects or
// sends a close frame. Grounded on the teacher's ws/server.go readPump.
func (h *Hub) readPump(s *Session) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().Interface("panic", r).Str("connection_id", s.ConnectionID).Msg("recovered from panic in read pump")
		}
	}()

	for {
		data, op, err := transport.ReadClientFrame(s.conn)
		if err != nil {
			return
		}
		if op == ws.OpClose {
			return
		}
		s.touchPing()
		h.handleFrame(s, data)
	}
}

// writePump owns the connection's write side: drains the session's send
// channel and issues periodic pings. Grounded on the teacher's
// ws/server.go writePump.
func (h *Hub) writePump(s *Session) {
	ticker := time.NewTicker(transport.PingPeriod)
	defer ticker.Stop()
	defer func() { _ = s.conn.Close() }()

	for {
		select {
		case data, ok := <-s.send:
			if !ok {
				return
			}
			if err := transport.WriteText(s.conn, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := transport.WritePing(s.conn); err != nil {
				return
			}
		}
	}
}

// terminate runs the termination sequence (spec §4.1): deregister the
// session, drop its throttle/batch bookkeeping, release its locks and
// presence row, and tell the rest of the canvas it left.
func (h *Hub) terminate(s *Session) {
	s.setAlive(false)
	h.registry.remove(s.ConnectionID)
	atomic.AddInt64(&h.liveConns, -1)
	metrics.RecordDisconnect(metrics.DisconnectReasonClientInitiated, "client")
	h.cursorThrottle.drop(s.ConnectionID)
	h.batch.dropConnection(s.ConnectionID)

	canvasID := s.CanvasID()

	ctx, cancel := storeCtx()
	_ = h.store.RemovePresenceByConnection(ctx, s.ConnectionID)
	released, err := h.store.UnlockShapesByUser(ctx, s.UserID, canvasID)
	cancel()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to release locks on disconnect")
	}
	for _, sh := range released {
		metrics.RecordLockReleased(metrics.LockReleaseDisconnect)
		h.broadcast(canvasID, shapeUpdateEnvelope(sh), "", priorityHigh)
	}

	if len(h.registry.sessionsForUser(s.UserID)) == 0 {
		ctx, cancel := storeCtx()
		_ = h.store.SetUserOnline(ctx, s.UserID, false)
		cancel()
		h.activity.drop(s.UserID)
	}

	h.broadcast(canvasID, wire.Envelope{Type: wire.TypeUserLeave, Payload: mustMarshal(wire.UserLeavePayload{UserID: s.UserID})}, s.ConnectionID, priorityHigh)
	h.broadcastActiveUsers(canvasID)

	// s.send is deliberately never closed: the registry no longer holds s
	// once remove() above returns, so no further trySend can reach it, and
	// writePump exits on its own next failed write against the closed conn.
	_ = s.conn.Close()
}
