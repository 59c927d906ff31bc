package hub

import (
	"encoding/json"
	"time"

	"github.com/odin-collab/canvas-ws-hub/internal/metrics"
	"github.com/odin-collab/canvas-ws-hub/internal/store"
	"github.com/odin-collab/canvas-ws-hub/internal/wire"
)

// handleCursorMove implements spec §4.4: throttled at CursorThrottle per
// connection, broadcast low priority (batched), presence updated
// fire-and-forget off the hot path.
func handleCursorMove(h *Hub, s *Session, env wire.Envelope) {
	if !h.cursorThrottle.allow(s.ConnectionID) {
		metrics.RecordThrottled("cursor")
		return
	}
	metrics.CursorUpdatesTotal.Inc()

	var p wire.CursorMovePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		h.sendError(s, ErrCodeValidation, "invalid cursor payload")
		return
	}
	if err := validateCoordinate("x", p.X); err != nil {
		h.sendError(s, ErrCodeValidation, err.Error())
		return
	}
	if err := validateCoordinate("y", p.Y); err != nil {
		h.sendError(s, ErrCodeValidation, err.Error())
		return
	}

	h.activity.touch(s.UserID)

	canvasID := s.CanvasID()
	payload := wire.CursorBroadcastPayload{
		UserBrief: userBrief(s.User),
		X:         p.X,
		Y:         p.Y,
	}
	h.broadcast(canvasID, wire.Envelope{Type: wire.TypeCursorMove, Payload: mustMarshal(payload)}, s.ConnectionID, priorityLow)

	go func() {
		ctx, cancel := storeCtx()
		defer cancel()
		_ = h.store.UpsertPresence(ctx, store.Presence{
			UserID:        s.UserID,
			CanvasID:      canvasID,
			CursorX:       p.X,
			CursorY:       p.Y,
			ViewportX:     p.ViewportX,
			ViewportY:     p.ViewportY,
			ViewportZoom:  p.ViewportZoom,
			Color:         s.User.AvatarColor,
			ConnectionID:  s.ConnectionID,
			LastHeartbeat: time.Now(),
			IsActive:      true,
		})
	}()
}

// handlePresenceUpdate implements spec §4.7: unlike cursor moves, presence
// updates (selection, active flag) are persisted synchronously before the
// broadcast goes out, since clients rely on them for selection conflict
// hints rather than pure visual feedback.
func handlePresenceUpdate(h *Hub, s *Session, env wire.Envelope) {
	var p wire.PresenceUpdatePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		h.sendError(s, ErrCodeValidation, "invalid presence payload")
		return
	}

	canvasID := s.CanvasID()
	ctx, cancel := storeCtx()
	err := h.store.UpsertPresence(ctx, store.Presence{
		UserID:            s.UserID,
		CanvasID:          canvasID,
		SelectedObjectIDs: p.SelectedObjectIDs,
		Color:             s.User.AvatarColor,
		ConnectionID:      s.ConnectionID,
		LastHeartbeat:     time.Now(),
		IsActive:          p.IsActive,
	})
	cancel()
	if err != nil {
		h.sendError(s, ErrCodeInternal, "failed to persist presence")
		return
	}

	h.broadcast(canvasID, wire.Envelope{Type: wire.TypePresenceUpdate, Payload: env.Payload, UserID: s.UserID}, s.ConnectionID, priorityLow)
}
