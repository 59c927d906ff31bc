package hub

import (
	"encoding/json"
	"time"

	"github.com/odin-collab/canvas-ws-hub/internal/store"
	"github.com/odin-collab/canvas-ws-hub/internal/wire"
)

// handleCanvasSyncRequest answers both CANVAS_SYNC_REQUEST and
// RECONNECT_REQUEST with a fresh snapshot of the session's current canvas
// (spec §4.8) — reconnect carries no extra semantics here since the
// session itself is the reconnection; there is no missed-message window to
// fill in beyond the snapshot.
func handleCanvasSyncRequest(h *Hub, s *Session, _ wire.Envelope) {
	h.sendSync(s, s.CanvasID())
}

// handleCanvasUpdate implements spec §4.8: only the whitelisted fields on
// CanvasUpdateFields may be pushed, and the broadcast goes to everyone
// including the sender since the sender's optimistic state may not match
// what the store actually persisted (e.g. clamped values).
func handleCanvasUpdate(h *Hub, s *Session, env wire.Envelope) {
	var p wire.CanvasUpdatePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		h.sendError(s, ErrCodeValidation, "invalid canvas update payload")
		return
	}
	var f wire.CanvasUpdateFields
	if err := json.Unmarshal(p.Updates, &f); err != nil {
		h.sendError(s, ErrCodeValidation, "invalid canvas update fields")
		return
	}
	if f.BackgroundColor != nil {
		if err := validateColor("backgroundColor", *f.BackgroundColor); err != nil {
			h.sendError(s, ErrCodeValidation, err.Error())
			return
		}
	}

	canvasID := s.CanvasID()
	ctx, cancel := storeCtx()
	updated, err := h.store.UpdateCanvas(ctx, canvasID, store.CanvasUpdateFields{BackgroundColor: f.BackgroundColor})
	cancel()
	if err != nil {
		h.sendError(s, ErrCodeInternal, "failed to update canvas")
		return
	}

	h.broadcast(canvasID, wire.Envelope{Type: wire.TypeCanvasUpdate, Payload: mustMarshal(canvasBrief(updated))}, "", priorityHigh)
}

// handleSwitchCanvas implements spec §4.8: re-target the session to a new
// canvas, releasing whatever it held on the old one and resyncing fresh on
// the new one.
func handleSwitchCanvas(h *Hub, s *Session, env wire.Envelope) {
	var p wire.SwitchCanvasPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		h.sendError(s, ErrCodeValidation, "invalid switch payload")
		return
	}
	if !isValidCanvasID(p.CanvasID) {
		h.sendError(s, ErrCodeValidation, "invalid canvasId")
		return
	}

	ctx, cancel := storeCtx()
	allowed, err := h.store.CheckAccess(ctx, p.CanvasID, s.UserID)
	cancel()
	if err != nil {
		h.sendError(s, ErrCodeInternal, "access check failed")
		return
	}
	if !allowed {
		h.sendError(s, ErrCodeAuthz, "not authorized for this canvas")
		return
	}

	oldCanvasID := s.CanvasID()
	if oldCanvasID == p.CanvasID {
		h.sendTo(s, wire.Envelope{Type: wire.TypeCanvasSwitched, Payload: mustMarshal(wire.CanvasSwitchedPayload{CanvasID: p.CanvasID})}, priorityHigh)
		return
	}

	ctx, cancel = storeCtx()
	_ = h.store.RemovePresenceByConnection(ctx, s.ConnectionID)
	released, err := h.store.UnlockShapesByUser(ctx, s.UserID, oldCanvasID)
	cancel()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to release locks on canvas switch")
	}
	for _, sh := range released {
		h.broadcast(oldCanvasID, shapeUpdateEnvelope(sh), "", priorityHigh)
	}

	h.registry.resubscribe(s.ConnectionID, oldCanvasID, p.CanvasID)
	s.setCanvasID(p.CanvasID)

	h.broadcast(oldCanvasID, wire.Envelope{Type: wire.TypeUserLeave, Payload: mustMarshal(wire.UserLeavePayload{UserID: s.UserID})}, "", priorityHigh)
	h.broadcastActiveUsers(oldCanvasID)

	ctx, cancel = storeCtx()
	_ = h.store.UpsertPresence(ctx, store.Presence{
		UserID:        s.UserID,
		CanvasID:      p.CanvasID,
		Color:         s.User.AvatarColor,
		ConnectionID:  s.ConnectionID,
		LastHeartbeat: time.Now(),
		IsActive:      true,
	})
	cancel()

	h.sendTo(s, wire.Envelope{Type: wire.TypeCanvasSwitched, Payload: mustMarshal(wire.CanvasSwitchedPayload{CanvasID: p.CanvasID})}, priorityHigh)
	h.sendSync(s, p.CanvasID)
	h.broadcast(p.CanvasID, wire.Envelope{Type: wire.TypeUserJoin, Payload: mustMarshal(userBrief(s.User))}, s.ConnectionID, priorityHigh)
	h.broadcastActiveUsers(p.CanvasID)
}
