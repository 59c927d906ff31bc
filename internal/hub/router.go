package hub

import (
	"encoding/json"

	"github.com/odin-collab/canvas-ws-hub/internal/wire"
)

// buildRouter wires wire message types to their handlers. A per-type
// function table plus the shared send/validate helpers on Hub, rather than
// one large switch (spec §9 design note).
func buildRouter() map[string]handlerFunc {
	return map[string]handlerFunc{
		wire.TypeCursorMove:        handleCursorMove,
		wire.TypePresenceUpdate:    handlePresenceUpdate,
		wire.TypeShapeCreate:       handleShapeCreate,
		wire.TypeShapeUpdate:       handleShapeUpdate,
		wire.TypeShapeDelete:       handleShapeDelete,
		wire.TypeShapesBatchUpdate: handleShapesBatchUpdate,
		wire.TypeCanvasSyncRequest: handleCanvasSyncRequest,
		wire.TypeReconnectRequest:  handleCanvasSyncRequest,
		wire.TypeCanvasUpdate:      handleCanvasUpdate,
		wire.TypeSwitchCanvas:      handleSwitchCanvas,
		wire.TypePing:              handlePing,
	}
}

// handleFrame parses one client frame and dispatches it. Identity fields on
// the envelope are always overwritten from the authenticated session so a
// client can never spoof its userId or target a canvas it isn't subscribed
// to (spec §4.2).
func (h *Hub) handleFrame(s *Session, data []byte) {
	var env wire.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.sendError(s, ErrCodeValidation, "malformed message")
		return
	}
	env.UserID = s.UserID
	env.CanvasID = s.CanvasID()

	fn, ok := h.router[env.Type]
	if !ok {
		return
	}
	fn(h, s, env)
}

func handlePing(h *Hub, s *Session, _ wire.Envelope) {
	h.sendTo(s, wire.Envelope{Type: wire.TypePong}, priorityHigh)
}
