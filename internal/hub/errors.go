package hub

import (
	"encoding/json"

	"github.com/odin-collab/canvas-ws-hub/internal/wire"
)

// Error codes carried on ERROR frames (spec §7). These are stable strings a
// client can switch on; Message is the human-readable companion.
const (
	ErrCodeValidation   = "VALIDATION"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeAuth         = "AUTH"
	ErrCodeAuthz        = "AUTHORIZATION"
	ErrCodeInternal     = "INTERNAL"
	ErrCodeBatchTooBig  = "BATCH_TOO_LARGE"
)

func (h *Hub) sendError(s *Session, code, message string) {
	env := wire.Envelope{Type: wire.TypeError}
	payload, _ := json.Marshal(wire.ErrorPayload{Message: message, Code: code})
	env.Payload = payload
	h.sendTo(s, env, priorityHigh)
}
