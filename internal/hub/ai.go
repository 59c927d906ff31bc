package hub

import "github.com/odin-collab/canvas-ws-hub/internal/wire"

// BroadcastAIGenerationComplete notifies every subscriber of canvasID that
// an async AI-assisted generation finished (spec §4.11). It is the bridge
// point for internal/aiintake's Kafka consumer, which has no other way to
// reach the hub's broadcast machinery.
func (h *Hub) BroadcastAIGenerationComplete(canvasID, shapeID, imageURL string) {
	h.broadcast(canvasID, wire.Envelope{
		Type:    wire.TypeAIGenerationComplete,
		Payload: mustMarshal(wire.AIGenerationCompletePayload{ShapeID: shapeID, ImageURL: imageURL}),
	}, "", priorityHigh)
}
