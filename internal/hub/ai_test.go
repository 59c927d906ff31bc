package hub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odin-collab/canvas-ws-hub/internal/wire"
)

func TestBroadcastAIGenerationComplete_ReachesEverySubscriber(t *testing.T) {
	h := newTestHub(t)
	s1 := newTestSession(t, "conn-1", "canvas-1", "user-1")
	s2 := newTestSession(t, "conn-2", "canvas-1", "user-2")
	other := newTestSession(t, "conn-3", "canvas-2", "user-3")
	h.registry.add(s1)
	h.registry.add(s2)
	h.registry.add(other)

	h.BroadcastAIGenerationComplete("canvas-1", "shape-1", "https://example.com/generated.png")

	for _, s := range []*Session{s1, s2} {
		frame := <-s.send
		var env wire.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		assert.Equal(t, wire.TypeAIGenerationComplete, env.Type)

		var payload wire.AIGenerationCompletePayload
		require.NoError(t, json.Unmarshal(env.Payload, &payload))
		assert.Equal(t, "shape-1", payload.ShapeID)
		assert.Equal(t, "https://example.com/generated.png", payload.ImageURL)
	}

	select {
	case <-other.send:
		t.Fatal("a subscriber on a different canvas should not receive the notification")
	default:
	}
}
