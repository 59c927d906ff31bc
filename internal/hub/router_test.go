package hub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odin-collab/canvas-ws-hub/internal/identity"
	"github.com/odin-collab/canvas-ws-hub/internal/store/memstore"
	"github.com/odin-collab/canvas-ws-hub/internal/wire"
)

// newTestHub wires a Hub against an in-memory store with its broadcast
// worker pool running, so handler tests that go through h.broadcast (not
// just the direct sendTo/sendError paths) can read the result off a
// session's send channel without it sitting unprocessed in the pool queue.
func newTestHub(t *testing.T) *Hub {
	t.Helper()
	backing := memstore.New()
	resolver := identity.NewResolver(identity.NewVerifier("secret"), backing, true)
	h := New(DefaultConfig(), zerolog.Nop(), backing, resolver, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h.broadcastPool.start(ctx)
	return h
}

func TestBuildRouter_RegistersEveryMessageType(t *testing.T) {
	router := buildRouter()

	for _, msgType := range []string{
		wire.TypeCursorMove, wire.TypePresenceUpdate, wire.TypeShapeCreate,
		wire.TypeShapeUpdate, wire.TypeShapeDelete, wire.TypeShapesBatchUpdate,
		wire.TypeCanvasSyncRequest, wire.TypeReconnectRequest, wire.TypeCanvasUpdate,
		wire.TypeSwitchCanvas, wire.TypePing,
	} {
		_, ok := router[msgType]
		assert.True(t, ok, "no handler registered for %s", msgType)
	}
}

func TestHandleFrame_MalformedJSONSendsValidationError(t *testing.T) {
	h := newTestHub(t)
	s := newTestSession(t, "conn-1", "canvas-1", "user-1")

	h.handleFrame(s, []byte("not json"))

	frame := <-s.send
	var env wire.Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, wire.TypeError, env.Type)

	var payload wire.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, ErrCodeValidation, payload.Code)
}

func TestHandleFrame_UnknownTypeIsSilentlyIgnored(t *testing.T) {
	h := newTestHub(t)
	s := newTestSession(t, "conn-1", "canvas-1", "user-1")

	body, err := json.Marshal(wire.Envelope{Type: "NOT_A_REAL_TYPE"})
	require.NoError(t, err)
	h.handleFrame(s, body)

	select {
	case frame := <-s.send:
		t.Fatalf("expected no frame for an unknown message type, got %s", frame)
	default:
	}
}

func TestHandleFrame_PingRepliesWithPong(t *testing.T) {
	h := newTestHub(t)
	s := newTestSession(t, "conn-1", "canvas-1", "user-1")

	body, err := json.Marshal(wire.Envelope{Type: wire.TypePing})
	require.NoError(t, err)
	h.handleFrame(s, body)

	frame := <-s.send
	var env wire.Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, wire.TypePong, env.Type)
}

func TestSendError_CarriesCodeAndMessage(t *testing.T) {
	h := newTestHub(t)
	s := newTestSession(t, "conn-1", "canvas-1", "user-1")

	h.sendError(s, ErrCodeNotFound, "shape not found")

	frame := <-s.send
	var env wire.Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	var payload wire.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, ErrCodeNotFound, payload.Code)
	assert.Equal(t, "shape not found", payload.Message)
}
