package hub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odin-collab/canvas-ws-hub/internal/store"
	"github.com/odin-collab/canvas-ws-hub/internal/wire"
)

func ctxBG() context.Context { return context.Background() }

func TestHandleShapeCreate_PersistsAndBroadcastsToEveryoneIncludingSender(t *testing.T) {
	h := newTestHub(t)
	sender := newTestSession(t, "conn-1", "canvas-1", "user-1")
	other := newTestSession(t, "conn-2", "canvas-1", "user-2")
	h.registry.add(sender)
	h.registry.add(other)

	width, height := 10.0, 20.0
	payload, err := json.Marshal(wire.ShapeCreatePayload{Type: "rectangle", X: 1, Y: 1, Width: &width, Height: &height})
	require.NoError(t, err)

	handleShapeCreate(h, sender, wire.Envelope{Type: wire.TypeShapeCreate, Payload: payload})

	senderFrame := <-sender.send
	otherFrame := <-other.send
	var senderEnv, otherEnv wire.Envelope
	require.NoError(t, json.Unmarshal(senderFrame, &senderEnv))
	require.NoError(t, json.Unmarshal(otherFrame, &otherEnv))
	assert.Equal(t, wire.TypeShapeCreate, senderEnv.Type)
	assert.Equal(t, wire.TypeShapeCreate, otherEnv.Type)
}

func TestHandleShapeCreate_RejectsUnknownShapeType(t *testing.T) {
	h := newTestHub(t)
	s := newTestSession(t, "conn-1", "canvas-1", "user-1")
	h.registry.add(s)

	payload, err := json.Marshal(wire.ShapeCreatePayload{Type: "blob", X: 1, Y: 1})
	require.NoError(t, err)

	handleShapeCreate(h, s, wire.Envelope{Type: wire.TypeShapeCreate, Payload: payload})

	frame := <-s.send
	var env wire.Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, wire.TypeError, env.Type)
}

func TestHandleShapeUpdate_MovesUnlockedShape(t *testing.T) {
	h := newTestHub(t)
	backing := h.store
	shape, err := backing.CreateShape(ctxBG(), "canvas-1", "user-1", store.ShapeCreateData{Type: store.ShapeRectangle, X: 0, Y: 0})
	require.NoError(t, err)

	s := newTestSession(t, "conn-1", "canvas-1", "user-1")
	h.registry.add(s)

	newX := 42.0
	fields, err := json.Marshal(wire.ShapeUpdateFields{X: &newX})
	require.NoError(t, err)
	payload, err := json.Marshal(wire.ShapeUpdatePayload{ShapeID: shape.ID, Updates: fields})
	require.NoError(t, err)

	handleShapeUpdate(h, s, wire.Envelope{Type: wire.TypeShapeUpdate, Payload: payload})

	// A plain field edit (no lock transition) is low-priority and only
	// reaches the session's send channel on a batch flush.
	frame := waitForBatchedFrame(t, h, s)
	var env wire.Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, wire.TypeShapeUpdate, env.Type)

	updated, err := backing.GetShapeByID(ctxBG(), shape.ID)
	require.NoError(t, err)
	assert.Equal(t, newX, updated.X)
}

func TestHandleShapeUpdate_BlockedByOtherUsersLock(t *testing.T) {
	h := newTestHub(t)
	backing := h.store
	shape, err := backing.CreateShape(ctxBG(), "canvas-1", "user-1", store.ShapeCreateData{Type: store.ShapeRectangle, X: 0, Y: 0})
	require.NoError(t, err)

	locked := true
	lockFields, err := json.Marshal(wire.ShapeUpdateFields{IsLocked: &locked})
	require.NoError(t, err)
	lockPayload, err := json.Marshal(wire.ShapeUpdatePayload{ShapeID: shape.ID, Updates: lockFields})
	require.NoError(t, err)

	owner := newTestSession(t, "conn-owner", "canvas-1", "user-1")
	h.registry.add(owner)
	handleShapeUpdate(h, owner, wire.Envelope{Type: wire.TypeShapeUpdate, Payload: lockPayload})
	<-owner.send

	intruder := newTestSession(t, "conn-intruder", "canvas-1", "user-2")
	h.registry.add(intruder)
	newX := 99.0
	moveFields, err := json.Marshal(wire.ShapeUpdateFields{X: &newX})
	require.NoError(t, err)
	movePayload, err := json.Marshal(wire.ShapeUpdatePayload{ShapeID: shape.ID, Updates: moveFields})
	require.NoError(t, err)

	handleShapeUpdate(h, intruder, wire.Envelope{Type: wire.TypeShapeUpdate, Payload: movePayload})

	frame := <-intruder.send
	var env wire.Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, wire.TypeError, env.Type)
}

func TestHandleShapeDelete_SkipsShapesLockedByOthers(t *testing.T) {
	h := newTestHub(t)
	backing := h.store
	free, err := backing.CreateShape(ctxBG(), "canvas-1", "user-1", store.ShapeCreateData{Type: store.ShapeRectangle, X: 0, Y: 0})
	require.NoError(t, err)
	locked, err := backing.CreateShape(ctxBG(), "canvas-1", "user-1", store.ShapeCreateData{Type: store.ShapeRectangle, X: 0, Y: 0})
	require.NoError(t, err)

	owner := newTestSession(t, "conn-owner", "canvas-1", "user-1")
	h.registry.add(owner)
	on := true
	fields, _ := json.Marshal(wire.ShapeUpdateFields{IsLocked: &on})
	payload, _ := json.Marshal(wire.ShapeUpdatePayload{ShapeID: locked.ID, Updates: fields})
	handleShapeUpdate(h, owner, wire.Envelope{Type: wire.TypeShapeUpdate, Payload: payload})
	<-owner.send

	deleter := newTestSession(t, "conn-deleter", "canvas-1", "user-2")
	h.registry.add(deleter)
	delPayload, err := json.Marshal(wire.ShapeDeletePayload{ShapeIDs: []string{free.ID, locked.ID}})
	require.NoError(t, err)

	handleShapeDelete(h, deleter, wire.Envelope{Type: wire.TypeShapeDelete, Payload: delPayload})

	frame := <-deleter.send
	var env wire.Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	require.Equal(t, wire.TypeShapeDelete, env.Type)
	var out wire.ShapeDeletePayload
	require.NoError(t, json.Unmarshal(env.Payload, &out))
	assert.Equal(t, []string{free.ID}, out.ShapeIDs)

	_, err = backing.GetShapeByID(ctxBG(), locked.ID)
	assert.NoError(t, err)
}

func TestHandleShapesBatchUpdate_BroadcastsOneEnvelopeToEveryoneIncludingSender(t *testing.T) {
	h := newTestHub(t)
	backing := h.store
	a, err := backing.CreateShape(ctxBG(), "canvas-1", "user-1", store.ShapeCreateData{Type: store.ShapeRectangle, X: 0, Y: 0})
	require.NoError(t, err)
	b, err := backing.CreateShape(ctxBG(), "canvas-1", "user-1", store.ShapeCreateData{Type: store.ShapeRectangle, X: 0, Y: 0})
	require.NoError(t, err)

	sender := newTestSession(t, "conn-1", "canvas-1", "user-1")
	other := newTestSession(t, "conn-2", "canvas-1", "user-2")
	h.registry.add(sender)
	h.registry.add(other)

	ax, bx := 11.0, 22.0
	aFields, _ := json.Marshal(wire.ShapeUpdateFields{X: &ax})
	bFields, _ := json.Marshal(wire.ShapeUpdateFields{X: &bx})
	payload, err := json.Marshal(wire.ShapesBatchUpdatePayload{Updates: []wire.BatchUpdateEntry{
		{ID: a.ID, Data: aFields},
		{ID: b.ID, Data: bFields},
	}})
	require.NoError(t, err)

	handleShapesBatchUpdate(h, sender, wire.Envelope{Type: wire.TypeShapesBatchUpdate, Payload: payload})

	for _, s := range []*Session{sender, other} {
		frame := <-s.send
		var env wire.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		assert.Equal(t, wire.TypeShapesBatchUpdate, env.Type)

		var out wire.ShapesBatchUpdatePayload
		require.NoError(t, json.Unmarshal(env.Payload, &out))
		assert.Len(t, out.Shapes, 2)
	}
}

func TestHandleShapesBatchUpdate_RejectsOversizedBatch(t *testing.T) {
	h := newTestHub(t)
	s := newTestSession(t, "conn-1", "canvas-1", "user-1")
	h.registry.add(s)

	entries := make([]wire.BatchUpdateEntry, maxBatchSize+1)
	payload, err := json.Marshal(wire.ShapesBatchUpdatePayload{Updates: entries})
	require.NoError(t, err)

	handleShapesBatchUpdate(h, s, wire.Envelope{Type: wire.TypeShapesBatchUpdate, Payload: payload})

	frame := <-s.send
	var env wire.Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, wire.TypeError, env.Type)
}
