package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odin-collab/canvas-ws-hub/internal/store"
)

func TestCheckAccess_PublicCanvasAllowsAnyone(t *testing.T) {
	s := New()
	s.SeedCanvas(&store.Canvas{ID: "c1", IsPublic: true})

	ok, err := s.CheckAccess(context.Background(), "c1", "anyone")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckAccess_PrivateCanvasRequiresAllowlist(t *testing.T) {
	s := New()
	s.SeedCanvas(&store.Canvas{ID: "c1", OwnerID: "owner"}, "friend")

	ok, _ := s.CheckAccess(context.Background(), "c1", "owner")
	assert.True(t, ok, "owner is always allowed")

	ok, _ = s.CheckAccess(context.Background(), "c1", "friend")
	assert.True(t, ok)

	ok, _ = s.CheckAccess(context.Background(), "c1", "stranger")
	assert.False(t, ok)
}

func TestCheckAccess_DeletedCanvasDeniesEveryone(t *testing.T) {
	s := New()
	s.SeedCanvas(&store.Canvas{ID: "c1", IsPublic: true, IsDeleted: true})

	ok, _ := s.CheckAccess(context.Background(), "c1", "anyone")
	assert.False(t, ok)
}

func TestCreateAndGetShape(t *testing.T) {
	s := New()
	s.SeedCanvas(&store.Canvas{ID: "c1", IsPublic: true})

	created, err := s.CreateShape(context.Background(), "c1", "user-1", store.ShapeCreateData{Type: store.ShapeRectangle, X: 1, Y: 2})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "user-1", created.CreatedBy)
	assert.Equal(t, 1.0, created.Opacity, "zero opacity input defaults to fully opaque")

	fetched, err := s.GetShapeByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)
}

func TestGetShapeByID_DeletedShapeNotFound(t *testing.T) {
	s := New()
	s.SeedCanvas(&store.Canvas{ID: "c1", IsPublic: true})
	created, _ := s.CreateShape(context.Background(), "c1", "user-1", store.ShapeCreateData{Type: store.ShapeCircle})

	require.NoError(t, s.DeleteShape(context.Background(), created.ID))

	_, err := s.GetShapeByID(context.Background(), created.ID)
	assert.Error(t, err)
}

func TestUpdateShape_AppliesOnlyPresentFields(t *testing.T) {
	s := New()
	s.SeedCanvas(&store.Canvas{ID: "c1", IsPublic: true})
	created, _ := s.CreateShape(context.Background(), "c1", "user-1", store.ShapeCreateData{Type: store.ShapeRectangle, X: 1, Y: 1})

	newX := 99.0
	updated, err := s.UpdateShape(context.Background(), created.ID, "user-2", store.ShapeUpdateData{X: &newX})
	require.NoError(t, err)
	assert.Equal(t, 99.0, updated.X)
	assert.Equal(t, created.Y, updated.Y, "fields not present in the update must be left untouched")
	assert.Equal(t, "user-2", updated.LastModifiedBy)
}

func TestUpdateShape_TriStateLockClear(t *testing.T) {
	s := New()
	s.SeedCanvas(&store.Canvas{ID: "c1", IsPublic: true})
	created, _ := s.CreateShape(context.Background(), "c1", "user-1", store.ShapeCreateData{Type: store.ShapeRectangle})

	lockedAt := time.Now()
	lockedBy := "user-1"
	lockedAtPtr := &lockedAt
	lockedByPtr := &lockedBy
	_, err := s.UpdateShape(context.Background(), created.ID, "user-1", store.ShapeUpdateData{
		LockedAt: &lockedAtPtr,
		LockedBy: &lockedByPtr,
	})
	require.NoError(t, err)

	locked, err := s.GetShapeByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, locked.Locked())

	var nilTime *time.Time
	var nilString *string
	_, err = s.UpdateShape(context.Background(), created.ID, "user-1", store.ShapeUpdateData{
		LockedAt: &nilTime,
		LockedBy: &nilString,
	})
	require.NoError(t, err)

	unlocked, err := s.GetShapeByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, unlocked.Locked())
}

func TestBatchUpdateShapes_SkipsUnknownAndDeletedIDs(t *testing.T) {
	s := New()
	s.SeedCanvas(&store.Canvas{ID: "c1", IsPublic: true})
	sh1, _ := s.CreateShape(context.Background(), "c1", "u1", store.ShapeCreateData{Type: store.ShapeRectangle})
	sh2, _ := s.CreateShape(context.Background(), "c1", "u1", store.ShapeCreateData{Type: store.ShapeCircle})
	require.NoError(t, s.DeleteShape(context.Background(), sh2.ID))

	newX := 5.0
	updated, err := s.BatchUpdateShapes(context.Background(), map[string]store.ShapeUpdateData{
		sh1.ID:   {X: &newX},
		sh2.ID:   {X: &newX},
		"ghost-id": {X: &newX},
	}, "u2")
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, sh1.ID, updated[0].ID)
}

func TestGetExpiredLocks(t *testing.T) {
	s := New()
	s.SeedCanvas(&store.Canvas{ID: "c1", IsPublic: true})
	sh, _ := s.CreateShape(context.Background(), "c1", "u1", store.ShapeCreateData{Type: store.ShapeRectangle})

	past := time.Now().Add(-time.Hour)
	pastPtr := &past
	userID := "u1"
	userIDPtr := &userID
	_, err := s.UpdateShape(context.Background(), sh.ID, "u1", store.ShapeUpdateData{LockedAt: &pastPtr, LockedBy: &userIDPtr})
	require.NoError(t, err)

	expired, err := s.GetExpiredLocks(context.Background(), "c1", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, sh.ID, expired[0].ID)
}

func TestUnlockShapesByUser_OnlyUnlocksThatUsersShapes(t *testing.T) {
	s := New()
	s.SeedCanvas(&store.Canvas{ID: "c1", IsPublic: true})
	sh1, _ := s.CreateShape(context.Background(), "c1", "u1", store.ShapeCreateData{Type: store.ShapeRectangle})
	sh2, _ := s.CreateShape(context.Background(), "c1", "u2", store.ShapeCreateData{Type: store.ShapeCircle})

	now := time.Now()
	u1, u2 := "u1", "u2"
	nowPtr := &now
	u1Ptr, u2Ptr := &u1, &u2
	_, err := s.UpdateShape(context.Background(), sh1.ID, "u1", store.ShapeUpdateData{LockedAt: &nowPtr, LockedBy: &u1Ptr})
	require.NoError(t, err)
	_, err = s.UpdateShape(context.Background(), sh2.ID, "u2", store.ShapeUpdateData{LockedAt: &nowPtr, LockedBy: &u2Ptr})
	require.NoError(t, err)

	released, err := s.UnlockShapesByUser(context.Background(), "u1", "c1")
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.Equal(t, sh1.ID, released[0].ID)

	stillLocked, err := s.GetShapeByID(context.Background(), sh2.ID)
	require.NoError(t, err)
	assert.True(t, stillLocked.Locked())
}

func TestPresenceLifecycle(t *testing.T) {
	s := New()
	require.NoError(t, s.UpsertPresence(context.Background(), store.Presence{UserID: "u1", CanvasID: "c1", ConnectionID: "conn-1", LastHeartbeat: time.Now()}))

	active, err := s.GetActivePresence(context.Background(), "c1", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, s.RemovePresenceByConnection(context.Background(), "conn-1"))
	active, err = s.GetActivePresence(context.Background(), "c1", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestCleanupStalePresence(t *testing.T) {
	s := New()
	require.NoError(t, s.UpsertPresence(context.Background(), store.Presence{UserID: "u1", CanvasID: "c1", LastHeartbeat: time.Now().Add(-time.Hour)}))
	require.NoError(t, s.UpsertPresence(context.Background(), store.Presence{UserID: "u2", CanvasID: "c1", LastHeartbeat: time.Now()}))

	n, err := s.CleanupStalePresence(context.Background(), time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetOrCreateUser_BackfillsAvatarColor(t *testing.T) {
	s := New()
	created, err := s.GetOrCreateUser(context.Background(), store.User{ID: "u1", Username: "alice"})
	require.NoError(t, err)
	assert.Empty(t, created.AvatarColor)

	backfilled, err := s.GetOrCreateUser(context.Background(), store.User{ID: "u1", AvatarColor: "#39FF14"})
	require.NoError(t, err)
	assert.Equal(t, "#39FF14", backfilled.AvatarColor)
}
