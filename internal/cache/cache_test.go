package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odin-collab/canvas-ws-hub/internal/store"
	"github.com/odin-collab/canvas-ws-hub/internal/store/memstore"
)

func newTestCache(t *testing.T) (*Cache, *memstore.Store) {
	t.Helper()
	backing := memstore.New()
	c := New(backing)
	t.Cleanup(c.Stop)
	return c, backing
}

func TestCache_FindCanvasByID_CachesAfterFirstRead(t *testing.T) {
	c, backing := newTestCache(t)
	backing.SeedCanvas(&store.Canvas{ID: "c1", Name: "original", IsPublic: true})

	first, err := c.FindCanvasByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "original", first.Name)

	// Mutate the backing store directly; a cached read should not see it.
	backing.SeedCanvas(&store.Canvas{ID: "c1", Name: "changed", IsPublic: true})
	second, err := c.FindCanvasByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "original", second.Name, "a warm cache entry should be served instead of re-reading the backing store")
}

func TestCache_UpdateCanvas_RefreshesCacheEntry(t *testing.T) {
	c, backing := newTestCache(t)
	backing.SeedCanvas(&store.Canvas{ID: "c1", BackgroundColor: "#fff", IsPublic: true})
	_, err := c.FindCanvasByID(context.Background(), "c1")
	require.NoError(t, err)

	newColor := "#000"
	_, err = c.UpdateCanvas(context.Background(), "c1", store.CanvasUpdateFields{BackgroundColor: &newColor})
	require.NoError(t, err)

	refreshed, err := c.FindCanvasByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "#000", refreshed.BackgroundColor)
}

func TestCache_CreateShape_InvalidatesShapeList(t *testing.T) {
	c, backing := newTestCache(t)
	backing.SeedCanvas(&store.Canvas{ID: "c1", IsPublic: true})

	shapes, err := c.GetShapes(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, shapes)

	_, err = c.CreateShape(context.Background(), "c1", "u1", store.ShapeCreateData{Type: store.ShapeRectangle})
	require.NoError(t, err)

	shapes, err = c.GetShapes(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, shapes, 1, "creating a shape must invalidate the cached shape list for its canvas")
}

func TestCache_UpdateShape_InvalidatesShapeListAndShapeCache(t *testing.T) {
	c, backing := newTestCache(t)
	backing.SeedCanvas(&store.Canvas{ID: "c1", IsPublic: true})
	created, err := c.CreateShape(context.Background(), "c1", "u1", store.ShapeCreateData{Type: store.ShapeRectangle, X: 1})
	require.NoError(t, err)

	_, err = c.GetShapeByID(context.Background(), created.ID)
	require.NoError(t, err)

	newX := 42.0
	_, err = c.UpdateShape(context.Background(), created.ID, "u2", store.ShapeUpdateData{X: &newX})
	require.NoError(t, err)

	refetched, err := c.GetShapeByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, 42.0, refetched.X)
}

func TestCache_DeleteShape_RemovesFromCacheAndList(t *testing.T) {
	c, backing := newTestCache(t)
	backing.SeedCanvas(&store.Canvas{ID: "c1", IsPublic: true})
	created, err := c.CreateShape(context.Background(), "c1", "u1", store.ShapeCreateData{Type: store.ShapeCircle})
	require.NoError(t, err)

	require.NoError(t, c.DeleteShape(context.Background(), created.ID))

	_, err = c.GetShapeByID(context.Background(), created.ID)
	assert.Error(t, err)

	shapes, err := c.GetShapes(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, shapes)
}

func TestCache_BatchUpdateShapes_InvalidatesTouchedCanvases(t *testing.T) {
	c, backing := newTestCache(t)
	backing.SeedCanvas(&store.Canvas{ID: "c1", IsPublic: true})
	sh1, _ := c.CreateShape(context.Background(), "c1", "u1", store.ShapeCreateData{Type: store.ShapeRectangle})
	_, err := c.GetShapes(context.Background(), "c1")
	require.NoError(t, err)

	newY := 7.0
	updated, err := c.BatchUpdateShapes(context.Background(), map[string]store.ShapeUpdateData{sh1.ID: {Y: &newY}}, "u2")
	require.NoError(t, err)
	require.Len(t, updated, 1)

	shapes, err := c.GetShapes(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, shapes, 1)
	assert.Equal(t, 7.0, shapes[0].Y)
}

func TestCache_GetShapesInViewport_PassesThroughWithoutCaching(t *testing.T) {
	c, backing := newTestCache(t)
	backing.SeedCanvas(&store.Canvas{ID: "c1", IsPublic: true})
	_, err := c.CreateShape(context.Background(), "c1", "u1", store.ShapeCreateData{Type: store.ShapeRectangle, X: 5, Y: 5})
	require.NoError(t, err)

	shapes, err := c.GetShapesInViewport(context.Background(), "c1", store.Bounds{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}, 0)
	require.NoError(t, err)
	assert.Len(t, shapes, 1)
}
