// Package cache wraps store.CanvasStore with bounded TTL caches over canvas
// metadata, per-canvas shape lists, and individual shapes (spec §2 item 3).
// Writes go straight through to the store and invalidate the relevant
// entries; reads are served from cache on a hit.
package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/odin-collab/canvas-ws-hub/internal/store"
)

const (
	canvasTTL    = 30 * time.Second
	shapeListTTL = 2 * time.Second
	shapeTTL     = 2 * time.Second
)

// Cache sits in front of a store.CanvasStore. It implements store.CanvasStore
// itself so handlers can depend on the same interface whether or not a
// cache is in front of it.
type Cache struct {
	backing store.CanvasStore

	canvases   *ttlcache.Cache[string, *store.Canvas]
	shapeLists *ttlcache.Cache[string, []*store.Shape]
	shapes     *ttlcache.Cache[string, *store.Shape]
}

func New(backing store.CanvasStore) *Cache {
	c := &Cache{
		backing:    backing,
		canvases:   ttlcache.New[string, *store.Canvas](ttlcache.WithTTL[string, *store.Canvas](canvasTTL)),
		shapeLists: ttlcache.New[string, []*store.Shape](ttlcache.WithTTL[string, []*store.Shape](shapeListTTL)),
		shapes:     ttlcache.New[string, *store.Shape](ttlcache.WithTTL[string, *store.Shape](shapeTTL)),
	}
	go c.canvases.Start()
	go c.shapeLists.Start()
	go c.shapes.Start()
	return c
}

// Stop halts the background TTL-eviction goroutines. Call on hub shutdown.
func (c *Cache) Stop() {
	c.canvases.Stop()
	c.shapeLists.Stop()
	c.shapes.Stop()
}

func (c *Cache) CheckAccess(ctx context.Context, canvasID, userID string) (bool, error) {
	return c.backing.CheckAccess(ctx, canvasID, userID)
}

func (c *Cache) FindCanvasByID(ctx context.Context, id string) (*store.Canvas, error) {
	if item := c.canvases.Get(id); item != nil {
		return item.Value(), nil
	}
	canvasRow, err := c.backing.FindCanvasByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.canvases.Set(id, canvasRow, ttlcache.DefaultTTL)
	return canvasRow, nil
}

func (c *Cache) UpdateCanvas(ctx context.Context, id string, fields store.CanvasUpdateFields) (*store.Canvas, error) {
	updated, err := c.backing.UpdateCanvas(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	c.canvases.Set(id, updated, ttlcache.DefaultTTL)
	return updated, nil
}

func (c *Cache) GetShapes(ctx context.Context, canvasID string) ([]*store.Shape, error) {
	if item := c.shapeLists.Get(canvasID); item != nil {
		return item.Value(), nil
	}
	shapes, err := c.backing.GetShapes(ctx, canvasID)
	if err != nil {
		return nil, err
	}
	c.shapeLists.Set(canvasID, shapes, ttlcache.DefaultTTL)
	return shapes, nil
}

func (c *Cache) GetShapesInViewport(ctx context.Context, canvasID string, bounds store.Bounds, limit int) ([]*store.Shape, error) {
	// Viewport queries are parameterized by bounds, so caching a per-canvas
	// list doesn't help here; go straight to the store.
	return c.backing.GetShapesInViewport(ctx, canvasID, bounds, limit)
}

func (c *Cache) GetShapeByID(ctx context.Context, id string) (*store.Shape, error) {
	if item := c.shapes.Get(id); item != nil {
		return item.Value(), nil
	}
	sh, err := c.backing.GetShapeByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.shapes.Set(id, sh, ttlcache.DefaultTTL)
	return sh, nil
}

func (c *Cache) CreateShape(ctx context.Context, canvasID, userID string, data store.ShapeCreateData) (*store.Shape, error) {
	sh, err := c.backing.CreateShape(ctx, canvasID, userID, data)
	if err != nil {
		return nil, err
	}
	c.invalidateShapeList(canvasID)
	c.shapes.Set(sh.ID, sh, ttlcache.DefaultTTL)
	return sh, nil
}

func (c *Cache) UpdateShape(ctx context.Context, id, userID string, data store.ShapeUpdateData) (*store.Shape, error) {
	sh, err := c.backing.UpdateShape(ctx, id, userID, data)
	if err != nil {
		return nil, err
	}
	c.shapes.Set(id, sh, ttlcache.DefaultTTL)
	c.invalidateShapeList(sh.CanvasID)
	return sh, nil
}

func (c *Cache) DeleteShape(ctx context.Context, id string) error {
	var canvasID string
	if sh, err := c.backing.GetShapeByID(ctx, id); err == nil {
		canvasID = sh.CanvasID
	}
	if err := c.backing.DeleteShape(ctx, id); err != nil {
		return err
	}
	c.shapes.Delete(id)
	if canvasID != "" {
		c.invalidateShapeList(canvasID)
	}
	return nil
}

func (c *Cache) DeleteShapes(ctx context.Context, ids []string) error {
	canvasesTouched := make(map[string]struct{})
	for _, id := range ids {
		if sh, err := c.backing.GetShapeByID(ctx, id); err == nil {
			canvasesTouched[sh.CanvasID] = struct{}{}
		}
		c.shapes.Delete(id)
	}
	if err := c.backing.DeleteShapes(ctx, ids); err != nil {
		return err
	}
	for canvasID := range canvasesTouched {
		c.invalidateShapeList(canvasID)
	}
	return nil
}

func (c *Cache) BatchUpdateShapes(ctx context.Context, updates map[string]store.ShapeUpdateData, userID string) ([]*store.Shape, error) {
	updatedShapes, err := c.backing.BatchUpdateShapes(ctx, updates, userID)
	if err != nil {
		return nil, err
	}
	canvasesTouched := make(map[string]struct{})
	for _, sh := range updatedShapes {
		c.shapes.Set(sh.ID, sh, ttlcache.DefaultTTL)
		canvasesTouched[sh.CanvasID] = struct{}{}
	}
	for canvasID := range canvasesTouched {
		c.invalidateShapeList(canvasID)
	}
	return updatedShapes, nil
}

func (c *Cache) GetExpiredLocks(ctx context.Context, canvasID string, olderThan time.Time) ([]*store.Shape, error) {
	return c.backing.GetExpiredLocks(ctx, canvasID, olderThan)
}

func (c *Cache) UnlockShapesByUser(ctx context.Context, userID, canvasID string) ([]*store.Shape, error) {
	unlocked, err := c.backing.UnlockShapesByUser(ctx, userID, canvasID)
	if err != nil {
		return nil, err
	}
	if len(unlocked) > 0 {
		c.invalidateShapeList(canvasID)
		for _, sh := range unlocked {
			c.shapes.Set(sh.ID, sh, ttlcache.DefaultTTL)
		}
	}
	return unlocked, nil
}

func (c *Cache) UpdateLastAccessed(ctx context.Context, canvasID string) error {
	return c.backing.UpdateLastAccessed(ctx, canvasID)
}

func (c *Cache) UpsertPresence(ctx context.Context, row store.Presence) error {
	return c.backing.UpsertPresence(ctx, row)
}

func (c *Cache) RemovePresenceByConnection(ctx context.Context, connectionID string) error {
	return c.backing.RemovePresenceByConnection(ctx, connectionID)
}

func (c *Cache) GetActivePresence(ctx context.Context, canvasID string, sinceHeartbeat time.Time) ([]*store.Presence, error) {
	return c.backing.GetActivePresence(ctx, canvasID, sinceHeartbeat)
}

func (c *Cache) CleanupStalePresence(ctx context.Context, olderThan time.Time) (int, error) {
	return c.backing.CleanupStalePresence(ctx, olderThan)
}

func (c *Cache) GetOrCreateUser(ctx context.Context, u store.User) (*store.User, error) {
	return c.backing.GetOrCreateUser(ctx, u)
}

func (c *Cache) SetUserOnline(ctx context.Context, userID string, online bool) error {
	return c.backing.SetUserOnline(ctx, userID, online)
}

func (c *Cache) invalidateShapeList(canvasID string) {
	c.shapeLists.Delete(canvasID)
}

var _ store.CanvasStore = (*Cache)(nil)
