// Package memstore is an in-memory CanvasStore used by hub tests. It is not
// meant for production; internal/store/pg is the durable implementation.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/odin-collab/canvas-ws-hub/internal/store"
)

type Store struct {
	mu sync.RWMutex

	canvases map[string]*store.Canvas
	shapes   map[string]*store.Shape
	presence map[string]*store.Presence // key: userID+"|"+canvasID
	users    map[string]*store.User
	access   map[string]map[string]bool // canvasID -> userID -> allowed

	nextShapeID int64
}

func New() *Store {
	return &Store{
		canvases: make(map[string]*store.Canvas),
		shapes:   make(map[string]*store.Shape),
		presence: make(map[string]*store.Presence),
		users:    make(map[string]*store.User),
		access:   make(map[string]map[string]bool),
	}
}

// SeedCanvas installs a canvas and its access list for test setup.
func (s *Store) SeedCanvas(c *store.Canvas, allowedUsers ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canvases[c.ID] = c
	allowed := make(map[string]bool, len(allowedUsers))
	for _, u := range allowedUsers {
		allowed[u] = true
	}
	s.access[c.ID] = allowed
}

func (s *Store) CheckAccess(_ context.Context, canvasID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.canvases[canvasID]
	if !ok || c.IsDeleted {
		return false, nil
	}
	if c.IsPublic || c.OwnerID == userID {
		return true, nil
	}
	allowed := s.access[canvasID]
	return allowed != nil && allowed[userID], nil
}

func (s *Store) FindCanvasByID(_ context.Context, id string) (*store.Canvas, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.canvases[id]
	if !ok || c.IsDeleted {
		return nil, fmt.Errorf("canvas not found: %s", id)
	}
	cp := *c
	return &cp, nil
}

func (s *Store) UpdateCanvas(_ context.Context, id string, fields store.CanvasUpdateFields) (*store.Canvas, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.canvases[id]
	if !ok {
		return nil, fmt.Errorf("canvas not found: %s", id)
	}
	if fields.BackgroundColor != nil {
		c.BackgroundColor = *fields.BackgroundColor
	}
	c.UpdatedAt = time.Now()
	cp := *c
	return &cp, nil
}

func (s *Store) GetShapes(_ context.Context, canvasID string) ([]*store.Shape, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*store.Shape
	for _, sh := range s.shapes {
		if sh.CanvasID == canvasID && !sh.IsDeleted {
			cp := *sh
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ZIndex < out[j].ZIndex })
	return out, nil
}

func (s *Store) GetShapesInViewport(ctx context.Context, canvasID string, b store.Bounds, limit int) ([]*store.Shape, error) {
	all, err := s.GetShapes(ctx, canvasID)
	if err != nil {
		return nil, err
	}
	var out []*store.Shape
	for _, sh := range all {
		if sh.X >= b.MinX && sh.X <= b.MaxX && sh.Y >= b.MinY && sh.Y <= b.MaxY {
			out = append(out, sh)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) GetShapeByID(_ context.Context, id string) (*store.Shape, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shapes[id]
	if !ok || sh.IsDeleted {
		return nil, fmt.Errorf("shape not found: %s", id)
	}
	cp := *sh
	return &cp, nil
}

func (s *Store) CreateShape(_ context.Context, canvasID, userID string, data store.ShapeCreateData) (*store.Shape, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := data.ID
	if id == "" {
		s.nextShapeID++
		id = fmt.Sprintf("shape-%d", s.nextShapeID)
	}

	zIndex := int64(0)
	if data.ZIndex != nil {
		zIndex = *data.ZIndex
	} else {
		for _, sh := range s.shapes {
			if sh.CanvasID == canvasID && sh.ZIndex >= zIndex {
				zIndex = sh.ZIndex + 1
			}
		}
	}

	now := time.Now()
	opacity := data.Opacity
	if opacity == 0 {
		opacity = 1
	}
	sh := &store.Shape{
		ID:             id,
		CanvasID:       canvasID,
		Type:           data.Type,
		X:              data.X,
		Y:              data.Y,
		Width:          data.Width,
		Height:         data.Height,
		Radius:         data.Radius,
		Rotation:       data.Rotation,
		Color:          data.Color,
		StrokeColor:    data.StrokeColor,
		StrokeWidth:    data.StrokeWidth,
		BorderRadius:   data.BorderRadius,
		Opacity:        opacity,
		TextContent:    data.TextContent,
		FontSize:       data.FontSize,
		FontFamily:     data.FontFamily,
		ZIndex:         zIndex,
		IsVisible:      true,
		CreatedBy:      userID,
		LastModifiedBy: userID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.shapes[id] = sh
	cp := *sh
	return &cp, nil
}

func applyShapeUpdate(sh *store.Shape, userID string, d store.ShapeUpdateData) {
	if d.X != nil {
		sh.X = *d.X
	}
	if d.Y != nil {
		sh.Y = *d.Y
	}
	if d.Width != nil {
		sh.Width = *d.Width
	}
	if d.Height != nil {
		sh.Height = *d.Height
	}
	if d.Radius != nil {
		sh.Radius = *d.Radius
	}
	if d.Rotation != nil {
		sh.Rotation = *d.Rotation
	}
	if d.Color != nil {
		sh.Color = *d.Color
	}
	if d.StrokeColor != nil {
		sh.StrokeColor = *d.StrokeColor
	}
	if d.StrokeWidth != nil {
		sh.StrokeWidth = *d.StrokeWidth
	}
	if d.BorderRadius != nil {
		sh.BorderRadius = *d.BorderRadius
	}
	if d.Opacity != nil {
		sh.Opacity = *d.Opacity
	}
	if d.TextContent != nil {
		sh.TextContent = *d.TextContent
	}
	if d.ZIndex != nil {
		sh.ZIndex = *d.ZIndex
	}
	if d.IsVisible != nil {
		sh.IsVisible = *d.IsVisible
	}
	if d.LockedAt != nil {
		sh.LockedAt = *d.LockedAt
	}
	if d.LockedBy != nil {
		sh.LockedBy = *d.LockedBy
	}
	sh.LastModifiedBy = userID
	sh.UpdatedAt = time.Now()
}

func (s *Store) UpdateShape(_ context.Context, id, userID string, data store.ShapeUpdateData) (*store.Shape, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shapes[id]
	if !ok || sh.IsDeleted {
		return nil, fmt.Errorf("shape not found: %s", id)
	}
	applyShapeUpdate(sh, userID, data)
	cp := *sh
	return &cp, nil
}

func (s *Store) DeleteShape(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shapes[id]
	if !ok {
		return fmt.Errorf("shape not found: %s", id)
	}
	sh.IsDeleted = true
	sh.UpdatedAt = time.Now()
	return nil
}

func (s *Store) DeleteShapes(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if sh, ok := s.shapes[id]; ok {
			sh.IsDeleted = true
			sh.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (s *Store) BatchUpdateShapes(_ context.Context, updates map[string]store.ShapeUpdateData, userID string) ([]*store.Shape, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Shape
	for id, d := range updates {
		sh, ok := s.shapes[id]
		if !ok || sh.IsDeleted {
			continue
		}
		applyShapeUpdate(sh, userID, d)
		cp := *sh
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) GetExpiredLocks(_ context.Context, canvasID string, olderThan time.Time) ([]*store.Shape, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*store.Shape
	for _, sh := range s.shapes {
		if sh.CanvasID != canvasID || sh.IsDeleted || !sh.Locked() {
			continue
		}
		if sh.LockedAt.Before(olderThan) {
			cp := *sh
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) UnlockShapesByUser(_ context.Context, userID, canvasID string) ([]*store.Shape, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Shape
	for _, sh := range s.shapes {
		if sh.CanvasID != canvasID || sh.IsDeleted || !sh.Locked() {
			continue
		}
		if *sh.LockedBy != userID {
			continue
		}
		sh.LockedAt = nil
		sh.LockedBy = nil
		sh.UpdatedAt = time.Now()
		cp := *sh
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) UpdateLastAccessed(_ context.Context, _ string) error { return nil }

func presenceKey(userID, canvasID string) string { return userID + "|" + canvasID }

func (s *Store) UpsertPresence(_ context.Context, row store.Presence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := row
	s.presence[presenceKey(row.UserID, row.CanvasID)] = &cp
	return nil
}

func (s *Store) RemovePresenceByConnection(_ context.Context, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, p := range s.presence {
		if p.ConnectionID == connectionID {
			delete(s.presence, k)
		}
	}
	return nil
}

func (s *Store) GetActivePresence(_ context.Context, canvasID string, sinceHeartbeat time.Time) ([]*store.Presence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*store.Presence
	for _, p := range s.presence {
		if p.CanvasID == canvasID && !p.LastHeartbeat.Before(sinceHeartbeat) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) CleanupStalePresence(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, p := range s.presence {
		if p.LastHeartbeat.Before(olderThan) {
			delete(s.presence, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) GetOrCreateUser(_ context.Context, u store.User) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.users[u.ID]; ok {
		if u.AvatarColor != "" && existing.AvatarColor == "" {
			existing.AvatarColor = u.AvatarColor
		}
		cp := *existing
		return &cp, nil
	}
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = &u
	cp := u
	return &cp, nil
}

func (s *Store) SetUserOnline(_ context.Context, userID string, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.IsOnline = online
		u.UpdatedAt = time.Now()
	}
	return nil
}

var _ store.CanvasStore = (*Store)(nil)
