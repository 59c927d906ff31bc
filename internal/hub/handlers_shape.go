package hub

import (
	"encoding/json"
	"time"

	"github.com/odin-collab/canvas-ws-hub/internal/metrics"
	"github.com/odin-collab/canvas-ws-hub/internal/store"
	"github.com/odin-collab/canvas-ws-hub/internal/wire"
)

func shapeCreateEnvelope(s *store.Shape) wire.Envelope {
	return wire.Envelope{Type: wire.TypeShapeCreate, Payload: mustMarshal(shapeBrief(s))}
}

// handleShapeCreate implements spec §4.6: validate, persist, broadcast the
// authoritative shape (including a server-assigned ID when the client sent
// none) to every subscriber, the creator included.
func handleShapeCreate(h *Hub, s *Session, env wire.Envelope) {
	var p wire.ShapeCreatePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		h.sendError(s, ErrCodeValidation, "invalid shape payload")
		return
	}

	if err := validateShapeCreate(shapeCreateInput{
		Type:         p.Type,
		X:            p.X,
		Y:            p.Y,
		Width:        p.Width,
		Height:       p.Height,
		Radius:       p.Radius,
		BorderRadius: p.BorderRadius,
		Opacity:      p.Opacity,
		TextContent:  p.TextContent,
		Color:        p.Color,
		StrokeColor:  p.StrokeColor,
	}); err != nil {
		h.sendError(s, ErrCodeValidation, err.Error())
		return
	}

	shapeType, _ := validateShapeType(p.Type)
	opacity := 1.0
	if p.Opacity != nil {
		opacity = *p.Opacity
	}

	canvasID := s.CanvasID()
	ctx, cancel := storeCtx()
	shape, err := h.store.CreateShape(ctx, canvasID, s.UserID, store.ShapeCreateData{
		ID:           p.ID,
		Type:         shapeType,
		X:            p.X,
		Y:            p.Y,
		Width:        p.Width,
		Height:       p.Height,
		Radius:       p.Radius,
		Rotation:     p.Rotation,
		Color:        p.Color,
		StrokeColor:  p.StrokeColor,
		StrokeWidth:  p.StrokeWidth,
		BorderRadius: p.BorderRadius,
		Opacity:      opacity,
		TextContent:  p.TextContent,
		FontSize:     p.FontSize,
		FontFamily:   p.FontFamily,
		ZIndex:       p.ZIndex,
	})
	cancel()
	if err != nil {
		h.sendError(s, ErrCodeInternal, "failed to create shape")
		return
	}

	metrics.ShapesCreatedTotal.Inc()
	h.broadcast(canvasID, shapeCreateEnvelope(shape), "", priorityHigh)
	if h.events != nil {
		h.events.PublishShapeEvent(canvasID, "created", shapeBrief(shape))
	}
}

// handleShapeUpdate implements spec §4.5/§4.6: IsLocked present means this
// is a lock/unlock request and is routed through the lock state machine;
// any other field update must first pass checkMutationAllowed.
func handleShapeUpdate(h *Hub, s *Session, env wire.Envelope) {
	var p wire.ShapeUpdatePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		h.sendError(s, ErrCodeValidation, "invalid update payload")
		return
	}
	var f wire.ShapeUpdateFields
	if err := json.Unmarshal(p.Updates, &f); err != nil {
		h.sendError(s, ErrCodeValidation, "invalid update fields")
		return
	}
	if err := validateShapeUpdateFields(updateFields{
		X: f.X, Y: f.Y, Width: f.Width, Height: f.Height, Radius: f.Radius,
		BorderRadius: f.BorderRadius, Opacity: f.Opacity, TextContent: f.TextContent,
		Color: f.Color, StrokeColor: f.StrokeColor,
	}); err != nil {
		h.sendError(s, ErrCodeValidation, err.Error())
		return
	}

	canvasID := s.CanvasID()

	// Lock/unlock requests bypass the throttle: they're not a continuous
	// stream and dropping one silently would leave a client stuck believing
	// it holds (or doesn't hold) a lock it never actually got an answer for.
	if f.IsLocked == nil && !h.shapeThrottle.allow(shapeThrottleKey(canvasID, p.ShapeID)) {
		metrics.RecordThrottled("shape")
		return
	}

	ctx, cancel := storeCtx()
	defer cancel()

	sh, err := h.store.GetShapeByID(ctx, p.ShapeID)
	if err != nil || sh == nil || sh.CanvasID != canvasID {
		h.sendError(s, ErrCodeNotFound, "shape not found")
		return
	}

	update := buildShapeUpdateData(f)
	now := time.Now()

	if f.IsLocked != nil {
		transition, terr := applyLockTransition(sh, s.UserID, *f.IsLocked, now)
		if terr != nil {
			h.sendError(s, ErrCodeConflict, terr.Error())
			return
		}
		if !transition.changed {
			return
		}
		locked := transition.toShapeUpdateData()
		update.LockedAt = locked.LockedAt
		update.LockedBy = locked.LockedBy
	} else if err := checkMutationAllowed(sh, s.UserID, now); err != nil {
		h.sendError(s, ErrCodeConflict, err.Error())
		return
	}

	updated, err := h.store.UpdateShape(ctx, p.ShapeID, s.UserID, update)
	if err != nil {
		h.sendError(s, ErrCodeInternal, "failed to update shape")
		return
	}

	if f.IsLocked != nil {
		if *f.IsLocked {
			metrics.LocksAcquiredTotal.Inc()
		} else {
			metrics.RecordLockReleased(metrics.LockReleaseExplicit)
		}
	} else {
		metrics.ShapesUpdatedTotal.Inc()
	}

	prio := priorityLow
	if f.IsLocked != nil {
		prio = priorityHigh
	}
	h.broadcast(canvasID, shapeUpdateEnvelope(updated), "", prio)
	if h.events != nil {
		h.events.PublishShapeEvent(canvasID, "updated", shapeBrief(updated))
	}
}

func buildShapeUpdateData(f wire.ShapeUpdateFields) store.ShapeUpdateData {
	d := store.ShapeUpdateData{
		X: f.X, Y: f.Y, Rotation: f.Rotation, Color: f.Color, StrokeColor: f.StrokeColor,
		StrokeWidth: f.StrokeWidth, Opacity: f.Opacity, TextContent: f.TextContent,
		ZIndex: f.ZIndex, IsVisible: f.IsVisible,
	}
	if f.Width != nil {
		d.Width = &f.Width
	}
	if f.Height != nil {
		d.Height = &f.Height
	}
	if f.Radius != nil {
		d.Radius = &f.Radius
	}
	if f.BorderRadius != nil {
		d.BorderRadius = &f.BorderRadius
	}
	return d
}

// handleShapeDelete implements spec §4.6: a locked-by-another-user shape is
// skipped rather than failing the whole request when deleting in bulk.
func handleShapeDelete(h *Hub, s *Session, env wire.Envelope) {
	var p wire.ShapeDeletePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		h.sendError(s, ErrCodeValidation, "invalid delete payload")
		return
	}
	ids := p.ShapeIDs
	if p.ShapeID != "" {
		ids = append(ids, p.ShapeID)
	}
	if len(ids) == 0 {
		h.sendError(s, ErrCodeValidation, "no shapeId(s) given")
		return
	}

	canvasID := s.CanvasID()
	ctx, cancel := storeCtx()
	defer cancel()

	now := time.Now()
	allowed := make([]string, 0, len(ids))
	for _, id := range ids {
		sh, err := h.store.GetShapeByID(ctx, id)
		if err != nil || sh == nil || sh.CanvasID != canvasID {
			continue
		}
		if err := checkMutationAllowed(sh, s.UserID, now); err != nil {
			continue
		}
		allowed = append(allowed, id)
	}
	if len(allowed) == 0 {
		h.sendError(s, ErrCodeConflict, "no shapes could be deleted")
		return
	}

	if err := h.store.DeleteShapes(ctx, allowed); err != nil {
		h.sendError(s, ErrCodeInternal, "failed to delete shapes")
		return
	}

	metrics.ShapesDeletedTotal.Add(float64(len(allowed)))
	h.broadcast(canvasID, wire.Envelope{Type: wire.TypeShapeDelete, Payload: mustMarshal(wire.ShapeDeletePayload{ShapeIDs: allowed})}, "", priorityHigh)
	if h.events != nil {
		for _, id := range allowed {
			h.events.PublishShapeEvent(canvasID, "deleted", id)
		}
	}
}

// handleShapesBatchUpdate implements spec §4.6's bounded batch path:
// entries over maxBatchSize are rejected outright, entries whose shape is
// locked by someone else are silently skipped.
func handleShapesBatchUpdate(h *Hub, s *Session, env wire.Envelope) {
	var p wire.ShapesBatchUpdatePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		h.sendError(s, ErrCodeValidation, "invalid batch payload")
		return
	}
	if len(p.Updates) > maxBatchSize {
		h.sendError(s, ErrCodeBatchTooBig, "batch exceeds maximum size")
		return
	}

	canvasID := s.CanvasID()
	ctx, cancel := storeCtx()
	defer cancel()

	now := time.Now()
	updates := make(map[string]store.ShapeUpdateData, len(p.Updates))
	for _, entry := range p.Updates {
		var f wire.ShapeUpdateFields
		if err := json.Unmarshal(entry.Data, &f); err != nil {
			continue
		}
		if err := validateShapeUpdateFields(updateFields{
			X: f.X, Y: f.Y, Width: f.Width, Height: f.Height, Radius: f.Radius,
			BorderRadius: f.BorderRadius, Opacity: f.Opacity, TextContent: f.TextContent,
			Color: f.Color, StrokeColor: f.StrokeColor,
		}); err != nil {
			continue
		}
		sh, err := h.store.GetShapeByID(ctx, entry.ID)
		if err != nil || sh == nil || sh.CanvasID != canvasID {
			continue
		}
		if err := checkMutationAllowed(sh, s.UserID, now); err != nil {
			continue
		}
		updates[entry.ID] = buildShapeUpdateData(f)
	}
	if len(updates) == 0 {
		return
	}

	updated, err := h.store.BatchUpdateShapes(ctx, updates, s.UserID)
	if err != nil {
		h.sendError(s, ErrCodeInternal, "failed to apply batch update")
		return
	}

	metrics.ShapesUpdatedTotal.Add(float64(len(updated)))
	h.broadcast(canvasID, shapesBatchUpdateEnvelope(updated), "", priorityHigh)
}
