package hub

import (
	"encoding/json"

	"github.com/odin-collab/canvas-ws-hub/internal/store"
	"github.com/odin-collab/canvas-ws-hub/internal/wire"
)

func userBrief(u *store.User) wire.UserBrief {
	return wire.UserBrief{
		UserID:      u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Color:       u.AvatarColor,
	}
}

func canvasBrief(c *store.Canvas) wire.CanvasBrief {
	return wire.CanvasBrief{
		ID:              c.ID,
		Name:            c.Name,
		BackgroundColor: c.BackgroundColor,
		ViewportX:       c.ViewportX,
		ViewportY:       c.ViewportY,
		ViewportZoom:    c.ViewportZoom,
		GridEnabled:     c.GridEnabled,
		GridSize:        c.GridSize,
	}
}

func shapeBrief(s *store.Shape) wire.ShapeBrief {
	b := wire.ShapeBrief{
		ID:             s.ID,
		Type:           string(s.Type),
		X:              s.X,
		Y:              s.Y,
		Width:          s.Width,
		Height:         s.Height,
		Radius:         s.Radius,
		Rotation:       s.Rotation,
		Color:          s.Color,
		StrokeColor:    s.StrokeColor,
		StrokeWidth:    s.StrokeWidth,
		BorderRadius:   s.BorderRadius,
		Opacity:        s.Opacity,
		TextContent:    s.TextContent,
		FontSize:       s.FontSize,
		FontFamily:     s.FontFamily,
		ZIndex:         s.ZIndex,
		IsVisible:      s.IsVisible,
		IsLocked:       s.Locked(),
		LastModifiedBy: s.LastModifiedBy,
	}
	if s.LockedBy != nil {
		b.LockedBy = *s.LockedBy
	}
	return b
}

func shapeBriefs(shapes []*store.Shape) []wire.ShapeBrief {
	out := make([]wire.ShapeBrief, 0, len(shapes))
	for _, s := range shapes {
		out = append(out, shapeBrief(s))
	}
	return out
}

func mustMarshal(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}

func shapeUpdateEnvelope(s *store.Shape) wire.Envelope {
	return wire.Envelope{
		Type:    wire.TypeShapeUpdate,
		Payload: mustMarshal(wire.ShapeUpdatePayload{ShapeID: s.ID, Updates: mustMarshal(shapeBrief(s))}),
	}
}

func shapesBatchUpdateEnvelope(shapes []*store.Shape) wire.Envelope {
	return wire.Envelope{
		Type:    wire.TypeShapesBatchUpdate,
		Payload: mustMarshal(wire.ShapesBatchUpdatePayload{Shapes: shapeBriefs(shapes)}),
	}
}
