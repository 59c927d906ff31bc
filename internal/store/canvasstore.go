package store

import (
	"context"
	"time"
)

// CanvasStore is the durable repository capability the hub consumes (spec
// §6). It is a relational store with soft-deletes; the realtime core never
// issues SQL directly, only calls through this interface, so the hub can be
// exercised against internal/store/memstore in tests without a database.
type CanvasStore interface {
	CheckAccess(ctx context.Context, canvasID, userID string) (bool, error)
	FindCanvasByID(ctx context.Context, id string) (*Canvas, error)
	UpdateCanvas(ctx context.Context, id string, fields CanvasUpdateFields) (*Canvas, error)

	GetShapes(ctx context.Context, canvasID string) ([]*Shape, error)
	GetShapesInViewport(ctx context.Context, canvasID string, bounds Bounds, limit int) ([]*Shape, error)
	GetShapeByID(ctx context.Context, id string) (*Shape, error)
	CreateShape(ctx context.Context, canvasID, userID string, data ShapeCreateData) (*Shape, error)
	UpdateShape(ctx context.Context, id, userID string, data ShapeUpdateData) (*Shape, error)
	DeleteShape(ctx context.Context, id string) error
	DeleteShapes(ctx context.Context, ids []string) error
	BatchUpdateShapes(ctx context.Context, updates map[string]ShapeUpdateData, userID string) ([]*Shape, error)

	GetExpiredLocks(ctx context.Context, canvasID string, olderThan time.Time) ([]*Shape, error)
	UnlockShapesByUser(ctx context.Context, userID, canvasID string) ([]*Shape, error)
	UpdateLastAccessed(ctx context.Context, canvasID string) error

	UpsertPresence(ctx context.Context, row Presence) error
	RemovePresenceByConnection(ctx context.Context, connectionID string) error
	GetActivePresence(ctx context.Context, canvasID string, sinceHeartbeat time.Time) ([]*Presence, error)
	CleanupStalePresence(ctx context.Context, olderThan time.Time) (int, error)

	GetOrCreateUser(ctx context.Context, u User) (*User, error)
	SetUserOnline(ctx context.Context, userID string, online bool) error
}

// CanvasUpdateFields is the whitelisted subset of canvas fields a caller may
// persist via UpdateCanvas (spec §4.8 names {backgroundColor} initially;
// left open here for future whitelist growth without breaking the
// interface).
type CanvasUpdateFields struct {
	BackgroundColor *string
}
