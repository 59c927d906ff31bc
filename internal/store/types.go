// Package store defines the durable data model and the CanvasStore
// capability the realtime hub consumes. The hub treats CanvasStore as an
// external dependency (spec §6) — this package only declares the contract
// and the shapes that flow across it; internal/store/pg implements it
// against Postgres and internal/store/memstore implements it in memory for
// tests.
package store

import "time"

// User is a stable identity record, created on first authenticated
// appearance and never deleted (soft flag only).
type User struct {
	ID          string
	Username    string
	Email       string
	DisplayName string
	AvatarColor string
	IsOnline    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Canvas is a drawing surface.
type Canvas struct {
	ID              string
	OwnerID         string
	Name            string
	IsPublic        bool
	BackgroundColor string
	ViewportX       float64
	ViewportY       float64
	ViewportZoom    float64
	GridEnabled     bool
	GridSize        float64
	IsDeleted       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ShapeType enumerates the drawable primitives a Shape may be.
type ShapeType string

const (
	ShapeRectangle ShapeType = "rectangle"
	ShapeCircle    ShapeType = "circle"
	ShapeText      ShapeType = "text"
	ShapeLine      ShapeType = "line"
	ShapePolygon   ShapeType = "polygon"
	ShapeImage     ShapeType = "image"
)

// Shape is a persisted drawable primitive on a Canvas.
//
// Invariant: (LockedAt == nil) == (LockedBy == nil). Callers must keep both
// fields in lock-step; see internal/hub/locks.go for the only code path
// that is allowed to mutate them.
type Shape struct {
	ID             string
	CanvasID       string
	Type           ShapeType
	X, Y           float64
	Width, Height  *float64
	Radius         *float64
	Rotation       float64
	Color          string
	StrokeColor    string
	StrokeWidth    float64
	BorderRadius   *float64
	Opacity        float64
	TextContent    string
	FontSize       float64
	FontFamily     string
	ZIndex         int64
	IsVisible      bool
	IsDeleted      bool
	LockedAt       *time.Time
	LockedBy       *string
	CreatedBy      string
	LastModifiedBy string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Locked reports whether the shape currently carries lock fields, without
// regard to TTL expiry — callers that care about expiry compare LockedAt
// against time.Now() themselves (see internal/hub/locks.go).
func (s *Shape) Locked() bool {
	return s.LockedAt != nil && s.LockedBy != nil
}

// Bounds is an axis-aligned rectangle used for viewport queries.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// Presence is a per-(user, canvas) liveness row, upserted on admission and
// refreshed on cursor/heartbeat/selection activity.
type Presence struct {
	UserID            string
	CanvasID          string
	CursorX, CursorY  float64
	ViewportX         *float64
	ViewportY         *float64
	ViewportZoom      *float64
	SelectedObjectIDs []string
	Color             string
	ConnectionID      string
	LastHeartbeat     time.Time
	IsActive          bool
}

// ShapeCreateData and ShapeUpdateData are the store-facing mutation
// payloads: already validated and desugared (IsLocked -> LockedAt/LockedBy)
// by the hub before they reach the store.
type ShapeCreateData struct {
	ID           string
	Type         ShapeType
	X, Y         float64
	Width        *float64
	Height       *float64
	Radius       *float64
	Rotation     float64
	Color        string
	StrokeColor  string
	StrokeWidth  float64
	BorderRadius *float64
	Opacity      float64
	TextContent  string
	FontSize     float64
	FontFamily   string
	ZIndex       *int64
}

// ShapeUpdateData carries only the fields being changed; nil means "leave
// unchanged". LockedAt/LockedBy use a tri-state: nil pointer-to-pointer
// means "don't touch locking", a non-nil pointer to a nil value means
// "clear the lock".
type ShapeUpdateData struct {
	X, Y         *float64
	Width        **float64
	Height       **float64
	Radius       **float64
	Rotation     *float64
	Color        *string
	StrokeColor  *string
	StrokeWidth  *float64
	BorderRadius **float64
	Opacity      *float64
	TextContent  *string
	ZIndex       *int64
	IsVisible    *bool
	LockedAt     **time.Time
	LockedBy     **string
}
