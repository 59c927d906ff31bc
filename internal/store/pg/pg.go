// Package pg implements store.CanvasStore against Postgres via pgx/v5.
// It is the production-grade CanvasStore capability named in spec.md §6;
// internal/store/memstore is the in-memory alternative used by hub tests
// and by dev mode, neither of which needs a database.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/odin-collab/canvas-ws-hub/internal/store"
)

// Store is a CanvasStore backed by a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Open connects to Postgres and returns a ready Store. Callers are
// responsible for calling Close on shutdown.
func Open(ctx context.Context, dsn string, logger zerolog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) CheckAccess(ctx context.Context, canvasID, userID string) (bool, error) {
	const q = `
		SELECT TRUE
		FROM canvases c
		WHERE c.id = $1
		  AND c.is_deleted = FALSE
		  AND (c.is_public = TRUE OR c.owner_id = $2
		       OR EXISTS (SELECT 1 FROM canvas_collaborators cc WHERE cc.canvas_id = c.id AND cc.user_id = $2))`
	var ok bool
	err := s.pool.QueryRow(ctx, q, canvasID, userID).Scan(&ok)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check access: %w", err)
	}
	return ok, nil
}

func (s *Store) FindCanvasByID(ctx context.Context, id string) (*store.Canvas, error) {
	const q = `
		SELECT id, owner_id, name, is_public, background_color,
		       viewport_x, viewport_y, viewport_zoom, grid_enabled, grid_size,
		       is_deleted, created_at, updated_at
		FROM canvases WHERE id = $1 AND is_deleted = FALSE`
	row := s.pool.QueryRow(ctx, q, id)
	c := &store.Canvas{}
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.IsPublic, &c.BackgroundColor,
		&c.ViewportX, &c.ViewportY, &c.ViewportZoom, &c.GridEnabled, &c.GridSize,
		&c.IsDeleted, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("canvas not found: %s", id)
		}
		return nil, fmt.Errorf("find canvas: %w", err)
	}
	return c, nil
}

func (s *Store) UpdateCanvas(ctx context.Context, id string, fields store.CanvasUpdateFields) (*store.Canvas, error) {
	if fields.BackgroundColor != nil {
		const q = `UPDATE canvases SET background_color = $2, updated_at = now() WHERE id = $1`
		if _, err := s.pool.Exec(ctx, q, id, *fields.BackgroundColor); err != nil {
			return nil, fmt.Errorf("update canvas: %w", err)
		}
	}
	return s.FindCanvasByID(ctx, id)
}

func scanShape(row pgx.Row) (*store.Shape, error) {
	sh := &store.Shape{}
	if err := row.Scan(&sh.ID, &sh.CanvasID, &sh.Type, &sh.X, &sh.Y, &sh.Width, &sh.Height,
		&sh.Radius, &sh.Rotation, &sh.Color, &sh.StrokeColor, &sh.StrokeWidth, &sh.BorderRadius,
		&sh.Opacity, &sh.TextContent, &sh.FontSize, &sh.FontFamily, &sh.ZIndex, &sh.IsVisible,
		&sh.IsDeleted, &sh.LockedAt, &sh.LockedBy, &sh.CreatedBy, &sh.LastModifiedBy,
		&sh.CreatedAt, &sh.UpdatedAt); err != nil {
		return nil, err
	}
	return sh, nil
}

const shapeColumns = `id, canvas_id, type, x, y, width, height, radius, rotation, color,
	stroke_color, stroke_width, border_radius, opacity, text_content, font_size, font_family,
	z_index, is_visible, is_deleted, locked_at, locked_by, created_by, last_modified_by,
	created_at, updated_at`

func (s *Store) GetShapes(ctx context.Context, canvasID string) ([]*store.Shape, error) {
	q := fmt.Sprintf(`SELECT %s FROM shapes WHERE canvas_id = $1 AND is_deleted = FALSE ORDER BY z_index ASC`, shapeColumns)
	rows, err := s.pool.Query(ctx, q, canvasID)
	if err != nil {
		return nil, fmt.Errorf("get shapes: %w", err)
	}
	defer rows.Close()
	var out []*store.Shape
	for rows.Next() {
		sh, err := scanShape(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shape: %w", err)
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *Store) GetShapesInViewport(ctx context.Context, canvasID string, b store.Bounds, limit int) ([]*store.Shape, error) {
	q := fmt.Sprintf(`SELECT %s FROM shapes
		WHERE canvas_id = $1 AND is_deleted = FALSE
		  AND x BETWEEN $2 AND $3 AND y BETWEEN $4 AND $5
		ORDER BY z_index ASC LIMIT $6`, shapeColumns)
	rows, err := s.pool.Query(ctx, q, canvasID, b.MinX, b.MaxX, b.MinY, b.MaxY, limit)
	if err != nil {
		return nil, fmt.Errorf("get shapes in viewport: %w", err)
	}
	defer rows.Close()
	var out []*store.Shape
	for rows.Next() {
		sh, err := scanShape(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shape: %w", err)
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *Store) GetShapeByID(ctx context.Context, id string) (*store.Shape, error) {
	q := fmt.Sprintf(`SELECT %s FROM shapes WHERE id = $1 AND is_deleted = FALSE`, shapeColumns)
	sh, err := scanShape(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("shape not found: %s", id)
		}
		return nil, fmt.Errorf("get shape: %w", err)
	}
	return sh, nil
}

func (s *Store) CreateShape(ctx context.Context, canvasID, userID string, data store.ShapeCreateData) (*store.Shape, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	zIndex := int64(0)
	if data.ZIndex != nil {
		zIndex = *data.ZIndex
	} else {
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(z_index), -1) + 1 FROM shapes WHERE canvas_id = $1`, canvasID).Scan(&zIndex); err != nil {
			return nil, fmt.Errorf("compute z-index: %w", err)
		}
	}

	opacity := data.Opacity
	if opacity == 0 {
		opacity = 1
	}

	q := fmt.Sprintf(`INSERT INTO shapes (id, canvas_id, type, x, y, width, height, radius,
		rotation, color, stroke_color, stroke_width, border_radius, opacity, text_content,
		font_size, font_family, z_index, is_visible, created_by, last_modified_by, created_at, updated_at)
		VALUES (COALESCE(NULLIF($1,''), gen_random_uuid()::text), $2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,TRUE,$19,$19,now(),now())
		RETURNING %s`, shapeColumns)

	row := tx.QueryRow(ctx, q, data.ID, canvasID, data.Type, data.X, data.Y, data.Width, data.Height,
		data.Radius, data.Rotation, data.Color, data.StrokeColor, data.StrokeWidth, data.BorderRadius,
		opacity, data.TextContent, data.FontSize, data.FontFamily, zIndex, userID)

	sh, err := scanShape(row)
	if err != nil {
		return nil, fmt.Errorf("create shape: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create shape: %w", err)
	}
	return sh, nil
}

// buildShapeUpdateSQL assembles a dynamic SET clause for the provided
// ShapeUpdateData. Only touched fields (non-nil pointers) are included.
func buildShapeUpdateSQL(d store.ShapeUpdateData, userID string) (string, []any) {
	set := []string{"last_modified_by = $1", "updated_at = now()"}
	args := []any{userID}
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if d.X != nil {
		add("x", *d.X)
	}
	if d.Y != nil {
		add("y", *d.Y)
	}
	if d.Width != nil {
		add("width", *d.Width)
	}
	if d.Height != nil {
		add("height", *d.Height)
	}
	if d.Radius != nil {
		add("radius", *d.Radius)
	}
	if d.Rotation != nil {
		add("rotation", *d.Rotation)
	}
	if d.Color != nil {
		add("color", *d.Color)
	}
	if d.StrokeColor != nil {
		add("stroke_color", *d.StrokeColor)
	}
	if d.StrokeWidth != nil {
		add("stroke_width", *d.StrokeWidth)
	}
	if d.BorderRadius != nil {
		add("border_radius", *d.BorderRadius)
	}
	if d.Opacity != nil {
		add("opacity", *d.Opacity)
	}
	if d.TextContent != nil {
		add("text_content", *d.TextContent)
	}
	if d.ZIndex != nil {
		add("z_index", *d.ZIndex)
	}
	if d.IsVisible != nil {
		add("is_visible", *d.IsVisible)
	}
	if d.LockedAt != nil {
		add("locked_at", *d.LockedAt)
	}
	if d.LockedBy != nil {
		add("locked_by", *d.LockedBy)
	}
	return fmt.Sprintf(`UPDATE shapes SET %s WHERE id = $%d AND is_deleted = FALSE RETURNING %s`,
		joinComma(set), len(args)+1, shapeColumns), args
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

func (s *Store) UpdateShape(ctx context.Context, id, userID string, data store.ShapeUpdateData) (*store.Shape, error) {
	q, args := buildShapeUpdateSQL(data, userID)
	args = append(args, id)
	sh, err := scanShape(s.pool.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("shape not found: %s", id)
		}
		return nil, fmt.Errorf("update shape: %w", err)
	}
	return sh, nil
}

func (s *Store) DeleteShape(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE shapes SET is_deleted = TRUE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete shape: %w", err)
	}
	return nil
}

func (s *Store) DeleteShapes(ctx context.Context, ids []string) error {
	_, err := s.pool.Exec(ctx, `UPDATE shapes SET is_deleted = TRUE, updated_at = now() WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("delete shapes: %w", err)
	}
	return nil
}

func (s *Store) BatchUpdateShapes(ctx context.Context, updates map[string]store.ShapeUpdateData, userID string) ([]*store.Shape, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin batch tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var out []*store.Shape
	for id, d := range updates {
		q, args := buildShapeUpdateSQL(d, userID)
		args = append(args, id)
		sh, err := scanShape(tx.QueryRow(ctx, q, args...))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("batch update shape %s: %w", id, err)
		}
		out = append(out, sh)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit batch update: %w", err)
	}
	return out, nil
}

func (s *Store) GetExpiredLocks(ctx context.Context, canvasID string, olderThan time.Time) ([]*store.Shape, error) {
	q := fmt.Sprintf(`SELECT %s FROM shapes
		WHERE canvas_id = $1 AND is_deleted = FALSE AND locked_at IS NOT NULL AND locked_at < $2`, shapeColumns)
	rows, err := s.pool.Query(ctx, q, canvasID, olderThan)
	if err != nil {
		return nil, fmt.Errorf("get expired locks: %w", err)
	}
	defer rows.Close()
	var out []*store.Shape
	for rows.Next() {
		sh, err := scanShape(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired lock: %w", err)
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *Store) UnlockShapesByUser(ctx context.Context, userID, canvasID string) ([]*store.Shape, error) {
	q := fmt.Sprintf(`UPDATE shapes SET locked_at = NULL, locked_by = NULL, updated_at = now()
		WHERE canvas_id = $1 AND locked_by = $2 AND is_deleted = FALSE RETURNING %s`, shapeColumns)
	rows, err := s.pool.Query(ctx, q, canvasID, userID)
	if err != nil {
		return nil, fmt.Errorf("unlock shapes by user: %w", err)
	}
	defer rows.Close()
	var out []*store.Shape
	for rows.Next() {
		sh, err := scanShape(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unlocked shape: %w", err)
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *Store) UpdateLastAccessed(ctx context.Context, canvasID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE canvases SET updated_at = now() WHERE id = $1`, canvasID)
	if err != nil {
		return fmt.Errorf("update last accessed: %w", err)
	}
	return nil
}

func (s *Store) UpsertPresence(ctx context.Context, row store.Presence) error {
	const q = `
		INSERT INTO presence (user_id, canvas_id, cursor_x, cursor_y, viewport_x, viewport_y,
			viewport_zoom, selected_object_ids, color, connection_id, last_heartbeat, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (user_id, canvas_id) DO UPDATE SET
			cursor_x = EXCLUDED.cursor_x, cursor_y = EXCLUDED.cursor_y,
			viewport_x = EXCLUDED.viewport_x, viewport_y = EXCLUDED.viewport_y,
			viewport_zoom = EXCLUDED.viewport_zoom, selected_object_ids = EXCLUDED.selected_object_ids,
			color = EXCLUDED.color, connection_id = EXCLUDED.connection_id,
			last_heartbeat = EXCLUDED.last_heartbeat, is_active = EXCLUDED.is_active`
	_, err := s.pool.Exec(ctx, q, row.UserID, row.CanvasID, row.CursorX, row.CursorY,
		row.ViewportX, row.ViewportY, row.ViewportZoom, row.SelectedObjectIDs, row.Color,
		row.ConnectionID, row.LastHeartbeat, row.IsActive)
	if err != nil {
		return fmt.Errorf("upsert presence: %w", err)
	}
	return nil
}

func (s *Store) RemovePresenceByConnection(ctx context.Context, connectionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM presence WHERE connection_id = $1`, connectionID)
	if err != nil {
		return fmt.Errorf("remove presence: %w", err)
	}
	return nil
}

func (s *Store) GetActivePresence(ctx context.Context, canvasID string, sinceHeartbeat time.Time) ([]*store.Presence, error) {
	const q = `
		SELECT user_id, canvas_id, cursor_x, cursor_y, viewport_x, viewport_y, viewport_zoom,
		       selected_object_ids, color, connection_id, last_heartbeat, is_active
		FROM presence WHERE canvas_id = $1 AND last_heartbeat >= $2`
	rows, err := s.pool.Query(ctx, q, canvasID, sinceHeartbeat)
	if err != nil {
		return nil, fmt.Errorf("get active presence: %w", err)
	}
	defer rows.Close()
	var out []*store.Presence
	for rows.Next() {
		p := &store.Presence{}
		if err := rows.Scan(&p.UserID, &p.CanvasID, &p.CursorX, &p.CursorY, &p.ViewportX,
			&p.ViewportY, &p.ViewportZoom, &p.SelectedObjectIDs, &p.Color, &p.ConnectionID,
			&p.LastHeartbeat, &p.IsActive); err != nil {
			return nil, fmt.Errorf("scan presence: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CleanupStalePresence(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM presence WHERE last_heartbeat < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("cleanup stale presence: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) GetOrCreateUser(ctx context.Context, u store.User) (*store.User, error) {
	const q = `
		INSERT INTO users (id, username, email, display_name, avatar_color, is_online, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,TRUE,now(),now())
		ON CONFLICT (id) DO UPDATE SET
			username = COALESCE(NULLIF(EXCLUDED.username, ''), users.username),
			email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
			display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), users.display_name),
			avatar_color = COALESCE(NULLIF(users.avatar_color, ''), EXCLUDED.avatar_color),
			is_online = TRUE,
			updated_at = now()
		RETURNING id, username, email, display_name, avatar_color, is_online, created_at, updated_at`
	row := s.pool.QueryRow(ctx, q, u.ID, u.Username, u.Email, u.DisplayName, u.AvatarColor)
	out := &store.User{}
	if err := row.Scan(&out.ID, &out.Username, &out.Email, &out.DisplayName, &out.AvatarColor,
		&out.IsOnline, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, fmt.Errorf("get or create user: %w", err)
	}
	return out, nil
}

func (s *Store) SetUserOnline(ctx context.Context, userID string, online bool) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET is_online = $2, updated_at = now() WHERE id = $1`, userID, online)
	if err != nil {
		return fmt.Errorf("set user online: %w", err)
	}
	return nil
}

var _ store.CanvasStore = (*Store)(nil)
