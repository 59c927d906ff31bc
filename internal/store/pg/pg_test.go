package pg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odin-collab/canvas-ws-hub/internal/store"
)

func TestJoinComma(t *testing.T) {
	assert.Equal(t, "", joinComma(nil))
	assert.Equal(t, "a", joinComma([]string{"a"}))
	assert.Equal(t, "a, b, c", joinComma([]string{"a", "b", "c"}))
}

func TestBuildShapeUpdateSQL_OnlyTouchedFieldsAreSet(t *testing.T) {
	x := 5.0
	q, args := buildShapeUpdateSQL(store.ShapeUpdateData{X: &x}, "user-1")

	require.Contains(t, q, "x = $2")
	require.NotContains(t, q, "y = $")
	assert.Equal(t, []any{"user-1", 5.0}, args)
	assert.Contains(t, q, "last_modified_by = $1")
	assert.Contains(t, q, "WHERE id = $3")
}

func TestBuildShapeUpdateSQL_LockTriStateClearEmitsNilArgs(t *testing.T) {
	var nilTime *time.Time
	var nilBy *string
	q, args := buildShapeUpdateSQL(store.ShapeUpdateData{
		LockedAt: &nilTime,
		LockedBy: &nilBy,
	}, "user-1")

	require.Contains(t, q, "locked_at = $2")
	require.Contains(t, q, "locked_by = $3")
	assert.Len(t, args, 3)
	assert.Nil(t, args[1])
	assert.Nil(t, args[2])
}

func TestBuildShapeUpdateSQL_NoFieldsTouchedStillTagsModifier(t *testing.T) {
	q, args := buildShapeUpdateSQL(store.ShapeUpdateData{}, "user-1")

	assert.Equal(t, []any{"user-1"}, args)
	assert.Contains(t, q, "WHERE id = $2")
}
