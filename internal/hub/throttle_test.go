package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucket_AllowsFirstThenGatesUntilGapElapses(t *testing.T) {
	b := newTokenBucket(25 * time.Millisecond)
	t0 := time.Now()

	assert.True(t, b.allow(t0), "first call should always be allowed")
	assert.False(t, b.allow(t0.Add(10*time.Millisecond)), "within gap should be denied")
	assert.True(t, b.allow(t0.Add(26*time.Millisecond)), "past gap should be allowed")
}

func TestThrottle_KeysAreIndependent(t *testing.T) {
	th := newThrottle(25 * time.Millisecond)

	assert.True(t, th.allow("conn-a"))
	assert.True(t, th.allow("conn-b"), "a different key must not be gated by conn-a's bucket")
	assert.False(t, th.allow("conn-a"))
}

func TestThrottle_DropRemovesBucketState(t *testing.T) {
	th := newThrottle(time.Hour)

	assert.True(t, th.allow("conn-a"))
	assert.False(t, th.allow("conn-a"))

	th.drop("conn-a")

	assert.True(t, th.allow("conn-a"), "dropping the key should reset its gate")
}

func TestShapeThrottleKey(t *testing.T) {
	assert.Equal(t, "canvas-1|shape-1", shapeThrottleKey("canvas-1", "shape-1"))
}
