package hub

import (
	"sync"
	"time"
)

// tokenBucket is a minimal single-token-per-check gate: exactly one token,
// refilled after minGap elapses. Unlike the teacher's burst-capacity
// TokenBucket (internal/single/limits.TokenBucket, sized for REST-style
// burst+sustained limiting), the cursor and shape streams here need a flat
// minimum gap (spec §4.4), so capacity is fixed at 1.
type tokenBucket struct {
	mu       sync.Mutex
	lastFire time.Time
	minGap   time.Duration
}

func newTokenBucket(minGap time.Duration) *tokenBucket {
	return &tokenBucket{minGap: minGap}
}

// allow reports whether minGap has elapsed since the previous allowed call,
// and if so records now as the new baseline.
func (b *tokenBucket) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now.Sub(b.lastFire) < b.minGap {
		return false
	}
	b.lastFire = now
	return true
}

// throttle gates a stream identified by an arbitrary string key (a
// connectionId for cursor moves, or "canvasId|shapeId" for shape updates).
// Entries are created lazily; drop removes a single key and is called at
// disconnect for connection-keyed throttles (spec §4.1 termination: "drop throttle and
// batch bookkeeping for connectionId").
type throttle struct {
	mu      sync.Mutex
	minGap  time.Duration
	buckets map[string]*tokenBucket
}

func newThrottle(minGap time.Duration) *throttle {
	return &throttle{minGap: minGap, buckets: make(map[string]*tokenBucket)}
}

func (t *throttle) allow(key string) bool {
	t.mu.Lock()
	b, ok := t.buckets[key]
	if !ok {
		b = newTokenBucket(t.minGap)
		t.buckets[key] = b
	}
	t.mu.Unlock()
	return b.allow(time.Now())
}

func (t *throttle) drop(key string) {
	t.mu.Lock()
	delete(t.buckets, key)
	t.mu.Unlock()
}

func shapeThrottleKey(canvasID, shapeID string) string {
	return canvasID + "|" + shapeID
}
