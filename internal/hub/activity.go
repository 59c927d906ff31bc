package hub

import (
	"sync"
	"time"
)

// activityTracker records the last cursor-move time per userId, consulted
// by the lock sweep to avoid releasing a lock whose holder is still
// actively working (spec §4.5, §4.7).
type activityTracker struct {
	mu   sync.RWMutex
	last map[string]time.Time
}

func newActivityTracker() *activityTracker {
	return &activityTracker{last: make(map[string]time.Time)}
}

func (a *activityTracker) touch(userID string) {
	a.mu.Lock()
	a.last[userID] = time.Now()
	a.mu.Unlock()
}

func (a *activityTracker) lastActive(userID string) (time.Time, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.last[userID]
	return t, ok
}

func (a *activityTracker) drop(userID string) {
	a.mu.Lock()
	delete(a.last, userID)
	a.mu.Unlock()
}
