package hub

import "sync"

// registry maintains the bidirectional mapping connectionId -> Session and
// canvasId -> set<connectionId> (spec §3, §4.3). All mutation is atomic with
// respect to session lifecycle: callers never observe a Session registered
// in one map but not the other.
type registry struct {
	mu          sync.RWMutex
	sessions    map[string]*Session            // connectionId -> Session
	bySubscribe map[string]map[string]struct{} // canvasId -> set<connectionId>
}

func newRegistry() *registry {
	return &registry{
		sessions:    make(map[string]*Session),
		bySubscribe: make(map[string]map[string]struct{}),
	}
}

func (r *registry) add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ConnectionID] = s
	r.subscribeLocked(s.CanvasID(), s.ConnectionID)
}

func (r *registry) remove(connectionID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connectionID]
	if !ok {
		return nil
	}
	delete(r.sessions, connectionID)
	r.unsubscribeLocked(s.CanvasID(), connectionID)
	return s
}

func (r *registry) get(connectionID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[connectionID]
}

// resubscribe moves connectionID's subscription from oldCanvasID to
// newCanvasID, used by SWITCH_CANVAS.
func (r *registry) resubscribe(connectionID, oldCanvasID, newCanvasID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked(oldCanvasID, connectionID)
	r.subscribeLocked(newCanvasID, connectionID)
}

func (r *registry) subscribeLocked(canvasID, connectionID string) {
	set, ok := r.bySubscribe[canvasID]
	if !ok {
		set = make(map[string]struct{})
		r.bySubscribe[canvasID] = set
	}
	set[connectionID] = struct{}{}
}

func (r *registry) unsubscribeLocked(canvasID, connectionID string) {
	set, ok := r.bySubscribe[canvasID]
	if !ok {
		return
	}
	delete(set, connectionID)
	if len(set) == 0 {
		delete(r.bySubscribe, canvasID)
	}
}

// subscribers returns a snapshot slice of sessions subscribed to canvasID.
// Snapshotting under the lock keeps broadcast's hot path free of lock
// contention with store I/O — callers copy, then release, then send.
func (r *registry) subscribers(canvasID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.bySubscribe[canvasID]
	out := make([]*Session, 0, len(set))
	for connID := range set {
		if s, ok := r.sessions[connID]; ok {
			out = append(out, s)
		}
	}
	return out
}

// canvasesWithSubscribers returns every canvasId that currently has at
// least one subscriber, used by the lock sweep (spec §4.5: "for each canvas
// with at least one subscribed connection").
func (r *registry) canvasesWithSubscribers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.bySubscribe))
	for canvasID, set := range r.bySubscribe {
		if len(set) > 0 {
			out = append(out, canvasID)
		}
	}
	return out
}

// sessionsForUser returns every live session belonging to userID, used on
// disconnect to decide whether the user has gone fully offline.
func (r *registry) sessionsForUser(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out
}

func (r *registry) all() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
