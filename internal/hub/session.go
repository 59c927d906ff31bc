package hub

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/odin-collab/canvas-ws-hub/internal/store"
)

// Session is the in-memory record of one live connection (spec §3). It is
// never persisted; it exists strictly between successful admission and
// socket close.
type Session struct {
	ConnectionID string
	UserID       string
	User         *store.User

	conn net.Conn

	// canvasID may change under SWITCH_CANVAS, so it's guarded by a mutex
	// rather than set once at construction.
	canvasMu sync.RWMutex
	canvasID string

	isAlive   int32        // atomic bool
	lastPing  atomic.Int64 // unix nano
	sendFails int32        // atomic, consecutive trySend failures

	send   chan []byte
	seqGen sequenceGenerator
}

func newSession(connectionID, canvasID string, user *store.User, conn net.Conn) *Session {
	s := &Session{
		ConnectionID: connectionID,
		UserID:       user.ID,
		User:         user,
		conn:         conn,
		canvasID:     canvasID,
		send:         make(chan []byte, 256),
	}
	s.setAlive(true)
	return s
}

func (s *Session) CanvasID() string {
	s.canvasMu.RLock()
	defer s.canvasMu.RUnlock()
	return s.canvasID
}

func (s *Session) setCanvasID(id string) {
	s.canvasMu.Lock()
	s.canvasID = id
	s.canvasMu.Unlock()
}

func (s *Session) setAlive(v bool) {
	if v {
		atomic.StoreInt32(&s.isAlive, 1)
	} else {
		atomic.StoreInt32(&s.isAlive, 0)
	}
}

func (s *Session) Alive() bool {
	return atomic.LoadInt32(&s.isAlive) == 1
}

func (s *Session) touchPing() {
	s.lastPing.Store(time.Now().UnixNano())
}

// trySend enqueues a frame for the write pump. It never blocks: a full
// buffer means the client is too slow and the caller should count it as a
// delivery failure.
func (s *Session) trySend(data []byte) bool {
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// sequenceGenerator stamps a monotonically increasing Seq on every envelope
// sent to a given session, so a client can detect gaps. Grounded on the
// teacher's internal/single/messaging.SequenceGenerator.
type sequenceGenerator struct {
	counter int64
}

func (g *sequenceGenerator) next() int64 {
	return atomic.AddInt64(&g.counter, 1)
}
