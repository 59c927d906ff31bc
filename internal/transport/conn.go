// Package transport upgrades incoming HTTP requests to raw WebSocket
// connections and moves frames across them. It knows nothing about canvases,
// shapes or sessions — internal/hub owns that. Grounded on the teacher's
// ws/server.go readPump/writePump, ported from gobwas/ws's client/server
// frame helpers.
package transport

import (
	"net"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

const (
	// WriteWait bounds how long a single frame write may block.
	WriteWait = 5 * time.Second

	// PongWait bounds how long the hub waits for a pong (or any client
	// frame) before considering a connection dead.
	PongWait = 30 * time.Second

	// PingPeriod must be comfortably under PongWait so a ping lands before
	// the peer's read deadline expires.
	PingPeriod = (PongWait * 9) / 10
)

// Upgrade promotes an HTTP request to a raw WebSocket connection.
func Upgrade(w http.ResponseWriter, r *http.Request) (net.Conn, error) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	return conn, err
}

// ReadClientFrame reads one frame from the peer, extending the read
// deadline first so a burst of small frames doesn't starve the timeout.
func ReadClientFrame(conn net.Conn) ([]byte, ws.OpCode, error) {
	_ = conn.SetReadDeadline(time.Now().Add(PongWait))
	return wsutil.ReadClientData(conn)
}

// WriteText writes a single text frame to the peer.
func WriteText(conn net.Conn, data []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(WriteWait))
	return wsutil.WriteServerMessage(conn, ws.OpText, data)
}

// WritePing writes a ping frame.
func WritePing(conn net.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(WriteWait))
	return wsutil.WriteServerMessage(conn, ws.OpPing, nil)
}

// Close codes used on the wire (spec §6, §7).
const (
	CloseNormal          = ws.StatusNormalClosure   // 1000
	ClosePolicyViolation = ws.StatusPolicyViolation  // 1008 — auth/authorization failure
	CloseInternalError   = ws.StatusInternalServerError // 1011 — server-side failure
)

// WriteClose sends a close frame with the given status and reason, then
// closes the underlying connection.
func WriteClose(conn net.Conn, status ws.StatusCode, reason string) {
	_ = conn.SetWriteDeadline(time.Now().Add(WriteWait))
	body := ws.NewCloseFrameBody(status, reason)
	_ = ws.WriteFrame(conn, ws.NewCloseFrame(body))
	_ = conn.Close()
}
