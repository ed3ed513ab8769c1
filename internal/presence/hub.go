// Package presence implements the Presence Node: the WebSocket-facing half
// of the service that holds live user sessions, keeps a local view of who
// is online for the vnodes it owns, and keeps the shared directory and
// event bus in sync with that view.
//
// A Hub owns a fixed set of assignedVnodes (configured at process start;
// dynamic re-assignment is out of scope). It holds:
//   - clients: the active local sessions, keyed by user id.
//   - onlineUsers: the authoritative local view, one set per owned vnode,
//     populated from both local connects and bus events for owned users.
//
// A single mutex guards both maps. Reads happen on every frame; writes only
// on connect, disconnect, and bus events, so a single lock is adequate at
// the expected session count per node.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/streamspace/presence/internal/bus"
	"github.com/streamspace/presence/internal/directory"
	"github.com/streamspace/presence/internal/logger"
	"github.com/streamspace/presence/internal/ring"
)

// Close codes used by the wire protocol.
const (
	CloseAuthRejected  = 1008
	CloseInternalError = 1011
	CloseShutdown      = 1001
)

// Session is one local WebSocket connection, bound to a single user id.
type Session struct {
	userID    string
	requestID string
	conn      *websocket.Conn
	send      chan []byte

	closeOnce sync.Once
}

func newSession(userID, requestID string, conn *websocket.Conn) *Session {
	return &Session{
		userID:    userID,
		requestID: requestID,
		conn:      conn,
		send:      make(chan []byte, 32),
	}
}

// closeWithCode sends a close control frame (best effort) and tears down
// the connection and send channel. Safe to call more than once.
func (s *Session) closeWithCode(code int, reason string) {
	s.closeOnce.Do(func() {
		deadline := time.Now().Add(2 * time.Second)
		msg := websocket.FormatCloseMessage(code, reason)
		s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		close(s.send)
		s.conn.Close()
	})
}

// Hub holds the presence-node state for one process: its assigned vnodes,
// the locally connected sessions, and the local view of who is online for
// those vnodes.
type Hub struct {
	nodeID         string
	vnodeCount     int
	assignedVnodes map[int]bool

	dir      *directory.Directory
	producer *bus.Producer

	pingInterval time.Duration

	mu          sync.Mutex
	clients     map[string]*Session
	onlineUsers map[int]map[string]bool
}

// New creates a Hub for nodeID, owning the given vnodes out of a ring of
// size vnodeCount.
func New(nodeID string, vnodeCount int, assignedVnodes []int, dir *directory.Directory, producer *bus.Producer, pingInterval time.Duration) *Hub {
	owned := make(map[int]bool, len(assignedVnodes))
	onlineUsers := make(map[int]map[string]bool, len(assignedVnodes))
	for _, v := range assignedVnodes {
		owned[v] = true
		onlineUsers[v] = make(map[string]bool)
	}

	return &Hub{
		nodeID:         nodeID,
		vnodeCount:     vnodeCount,
		assignedVnodes: owned,
		dir:            dir,
		producer:       producer,
		pingInterval:   pingInterval,
		clients:        make(map[string]*Session),
		onlineUsers:    onlineUsers,
	}
}

// OwnsVnode reports whether v is one of this node's assigned vnodes.
func (h *Hub) OwnsVnode(v int) bool {
	return h.assignedVnodes[v]
}

// vnodeFor computes the vnode a user id maps to under this node's ring size.
func (h *Hub) vnodeFor(userID string) int {
	return ring.UserVnode(userID, h.vnodeCount)
}

// AssignedVnodes returns the vnode ids this node owns.
func (h *Hub) AssignedVnodes() []int {
	out := make([]int, 0, len(h.assignedVnodes))
	for v := range h.assignedVnodes {
		out = append(out, v)
	}
	return out
}

// Connect admits a validated session. It closes any prior session for the
// same user before inserting the new one (step 4 of the connect protocol),
// adds the user to its vnode's online set, publishes an "online" event, and
// sends the welcome frame. The caller is expected to have already validated
// the bearer token and confirmed the user's vnode belongs to this node.
// requestID is the correlation id of the inbound HTTP upgrade request, if
// any, and is carried into the session's log lines for the rest of its life.
func (h *Hub) Connect(ctx context.Context, conn *websocket.Conn, userID, requestID string) *Session {
	v := h.vnodeFor(userID)
	sess := newSession(userID, requestID, conn)

	h.mu.Lock()
	if existing, ok := h.clients[userID]; ok {
		h.mu.Unlock()
		existing.closeWithCode(CloseShutdown, "duplicate session")
		h.mu.Lock()
	}
	h.clients[userID] = sess
	h.onlineUsers[v][userID] = true
	h.mu.Unlock()

	if err := h.publish(ctx, userID, bus.ActionOnline); err != nil {
		logger.Presence().Warn().Err(err).Str("user_id", userID).Msg("failed to publish online event")
	}

	welcome := WelcomeFrame{
		Type:      FrameWelcome,
		UserID:    userID,
		NodeID:    h.nodeID,
		Timestamp: time.Now().UnixMilli(),
	}
	h.sendFrame(sess, welcome)

	logger.Presence().Info().Str("user_id", userID).Str("request_id", requestID).Int("vnode", v).Msg("session connected")
	return sess
}

// Disconnect removes userID's session from the local view and publishes an
// "offline" event. Idempotent: calling it twice for the same user (or for a
// user with no session) is a no-op after the first call.
func (h *Hub) Disconnect(ctx context.Context, userID string) {
	v := h.vnodeFor(userID)

	h.mu.Lock()
	sess, existed := h.clients[userID]
	delete(h.clients, userID)
	delete(h.onlineUsers[v], userID)
	h.mu.Unlock()

	if !existed {
		return
	}

	if err := h.publish(ctx, userID, bus.ActionOffline); err != nil {
		logger.Presence().Warn().Err(err).Str("user_id", userID).Msg("failed to publish offline event")
	}

	logger.Presence().Info().Str("user_id", userID).Str("request_id", sess.requestID).Int("vnode", v).Msg("session disconnected")
}

func (h *Hub) publish(ctx context.Context, userID string, action bus.Action) error {
	if h.producer == nil {
		return nil
	}
	return h.producer.Publish(ctx, bus.Event{
		UserID:       userID,
		Action:       action,
		Timestamp:    time.Now().UnixMilli(),
		SourceNodeID: h.nodeID,
	})
}

// sendFrame marshals v and enqueues it on sess's send channel, dropping the
// frame (and logging) if the channel is full: a slow client never blocks
// the caller.
func (h *Hub) sendFrame(sess *Session, v interface{}) {
	payload, err := encodeFrame(v)
	if err != nil {
		logger.Presence().Error().Err(err).Msg("failed to encode outgoing frame")
		return
	}
	select {
	case sess.send <- payload:
	default:
		logger.Presence().Warn().Str("user_id", sess.userID).Msg("send buffer full, dropping frame")
	}
}

// loadSnapshot returns, for each assigned vnode, the count of locally
// online users. Used by the heartbeat loop.
func (h *Hub) loadSnapshot() map[int]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	loads := make(map[int]int, len(h.onlineUsers))
	for v, users := range h.onlineUsers {
		loads[v] = len(users)
	}
	return loads
}

// sessionFor returns the local session for userID, if any.
func (h *Hub) sessionFor(userID string) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sess, ok := h.clients[userID]
	return sess, ok
}

// applyRemoteEvent updates the local onlineUsers view for a user owned by
// this node's vnode, per the consume protocol: online adds, offline
// removes, both idempotently.
func (h *Hub) applyRemoteEvent(userID string, v int, action bus.Action) {
	h.mu.Lock()
	set := h.onlineUsers[v]
	if set == nil {
		set = make(map[string]bool)
		h.onlineUsers[v] = set
	}
	switch action {
	case bus.ActionOnline:
		set[userID] = true
	case bus.ActionOffline:
		delete(set, userID)
	}
	h.mu.Unlock()
}

// CloseAll closes every local session with the shutdown close code. Used
// during graceful shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.clients))
	for _, sess := range h.clients {
		sessions = append(sessions, sess)
	}
	h.mu.Unlock()

	for _, sess := range sessions {
		sess.closeWithCode(CloseShutdown, "server shutting down")
	}
}
