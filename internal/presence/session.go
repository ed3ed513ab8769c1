package presence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/streamspace/presence/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	maxMsgSize = 32 * 1024
)

// serve runs sess's readPump and writePump until the connection closes,
// then runs the disconnect protocol. Blocks until the session ends.
func (h *Hub) serve(ctx context.Context, sess *Session) {
	done := make(chan struct{})
	go h.writePump(sess, done)
	h.readPump(ctx, sess)
	close(done)

	// A session displaced by a newer one for the same user leaves the
	// newer session registered and publishes no offline event.
	if cur, ok := h.sessionFor(sess.userID); ok && cur != sess {
		return
	}
	h.Disconnect(ctx, sess.userID)
}

// writePump drains sess.send to the underlying connection and sends a
// liveness ping every pingInterval, until the send channel is closed.
func (h *Hub) writePump(sess *Session, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-sess.send:
			sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				sess.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sess.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

// readPump decodes client->server frames per the receive protocol: ping is
// answered with pong, anything else is logged and ignored, malformed JSON
// is logged and the loop continues.
func (h *Hub) readPump(ctx context.Context, sess *Session) {
	sess.conn.SetReadLimit(maxMsgSize)
	sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		sess.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}

		var in incomingFrame
		if err := json.Unmarshal(raw, &in); err != nil {
			logger.Presence().Debug().Str("user_id", sess.userID).Msg("malformed frame, ignoring")
			continue
		}

		switch in.Type {
		case FramePing:
			h.sendFrame(sess, PongFrame{Type: FramePong, Timestamp: time.Now().UnixMilli()})
		default:
			logger.Presence().Debug().Str("user_id", sess.userID).Str("frame_type", string(in.Type)).Msg("unrecognized frame, ignoring")
		}
	}
}

// pushStatusUpdate delivers a status_update frame to a locally connected
// client, if one exists.
func (h *Hub) pushStatusUpdate(userID string, action string, sourceNodeID string) {
	sess, ok := h.sessionFor(userID)
	if !ok {
		return
	}
	h.sendFrame(sess, StatusUpdateFrame{
		Type:         FrameStatusUpdate,
		Action:       action,
		Timestamp:    time.Now().UnixMilli(),
		SourceNodeID: sourceNodeID,
	})
}
