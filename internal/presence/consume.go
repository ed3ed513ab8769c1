package presence

import (
	"context"
	"errors"

	"github.com/streamspace/presence/internal/bus"
	"github.com/streamspace/presence/internal/logger"
)

// ConsumeLoop reads presence events from consumer until ctx is cancelled,
// applying the consume protocol to each one: self-published events are
// skipped, events for vnodes this node doesn't own are skipped, and
// surviving events update the local onlineUsers view and (if the affected
// user has a local session) push a status_update frame to it.
//
// Every presence node runs its own consumer group, so every node sees
// every event; filtering here is what keeps a node from acting on events
// for users it doesn't own.
func (h *Hub) ConsumeLoop(ctx context.Context, consumer *bus.Consumer) {
	log := logger.Bus()
	for {
		evt, err := consumer.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Warn().Err(err).Msg("failed to read presence event, continuing")
			continue
		}

		h.handleEvent(evt)
	}
}

func (h *Hub) handleEvent(evt bus.Event) {
	if evt.SourceNodeID == h.nodeID {
		return
	}

	v := h.vnodeFor(evt.UserID)
	if !h.OwnsVnode(v) {
		return
	}

	h.applyRemoteEvent(evt.UserID, v, evt.Action)
	h.pushStatusUpdate(evt.UserID, string(evt.Action), evt.SourceNodeID)
}
