package presence

import (
	"context"
	"time"

	"github.com/streamspace/presence/internal/logger"
)

// HeartbeatLoop publishes ownership and load for this node's assigned
// vnodes to the directory every interval, until ctx is cancelled. One
// heartbeat runs immediately on entry. It runs in the background, so a
// caller that must claim its vnodes before accepting connections invokes
// Heartbeat once synchronously first (cmd/node does).
//
// A directory write failure is logged; the next tick retries. There is no
// backoff: the directory is expected to be reachable at steady state, and
// a lapsed lease is self-healing once writes resume (another node may have
// already taken over the vnode by then).
func (h *Hub) HeartbeatLoop(ctx context.Context, interval, ttl time.Duration) {
	h.Heartbeat(ctx, ttl)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Heartbeat(ctx, ttl)
		}
	}
}

// Heartbeat writes the current owners and loads for this node's assigned
// vnodes to the directory, refreshing their TTL.
func (h *Hub) Heartbeat(ctx context.Context, ttl time.Duration) {
	vnodes := h.AssignedVnodes()
	owners := make(map[int]string, len(vnodes))
	for _, v := range vnodes {
		owners[v] = h.nodeID
	}
	loads := h.loadSnapshot()

	if err := h.dir.PutOwners(ctx, owners, ttl); err != nil {
		logger.Presence().Error().Err(err).Msg("heartbeat: failed to refresh vnode ownership")
	}
	if err := h.dir.PutLoads(ctx, loads, ttl); err != nil {
		logger.Presence().Error().Err(err).Msg("heartbeat: failed to refresh vnode load")
	}
}
