package chat

import (
	v1 "lobby/shared/contracts/chat/v1"
)

// Broadcast encodes msg once and queues it for every online session except
// `except` (nil for everyone). It never blocks on a peer: a session whose
// queue is full or that is already closing is closed, and its own cleanup
// unbinds it and announces the departure.
//
// It returns the number of sessions the frame was queued for.
func (h *Hub) Broadcast(msg any, except *Session) int {
	b, err := v1.Encode(msg)
	if err != nil {
		h.log.Error("broadcast.encode.fail", "err", err)
		return 0
	}
	return h.broadcastFrame(b, except)
}

func (h *Hub) broadcastFrame(frame []byte, except *Session) int {
	delivered := 0
	for _, s := range h.registry.Snapshot() {
		if s == except {
			continue
		}
		if s.Enqueue(frame) {
			delivered++
			h.metrics.Deliveries.WithLabelValues("ok").Inc()
			continue
		}

		h.metrics.Deliveries.WithLabelValues("dropped").Inc()
		h.log.Info("broadcast.drop", "session_id", s.ID, "username", s.Username())
		s.Close()
	}
	return delivered
}

// BroadcastUserList sends the current online list to every online session.
func (h *Hub) BroadcastUserList() int {
	return h.Broadcast(v1.NewUserList(h.registry.SnapshotUsernames(), h.now()), nil)
}
