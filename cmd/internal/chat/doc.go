// Package chat is the lobby's real-time core: sessions, presence and fanout.
//
// A Listener (TCP, newline-delimited JSON) or the WSGateway (WebSocket, one
// envelope per message) hands each connection to the Hub. The Hub runs one
// Session per connection: a read loop that applies the protocol state machine
// and a writer goroutine draining a bounded queue. Authenticated sessions are
// bound by username in the Registry; Broadcast snapshots the Registry and
// queues frames without blocking on any peer.
package chat
