package chat

import "time"

// Transport limits and defaults.
const (
	// Max bytes per inbound frame (one JSON envelope), excluding the newline.
	defaultMaxFrameBytes = 64 << 10 // 64 KiB

	// Max chat content length (runes).
	defaultMaxMessageChars = 4000

	defaultSendQueueSize = 256
	minSendQueueSize     = 16

	defaultWriteTimeout = 5 * time.Second

	// Upper bound for draining queued frames once a session is closing.
	flushTimeout = 1 * time.Second

	// Store calls made during cleanup run detached from the session context.
	storeOpTimeout = 5 * time.Second
)
