package realtime

import "time"

// Per-connection limits. Every duration and count here has a CAMPUS_WS_* override
// except the frame limit.
const (
	// Max bytes per websocket frame read. A message.send at the text limit of
	// 4000 runes fits with room for the envelope.
	maxFrameBytes = 64 << 10 // 64 KiB

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Inbound events per window. Snapshots pushed by the server do not count.
	rateLimitEvents = 60
	rateLimitWindow = 10 * time.Second

	// A client that sends anything other than hello first gets this many
	// hello_required errors before it is disconnected.
	maxPreHelloEnvelopes = 3
)
