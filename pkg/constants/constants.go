// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Call lifecycle constants
const (
	// NoAnswerTimeout is how long the caller waits in DIALING/RINGING before
	// giving up and cancelling the call
	NoAnswerTimeout = 45 * time.Second

	// CalleeGracePeriod is added on top of NoAnswerTimeout for the callee-side
	// ring timeout, so the callee always outlasts the caller and still resets
	// locally if the cancel signal is lost
	CalleeGracePeriod = 10 * time.Second

	// EngineInitTimeout bounds the media engine initialization step; past it
	// the adapter synthesizes a failure instead of hanging in MEDIA_CONNECTING
	EngineInitTimeout = 15 * time.Second

	// EngineJoinTimeout bounds the room join after a successful initialization
	EngineJoinTimeout = 20 * time.Second
)

// Signaling channel constants
const (
	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 60 * time.Second

	// WebSocketWriteTimeout is the per-message write deadline
	WebSocketWriteTimeout = 10 * time.Second

	// ReconnectBaseDelay is the first retry delay after a transport disconnect
	ReconnectBaseDelay = 500 * time.Millisecond

	// ReconnectMaxDelay caps the exponential backoff between retries
	ReconnectMaxDelay = 30 * time.Second

	// ReconnectMaxAttempts bounds one reconnect cycle; afterwards the channel
	// stays down until Connect is called again
	ReconnectMaxAttempts = 8

	// EmitBufferSize is the outbound message queue length per connection
	EmitBufferSize = 256
)

// Control surface constants
const (
	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 10 * time.Second

	// ControlReadTimeout / ControlWriteTimeout guard the local HTTP listener
	ControlReadTimeout  = 5 * time.Second
	ControlWriteTimeout = 10 * time.Second
)

// Directory constants
const (
	// DirectoryRequestTimeout bounds member lookups against the REST API
	DirectoryRequestTimeout = 10 * time.Second
)
