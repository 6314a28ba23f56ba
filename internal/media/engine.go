// Package media isolates the real-time media engine so its failure modes
// cannot corrupt the call state machine. The engine is opaque: callers only
// observe the typed events it emits.
package media

import (
	"context"
	"errors"

	"secureconnect-client/internal/domain"
)

// Failure classes the state machine must be able to tell apart.
var (
	// ErrUnavailable means the engine could not be created at all. On a video
	// call this is recoverable by downgrading to audio; on an audio call the
	// session proceeds in signaling-only mode.
	ErrUnavailable = errors.New("media engine unavailable")

	// ErrInitTimeout means the engine exists but initialization stalled past
	// the configured bound. Synthesized by the adapter so the state machine
	// is never stuck in MEDIA_CONNECTING forever.
	ErrInitTimeout = errors.New("media engine initialization timed out")
)

// Profile describes the media session to establish
type Profile struct {
	Mode          domain.MediaMode
	LocalIdentity string // stamped on published streams
}

// EventType identifies an engine-emitted signal
type EventType string

const (
	// EventReady fires once the media transport is established
	EventReady EventType = "ready"
	// EventStreamAdded fires when a remote stream becomes subscribable
	EventStreamAdded EventType = "stream_added"
	// EventStreamRemoved fires when a remote stream goes away
	EventStreamRemoved EventType = "stream_removed"
	// EventFailure fires on a post-initialization engine error
	EventFailure EventType = "failure"
)

// Event is one engine-emitted readiness/failure signal
type Event struct {
	Type     EventType
	StreamID string
	Err      error
}

// Engine is the media session surface consumed by the call orchestrator.
type Engine interface {
	// Initialize prepares the engine for one session. May return
	// ErrUnavailable (outright failure) or ErrInitTimeout (stalled); the two
	// are distinguishable because they drive different recovery paths.
	Initialize(ctx context.Context, profile Profile) error

	// JoinRoom joins the shared room keyed by the conversation id. Both
	// participants must join the same room id for streams to match.
	JoinRoom(ctx context.Context, roomID string, localIdentity string) error

	// PublishLocalStream starts sending local media.
	PublishLocalStream() error

	// SubscribeRemoteStream starts receiving a remote stream. Driven by
	// EventStreamAdded notifications, never polled.
	SubscribeRemoteStream(streamID string) error

	// Runtime controls. No-ops, not errors, in signaling-only mode.
	ToggleMicrophone(enabled bool)
	ToggleCamera(enabled bool)
	SwitchCamera()

	// Teardown stops publishing/subscribing and leaves the room. Idempotent;
	// safe to call from every cleanup path.
	Teardown()

	// EnterSignalingOnly switches to the degraded no-media mode: the call
	// stays up over the control channel and all media operations no-op.
	EnterSignalingOnly()

	// Events exposes engine-emitted signals. Closed on Teardown.
	Events() <-chan Event

	// SignalingOnly reports whether this session runs without media streams.
	SignalingOnly() bool
}
