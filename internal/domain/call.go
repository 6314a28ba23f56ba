package domain

import (
	"time"

	"github.com/google/uuid"
)

// Phase is the lifecycle phase of a call session
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseDialing         Phase = "dialing"
	PhaseRinging         Phase = "ringing"
	PhaseAccepted        Phase = "accepted"
	PhaseMediaConnecting Phase = "media_connecting"
	PhaseConnected       Phase = "connected"
	PhaseEnded           Phase = "ended"
	PhaseRejected        Phase = "rejected"
	PhaseCancelled       Phase = "cancelled"
	PhaseFailed          Phase = "failed"
)

// Terminal reports whether the phase is final. A terminal session never
// changes phase again; late signaling or engine events are treated as stale.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseEnded, PhaseRejected, PhaseCancelled, PhaseFailed:
		return true
	}
	return false
}

// Live reports whether the phase belongs to an in-flight call attempt.
func (p Phase) Live() bool {
	return p != PhaseIdle && !p.Terminal()
}

// transitions is the directed phase graph. A session may only move along
// these edges; everything else is rejected as out of order.
var transitions = map[Phase][]Phase{
	PhaseIdle:            {PhaseDialing, PhaseRinging},
	PhaseDialing:         {PhaseRinging, PhaseCancelled, PhaseFailed},
	PhaseRinging:         {PhaseAccepted, PhaseRejected, PhaseCancelled, PhaseFailed},
	PhaseAccepted:        {PhaseMediaConnecting, PhaseConnected, PhaseEnded, PhaseFailed},
	PhaseMediaConnecting: {PhaseConnected, PhaseEnded, PhaseFailed},
	PhaseConnected:       {PhaseEnded},
}

// CanTransition reports whether moving from p to next follows the phase graph.
func (p Phase) CanTransition(next Phase) bool {
	for _, allowed := range transitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Role identifies which side of the call this client is
type Role string

const (
	RoleCaller Role = "caller"
	RoleCallee Role = "callee"
)

// MediaMode is the negotiated media profile of a call
type MediaMode string

const (
	MediaModeVideo MediaMode = "video"
	MediaModeAudio MediaMode = "audio"
)

// RemoteParty identifies the counterpart of a call for display purposes
type RemoteParty struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
}

// CallSession is the central entity for one call attempt. The call state
// machine is the only component that mutates Phase; everything else reads.
type CallSession struct {
	ConversationID uuid.UUID   `json:"conversation_id"`
	IsGroup        bool        `json:"is_group"`
	Role           Role        `json:"role"`
	Phase          Phase       `json:"phase"`
	MediaMode      MediaMode   `json:"media_mode"`
	RemoteParty    RemoteParty `json:"remote_party"`
	StartedAt      time.Time   `json:"started_at"`
	ConnectedAt    *time.Time  `json:"connected_at,omitempty"`
	// SignalingOnly marks a connected call with no media streams: the engine
	// was unavailable and the call proceeds over the control channel alone.
	SignalingOnly bool `json:"signaling_only,omitempty"`
}

// NewCallSession creates a session in IDLE for the given conversation.
func NewCallSession(conversationID uuid.UUID, isGroup bool, role Role, mode MediaMode) *CallSession {
	return &CallSession{
		ConversationID: conversationID,
		IsGroup:        isGroup,
		Role:           role,
		Phase:          PhaseIdle,
		MediaMode:      mode,
		StartedAt:      time.Now(),
	}
}

// Duration returns the connected time of the call, zero before CONNECTED.
func (s *CallSession) Duration() time.Duration {
	if s.ConnectedAt == nil {
		return 0
	}
	return time.Since(*s.ConnectedAt)
}
