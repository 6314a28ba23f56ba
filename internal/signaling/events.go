package signaling

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Call-control event names carried over the signaling channel
const (
	EventCall       = "call"       // offer
	EventAcceptCall = "acceptCall" // callee accepted
	EventRejectCall = "rejectCall" // callee rejected
	EventCancelCall = "cancelCall" // caller gave up before answer
	EventEndCall    = "endCall"    // either side hung up a connected call
	EventJoinCall   = "joinCall"   // room-join notification (group / late join)

	// EventJoinConversation subscribes this connection to a conversation's
	// events on the relay. Membership is not preserved server-side across
	// reconnects, so the channel re-emits it after every redial.
	EventJoinConversation = "joinConversation"
)

// CallType values carried in the offer payload
const (
	CallTypeVideo = "video"
	CallTypeAudio = "audio"
)

// Message is the wire envelope for one signaling event
type Message struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// OfferPayload is the body of a "call" event
type OfferPayload struct {
	Sender         uuid.UUID `json:"sender"`
	SenderName     string    `json:"senderName,omitempty"`
	SenderAvatar   string    `json:"senderAvatar,omitempty"`
	ConversationID uuid.UUID `json:"conversationId"`
	CallType       string    `json:"type"` // "video" or "audio"
	IsGroup        bool      `json:"isGroup"`
}

// ControlPayload is the body of accept/reject/cancel/end/joinCall events
type ControlPayload struct {
	UserID         uuid.UUID `json:"userId"`
	ConversationID uuid.UUID `json:"conversationId"`
	IsGroup        bool      `json:"isGroup,omitempty"`
}

// JoinConversationPayload is the body of a "joinConversation" event
type JoinConversationPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
}
