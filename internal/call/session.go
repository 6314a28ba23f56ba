package call

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"secureconnect-client/internal/domain"
	apperrors "secureconnect-client/pkg/errors"
	"secureconnect-client/pkg/logger"
)

// Session is the authoritative phase tracker for one call attempt. It is the
// only component permitted to mutate the phase, and every mutation happens
// under its lock, so transitions never interleave.
type Session struct {
	mu   sync.Mutex
	data domain.CallSession

	// ringTimer covers the DIALING/RINGING window: the caller's no-answer
	// timeout or the callee's slightly longer local ring timeout.
	ringTimer *time.Timer
}

// NewSession creates a session in IDLE.
func NewSession(conversationID uuid.UUID, isGroup bool, role domain.Role, mode domain.MediaMode) *Session {
	return &Session{
		data: *domain.NewCallSession(conversationID, isGroup, role, mode),
	}
}

// Snapshot returns a copy of the session state for observers.
func (s *Session) Snapshot() domain.CallSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Phase returns the current phase.
func (s *Session) Phase() domain.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Phase
}

// Matches reports whether an event for conversationID belongs to this
// session. Mismatched events are stale cross-talk and must be ignored.
func (s *Session) Matches(conversationID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ConversationID == conversationID
}

// Transition moves the session to next if the phase graph allows it.
// Terminal phases are immutable: any transition attempt on a terminal
// session returns InvalidState, which callers treat as a stale event.
// ConnectedAt is stamped exactly once, on entry into CONNECTED.
func (s *Session) Transition(next domain.Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(next)
}

func (s *Session) transitionLocked(next domain.Phase) error {
	from := s.data.Phase
	if from.Terminal() {
		return apperrors.InvalidStateError("session is terminal")
	}
	if !from.CanTransition(next) {
		return apperrors.InvalidStateError(string(from) + " cannot transition to " + string(next))
	}

	s.data.Phase = next
	if next == domain.PhaseConnected && s.data.ConnectedAt == nil {
		now := time.Now()
		s.data.ConnectedAt = &now
	}

	// Any move out of the ring window disarms its timer, so a stale expiry
	// can never cancel a call that already progressed.
	if from == domain.PhaseDialing || from == domain.PhaseRinging {
		s.clearRingTimerLocked()
	}
	if next.Terminal() {
		s.clearRingTimerLocked()
	}

	logger.Debug("call phase transition",
		zap.String("conversation_id", s.data.ConversationID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(next)))
	return nil
}

// ArmRingTimer starts the ring-window timer. fire runs only if the session is
// still in DIALING or RINGING when the timer expires and the move to CANCELLED
// succeeded, so the caller emits its cancel signal exactly once.
func (s *Session) ArmRingTimer(d time.Duration, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearRingTimerLocked()
	s.ringTimer = time.AfterFunc(d, func() {
		s.mu.Lock()
		phase := s.data.Phase
		if phase != domain.PhaseDialing && phase != domain.PhaseRinging {
			s.mu.Unlock()
			return
		}
		err := s.transitionLocked(domain.PhaseCancelled)
		s.mu.Unlock()
		if err == nil {
			fire()
		}
	})
}

func (s *Session) clearRingTimerLocked() {
	if s.ringTimer != nil {
		s.ringTimer.Stop()
		s.ringTimer = nil
	}
}

// DowngradeToAudio drops a video call to audio after a recoverable engine
// failure. Only meaningful while media is being established.
func (s *Session) DowngradeToAudio() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.MediaMode != domain.MediaModeVideo {
		return false
	}
	if s.data.Phase != domain.PhaseMediaConnecting && s.data.Phase != domain.PhaseAccepted {
		return false
	}
	s.data.MediaMode = domain.MediaModeAudio
	logger.Info("call downgraded to audio",
		zap.String("conversation_id", s.data.ConversationID.String()))
	return true
}

// SetSignalingOnly marks the session as connected without media streams.
func (s *Session) SetSignalingOnly() {
	s.mu.Lock()
	s.data.SignalingOnly = true
	s.mu.Unlock()
}

// SetRemoteParty fills in counterpart display data from signaling or the
// conversation directory.
func (s *Session) SetRemoteParty(p domain.RemoteParty) {
	s.mu.Lock()
	s.data.RemoteParty = p
	s.mu.Unlock()
}
