package call

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"secureconnect-client/internal/domain"
	"secureconnect-client/pkg/logger"
)

func init() {
	logger.InitDefault()
}

func newTestSession(role domain.Role) *Session {
	return NewSession(uuid.New(), false, role, domain.MediaModeVideo)
}

// TestTransitionFollowsGraph tests the happy path through the phase graph
func TestTransitionFollowsGraph(t *testing.T) {
	s := newTestSession(domain.RoleCaller)

	assert.NoError(t, s.Transition(domain.PhaseDialing))
	assert.NoError(t, s.Transition(domain.PhaseRinging))
	assert.NoError(t, s.Transition(domain.PhaseAccepted))
	assert.NoError(t, s.Transition(domain.PhaseMediaConnecting))
	assert.NoError(t, s.Transition(domain.PhaseConnected))
	assert.NoError(t, s.Transition(domain.PhaseEnded))
	assert.Equal(t, domain.PhaseEnded, s.Phase())
}

// TestTransitionRejectsBackwardEdges tests that no transition re-enters an
// earlier phase
func TestTransitionRejectsBackwardEdges(t *testing.T) {
	s := newTestSession(domain.RoleCaller)

	assert.NoError(t, s.Transition(domain.PhaseDialing))
	assert.NoError(t, s.Transition(domain.PhaseRinging))
	assert.Error(t, s.Transition(domain.PhaseDialing))
	assert.Equal(t, domain.PhaseRinging, s.Phase())
}

// TestTerminalPhaseIsImmutable tests that a terminal session ignores all
// further transitions
func TestTerminalPhaseIsImmutable(t *testing.T) {
	s := newTestSession(domain.RoleCallee)

	assert.NoError(t, s.Transition(domain.PhaseRinging))
	assert.NoError(t, s.Transition(domain.PhaseRejected))

	assert.Error(t, s.Transition(domain.PhaseAccepted))
	assert.Error(t, s.Transition(domain.PhaseEnded))
	assert.Error(t, s.Transition(domain.PhaseRejected))
	assert.Equal(t, domain.PhaseRejected, s.Phase())
}

// TestConnectedAtSetExactlyOnce tests the ConnectedAt invariant
func TestConnectedAtSetExactlyOnce(t *testing.T) {
	s := newTestSession(domain.RoleCaller)

	assert.NoError(t, s.Transition(domain.PhaseDialing))
	assert.NoError(t, s.Transition(domain.PhaseRinging))
	assert.NoError(t, s.Transition(domain.PhaseAccepted))
	assert.Nil(t, s.Snapshot().ConnectedAt)

	assert.NoError(t, s.Transition(domain.PhaseConnected))
	first := s.Snapshot().ConnectedAt
	assert.NotNil(t, first)

	// A second entry into CONNECTED is not possible; ConnectedAt stays put.
	assert.Error(t, s.Transition(domain.PhaseConnected))
	assert.Equal(t, first, s.Snapshot().ConnectedAt)
}

// TestRingTimerFires tests that an unanswered session cancels itself
func TestRingTimerFires(t *testing.T) {
	s := newTestSession(domain.RoleCaller)
	assert.NoError(t, s.Transition(domain.PhaseDialing))

	fired := make(chan struct{})
	s.ArmRingTimer(20*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("ring timer did not fire")
	}
	assert.Equal(t, domain.PhaseCancelled, s.Phase())
}

// TestRingTimerClearedOnTransition tests that answering disarms the timer so
// a stale expiry cannot cancel an accepted call
func TestRingTimerClearedOnTransition(t *testing.T) {
	s := newTestSession(domain.RoleCaller)
	assert.NoError(t, s.Transition(domain.PhaseDialing))
	assert.NoError(t, s.Transition(domain.PhaseRinging))

	s.ArmRingTimer(20*time.Millisecond, func() {
		t.Error("timer fired after the session was accepted")
	})
	assert.NoError(t, s.Transition(domain.PhaseAccepted))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, domain.PhaseAccepted, s.Phase())
}

// TestDowngradeToAudio tests the video→audio downgrade guard conditions
func TestDowngradeToAudio(t *testing.T) {
	s := newTestSession(domain.RoleCallee)
	assert.NoError(t, s.Transition(domain.PhaseRinging))

	// Not downgradeable while ringing
	assert.False(t, s.DowngradeToAudio())

	assert.NoError(t, s.Transition(domain.PhaseAccepted))
	assert.NoError(t, s.Transition(domain.PhaseMediaConnecting))
	assert.True(t, s.DowngradeToAudio())
	assert.Equal(t, domain.MediaModeAudio, s.Snapshot().MediaMode)

	// Already audio: nothing left to downgrade
	assert.False(t, s.DowngradeToAudio())
}

// TestMatches tests conversation id gating
func TestMatches(t *testing.T) {
	s := newTestSession(domain.RoleCaller)
	assert.True(t, s.Matches(s.Snapshot().ConversationID))
	assert.False(t, s.Matches(uuid.New()))
}
