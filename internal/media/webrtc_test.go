package media

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secureconnect-client/internal/domain"
	"secureconnect-client/pkg/logger"
)

func init() {
	logger.InitDefault()
}

func audioProfile() Profile {
	return Profile{Mode: domain.MediaModeAudio, LocalIdentity: "alice"}
}

// TestInitializeAndPublish tests the happy path: a peer connection comes up
// offline and local tracks attach to it
func TestInitializeAndPublish(t *testing.T) {
	e := NewWebRTCEngine(WebRTCOptions{InitTimeout: 5 * time.Second})
	defer e.Teardown()

	require.NoError(t, e.Initialize(context.Background(), audioProfile()))
	require.NoError(t, e.PublishLocalStream())

	require.NotNil(t, e.audioSender)
	assert.NotNil(t, e.audioSender.Track())
	assert.Nil(t, e.videoSender, "audio call must not publish video")
}

// TestToggleMicrophoneSwapsTrack tests that muting detaches the sender's
// track and unmuting re-attaches it
func TestToggleMicrophoneSwapsTrack(t *testing.T) {
	e := NewWebRTCEngine(WebRTCOptions{InitTimeout: 5 * time.Second})
	defer e.Teardown()

	require.NoError(t, e.Initialize(context.Background(), audioProfile()))
	require.NoError(t, e.PublishLocalStream())

	e.ToggleMicrophone(false)
	assert.Nil(t, e.audioSender.Track())

	e.ToggleMicrophone(true)
	assert.NotNil(t, e.audioSender.Track())
}

// TestVideoCallPublishesBothTracks tests video-mode publish
func TestVideoCallPublishesBothTracks(t *testing.T) {
	e := NewWebRTCEngine(WebRTCOptions{InitTimeout: 5 * time.Second})
	defer e.Teardown()

	require.NoError(t, e.Initialize(context.Background(),
		Profile{Mode: domain.MediaModeVideo, LocalIdentity: "alice"}))
	require.NoError(t, e.PublishLocalStream())

	require.NotNil(t, e.audioSender)
	require.NotNil(t, e.videoSender)

	e.ToggleCamera(false)
	assert.Nil(t, e.videoSender.Track())
	assert.NotNil(t, e.audioSender.Track(), "camera toggle must not touch audio")
}

// TestInitializeTimeout tests that a stalled builder yields ErrInitTimeout
// and that the late peer connection is still released
func TestInitializeTimeout(t *testing.T) {
	e := NewWebRTCEngine(WebRTCOptions{InitTimeout: 20 * time.Millisecond})
	defer e.Teardown()

	built := make(chan *webrtc.PeerConnection, 1)
	e.build = func(Profile) (*webrtc.PeerConnection, error) {
		time.Sleep(100 * time.Millisecond)
		pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
		if err != nil {
			return nil, err
		}
		built <- pc
		return pc, nil
	}

	err := e.Initialize(context.Background(), audioProfile())
	require.ErrorIs(t, err, ErrInitTimeout)

	// The abandoned build's connection must end up closed
	pc := <-built
	require.Eventually(t, func() bool {
		return pc.ConnectionState() == webrtc.PeerConnectionStateClosed
	}, 2*time.Second, 10*time.Millisecond, "late peer connection never released")
}

// TestInitializeUnavailable tests that an outright build failure is reported
// as the recoverable taxonomy
func TestInitializeUnavailable(t *testing.T) {
	e := NewWebRTCEngine(WebRTCOptions{InitTimeout: time.Second})
	defer e.Teardown()

	e.build = func(Profile) (*webrtc.PeerConnection, error) {
		return nil, errors.New("no capture device")
	}

	err := e.Initialize(context.Background(), audioProfile())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrInitTimeout)
}

// TestSignalingOnlyNoops tests that media operations degrade to no-ops
func TestSignalingOnlyNoops(t *testing.T) {
	e := NewWebRTCEngine(WebRTCOptions{})
	defer e.Teardown()

	e.EnterSignalingOnly()
	assert.True(t, e.SignalingOnly())
	assert.NoError(t, e.PublishLocalStream())
	e.ToggleMicrophone(false)
	e.ToggleCamera(false)
	e.SwitchCamera()
}

// TestTeardownIdempotent tests that repeated teardown is safe and closes the
// events channel exactly once
func TestTeardownIdempotent(t *testing.T) {
	e := NewWebRTCEngine(WebRTCOptions{InitTimeout: 5 * time.Second})
	require.NoError(t, e.Initialize(context.Background(), audioProfile()))

	e.Teardown()
	e.Teardown()

	_, open := <-e.Events()
	assert.False(t, open, "events channel must be closed after teardown")

	assert.ErrorIs(t, e.Initialize(context.Background(), audioProfile()), ErrUnavailable)
}

// TestEmitDuringTeardown tests that engine callbacks racing a teardown never
// hit the closed events channel
func TestEmitDuringTeardown(t *testing.T) {
	e := NewWebRTCEngine(WebRTCOptions{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			e.emit(Event{Type: EventReady})
		}
	}()

	e.Teardown()
	wg.Wait()

	for ev := range e.Events() {
		_ = ev
	}
}
