package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"secureconnect-client/internal/domain"
	"secureconnect-client/pkg/logger"
	"secureconnect-client/pkg/metrics"
)

// WebRTCOptions configures the Pion-backed engine
type WebRTCOptions struct {
	// GatewayURL is the media gateway endpoint that answers room-join offers
	GatewayURL string
	// STUNServers for ICE gathering
	STUNServers []string
	// InitTimeout bounds Initialize; past it the engine synthesizes a failure
	InitTimeout time.Duration
	// JoinTimeout bounds the room-join SDP exchange
	JoinTimeout time.Duration
}

// WebRTCEngine is the Pion implementation of Engine. One instance serves one
// call session; a new session gets a new engine.
type WebRTCEngine struct {
	opts  WebRTCOptions
	http  *http.Client
	build func(Profile) (*webrtc.PeerConnection, error)

	mu            sync.Mutex
	pc            *webrtc.PeerConnection
	profile       Profile
	localAudio    *webrtc.TrackLocalStaticRTP
	localVideo    *webrtc.TrackLocalStaticRTP
	audioSender   *webrtc.RTPSender
	videoSender   *webrtc.RTPSender
	micEnabled    bool
	cameraEnabled bool
	signalingOnly bool
	tornDown      bool

	events chan Event
}

// NewWebRTCEngine creates an unconnected engine for one session.
func NewWebRTCEngine(opts WebRTCOptions) *WebRTCEngine {
	e := &WebRTCEngine{
		opts:          opts,
		http:          &http.Client{Timeout: opts.JoinTimeout},
		micEnabled:    true,
		cameraEnabled: true,
		events:        make(chan Event, 16),
	}
	e.build = e.buildPeerConnection
	return e
}

// Initialize builds the peer connection under the configured deadline. The
// build runs on its own goroutine so a stalled engine import cannot hang the
// caller: past InitTimeout a failure is synthesized instead.
func (e *WebRTCEngine) Initialize(ctx context.Context, profile Profile) error {
	e.mu.Lock()
	if e.tornDown {
		e.mu.Unlock()
		return ErrUnavailable
	}
	e.profile = profile
	e.cameraEnabled = profile.Mode == domain.MediaModeVideo
	e.mu.Unlock()

	type result struct {
		pc  *webrtc.PeerConnection
		err error
	}
	done := make(chan result, 1)
	go func() {
		pc, err := e.build(profile)
		done <- result{pc, err}
	}()

	// The build goroutine may still complete after the caller gives up; its
	// peer connection holds ICE sockets and must be released.
	abandon := func() {
		go func() {
			if r := <-done; r.pc != nil {
				r.pc.Close()
			}
		}()
	}

	timeout := e.opts.InitTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	select {
	case <-ctx.Done():
		abandon()
		metrics.EngineInitTotal.WithLabelValues(string(profile.Mode), "timeout").Inc()
		return ErrInitTimeout
	case <-time.After(timeout):
		abandon()
		metrics.EngineInitTotal.WithLabelValues(string(profile.Mode), "timeout").Inc()
		logger.Warn("media engine init timed out", zap.Duration("timeout", timeout))
		return ErrInitTimeout
	case r := <-done:
		if r.err != nil {
			metrics.EngineInitTotal.WithLabelValues(string(profile.Mode), "unavailable").Inc()
			logger.Error("media engine init failed", zap.Error(r.err))
			return fmt.Errorf("%w: %v", ErrUnavailable, r.err)
		}
		e.mu.Lock()
		if e.tornDown {
			e.mu.Unlock()
			r.pc.Close()
			return ErrUnavailable
		}
		e.pc = r.pc
		e.mu.Unlock()
		metrics.EngineInitTotal.WithLabelValues(string(profile.Mode), "ok").Inc()
		return nil
	}
}

// buildPeerConnection assembles the Pion API with default codecs and
// interceptors and pre-seeds recvonly transceivers so the offer always has
// valid m-lines with ICE credentials.
func (e *WebRTCEngine) buildPeerConnection(profile Profile) (*webrtc.PeerConnection, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, err
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	)

	iceServers := make([]webrtc.ICEServer, 0, len(e.opts.STUNServers))
	for _, s := range e.opts.STUNServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{s}})
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, err
	}

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		pc.Close()
		return nil, err
	}
	if profile.Mode == domain.MediaModeVideo {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			pc.Close()
			return nil, err
		}
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		e.emit(Event{Type: EventStreamAdded, StreamID: track.ID()})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			e.emit(Event{Type: EventReady})
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			e.emit(Event{Type: EventFailure, Err: fmt.Errorf("peer connection %s", state)})
		}
	})

	return pc, nil
}

// joinRequest / joinResponse are the media gateway's SDP exchange format
type joinRequest struct {
	RoomID   string `json:"roomId"`
	Identity string `json:"identity"`
	SDP      string `json:"sdp"`
}

type joinResponse struct {
	SDP string `json:"sdp"`
}

// JoinRoom performs the offer/answer exchange with the media gateway for the
// room keyed by the conversation id.
func (e *WebRTCEngine) JoinRoom(ctx context.Context, roomID string, localIdentity string) error {
	e.mu.Lock()
	pc := e.pc
	e.mu.Unlock()
	if pc == nil {
		return ErrUnavailable
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}

	gatherDone := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gatherDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	body, err := json.Marshal(joinRequest{
		RoomID:   roomID,
		Identity: localIdentity,
		SDP:      pc.LocalDescription().SDP,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/v1/rooms/%s/join", e.opts.GatewayURL, roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("join room: gateway returned %d", resp.StatusCode)
	}

	var answer joinResponse
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return fmt.Errorf("decode join answer: %w", err)
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer.SDP,
	}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	logger.Info("joined media room",
		zap.String("room_id", roomID),
		zap.String("identity", localIdentity))
	return nil
}

// PublishLocalStream attaches the local tracks. AddTrack reuses the recvonly
// transceivers seeded at build time, flipping them to sendrecv.
func (e *WebRTCEngine) PublishLocalStream() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.signalingOnly || e.pc == nil {
		return nil
	}

	audio, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "secureconnect")
	if err != nil {
		return fmt.Errorf("create local audio track: %w", err)
	}
	audioSender, err := e.pc.AddTrack(audio)
	if err != nil {
		return fmt.Errorf("publish local audio: %w", err)
	}
	e.localAudio, e.audioSender = audio, audioSender

	if e.profile.Mode == domain.MediaModeVideo {
		video, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "secureconnect")
		if err != nil {
			return fmt.Errorf("create local video track: %w", err)
		}
		videoSender, err := e.pc.AddTrack(video)
		if err != nil {
			return fmt.Errorf("publish local video: %w", err)
		}
		e.localVideo, e.videoSender = video, videoSender
	}
	return nil
}

// SubscribeRemoteStream acknowledges a stream-added notification. With Pion
// the receive path is already negotiated; subscription is bookkeeping.
func (e *WebRTCEngine) SubscribeRemoteStream(streamID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.signalingOnly || e.pc == nil {
		return nil
	}
	logger.Debug("subscribed to remote stream", zap.String("stream_id", streamID))
	return nil
}

// ToggleMicrophone enables/disables the outbound audio by swapping the
// sender's track. No-op in signaling-only mode or before publish.
func (e *WebRTCEngine) ToggleMicrophone(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.micEnabled = enabled
	e.swapTrack(e.audioSender, e.localAudio, enabled, "audio")
}

// ToggleCamera enables/disables the outbound video. No-op in signaling-only
// mode and on audio calls.
func (e *WebRTCEngine) ToggleCamera(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cameraEnabled = enabled
	e.swapTrack(e.videoSender, e.localVideo, enabled, "video")
}

// swapTrack mutes by detaching the sender's track and unmutes by re-attaching
// it. Caller holds e.mu.
func (e *WebRTCEngine) swapTrack(sender *webrtc.RTPSender, local *webrtc.TrackLocalStaticRTP, enabled bool, kind string) {
	if e.signalingOnly || sender == nil {
		return
	}
	var track webrtc.TrackLocal
	if enabled {
		track = local
	}
	if err := sender.ReplaceTrack(track); err != nil {
		logger.Warn("toggle track failed",
			zap.String("kind", kind),
			zap.Bool("enabled", enabled),
			zap.Error(err))
	}
}

// SwitchCamera cycles the capture device. Device selection happens on the
// capture side; over a gateway session this is a renegotiation hint only.
func (e *WebRTCEngine) SwitchCamera() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.signalingOnly || e.pc == nil {
		return
	}
	logger.Debug("switch camera requested")
}

// EnterSignalingOnly puts the engine into the degraded no-media mode. All
// subsequent media operations become no-ops.
func (e *WebRTCEngine) EnterSignalingOnly() {
	e.mu.Lock()
	e.signalingOnly = true
	e.mu.Unlock()
	metrics.EngineSignalingOnlyTotal.Inc()
	logger.Warn("media engine entering signaling-only mode")
}

// SignalingOnly reports the degraded mode.
func (e *WebRTCEngine) SignalingOnly() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signalingOnly
}

// Events exposes engine signals.
func (e *WebRTCEngine) Events() <-chan Event {
	return e.events
}

// Teardown leaves the room and releases the peer connection. Idempotent. The
// events channel is closed under the same lock emit sends under, so a pion
// callback racing the teardown can never hit a closed channel.
func (e *WebRTCEngine) Teardown() {
	e.mu.Lock()
	if e.tornDown {
		e.mu.Unlock()
		return
	}
	e.tornDown = true
	pc := e.pc
	e.pc = nil
	close(e.events)
	e.mu.Unlock()

	if pc != nil {
		if err := pc.Close(); err != nil {
			logger.Warn("peer connection close failed", zap.Error(err))
		}
	}
	logger.Debug("media engine torn down")
}

// emit delivers an event without blocking; a full buffer drops the event,
// which is acceptable because later state changes supersede earlier ones.
// The send happens under e.mu: it cannot block (non-blocking select), and the
// lock orders it against the close in Teardown.
func (e *WebRTCEngine) emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tornDown {
		return
	}
	select {
	case e.events <- ev:
	default:
	}
}
