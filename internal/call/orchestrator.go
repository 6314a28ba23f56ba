package call

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"secureconnect-client/internal/config"
	"secureconnect-client/internal/directory"
	"secureconnect-client/internal/domain"
	"secureconnect-client/internal/media"
	"secureconnect-client/internal/signaling"
	apperrors "secureconnect-client/pkg/errors"
	"secureconnect-client/pkg/identity"
	"secureconnect-client/pkg/logger"
	"secureconnect-client/pkg/metrics"
)

// EngineFactory builds a fresh media engine for one session.
type EngineFactory func(mode domain.MediaMode) media.Engine

// Orchestrator is the only component the UI calls into. It translates UI
// intents into signaling emissions and state-machine transitions, applies
// incoming signaling events, and owns the single signaling subscription for
// the lifetime of a live session.
type Orchestrator struct {
	channel   signaling.Channel
	newEngine EngineFactory
	dir       directory.Directory
	cfg       config.CallConfig
	joinWait  time.Duration

	mu          sync.Mutex
	id          *identity.Identity
	session     *Session
	engine      media.Engine
	tearingDown bool

	obsMu     sync.RWMutex
	observers []func(domain.CallSession)
}

// NewOrchestrator wires the orchestrator and registers its signaling
// handlers. Handlers stay registered for the orchestrator's lifetime; phase
// gating inside them makes duplicate delivery harmless.
func NewOrchestrator(channel signaling.Channel, newEngine EngineFactory, dir directory.Directory, cfg config.CallConfig, joinTimeout time.Duration) *Orchestrator {
	o := &Orchestrator{
		channel:   channel,
		newEngine: newEngine,
		dir:       dir,
		cfg:       cfg,
		joinWait:  joinTimeout,
	}
	channel.On(signaling.EventCall, o.handleOffer)
	channel.On(signaling.EventAcceptCall, o.handleAccept)
	channel.On(signaling.EventRejectCall, o.handleReject)
	channel.On(signaling.EventCancelCall, o.handleCancel)
	channel.On(signaling.EventEndCall, o.handleEnd)
	channel.On(signaling.EventJoinCall, o.handleJoinCall)
	return o
}

// SetIdentity supplies the local user once login completes. Outgoing
// signaling payloads are stamped with it.
func (o *Orchestrator) SetIdentity(id *identity.Identity) {
	o.mu.Lock()
	o.id = id
	o.mu.Unlock()
}

// OnStateChange registers an observer notified with a session snapshot after
// every phase change. The UI re-renders from snapshots instead of holding its
// own subscription to the raw channel.
func (o *Orchestrator) OnStateChange(fn func(domain.CallSession)) {
	o.obsMu.Lock()
	o.observers = append(o.observers, fn)
	o.obsMu.Unlock()
}

// Status returns the current session snapshot, or nil when no session exists.
func (o *Orchestrator) Status() *domain.CallSession {
	o.mu.Lock()
	sess := o.session
	o.mu.Unlock()
	if sess == nil {
		return nil
	}
	snap := sess.Snapshot()
	return &snap
}

// StartCall creates a CALLER session for the conversation, emits the offer,
// and arms the no-answer timer. Fails with InvalidState if a session is
// already live or the previous session's teardown has not completed.
func (o *Orchestrator) StartCall(ctx context.Context, conversationID uuid.UUID, isGroup bool, mode domain.MediaMode) (*domain.CallSession, error) {
	o.mu.Lock()
	if o.id == nil {
		o.mu.Unlock()
		return nil, apperrors.IdentityUnknownError()
	}
	if o.session != nil && o.session.Phase().Live() {
		o.mu.Unlock()
		return nil, apperrors.InvalidStateError("a call session is already live")
	}
	if o.engine != nil || o.tearingDown {
		o.mu.Unlock()
		return nil, apperrors.InvalidStateError("previous session teardown incomplete")
	}
	localID := o.id
	sess := NewSession(conversationID, isGroup, domain.RoleCaller, mode)
	// Enter DIALING before publishing the session, so a concurrent inbound
	// offer never observes it in IDLE and replaces it.
	if err := sess.Transition(domain.PhaseDialing); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	o.session = sess
	o.mu.Unlock()

	metrics.CallStartedTotal.WithLabelValues(string(domain.RoleCaller), string(mode), boolLabel(isGroup)).Inc()
	o.notify(sess)

	o.channel.JoinConversation(conversationID)

	callType := signaling.CallTypeAudio
	if mode == domain.MediaModeVideo {
		callType = signaling.CallTypeVideo
	}
	if err := o.channel.Emit(signaling.EventCall, signaling.OfferPayload{
		Sender:         localID.UserID,
		SenderName:     localID.DisplayName,
		ConversationID: conversationID,
		CallType:       callType,
		IsGroup:        isGroup,
	}); err != nil {
		// Fire-and-forget protocol: the no-answer timer bounds a lost offer.
		logger.Warn("call offer emit failed", zap.Error(err))
	}

	o.armCallerTimeout(sess)

	// No ringing ack exists in the protocol, so the caller moves to RINGING
	// as soon as the offer is out.
	if err := sess.Transition(domain.PhaseRinging); err == nil {
		o.notify(sess)
	}

	go o.resolveRemoteParty(sess, localID.UserID)

	snap := sess.Snapshot()
	return &snap, nil
}

// armCallerTimeout arms the no-answer timer: on expiry the session moves to
// CANCELLED and a cancel signal is emitted exactly once so the callee's UI
// resets too.
func (o *Orchestrator) armCallerTimeout(sess *Session) {
	sess.ArmRingTimer(o.cfg.NoAnswerTimeout, func() {
		metrics.CallNoAnswerTimeoutTotal.Inc()
		logger.Info("call cancelled by no-answer timeout",
			zap.String("conversation_id", sess.Snapshot().ConversationID.String()))
		o.emitControl(signaling.EventCancelCall, sess)
		o.finishTerminal(sess)
	})
}

// AcceptCall accepts an incoming call: valid only in RINGING as CALLEE.
// Transitions to ACCEPTED, emits the accept signal, and begins engine
// initialization.
func (o *Orchestrator) AcceptCall(ctx context.Context) error {
	o.mu.Lock()
	sess := o.session
	engineBusy := o.engine != nil || o.tearingDown
	o.mu.Unlock()
	if sess == nil {
		return apperrors.CallNotFoundError()
	}
	snap := sess.Snapshot()
	if snap.Role != domain.RoleCallee {
		return apperrors.InvalidStateError("only the callee can accept")
	}
	if engineBusy {
		return apperrors.InvalidStateError("previous session teardown incomplete")
	}
	if err := sess.Transition(domain.PhaseAccepted); err != nil {
		return err
	}
	o.notify(sess)
	o.emitControl(signaling.EventAcceptCall, sess)
	go o.connectMedia(sess)
	return nil
}

// RejectCall declines a ringing incoming call. A no-op outside RINGING or as
// the caller, since UI races (double taps) are expected.
func (o *Orchestrator) RejectCall() error {
	o.mu.Lock()
	sess := o.session
	o.mu.Unlock()
	if sess == nil || sess.Snapshot().Role != domain.RoleCallee {
		return nil
	}
	if err := sess.Transition(domain.PhaseRejected); err != nil {
		return nil
	}
	o.emitControl(signaling.EventRejectCall, sess)
	o.finishTerminal(sess)
	return nil
}

// CancelCall withdraws an unanswered outgoing call. A no-op outside
// DIALING/RINGING or as the callee.
func (o *Orchestrator) CancelCall() error {
	o.mu.Lock()
	sess := o.session
	o.mu.Unlock()
	if sess == nil || sess.Snapshot().Role != domain.RoleCaller {
		return nil
	}
	phase := sess.Phase()
	if phase != domain.PhaseDialing && phase != domain.PhaseRinging {
		return nil
	}
	if err := sess.Transition(domain.PhaseCancelled); err != nil {
		return nil
	}
	o.emitControl(signaling.EventCancelCall, sess)
	o.finishTerminal(sess)
	return nil
}

// EndCall hangs up an established call: valid in ACCEPTED, MEDIA_CONNECTING
// and CONNECTED. A no-op elsewhere.
func (o *Orchestrator) EndCall() error {
	o.mu.Lock()
	sess := o.session
	o.mu.Unlock()
	if sess == nil {
		return apperrors.CallNotFoundError()
	}
	if err := sess.Transition(domain.PhaseEnded); err != nil {
		return nil
	}
	o.emitControl(signaling.EventEndCall, sess)
	o.finishTerminal(sess)
	return nil
}

// Reset discards a terminal session so a new one may be created. Called when
// the UI navigates away from the call screen, and on logout.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	if o.session.Phase().Live() {
		return apperrors.InvalidStateError("cannot reset a live session")
	}
	o.session = nil
	return nil
}

// Runtime media controls. Silently no-ops without an engine, matching the
// signaling-only contract.

func (o *Orchestrator) ToggleMicrophone(enabled bool) {
	if eng := o.currentEngine(); eng != nil {
		eng.ToggleMicrophone(enabled)
	}
}

func (o *Orchestrator) ToggleCamera(enabled bool) {
	if eng := o.currentEngine(); eng != nil {
		eng.ToggleCamera(enabled)
	}
}

func (o *Orchestrator) SwitchCamera() {
	if eng := o.currentEngine(); eng != nil {
		eng.SwitchCamera()
	}
}

func (o *Orchestrator) currentEngine() media.Engine {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.engine
}

// --- incoming signaling handlers ---

// handleOffer processes a remote "call" event: creates a CALLEE session in
// RINGING, or drops the offer if a session is already live.
func (o *Orchestrator) handleOffer(data json.RawMessage) {
	var p signaling.OfferPayload
	if err := json.Unmarshal(data, &p); err != nil {
		logger.Warn("malformed call offer", zap.Error(err))
		return
	}

	o.mu.Lock()
	if o.session != nil && o.session.Phase().Live() {
		reason := "wrong_phase"
		if !o.session.Matches(p.ConversationID) {
			reason = "stale_conversation"
		}
		o.mu.Unlock()
		metrics.SignalingEventsDroppedTotal.WithLabelValues(reason).Inc()
		logger.Debug("incoming offer dropped",
			zap.String("conversation_id", p.ConversationID.String()),
			zap.String("reason", reason))
		return
	}
	mode := domain.MediaModeAudio
	if p.CallType == signaling.CallTypeVideo {
		mode = domain.MediaModeVideo
	}
	sess := NewSession(p.ConversationID, p.IsGroup, domain.RoleCallee, mode)
	o.session = sess
	o.mu.Unlock()

	if err := sess.Transition(domain.PhaseRinging); err != nil {
		return
	}
	sess.SetRemoteParty(domain.RemoteParty{
		UserID:      p.Sender,
		DisplayName: p.SenderName,
		AvatarURL:   p.SenderAvatar,
	})
	metrics.CallStartedTotal.WithLabelValues(string(domain.RoleCallee), string(mode), boolLabel(p.IsGroup)).Inc()

	o.channel.JoinConversation(p.ConversationID)

	// Callee rings slightly longer than the caller's no-answer window, so it
	// still resets locally if the caller's cancel signal is lost.
	sess.ArmRingTimer(o.cfg.CalleeRingTimeout(), func() {
		logger.Info("incoming call expired locally",
			zap.String("conversation_id", p.ConversationID.String()))
		o.finishTerminal(sess)
	})

	o.notify(sess)
}

// handleAccept moves RINGING to ACCEPTED and starts the media engine. The
// first accept received wins; later accepts are absorbed by phase gating.
func (o *Orchestrator) handleAccept(data json.RawMessage) {
	sess, ok := o.gatedSession(data, signaling.EventAcceptCall)
	if !ok {
		return
	}
	if err := sess.Transition(domain.PhaseAccepted); err != nil {
		metrics.SignalingEventsDroppedTotal.WithLabelValues("wrong_phase").Inc()
		return
	}
	o.notify(sess)
	go o.connectMedia(sess)
}

func (o *Orchestrator) handleReject(data json.RawMessage) {
	sess, ok := o.gatedSession(data, signaling.EventRejectCall)
	if !ok {
		return
	}
	if err := sess.Transition(domain.PhaseRejected); err != nil {
		metrics.SignalingEventsDroppedTotal.WithLabelValues("wrong_phase").Inc()
		return
	}
	o.finishTerminal(sess)
}

func (o *Orchestrator) handleCancel(data json.RawMessage) {
	sess, ok := o.gatedSession(data, signaling.EventCancelCall)
	if !ok {
		return
	}
	if err := sess.Transition(domain.PhaseCancelled); err != nil {
		metrics.SignalingEventsDroppedTotal.WithLabelValues("wrong_phase").Inc()
		return
	}
	o.finishTerminal(sess)
}

func (o *Orchestrator) handleEnd(data json.RawMessage) {
	sess, ok := o.gatedSession(data, signaling.EventEndCall)
	if !ok {
		return
	}
	if err := sess.Transition(domain.PhaseEnded); err != nil {
		metrics.SignalingEventsDroppedTotal.WithLabelValues("wrong_phase").Inc()
		return
	}
	o.finishTerminal(sess)
}

// handleJoinCall processes a room-join notification. For group calls the
// first join doubles as the accept; for late joins in an established call it
// is informational only.
func (o *Orchestrator) handleJoinCall(data json.RawMessage) {
	sess, ok := o.gatedSession(data, signaling.EventJoinCall)
	if !ok {
		return
	}
	if !sess.Snapshot().IsGroup {
		return
	}
	if err := sess.Transition(domain.PhaseAccepted); err != nil {
		// Already past RINGING; a later participant joined.
		logger.Debug("participant joined established group call")
		return
	}
	o.notify(sess)
	go o.connectMedia(sess)
}

// gatedSession unmarshals a control payload and returns the live session it
// addresses. Events without a session, or for another conversation, are
// counted and dropped.
func (o *Orchestrator) gatedSession(data json.RawMessage, event string) (*Session, bool) {
	var p signaling.ControlPayload
	if err := json.Unmarshal(data, &p); err != nil {
		logger.Warn("malformed signaling payload", zap.String("event", event), zap.Error(err))
		return nil, false
	}
	o.mu.Lock()
	sess := o.session
	o.mu.Unlock()
	if sess == nil {
		metrics.SignalingEventsDroppedTotal.WithLabelValues("no_session").Inc()
		return nil, false
	}
	if !sess.Matches(p.ConversationID) {
		metrics.SignalingEventsDroppedTotal.WithLabelValues("stale_conversation").Inc()
		logger.Debug("signaling event for another conversation ignored",
			zap.String("event", event),
			zap.String("conversation_id", p.ConversationID.String()))
		return nil, false
	}
	return sess, true
}

// --- media path ---

// connectMedia drives the engine from ACCEPTED to CONNECTED. Engine failures
// are a distinct signal from signaling failures: an unavailable engine on a
// video call downgrades to audio and retries; on an audio call the session
// proceeds in signaling-only mode; a stalled engine fails the call.
func (o *Orchestrator) connectMedia(sess *Session) {
	if err := sess.Transition(domain.PhaseMediaConnecting); err != nil {
		// The session moved on (ended, cancelled) before media setup started.
		return
	}
	o.notify(sess)

	o.mu.Lock()
	localID := o.id
	o.mu.Unlock()
	if localID == nil {
		o.failCall(sess, apperrors.IdentityUnknownError())
		return
	}

	snap := sess.Snapshot()
	engine := o.newEngine(snap.MediaMode)
	o.mu.Lock()
	o.engine = engine
	o.mu.Unlock()

	ctx := context.Background()
	err := engine.Initialize(ctx, media.Profile{
		Mode:          snap.MediaMode,
		LocalIdentity: localID.UserID.String(),
	})

	if errors.Is(err, media.ErrUnavailable) && sess.DowngradeToAudio() {
		metrics.EngineDowngradeTotal.Inc()
		o.notify(sess)
		err = engine.Initialize(ctx, media.Profile{
			Mode:          domain.MediaModeAudio,
			LocalIdentity: localID.UserID.String(),
		})
	}

	if errors.Is(err, media.ErrUnavailable) {
		// No downgrade path left. The call stays up over the control channel
		// alone; this is a deliberate mode, not a silent failure.
		engine.EnterSignalingOnly()
		sess.SetSignalingOnly()
		if cerr := sess.Transition(domain.PhaseConnected); cerr == nil {
			o.observeSetup(sess)
			o.notify(sess)
		}
		go o.engineLoop(sess, engine)
		return
	}
	if err != nil {
		o.failCall(sess, err)
		return
	}

	joinCtx, cancel := context.WithTimeout(ctx, o.joinWait)
	defer cancel()
	if err := engine.JoinRoom(joinCtx, snap.ConversationID.String(), localID.UserID.String()); err != nil {
		o.failCall(sess, err)
		return
	}
	if err := engine.PublishLocalStream(); err != nil {
		logger.Warn("publish local stream failed", zap.Error(err))
	}
	o.emitControl(signaling.EventJoinCall, sess)

	go o.engineLoop(sess, engine)
}

// engineLoop applies engine-emitted readiness/failure signals to the session
// until the engine is torn down.
func (o *Orchestrator) engineLoop(sess *Session, engine media.Engine) {
	for ev := range engine.Events() {
		switch ev.Type {
		case media.EventReady:
			if err := sess.Transition(domain.PhaseConnected); err == nil {
				o.observeSetup(sess)
				o.notify(sess)
			}
		case media.EventStreamAdded:
			if err := engine.SubscribeRemoteStream(ev.StreamID); err != nil {
				logger.Warn("subscribe remote stream failed",
					zap.String("stream_id", ev.StreamID),
					zap.Error(err))
			}
		case media.EventFailure:
			if !sess.Phase().Terminal() {
				o.failCall(sess, ev.Err)
			}
		}
	}
}

// failCall moves the session to FAILED and cleans up.
func (o *Orchestrator) failCall(sess *Session, cause error) {
	if err := sess.Transition(domain.PhaseFailed); err != nil {
		return
	}
	logger.Error("call failed",
		zap.String("conversation_id", sess.Snapshot().ConversationID.String()),
		zap.Error(cause))
	o.finishTerminal(sess)
}

// finishTerminal runs the shared terminal-phase cleanup: notify observers,
// record the outcome, tear the engine down, and leave the conversation room.
// The engine handle is released only after teardown completes so a new
// session cannot start while media resources are still held.
func (o *Orchestrator) finishTerminal(sess *Session) {
	snap := sess.Snapshot()
	metrics.CallEndedTotal.WithLabelValues(string(snap.Phase)).Inc()
	o.notify(sess)

	o.mu.Lock()
	engine := o.engine
	o.tearingDown = engine != nil
	o.mu.Unlock()

	if engine != nil {
		engine.Teardown()
	}

	o.mu.Lock()
	o.engine = nil
	o.tearingDown = false
	o.mu.Unlock()

	o.channel.LeaveConversation(snap.ConversationID)
}

// resolveRemoteParty fills counterpart display data from the conversation
// directory. Best effort; signaling payloads already carry the essentials.
func (o *Orchestrator) resolveRemoteParty(sess *Session, localUserID uuid.UUID) {
	if o.dir == nil {
		return
	}
	snap := sess.Snapshot()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	members, err := o.dir.Members(ctx, snap.ConversationID)
	if err != nil {
		logger.Debug("remote party lookup failed", zap.Error(err))
		return
	}
	for _, m := range members {
		if m.UserID != localUserID {
			sess.SetRemoteParty(m)
			o.notify(sess)
			return
		}
	}
}

// emitControl sends one control event stamped with the local identity.
func (o *Orchestrator) emitControl(event string, sess *Session) {
	o.mu.Lock()
	localID := o.id
	o.mu.Unlock()
	if localID == nil {
		return
	}
	snap := sess.Snapshot()
	if err := o.channel.Emit(event, signaling.ControlPayload{
		UserID:         localID.UserID,
		ConversationID: snap.ConversationID,
		IsGroup:        snap.IsGroup,
	}); err != nil {
		logger.Warn("control event emit failed",
			zap.String("event", event),
			zap.Error(err))
	}
}

// observeSetup records time-to-connect once per session.
func (o *Orchestrator) observeSetup(sess *Session) {
	snap := sess.Snapshot()
	if snap.ConnectedAt != nil {
		metrics.CallSetupDuration.Observe(snap.ConnectedAt.Sub(snap.StartedAt).Seconds())
	}
}

func (o *Orchestrator) notify(sess *Session) {
	snap := sess.Snapshot()
	o.obsMu.RLock()
	observers := make([]func(domain.CallSession), len(o.observers))
	copy(observers, o.observers)
	o.obsMu.RUnlock()
	for _, fn := range observers {
		fn(snap)
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
