package signaling

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"secureconnect-client/pkg/constants"
	apperrors "secureconnect-client/pkg/errors"
	"secureconnect-client/pkg/identity"
	"secureconnect-client/pkg/logger"
	"secureconnect-client/pkg/metrics"
)

// Handler processes the raw payload of one inbound signaling event
type Handler func(data json.RawMessage)

// Channel delivers call-control events between participants. It does not
// understand call semantics, only message passing.
type Channel interface {
	// Connect establishes the transport. Idempotent: if already connected it
	// returns immediately. Tolerates a nil identity (deferred no-op) so it can
	// be invoked before login and retried once the identity is known.
	Connect(ctx context.Context, id *identity.Identity) error

	// Emit sends fire-and-forget; the protocol has no acknowledgments and the
	// caller must not assume delivery.
	Emit(event string, payload any) error

	// On registers the handler for an event, replacing any previous handler so
	// re-subscription after a reconnect never duplicates processing.
	On(event string, h Handler)

	// Off removes the handler for an event.
	Off(event string)

	// JoinConversation subscribes to a conversation's events on the relay and
	// remembers it for rejoin after reconnects.
	JoinConversation(conversationID uuid.UUID)

	// LeaveConversation forgets a conversation so it is not rejoined.
	LeaveConversation(conversationID uuid.UUID)

	// Connected reports whether the transport is currently up.
	Connected() bool

	// Close tears down the transport and stops reconnecting.
	Close() error
}

// Options configures a websocket channel
type Options struct {
	URL                string
	PingInterval       time.Duration
	WriteTimeout       time.Duration
	MaxRetries         int
	ReconnectBaseDelay time.Duration
}

// wsChannel is the gorilla/websocket implementation of Channel
type wsChannel struct {
	opts Options

	mu        sync.RWMutex
	conn      *websocket.Conn
	stop      chan struct{} // closed when conn is torn down; ends its write pump
	connected bool
	closed    bool
	id        *identity.Identity
	handlers  map[string]Handler
	rooms     map[uuid.UUID]struct{}

	send chan []byte
	done chan struct{}
}

// NewChannel creates a websocket-backed signaling channel. The channel is not
// connected until Connect is called with a known identity.
func NewChannel(opts Options) Channel {
	if opts.PingInterval == 0 {
		opts.PingInterval = constants.WebSocketPingInterval
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = constants.WebSocketWriteTimeout
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = constants.ReconnectMaxAttempts
	}
	if opts.ReconnectBaseDelay == 0 {
		opts.ReconnectBaseDelay = constants.ReconnectBaseDelay
	}
	return &wsChannel{
		opts:     opts,
		handlers: make(map[string]Handler),
		rooms:    make(map[uuid.UUID]struct{}),
		send:     make(chan []byte, constants.EmitBufferSize),
		done:     make(chan struct{}),
	}
}

// Connect dials the relay. Safe to call repeatedly; only the first successful
// call with a non-nil identity opens the transport.
func (c *wsChannel) Connect(ctx context.Context, id *identity.Identity) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperrors.SignalingDisconnectedError()
	}
	if id != nil {
		c.id = id
	}
	if c.id == nil {
		// Identity not known yet; the caller retries after login.
		c.mu.Unlock()
		logger.Debug("signaling connect deferred: identity not available")
		return nil
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	token := c.id.Token
	c.mu.Unlock()

	conn, err := c.dial(ctx, token)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeSignalingDisconnected, "signaling dial failed", err)
	}
	c.attach(conn)
	return nil
}

func (c *wsChannel) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, header)
	return conn, err
}

// attach installs a live connection and starts the pumps.
func (c *wsChannel) attach(conn *websocket.Conn) {
	stop := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.stop = stop
	c.connected = true
	c.mu.Unlock()

	metrics.SignalingConnected.Set(1)
	logger.Info("signaling channel connected", zap.String("url", c.opts.URL))

	go c.writePump(conn, stop)
	go c.readPump(conn)

	c.rejoinRooms()
}

// rejoinRooms re-emits joinConversation for every room the client is in,
// since the relay drops room membership on disconnect.
func (c *wsChannel) rejoinRooms() {
	c.mu.RLock()
	rooms := make([]uuid.UUID, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	c.mu.RUnlock()

	for _, id := range rooms {
		if err := c.Emit(EventJoinConversation, JoinConversationPayload{ConversationID: id}); err != nil {
			logger.Warn("rejoin conversation failed",
				zap.String("conversation_id", id.String()),
				zap.Error(err))
		}
	}
}

// Emit marshals and queues one outbound event. Transport errors are never
// fatal; a full queue or a down transport drops the message with a warning.
func (c *wsChannel) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInvalidInput, "marshal signaling payload", err)
	}
	msg, err := json.Marshal(Message{Event: event, Data: data, Timestamp: time.Now()})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInvalidInput, "marshal signaling message", err)
	}

	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	if !connected {
		metrics.SignalingEmitFailedTotal.Inc()
		logger.Warn("signaling emit while disconnected", zap.String("event", event))
		return apperrors.SignalingDisconnectedError()
	}

	select {
	case c.send <- msg:
		return nil
	default:
		metrics.SignalingEmitFailedTotal.Inc()
		logger.Warn("signaling send queue full, dropping event", zap.String("event", event))
		return apperrors.SignalingDisconnectedError()
	}
}

// On registers a handler, replacing any existing one for the same event.
func (c *wsChannel) On(event string, h Handler) {
	c.mu.Lock()
	c.handlers[event] = h
	c.mu.Unlock()
}

// Off removes the handler for event.
func (c *wsChannel) Off(event string) {
	c.mu.Lock()
	delete(c.handlers, event)
	c.mu.Unlock()
}

// JoinConversation subscribes to a conversation room and remembers it.
func (c *wsChannel) JoinConversation(conversationID uuid.UUID) {
	c.mu.Lock()
	c.rooms[conversationID] = struct{}{}
	c.mu.Unlock()

	// Best effort; rejoinRooms covers the disconnected case.
	_ = c.Emit(EventJoinConversation, JoinConversationPayload{ConversationID: conversationID})
}

// LeaveConversation forgets a conversation room.
func (c *wsChannel) LeaveConversation(conversationID uuid.UUID) {
	c.mu.Lock()
	delete(c.rooms, conversationID)
	c.mu.Unlock()
}

// Connected reports transport state.
func (c *wsChannel) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Close shuts the channel down for good.
func (c *wsChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	close(c.done)
	metrics.SignalingConnected.Set(0)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// readPump reads messages from the relay and dispatches them to handlers.
// Handlers run on this goroutine, so events for one connection are processed
// in arrival order.
func (c *wsChannel) readPump(conn *websocket.Conn) {
	defer c.onDisconnect(conn)

	conn.SetReadDeadline(time.Now().Add(c.opts.PingInterval + c.opts.WriteTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.opts.PingInterval + c.opts.WriteTimeout))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("signaling connection lost", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Warn("invalid signaling message", zap.Error(err))
			continue
		}

		metrics.SignalingEventsReceivedTotal.WithLabelValues(msg.Event).Inc()

		c.mu.RLock()
		h := c.handlers[msg.Event]
		c.mu.RUnlock()
		if h == nil {
			logger.Debug("unhandled signaling event", zap.String("event", msg.Event))
			continue
		}
		h(msg.Data)
	}
}

// writePump writes queued messages and keeps the connection alive with pings.
// stop belongs to this connection: once it is torn down the pump must exit
// rather than keep draining the shared send queue alongside its successor.
func (c *wsChannel) writePump(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-c.done:
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Warn("signaling write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// onDisconnect marks the transport down and kicks off the reconnect loop.
func (c *wsChannel) onDisconnect(conn *websocket.Conn) {
	conn.Close()

	c.mu.Lock()
	// A stale pump from a previous connection must not tear down the current one.
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	closed := c.closed
	c.mu.Unlock()

	metrics.SignalingConnected.Set(0)
	if closed {
		return
	}
	go c.reconnectLoop()
}

// reconnectLoop redials with exponential backoff and jitter, bounded by
// MaxRetries. On success the pumps restart and rooms are rejoined.
func (c *wsChannel) reconnectLoop() {
	delay := c.opts.ReconnectBaseDelay

	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(delay + time.Duration(rand.Int63n(int64(delay/2+1)))):
		}

		c.mu.RLock()
		closed, connected := c.closed, c.connected
		var token string
		if c.id != nil {
			token = c.id.Token
		}
		c.mu.RUnlock()
		if closed || connected {
			return
		}

		metrics.SignalingReconnectTotal.Inc()
		ctx, cancel := context.WithTimeout(context.Background(), constants.WebSocketWriteTimeout)
		conn, err := c.dial(ctx, token)
		cancel()
		if err == nil {
			c.attach(conn)
			return
		}

		logger.Warn("signaling reconnect failed",
			zap.Int("attempt", attempt),
			zap.Error(err))

		delay *= 2
		if delay > constants.ReconnectMaxDelay {
			delay = constants.ReconnectMaxDelay
		}
	}

	logger.Error("signaling reconnect attempts exhausted",
		zap.Int("max_retries", c.opts.MaxRetries))
}
