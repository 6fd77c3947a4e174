package chatflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// ============================================================================
// Event Types
// ============================================================================

// Live-event type tags. All traffic travels on one logical channel as tagged
// envelopes; consumers filter by type.
const (
	EventMessageSend = "message:send"
	EventMessageNew  = "direct:message:new"
	EventMessageAck  = "direct:message:ack"
	EventMessageRead = "message:read"
	EventReadAck     = "message:read:ack"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"
)

// Envelope is the wire format for all live events, both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope builds an envelope from a typed payload.
func NewEnvelope(eventType string, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return Envelope{Type: eventType, Payload: data}, nil
}

// SendPayload is the client→server payload for message:send.
type SendPayload struct {
	TempID         string `json:"temp_id"`
	ConversationID int64  `json:"conversationId"`
	ReceiverID     int64  `json:"receiverId"`
	Content        string `json:"content"`
}

// NewMessagePayload is the server→client payload for direct:message:new.
type NewMessagePayload struct {
	MessageID      string    `json:"messageId,omitempty"`
	From           int64     `json:"from"`
	ConversationID int64     `json:"conversationId,omitempty"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt,omitempty"`
}

// AckPayload is the server→client payload for direct:message:ack. TempID
// carries the optimistic id when the server correlates it for the sender.
type AckPayload struct {
	MessageID string `json:"messageId"`
	TempID    string `json:"temp_id,omitempty"`
}

// ReadPayload is the client→server payload for message:read.
type ReadPayload struct {
	MessageID  string `json:"messageId"`
	ReceiverID int64  `json:"receiverId"`
}

// ReadAckPayload is the server→client payload for message:read:ack.
type ReadAckPayload struct {
	MessageID string `json:"messageId"`
}

// TypingPayload is the payload for typing:start and typing:stop.
type TypingPayload struct {
	ReceiverID     int64 `json:"receiverId"`
	From           int64 `json:"from"`
	ConversationID int64 `json:"conversationId"`
}

// ============================================================================
// Configuration
// ============================================================================

// SocketConfig configures the live-updates socket.
type SocketConfig struct {
	BaseURL              string
	Token                string
	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	HeartbeatInterval    time.Duration
}

func (c *SocketConfig) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
}

// SocketState represents the connection state.
type SocketState string

const (
	StateDisconnected SocketState = "disconnected"
	StateConnecting   SocketState = "connecting"
	StateConnected    SocketState = "connected"
	StateReconnecting SocketState = "reconnecting"
)

// ErrSocketClosed is returned by Emit when no connection exists. Callers are
// expected to tolerate it: the view degrades to "no live updates" while the
// REST surface stays available.
var ErrSocketClosed = errors.New("chatflow: socket not connected")

// ============================================================================
// Event Dispatcher
// ============================================================================

// EventHandler is the generic event callback type.
type EventHandler func(eventType string, payload json.RawMessage)

// Handlers run on the socket read loop in receipt order, so one conversation's
// events are applied in the order they arrived. They must not block.
type eventDispatcher struct {
	mu             sync.RWMutex
	generic        map[string][]EventHandler
	onMessageNew   []func(NewMessagePayload)
	onMessageAck   []func(AckPayload)
	onReadAck      []func(ReadAckPayload)
	onTypingStart  []func(TypingPayload)
	onTypingStop   []func(TypingPayload)
	onConnected    []func()
	onDisconnected []func(reason string)
	onReconnecting []func(attempt int, delay time.Duration)
}

func newEventDispatcher() *eventDispatcher {
	return &eventDispatcher{
		generic: make(map[string][]EventHandler),
	}
}

// dispatch decodes the envelope per its type tag and fans out to the typed
// handlers. Malformed payloads are discarded, never propagated.
func (d *eventDispatcher) dispatch(env Envelope) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	switch env.Type {
	case EventMessageNew:
		var p NewMessagePayload
		if json.Unmarshal(env.Payload, &p) == nil {
			for _, h := range d.onMessageNew {
				h(p)
			}
		}
	case EventMessageAck:
		var p AckPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			for _, h := range d.onMessageAck {
				h(p)
			}
		}
	case EventReadAck:
		var p ReadAckPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			for _, h := range d.onReadAck {
				h(p)
			}
		}
	case EventTypingStart:
		var p TypingPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			for _, h := range d.onTypingStart {
				h(p)
			}
		}
	case EventTypingStop:
		var p TypingPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			for _, h := range d.onTypingStop {
				h(p)
			}
		}
	}

	for _, h := range d.generic[env.Type] {
		h(env.Type, env.Payload)
	}
}

func (d *eventDispatcher) emitConnected() {
	d.mu.RLock()
	handlers := append([]func(){}, d.onConnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h()
	}
}

func (d *eventDispatcher) emitDisconnected(reason string) {
	d.mu.RLock()
	handlers := append([]func(string){}, d.onDisconnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(reason)
	}
}

func (d *eventDispatcher) emitReconnecting(attempt int, delay time.Duration) {
	d.mu.RLock()
	handlers := append([]func(int, time.Duration){}, d.onReconnecting...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(attempt, delay)
	}
}

// ============================================================================
// Reconnector
// ============================================================================

type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newReconnector(config *SocketConfig) *reconnector {
	return &reconnector{
		baseDelay:   config.ReconnectBaseDelay,
		maxDelay:    config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts == 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

func (r *reconnector) nextDelay() time.Duration {
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > 60*time.Second {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

// ============================================================================
// Socket
// ============================================================================

// Socket is the single live-updates connection: fire-and-forget Emit plus
// typed event subscriptions. Reconnection is automatic with bounded backoff;
// no history replay is requested on reconnect — that is the caller's job.
type Socket struct {
	config           *SocketConfig
	conn             *websocket.Conn
	mu               sync.Mutex
	state            SocketState
	intentionalClose bool
	dispatcher       *eventDispatcher
	recon            *reconnector
	cancelFn         context.CancelFunc
}

// NewSocket creates a socket. Call Connect to establish the connection.
func NewSocket(config *SocketConfig) *Socket {
	cfg := *config
	cfg.defaults()
	return &Socket{
		config:     &cfg,
		state:      StateDisconnected,
		dispatcher: newEventDispatcher(),
		recon:      newReconnector(&cfg),
	}
}

// OnMessageNew registers a handler for inbound direct messages.
func (s *Socket) OnMessageNew(h func(NewMessagePayload)) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onMessageNew = append(s.dispatcher.onMessageNew, h)
	s.dispatcher.mu.Unlock()
}

// OnMessageAck registers a handler for delivery acknowledgements.
func (s *Socket) OnMessageAck(h func(AckPayload)) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onMessageAck = append(s.dispatcher.onMessageAck, h)
	s.dispatcher.mu.Unlock()
}

// OnReadAck registers a handler for read acknowledgements.
func (s *Socket) OnReadAck(h func(ReadAckPayload)) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onReadAck = append(s.dispatcher.onReadAck, h)
	s.dispatcher.mu.Unlock()
}

// OnTypingStart registers a handler for typing:start.
func (s *Socket) OnTypingStart(h func(TypingPayload)) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onTypingStart = append(s.dispatcher.onTypingStart, h)
	s.dispatcher.mu.Unlock()
}

// OnTypingStop registers a handler for typing:stop.
func (s *Socket) OnTypingStop(h func(TypingPayload)) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onTypingStop = append(s.dispatcher.onTypingStop, h)
	s.dispatcher.mu.Unlock()
}

// OnConnected registers a handler for the connected meta-event.
func (s *Socket) OnConnected(h func()) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onConnected = append(s.dispatcher.onConnected, h)
	s.dispatcher.mu.Unlock()
}

// OnDisconnected registers a handler for the disconnected meta-event.
func (s *Socket) OnDisconnected(h func(reason string)) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onDisconnected = append(s.dispatcher.onDisconnected, h)
	s.dispatcher.mu.Unlock()
}

// OnReconnecting registers a handler for the reconnecting meta-event.
func (s *Socket) OnReconnecting(h func(attempt int, delay time.Duration)) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onReconnecting = append(s.dispatcher.onReconnecting, h)
	s.dispatcher.mu.Unlock()
}

// On registers a generic handler for an event type.
func (s *Socket) On(eventType string, h EventHandler) {
	s.dispatcher.mu.Lock()
	s.dispatcher.generic[eventType] = append(s.dispatcher.generic[eventType], h)
	s.dispatcher.mu.Unlock()
}

// State returns the current connection state.
func (s *Socket) State() SocketState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect establishes the websocket connection. Idempotent: returns nil if a
// connection already exists or is being established.
func (s *Socket) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnected || s.state == StateConnecting {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.intentionalClose = false
	s.mu.Unlock()

	wsURL := strings.Replace(s.config.BaseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "/ws?token=" + s.config.Token

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateConnected
	s.mu.Unlock()
	s.recon.markConnected()

	s.dispatcher.emitConnected()

	connCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancelFn = cancel
	s.mu.Unlock()

	go s.readLoop(connCtx)
	go s.heartbeatLoop(connCtx)

	return nil
}

// Disconnect tears down the connection and clears state. Safe to call when
// not connected.
func (s *Socket) Disconnect() error {
	s.mu.Lock()
	s.intentionalClose = true
	if s.cancelFn != nil {
		s.cancelFn()
		s.cancelFn = nil
	}
	conn := s.conn
	s.conn = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	if conn != nil {
		err := conn.Close(websocket.StatusNormalClosure, "client disconnect")
		s.dispatcher.emitDisconnected("client disconnect")
		return err
	}
	return nil
}

// Emit sends an envelope. Fire-and-forget: no delivery guarantee at this
// layer. Returns ErrSocketClosed when no connection exists.
func (s *Socket) Emit(ctx context.Context, env Envelope) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return ErrSocketClosed
	}

	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// EmitEvent marshals the payload and sends it under the given type tag.
func (s *Socket) EmitEvent(ctx context.Context, eventType string, payload interface{}) error {
	env, err := NewEnvelope(eventType, payload)
	if err != nil {
		return err
	}
	return s.Emit(ctx, env)
}

func (s *Socket) readLoop(ctx context.Context) {
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			s.mu.Lock()
			intentional := s.intentionalClose
			s.mu.Unlock()
			if intentional {
				return
			}

			s.mu.Lock()
			s.state = StateDisconnected
			s.conn = nil
			s.mu.Unlock()

			s.dispatcher.emitDisconnected(err.Error())

			if s.config.AutoReconnect && s.recon.shouldReconnect() {
				s.scheduleReconnect()
			}
			return
		}

		var env Envelope
		if json.Unmarshal(data, &env) != nil || env.Type == "" {
			continue
		}
		s.dispatcher.dispatch(env)
	}
}

func (s *Socket) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				return
			}
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				return
			}
		}
	}
}

func (s *Socket) scheduleReconnect() {
	delay := s.recon.nextDelay()
	s.mu.Lock()
	s.state = StateReconnecting
	s.mu.Unlock()

	s.dispatcher.emitReconnecting(s.recon.attempt, delay)

	time.Sleep(delay)

	if err := s.Connect(context.Background()); err != nil {
		if s.config.AutoReconnect && s.recon.shouldReconnect() {
			s.scheduleReconnect()
		} else {
			s.mu.Lock()
			s.state = StateDisconnected
			s.mu.Unlock()
		}
	}
}

// ============================================================================
// Process-wide socket holder
// ============================================================================

// The live connection is a single process-wide resource: lazily created by
// ConnectSocket, read via CurrentSocket, explicitly torn down on logout by
// DisconnectSocket. There is no implicit recreation — a caller holding a torn
// down socket gets ErrSocketClosed from Emit and must reconnect explicitly.
var (
	holderMu     sync.Mutex
	holderSocket *Socket
)

// ConnectSocket returns the process-wide socket, creating and connecting it on
// first use. Subsequent calls return the existing connection regardless of
// the token passed.
func ConnectSocket(ctx context.Context, token string) (*Socket, error) {
	holderMu.Lock()
	defer holderMu.Unlock()

	if holderSocket != nil {
		return holderSocket, nil
	}

	sock := NewSocket(&SocketConfig{Token: token, AutoReconnect: true})
	if err := sock.Connect(ctx); err != nil {
		return nil, err
	}
	holderSocket = sock
	return sock, nil
}

// CurrentSocket returns the process-wide socket, or nil when none exists.
func CurrentSocket() *Socket {
	holderMu.Lock()
	defer holderMu.Unlock()
	return holderSocket
}

// DisconnectSocket tears down the process-wide socket and clears the holder.
// Safe to call when no socket exists.
func DisconnectSocket() {
	holderMu.Lock()
	sock := holderSocket
	holderSocket = nil
	holderMu.Unlock()

	if sock != nil {
		sock.Disconnect()
	}
}
