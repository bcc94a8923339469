// Package client is the embeddable counterpart to the server: a connection
// manager over the streaming channel, the dual-channel message delivery
// coordinator, typing presence, the bounded message buffer with its warm
// cache, and the bulk selection coordinator.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-chat/internal/realtime"
)

// ErrAckTimeout reports that the server acknowledgment lost the race against
// the configured deadline.
var ErrAckTimeout = errors.New("acknowledgment timed out")

// ErrNotConnected reports a streaming operation without a live connection.
var ErrNotConnected = errors.New("streaming channel not connected")

// EventHandler consumes one decoded envelope.
type EventHandler func(realtime.Envelope)

// Subscription identifies one registered handler so it can be removed on
// view teardown.
type Subscription struct {
	kind realtime.EventKind
	id   uint64
	conn *Conn
}

// Cancel removes the handler. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil || s.conn == nil {
		return
	}
	s.conn.unsubscribe(s.kind, s.id)
}

// Conn owns the single websocket connection for a client process. It is
// lazily established: EnsureConnected is a no-op without a credential, and a
// dropped connection leaves the Conn in a retry-eligible state where the
// next EnsureConnected redials. Nothing outside this type touches the
// underlying connection.
type Conn struct {
	url    string
	logger *zap.Logger

	mu       sync.Mutex
	ws       *websocket.Conn
	handlers map[realtime.EventKind]map[uint64]EventHandler
	nextID   uint64
	pending  map[string]chan realtime.MessageAckPayload
	joined   map[string]struct{}
	closed   bool

	// writeMu serializes outgoing frames; the transport allows at most one
	// concurrent writer, and typing expiry timers write from their own
	// goroutine while a send is in flight.
	writeMu sync.Mutex
}

// NewConn constructs a connection manager for the given websocket URL.
func NewConn(url string, logger *zap.Logger) *Conn {
	return &Conn{
		url:      url,
		logger:   logger,
		handlers: make(map[realtime.EventKind]map[uint64]EventHandler),
		pending:  make(map[string]chan realtime.MessageAckPayload),
		joined:   make(map[string]struct{}),
	}
}

// EnsureConnected dials the streaming channel if it is not already up.
// Without a token it is a no-op: connection establishment is deferred until
// a credential exists, not retried on a timer.
func (c *Conn) EnsureConnected(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("connection manager closed")
	}
	if c.ws != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.url+"?token="+token, nil)
	if err != nil {
		c.logger.Warn("streaming connect failed", zap.Error(err))
		return err
	}

	c.mu.Lock()
	if c.ws != nil || c.closed {
		// Lost a dial race or closed while dialing.
		c.mu.Unlock()
		_ = ws.Close()
		return nil
	}
	c.ws = ws
	rejoin := make([]string, 0, len(c.joined))
	for ticketID := range c.joined {
		rejoin = append(rejoin, ticketID)
	}
	c.mu.Unlock()

	go c.readLoop(ws)

	// Re-enter rooms from before a reconnect; rejoining is harmless.
	for _, ticketID := range rejoin {
		c.sendJoin(ticketID)
	}
	return nil
}

// Connected reports whether the streaming channel is currently live.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws != nil
}

// Subscribe registers a handler for one event kind. Multiple handlers per
// kind are allowed.
func (c *Conn) Subscribe(kind realtime.EventKind, handler EventHandler) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers[kind] == nil {
		c.handlers[kind] = make(map[uint64]EventHandler)
	}
	c.nextID++
	c.handlers[kind][c.nextID] = handler
	return &Subscription{kind: kind, id: c.nextID, conn: c}
}

func (c *Conn) unsubscribe(kind realtime.EventKind, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers[kind], id)
}

// JoinTicket signals room entry, fire and forget. The room is remembered so
// a reconnect re-enters it.
func (c *Conn) JoinTicket(ticketID string) {
	c.mu.Lock()
	c.joined[ticketID] = struct{}{}
	c.mu.Unlock()
	c.sendJoin(ticketID)
}

// LeaveTicket drops the room from the rejoin set; used on view teardown.
func (c *Conn) LeaveTicket(ticketID string) {
	c.mu.Lock()
	delete(c.joined, ticketID)
	c.mu.Unlock()
}

func (c *Conn) sendJoin(ticketID string) {
	env, err := realtime.NewEnvelope(realtime.EventJoinTicket, realtime.JoinTicketPayload{TicketID: ticketID})
	if err != nil {
		return
	}
	if err := c.write(env); err != nil {
		c.logger.Debug("join_ticket send failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

// EmitTyping broadcasts a typing signal, unacknowledged.
func (c *Conn) EmitTyping(ticketID string, active bool) error {
	env, err := realtime.NewEnvelope(realtime.EventTyping, realtime.TypingPayload{
		TicketID: ticketID,
		IsTyping: active,
	})
	if err != nil {
		return err
	}
	return c.write(env)
}

// SendMessage emits a send_message envelope and races the server ack
// against the timeout. The loser of the race is abandoned: the pending slot
// is removed so a late ack is dropped instead of leaking the channel.
func (c *Conn) SendMessage(ctx context.Context, payload realtime.SendMessagePayload, timeout time.Duration) (*realtime.MessageAckPayload, error) {
	env, err := realtime.NewEnvelope(realtime.EventSendMessage, payload)
	if err != nil {
		return nil, err
	}

	ackCh := make(chan realtime.MessageAckPayload, 1)
	c.mu.Lock()
	if c.ws == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.pending[payload.CorrelationID] = ackCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, payload.CorrelationID)
		c.mu.Unlock()
	}()

	if err := c.write(env); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ack := <-ackCh:
		return &ack, nil
	case <-timer.C:
		return nil, ErrAckTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close tears the connection down and releases every handler. The Conn is
// unusable afterwards; it exists for process shutdown, not view teardown.
func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	ws := c.ws
	c.ws = nil
	c.handlers = make(map[realtime.EventKind]map[uint64]EventHandler)
	c.pending = make(map[string]chan realtime.MessageAckPayload)
	c.joined = make(map[string]struct{})
	c.mu.Unlock()
	if ws != nil {
		_ = ws.Close()
	}
}

func (c *Conn) write(env realtime.Envelope) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	err := ws.WriteJSON(env)
	c.writeMu.Unlock()
	if err != nil {
		c.dropConn(ws)
		return err
	}
	return nil
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		var env realtime.Envelope
		if err := ws.ReadJSON(&env); err != nil {
			c.logger.Debug("streaming read ended", zap.Error(err))
			c.dropConn(ws)
			return
		}
		c.dispatch(env)
	}
}

func (c *Conn) dispatch(env realtime.Envelope) {
	if env.Kind == realtime.EventMessageAck {
		var ack realtime.MessageAckPayload
		if err := env.DecodeInto(&ack); err != nil {
			return
		}
		c.mu.Lock()
		ch := c.pending[ack.CorrelationID]
		c.mu.Unlock()
		if ch != nil {
			select {
			case ch <- ack:
			default:
			}
		}
		return
	}

	c.mu.Lock()
	handlers := make([]EventHandler, 0, len(c.handlers[env.Kind]))
	for _, handler := range c.handlers[env.Kind] {
		handlers = append(handlers, handler)
	}
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(env)
	}
}

// dropConn clears the connection if it is still the current one, leaving the
// manager retry-eligible.
func (c *Conn) dropConn(ws *websocket.Conn) {
	c.mu.Lock()
	if c.ws == ws {
		c.ws = nil
	}
	c.mu.Unlock()
	_ = ws.Close()
}
