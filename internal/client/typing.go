package client

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-chat/internal/domain"
	"github.com/spec-kit/ticket-chat/internal/realtime"
)

// typingEmitter is satisfied by *Conn.
type typingEmitter interface {
	EmitTyping(ticketID string, active bool) error
}

// TypingNotifier debounces local keystrokes into at most one active signal
// per burst. The first keystroke emits active=true; each further keystroke
// re-arms the expiry timer; when the window elapses with no keystroke an
// active=false signal goes out. Emission failures are logged and dropped,
// presence is advisory.
type TypingNotifier struct {
	emitter  typingEmitter
	ticketID string
	window   time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	timer  *time.Timer
	active bool
}

// NewTypingNotifier constructs a notifier for one ticket view.
func NewTypingNotifier(emitter typingEmitter, ticketID string, window time.Duration, logger *zap.Logger) *TypingNotifier {
	return &TypingNotifier{
		emitter:  emitter,
		ticketID: ticketID,
		window:   window,
		logger:   logger,
	}
}

// Keystroke records one local input event.
func (n *TypingNotifier) Keystroke() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.active {
		n.active = true
		n.emit(true)
	}
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(n.window, n.expire)
}

func (n *TypingNotifier) expire() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.active {
		return
	}
	n.active = false
	n.timer = nil
	n.emit(false)
}

// Stop cancels any pending expiry and clears remote state. Call on view
// teardown so the other side is not left showing a stale indicator.
func (n *TypingNotifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	if n.active {
		n.active = false
		n.emit(false)
	}
}

func (n *TypingNotifier) emit(active bool) {
	if err := n.emitter.EmitTyping(n.ticketID, active); err != nil {
		n.logger.Debug("typing emit failed",
			zap.String("ticket_id", n.ticketID),
			zap.Bool("active", active),
			zap.Error(err))
	}
}

// ObserveTyping subscribes fn to typing signals for one ticket, filtering
// out other rooms and the local account's own echo.
func ObserveTyping(conn *Conn, ticketID, selfID string, fn func(domain.TypingSignal)) *Subscription {
	return conn.Subscribe(realtime.EventTyping, func(env realtime.Envelope) {
		var payload realtime.TypingPayload
		if err := env.DecodeInto(&payload); err != nil {
			return
		}
		if payload.TicketID != ticketID || payload.SenderID == selfID {
			return
		}
		fn(domain.TypingSignal{
			TicketID: payload.TicketID,
			SenderID: payload.SenderID,
			Active:   payload.IsTyping,
		})
	})
}
