package realtime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-chat/internal/domain"
	"github.com/spec-kit/ticket-chat/internal/observability"
)

// Session represents one connected websocket client from the hub's point of
// view. The send queue is bounded; a session that cannot keep up is dropped
// rather than allowed to block room broadcasts.
type Session struct {
	AccountID string
	Role      domain.Role
	Send      chan Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewSession constructs a session with a bounded send queue.
func NewSession(accountID string, role domain.Role, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Session{
		AccountID: accountID,
		Role:      role,
		Send:      make(chan Envelope, queueSize),
		done:      make(chan struct{}),
	}
}

// Done is closed when the session is shutting down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close signals the session goroutines to stop. Idempotent. Send is left
// open so concurrent broadcasters never panic on a closed channel.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Hub tracks connected sessions and their ticket room membership and fans
// envelopes out to rooms. The hub owns no transport; the websocket handler
// pumps Session.Send onto the wire.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
	rooms    map[string]map[*Session]struct{}

	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewHub constructs an empty hub.
func NewHub(logger *zap.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		sessions: make(map[*Session]struct{}),
		rooms:    make(map[string]map[*Session]struct{}),
		logger:   logger,
		metrics:  metrics,
	}
}

// Register adds a session to the hub.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("session registered", zap.String("account_id", s.AccountID))
}

// Unregister removes a session from the hub and every room it joined.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	for ticketID, members := range h.rooms {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, ticketID)
		}
	}
	h.mu.Unlock()
	s.Close()
	h.logger.Debug("session unregistered", zap.String("account_id", s.AccountID))
}

// Join adds the session to a ticket room. Rejoining is harmless.
func (h *Hub) Join(s *Session, ticketID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[ticketID] == nil {
		h.rooms[ticketID] = make(map[*Session]struct{})
	}
	h.rooms[ticketID][s] = struct{}{}
}

// RoomSize returns the number of sessions in a ticket room.
func (h *Hub) RoomSize(ticketID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[ticketID])
}

// BroadcastRoom delivers an envelope to every session in a ticket room,
// except sessions belonging to exceptAccount when it is non-empty.
func (h *Hub) BroadcastRoom(ticketID string, env Envelope, exceptAccount string) {
	h.mu.RLock()
	members := make([]*Session, 0, len(h.rooms[ticketID]))
	for s := range h.rooms[ticketID] {
		if exceptAccount != "" && s.AccountID == exceptAccount {
			continue
		}
		members = append(members, s)
	}
	h.mu.RUnlock()

	for _, s := range members {
		h.deliver(s, env)
	}
	h.metrics.RecordBroadcast(string(env.Kind), len(members))
}

// BroadcastRole delivers an envelope to every connected session with the
// given role, regardless of room membership.
func (h *Hub) BroadcastRole(role domain.Role, env Envelope) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		if s.Role == role {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		h.deliver(s, env)
	}
	h.metrics.RecordBroadcast(string(env.Kind), len(targets))
}

// BroadcastAll delivers an envelope to every connected session.
func (h *Hub) BroadcastAll(env Envelope) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		h.deliver(s, env)
	}
	h.metrics.RecordBroadcast(string(env.Kind), len(targets))
}

// BroadcastAccount delivers an envelope to every session of one account.
func (h *Hub) BroadcastAccount(accountID string, env Envelope) {
	h.mu.RLock()
	targets := make([]*Session, 0, 1)
	for s := range h.sessions {
		if s.AccountID == accountID {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		h.deliver(s, env)
	}
}

func (h *Hub) deliver(s *Session, env Envelope) {
	select {
	case s.Send <- env:
	case <-s.Done():
	default:
		// Send queue full: the client stopped draining. Drop it.
		h.logger.Warn("dropping slow session", zap.String("account_id", s.AccountID))
		h.metrics.RecordSessionDrop()
		h.Unregister(s)
	}
}
