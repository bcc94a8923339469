package client

import (
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-chat/internal/domain"
)

// CacheStore is a session-scoped warm store for recent thread windows,
// keyed by ticket id. Reads and writes are best effort; a write error never
// disturbs the live buffer.
type CacheStore interface {
	Put(ticketID string, messages []domain.Message) error
	Get(ticketID string) ([]domain.Message, bool)
	Evict(ticketID string)
}

// SessionCache is the in-process CacheStore. It survives ticket-view
// switches within one client session and dies with the process.
type SessionCache struct {
	mu      sync.RWMutex
	windows map[string][]domain.Message
}

// NewSessionCache constructs an empty cache.
func NewSessionCache() *SessionCache {
	return &SessionCache{windows: make(map[string][]domain.Message)}
}

func (c *SessionCache) Put(ticketID string, messages []domain.Message) error {
	window := make([]domain.Message, len(messages))
	copy(window, messages)
	c.mu.Lock()
	c.windows[ticketID] = window
	c.mu.Unlock()
	return nil
}

func (c *SessionCache) Get(ticketID string) ([]domain.Message, bool) {
	c.mu.RLock()
	window, ok := c.windows[ticketID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	out := make([]domain.Message, len(window))
	copy(out, window)
	return out, true
}

func (c *SessionCache) Evict(ticketID string) {
	c.mu.Lock()
	delete(c.windows, ticketID)
	c.mu.Unlock()
}

// MessageBuffer is the bounded in-memory window behind one ticket view. It
// holds at most cap messages during normal operation, dropping from the
// front on overflow, and mirrors its window into the warm cache after every
// mutation. After LoadEarlier it holds the full thread and the bound no
// longer applies for the life of the view.
type MessageBuffer struct {
	ticketID string
	cap      int
	store    CacheStore
	logger   *zap.Logger

	mu        sync.Mutex
	messages  []domain.Message
	truncated bool
	hasOlder  bool
	unbounded bool
}

// NewMessageBuffer constructs an empty buffer for one ticket view.
func NewMessageBuffer(ticketID string, capacity int, store CacheStore, logger *zap.Logger) *MessageBuffer {
	return &MessageBuffer{
		ticketID: ticketID,
		cap:      capacity,
		store:    store,
		logger:   logger,
	}
}

// HydrateFromCache seeds the buffer from the warm cache so the view renders
// immediately while the authoritative fetch is in flight. Returns false
// when the cache has nothing for this ticket.
func (b *MessageBuffer) HydrateFromCache() bool {
	if b.store == nil {
		return false
	}
	window, ok := b.store.Get(b.ticketID)
	if !ok {
		return false
	}
	b.mu.Lock()
	b.messages = window
	b.mu.Unlock()
	return true
}

// Hydrate replaces the buffer with an authoritative history read. total is
// the full thread length; when it exceeds what fits, only the most recent
// cap messages are kept and the truncation flags are set.
func (b *MessageBuffer) Hydrate(messages []domain.Message, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	window := messages
	if len(window) > b.cap {
		window = window[len(window)-b.cap:]
	}
	b.messages = make([]domain.Message, len(window))
	copy(b.messages, window)

	b.truncated = total > len(b.messages)
	b.hasOlder = b.truncated
	b.unbounded = false
	b.writeCache()
}

// Append adds one live message. Duplicates, by id or correlation id, are
// dropped so an ack-adopted message and its broadcast echo cannot both
// land. On overflow the oldest message is evicted and the truncation flags
// are set; the evicted message remains durable server-side.
func (b *MessageBuffer) Append(msg domain.Message) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.messages {
		if b.messages[i].ID == msg.ID ||
			(msg.CorrelationID != "" && b.messages[i].CorrelationID == msg.CorrelationID) {
			return false
		}
	}

	b.messages = append(b.messages, msg)
	if !b.unbounded && len(b.messages) > b.cap {
		b.messages = b.messages[len(b.messages)-b.cap:]
		b.truncated = true
		b.hasOlder = true
	}
	b.writeCache()
	return true
}

// LoadEarlier replaces the buffer with the full thread history and clears
// the truncation flags. The view holds everything from here on.
func (b *MessageBuffer) LoadEarlier(full []domain.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.messages = make([]domain.Message, len(full))
	copy(b.messages, full)
	b.truncated = false
	b.hasOlder = false
	b.unbounded = true
	b.writeCache()
}

// Snapshot returns a copy of the window plus the truncation flags.
func (b *MessageBuffer) Snapshot() (messages []domain.Message, truncated, hasOlder bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Message, len(b.messages))
	copy(out, b.messages)
	return out, b.truncated, b.hasOlder
}

// Len reports the current window size.
func (b *MessageBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

// writeCache mirrors the most recent cap messages into the warm cache.
// Callers hold b.mu.
func (b *MessageBuffer) writeCache() {
	if b.store == nil {
		return
	}
	window := b.messages
	if len(window) > b.cap {
		window = window[len(window)-b.cap:]
	}
	if err := b.store.Put(b.ticketID, window); err != nil {
		b.logger.Debug("warm cache write failed",
			zap.String("ticket_id", b.ticketID),
			zap.Error(err))
	}
}
