package observability

import (
	"strconv"
	"sync"
	"time"
)

// DeliveryPath labels which channel carried a persisted message.
type DeliveryPath string

const (
	PathStream   DeliveryPath = "stream"
	PathDurable  DeliveryPath = "durable"
	PathRejected DeliveryPath = "rejected"
)

// Metrics provides basic in-memory counters for the chat protocol.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	deliveries   map[DeliveryPath]int64
	duplicates   int64
	broadcasts   map[string]int64
	sessionDrops int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		deliveries:   make(map[DeliveryPath]int64),
		broadcasts:   make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordDelivery counts a message persisted via the given channel.
func (m *Metrics) RecordDelivery(path DeliveryPath) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries[path]++
}

// RecordDuplicate counts a send suppressed by correlation id.
func (m *Metrics) RecordDuplicate() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duplicates++
}

// RecordBroadcast counts a room or role fan-out.
func (m *Metrics) RecordBroadcast(kind string, receivers int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts[kind] += int64(receivers)
}

// RecordSessionDrop counts a slow websocket session being evicted.
func (m *Metrics) RecordSessionDrop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionDrops++
}
