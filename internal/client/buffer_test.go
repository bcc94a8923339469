package client

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-chat/internal/domain"
)

func bufferMessages(n int) []domain.Message {
	msgs := make([]domain.Message, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, domain.Message{
			ID:            fmt.Sprintf("m%03d", i),
			CorrelationID: fmt.Sprintf("c%03d", i),
			Body:          fmt.Sprintf("message %d", i),
		})
	}
	return msgs
}

func TestBufferHydrateWithinCap(t *testing.T) {
	buf := NewMessageBuffer("t1", 5, nil, zap.NewNop())
	buf.Hydrate(bufferMessages(3), 3)

	msgs, truncated, hasOlder := buf.Snapshot()
	require.Len(t, msgs, 3)
	require.False(t, truncated)
	require.False(t, hasOlder)
}

func TestBufferHydrateTrimsToMostRecent(t *testing.T) {
	buf := NewMessageBuffer("t1", 5, nil, zap.NewNop())
	buf.Hydrate(bufferMessages(8), 8)

	msgs, truncated, hasOlder := buf.Snapshot()
	require.Len(t, msgs, 5)
	require.Equal(t, "m003", msgs[0].ID, "the oldest kept message is the total minus cap boundary")
	require.Equal(t, "m007", msgs[4].ID)
	require.True(t, truncated)
	require.True(t, hasOlder)
}

func TestBufferHydrateServerTrimmedWindow(t *testing.T) {
	// The server already limited the window; total still signals older rows.
	buf := NewMessageBuffer("t1", 5, nil, zap.NewNop())
	buf.Hydrate(bufferMessages(5), 42)

	msgs, truncated, hasOlder := buf.Snapshot()
	require.Len(t, msgs, 5)
	require.True(t, truncated)
	require.True(t, hasOlder)
}

func TestBufferAppendOverflowDropsOldest(t *testing.T) {
	buf := NewMessageBuffer("t1", 3, nil, zap.NewNop())
	for _, msg := range bufferMessages(4) {
		require.True(t, buf.Append(msg))
	}

	msgs, truncated, hasOlder := buf.Snapshot()
	require.Len(t, msgs, 3)
	require.Equal(t, "m001", msgs[0].ID)
	require.True(t, truncated)
	require.True(t, hasOlder)
}

func TestBufferAppendDeduplicates(t *testing.T) {
	buf := NewMessageBuffer("t1", 10, nil, zap.NewNop())
	msg := domain.Message{ID: "m1", CorrelationID: "c1", Body: "hi"}

	require.True(t, buf.Append(msg))
	require.False(t, buf.Append(msg), "same id must be dropped")
	require.False(t, buf.Append(domain.Message{ID: "m2", CorrelationID: "c1"}),
		"an ack-adopted message and its broadcast echo share a correlation id")
	require.True(t, buf.Append(domain.Message{ID: "m3", CorrelationID: "c3"}))
	require.Equal(t, 2, buf.Len())
}

func TestBufferLoadEarlierClearsFlagsAndUnbounds(t *testing.T) {
	buf := NewMessageBuffer("t1", 3, nil, zap.NewNop())
	buf.Hydrate(bufferMessages(6), 6)

	_, truncated, _ := buf.Snapshot()
	require.True(t, truncated)

	full := bufferMessages(6)
	buf.LoadEarlier(full)

	msgs, truncated, hasOlder := buf.Snapshot()
	require.Len(t, msgs, 6)
	require.False(t, truncated)
	require.False(t, hasOlder)

	// After loading the full thread the bound no longer applies.
	require.True(t, buf.Append(domain.Message{ID: "m100", CorrelationID: "c100"}))
	require.Equal(t, 7, buf.Len())
	_, truncated, _ = buf.Snapshot()
	require.False(t, truncated)
}

func TestBufferWarmCacheRoundTrip(t *testing.T) {
	cache := NewSessionCache()

	first := NewMessageBuffer("t1", 5, cache, zap.NewNop())
	first.Hydrate(bufferMessages(8), 8)

	// A new view over the same ticket hydrates from the warm window.
	second := NewMessageBuffer("t1", 5, cache, zap.NewNop())
	require.True(t, second.HydrateFromCache())
	msgs, _, _ := second.Snapshot()
	require.Len(t, msgs, 5)
	require.Equal(t, "m003", msgs[0].ID)

	// Another ticket has nothing cached.
	other := NewMessageBuffer("t2", 5, cache, zap.NewNop())
	require.False(t, other.HydrateFromCache())
}

func TestBufferWarmCacheKeepsMostRecentWindow(t *testing.T) {
	cache := NewSessionCache()
	buf := NewMessageBuffer("t1", 3, cache, zap.NewNop())
	buf.LoadEarlier(bufferMessages(7))

	window, ok := cache.Get("t1")
	require.True(t, ok)
	require.Len(t, window, 3, "the cache holds at most the bounded window even when the buffer is unbounded")
	require.Equal(t, "m004", window[0].ID)
}

type failingStore struct{}

func (failingStore) Put(string, []domain.Message) error  { return errors.New("cache down") }
func (failingStore) Get(string) ([]domain.Message, bool) { return nil, false }
func (failingStore) Evict(string)                        {}

func TestBufferCacheFailureDoesNotDisturbBuffer(t *testing.T) {
	buf := NewMessageBuffer("t1", 5, failingStore{}, zap.NewNop())
	buf.Hydrate(bufferMessages(2), 2)
	require.True(t, buf.Append(domain.Message{ID: "m9", CorrelationID: "c9"}))
	require.Equal(t, 3, buf.Len())
}
