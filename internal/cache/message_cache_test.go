package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-chat/internal/domain"
)

func newTestCache(t *testing.T, cap int) (*MessageCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewMessageCache(client, cap, time.Minute, zap.NewNop()), mr
}

func cacheMessages(n int) []domain.Message {
	msgs := make([]domain.Message, n)
	for i := range msgs {
		msgs[i] = domain.Message{
			ID:            fmt.Sprintf("m%03d", i),
			TicketID:      "t1",
			Body:          fmt.Sprintf("body %d", i),
			CorrelationID: fmt.Sprintf("c%03d", i),
		}
	}
	return msgs
}

func TestMessageCacheReplaceThenRecent(t *testing.T) {
	c, _ := newTestCache(t, 10)
	ctx := context.Background()

	c.Replace(ctx, "t1", cacheMessages(3))

	got, ok := c.Recent(ctx, "t1")
	require.True(t, ok)
	require.Len(t, got, 3)
	require.Equal(t, "m000", got[0].ID)
	require.Equal(t, "m002", got[2].ID)
}

func TestMessageCacheAppendExtendsSeededWindow(t *testing.T) {
	c, _ := newTestCache(t, 10)
	ctx := context.Background()

	c.Replace(ctx, "t1", cacheMessages(2))
	c.Append(ctx, &domain.Message{ID: "m-new", TicketID: "t1", Body: "hi", CorrelationID: "c-new"})

	got, ok := c.Recent(ctx, "t1")
	require.True(t, ok)
	require.Len(t, got, 3)
	require.Equal(t, "m-new", got[2].ID)
}

func TestMessageCacheAppendDoesNotCreateWindow(t *testing.T) {
	c, mr := newTestCache(t, 10)
	ctx := context.Background()

	// A send against a ticket whose window was never seeded, or whose key
	// expired, must not leave a one-message list behind.
	c.Append(ctx, &domain.Message{ID: "m-new", TicketID: "t1", Body: "hi", CorrelationID: "c-new"})
	_, ok := c.Recent(ctx, "t1")
	require.False(t, ok)

	c.Replace(ctx, "t1", cacheMessages(5))
	mr.FlushAll()
	c.Append(ctx, &domain.Message{ID: "m-late", TicketID: "t1", Body: "hi", CorrelationID: "c-late"})
	_, ok = c.Recent(ctx, "t1")
	require.False(t, ok)
}

func TestMessageCacheAppendTrimsToCap(t *testing.T) {
	c, _ := newTestCache(t, 3)
	ctx := context.Background()

	c.Replace(ctx, "t1", cacheMessages(3))
	c.Append(ctx, &domain.Message{ID: "m-new", TicketID: "t1", Body: "hi", CorrelationID: "c-new"})

	got, ok := c.Recent(ctx, "t1")
	require.True(t, ok)
	require.Len(t, got, 3)
	require.Equal(t, "m001", got[0].ID)
	require.Equal(t, "m-new", got[2].ID)
}

func TestMessageCacheEvict(t *testing.T) {
	c, _ := newTestCache(t, 10)
	ctx := context.Background()

	c.Replace(ctx, "t1", cacheMessages(2))
	c.Replace(ctx, "t2", cacheMessages(2))
	c.Evict(ctx, "t1")

	_, ok := c.Recent(ctx, "t1")
	require.False(t, ok)
	_, ok = c.Recent(ctx, "t2")
	require.True(t, ok)
}

func TestMessageCacheNilClientDisabled(t *testing.T) {
	c := NewMessageCache(nil, 10, time.Minute, zap.NewNop())
	ctx := context.Background()

	c.Append(ctx, &domain.Message{ID: "m1", TicketID: "t1"})
	c.Replace(ctx, "t1", cacheMessages(2))
	c.Evict(ctx, "t1")
	_, ok := c.Recent(ctx, "t1")
	require.False(t, ok)
}
