// Package cache provides the server-side warm cache of recent messages per
// ticket. It is strictly best-effort: reads fall through to Postgres and
// write failures are logged at debug level and swallowed.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-chat/internal/domain"
)

// MessageCache keeps the last cap messages of a ticket in a Redis list.
type MessageCache struct {
	client *redis.Client
	cap    int
	ttl    time.Duration
	logger *zap.Logger
}

// NewMessageCache constructs the cache. A nil client disables it.
func NewMessageCache(client *redis.Client, cap int, ttl time.Duration, logger *zap.Logger) *MessageCache {
	return &MessageCache{client: client, cap: cap, ttl: ttl, logger: logger}
}

func (c *MessageCache) key(ticketID string) string {
	return fmt.Sprintf("ticket:%s:recent", ticketID)
}

// Append pushes a persisted message onto the ticket's recent list, trimming
// to capacity. RPUSHX only extends a list that already exists: the window is
// seeded exclusively by Replace from a full history read, so a missing or
// expired key stays missing instead of becoming a partial list that readers
// would mistake for the whole thread.
func (c *MessageCache) Append(ctx context.Context, msg *domain.Message) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Debug("cache marshal failed", zap.Error(err))
		return
	}
	key := c.key(msg.TicketID)
	pipe := c.client.TxPipeline()
	pipe.RPushX(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-c.cap), -1)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Debug("cache append failed", zap.Error(err))
	}
}

// Replace rewrites the ticket's recent list from a fresh history read.
func (c *MessageCache) Replace(ctx context.Context, ticketID string, msgs []domain.Message) {
	if c == nil || c.client == nil {
		return
	}
	start := 0
	if len(msgs) > c.cap {
		start = len(msgs) - c.cap
	}
	values := make([]any, 0, len(msgs)-start)
	for _, msg := range msgs[start:] {
		data, err := json.Marshal(msg)
		if err != nil {
			c.logger.Debug("cache marshal failed", zap.Error(err))
			return
		}
		values = append(values, data)
	}

	key := c.key(ticketID)
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(values) > 0 {
		pipe.RPush(ctx, key, values...)
	}
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Debug("cache replace failed", zap.Error(err))
	}
}

// Recent returns the cached recent window for a ticket, oldest first. A miss
// or any error returns ok=false and the caller reads the durable store.
func (c *MessageCache) Recent(ctx context.Context, ticketID string) ([]domain.Message, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.LRange(ctx, c.key(ticketID), 0, -1).Result()
	if err != nil || len(raw) == 0 {
		return nil, false
	}
	msgs := make([]domain.Message, 0, len(raw))
	for _, item := range raw {
		var msg domain.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, false
		}
		msgs = append(msgs, msg)
	}
	return msgs, true
}

// Evict drops the cached window for the given tickets, e.g. after deletion.
func (c *MessageCache) Evict(ctx context.Context, ticketIDs ...string) {
	if c == nil || c.client == nil || len(ticketIDs) == 0 {
		return
	}
	keys := make([]string, len(ticketIDs))
	for i, id := range ticketIDs {
		keys[i] = c.key(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Debug("cache evict failed", zap.Error(err))
	}
}
