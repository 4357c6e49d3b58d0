package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Cache key pattern:
// - unread:{conv_id}:{user_id} - 60s TTL, unread badge count

// UnreadCacheConfig contains configuration for the unread counter cache
type UnreadCacheConfig struct {
	TTL time.Duration
}

// DefaultUnreadCacheConfig returns sensible defaults
func DefaultUnreadCacheConfig() UnreadCacheConfig {
	return UnreadCacheConfig{TTL: 60 * time.Second}
}

// UnreadCache caches per-member unread counts in Redis. The SQL count is the
// source of truth; entries are invalidated whenever a message lands in the
// conversation.
type UnreadCache struct {
	client *goredis.Client
	config UnreadCacheConfig
}

func NewUnreadCache(client *goredis.Client, config UnreadCacheConfig) *UnreadCache {
	return &UnreadCache{client: client, config: config}
}

func unreadKey(conversationID, userID int64) string {
	return fmt.Sprintf("unread:%d:%d", conversationID, userID)
}

// Get retrieves a cached count. The second return is false on a miss.
func (c *UnreadCache) Get(ctx context.Context, conversationID, userID int64) (int64, bool, error) {
	data, err := c.client.Get(ctx, unreadKey(conversationID, userID)).Result()
	if err == goredis.Nil {
		return 0, false, nil // Cache miss
	}
	if err != nil {
		return 0, false, err
	}
	count, err := strconv.ParseInt(data, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}

// Set stores a count.
func (c *UnreadCache) Set(ctx context.Context, conversationID, userID int64, count int64) error {
	return c.client.Set(ctx, unreadKey(conversationID, userID), count, c.config.TTL).Err()
}

// Invalidate drops one member's cached count.
func (c *UnreadCache) Invalidate(ctx context.Context, conversationID, userID int64) error {
	return c.client.Del(ctx, unreadKey(conversationID, userID)).Err()
}

// InvalidateConversation drops every member's cached count for the
// conversation.
func (c *UnreadCache) InvalidateConversation(ctx context.Context, conversationID int64) error {
	pattern := fmt.Sprintf("unread:%d:*", conversationID)
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()

	var keysToDelete []string
	for iter.Next(ctx) {
		keysToDelete = append(keysToDelete, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}

	if len(keysToDelete) > 0 {
		return c.client.Del(ctx, keysToDelete...).Err()
	}
	return nil
}

// Ping checks if Redis is available
func (c *UnreadCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
