package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 10 * time.Minute

// Cache is a read-through cache for conversation rows.
type Cache struct {
	Client *redis.Client
	TTL    time.Duration
}

func New(client *redis.Client) *Cache {
	return &Cache{Client: client, TTL: DefaultTTL}
}

func conversationKey(id string) string {
	return "conversation:" + id
}

// GetConversation returns nil, nil on a miss.
func (c *Cache) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	data, err := c.Client.Get(ctx, conversationKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var conv domain.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *Cache) SetConversation(ctx context.Context, conv *domain.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, conversationKey(conv.ID), data, c.TTL).Err()
}

func (c *Cache) DeleteConversation(ctx context.Context, id string) error {
	return c.Client.Del(ctx, conversationKey(id)).Err()
}
