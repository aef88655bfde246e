package dedup

import (
	"context"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultTTL = 30 * time.Second

// releaseScript deletes the lease only when it still holds our token, so an
// expired lease taken over by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is the guard shared by every instance. Leases expire after TTL so a
// crashed worker cannot block a message forever.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Guard = (*Redis)(nil)

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func leaseKey(messageID string) string {
	return "dedup:message:" + messageID
}

func (g *Redis) Acquire(ctx context.Context, messageID string) (func(), bool, error) {
	token := uuid.NewString()
	key := leaseKey(messageID)

	ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return func() {}, false, err
	}
	if !ok {
		return func() {}, false, nil
	}

	return func() {
		// The worker's context may already be done; the release must still run.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, g.client, []string{key}, token).Err(); err != nil {
			observability.GetLogger(ctx).Warn("dedup: failed to release lease",
				zap.String("message_id", messageID), zap.Error(err))
		}
	}, true, nil
}
