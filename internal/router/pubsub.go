package router

import (
	"context"
	"encoding/json"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Notifier publishes a JSON payload to a live-update channel. Delivery to
// subscribers is best effort.
type Notifier interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// Router carries live updates between instances over Redis pub/sub. Every
// instance pattern-subscribes and fans out to its own websocket sessions.
type Router struct {
	client     *redis.Client
	instanceID string
}

var _ Notifier = (*Router)(nil)

func New(client *redis.Client, instanceID string) *Router {
	return &Router{client: client, instanceID: instanceID}
}

func (r *Router) Publish(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	observability.GetLogger(ctx).Debug("publishing live update", zap.String("channel", channel))
	return r.client.Publish(ctx, channel, data).Err()
}

func (r *Router) Subscribe(ctx context.Context, handler func(channel string, payload []byte), patterns ...string) {
	pubsub := r.client.PSubscribe(ctx, patterns...)

	go func() {
		log := observability.GetLogger(ctx)
		log.Info("router: subscribed", zap.Strings("patterns", patterns), zap.String("instance_id", r.instanceID))
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				log.Info("router: subscription loop stopping: context canceled")
				return
			case msg, ok := <-ch:
				if !ok {
					log.Warn("router: pubsub channel closed")
					return
				}
				handler(msg.Channel, []byte(msg.Payload))
			}
		}
	}()
}
