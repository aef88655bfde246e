package presence

import (
	"context"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/router"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const TTL = 60 * time.Second

// Reachability is the only presence question the delivery pipeline asks.
type Reachability interface {
	IsOnline(ctx context.Context, userID string) (bool, error)
}

// Presence tracks live devices per user in Redis. A user is online while at
// least one device session key has not expired.
type Presence struct {
	client   *redis.Client
	notifier router.Notifier
	now      func() time.Time
}

var _ Reachability = (*Presence)(nil)

func New(client *redis.Client, notifier router.Notifier) *Presence {
	return &Presence{client: client, notifier: notifier, now: time.Now}
}

func sessionKey(userID, deviceID string) string {
	return "session:" + userID + ":" + deviceID
}

func userDevicesKey(userID string) string {
	return "presence:user:" + userID + ":devices"
}

func (p *Presence) Register(ctx context.Context, userID, deviceID, instanceID string) error {
	pipe := p.client.TxPipeline()

	pipe.Set(ctx, sessionKey(userID, deviceID), instanceID, TTL)
	pipe.SAdd(ctx, userDevicesKey(userID), deviceID)
	pipe.Expire(ctx, userDevicesKey(userID), TTL+time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	return p.PublishUpdate(ctx, userID, domain.PresenceOnline)
}

// Unregister drops one device and broadcasts OFFLINE once the user has no
// devices left.
func (p *Presence) Unregister(ctx context.Context, userID, deviceID string) error {
	pipe := p.client.TxPipeline()

	pipe.Del(ctx, sessionKey(userID, deviceID))
	pipe.SRem(ctx, userDevicesKey(userID), deviceID)

	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	devices, err := p.GetUserDevices(ctx, userID)
	if err != nil || len(devices) == 0 {
		return p.PublishUpdate(ctx, userID, domain.PresenceOffline)
	}

	return nil
}

func (p *Presence) Refresh(ctx context.Context, userID, deviceID string) error {
	pipe := p.client.TxPipeline()
	pipe.Expire(ctx, sessionKey(userID, deviceID), TTL)
	pipe.Expire(ctx, userDevicesKey(userID), TTL+time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *Presence) PublishUpdate(ctx context.Context, userID string, status domain.PresenceStatus) error {
	event := domain.PresenceEvent{
		UserID:     userID,
		Status:     status,
		OccurredAt: p.now().Unix(),
	}
	return p.notifier.Publish(ctx, router.PresenceChannel, event)
}

func (p *Presence) IsOnline(ctx context.Context, userID string) (bool, error) {
	devices, err := p.GetUserDevices(ctx, userID)
	if err != nil {
		return false, err
	}
	return len(devices) > 0, nil
}

// GetUserDevices maps device id to the instance holding its connection.
// Devices whose session key expired are pruned in the background.
func (p *Presence) GetUserDevices(ctx context.Context, userID string) (map[string]string, error) {
	log := observability.GetLogger(ctx)

	deviceIDs, err := p.client.SMembers(ctx, userDevicesKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	if len(deviceIDs) == 0 {
		return make(map[string]string), nil
	}

	keys := make([]string, len(deviceIDs))
	for i, dID := range deviceIDs {
		keys[i] = sessionKey(userID, dID)
	}

	instances, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[string]string)
	var staleDevices []any

	for i, instance := range instances {
		dID := deviceIDs[i]
		if instance == nil {
			staleDevices = append(staleDevices, dID)
			continue
		}
		if instStr, ok := instance.(string); ok {
			result[dID] = instStr
		}
	}

	if len(staleDevices) > 0 {
		go func() {
			err := p.client.SRem(context.Background(), userDevicesKey(userID), staleDevices...).Err()
			if err != nil {
				log.Error("presence: failed to clean up stale devices", zap.String("user_id", userID), zap.Error(err))
			}
		}()
	}

	return result, nil
}
