package websocket

import (
	"context"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"go.uber.org/zap"
)

const heartbeatInterval = 20 * time.Second

type sessionRefresher interface {
	Refresh(ctx context.Context, userID, deviceID string) error
}

// StartHeartbeat keeps the device's presence key alive until done closes.
func StartHeartbeat(p sessionRefresher, userID, deviceID string, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()

		ctx := context.Background()

		for {
			select {
			case <-ticker.C:
				if err := p.Refresh(ctx, userID, deviceID); err != nil {
					observability.GetLogger(ctx).Warn("heartbeat: presence refresh failed",
						zap.String("user_id", userID), zap.String("device_id", deviceID), zap.Error(err))
				}
			case <-done:
				return
			}
		}
	}()
}
