package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/repository"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/router"
	"go.uber.org/zap"
)

const (
	// DefaultWindow is how far back a replay reaches when the client sends no checkpoint.
	DefaultWindow    = time.Hour
	DefaultBatchSize = 500
)

// Service promotes messages stuck at SENT and replays history to clients
// that come back online.
type Service struct {
	messages      repository.MessageStore
	conversations repository.ConversationStore
	notifier      router.Notifier
	batchSize     int
	now           func() time.Time
}

func New(messages repository.MessageStore, conversations repository.ConversationStore, notifier router.Notifier, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Service{
		messages:      messages,
		conversations: conversations,
		notifier:      notifier,
		batchSize:     batchSize,
		now:           time.Now,
	}
}

// SweepSent promotes every SENT message to DELIVERED, at most batchSize per call.
func (s *Service) SweepSent(ctx context.Context) error {
	msgs, err := s.messages.FindMessages(ctx, repository.MessageFilter{
		Statuses: []domain.MessageStatus{domain.StatusSent},
		Limit:    s.batchSize,
	})
	if err != nil {
		return fmt.Errorf("query sent messages: %w", err)
	}

	promoted := s.promoteAll(ctx, msgs, "sweep")
	if promoted > 0 {
		observability.GetLogger(ctx).Info("sync: sweep promoted messages", zap.Int("count", promoted))
	}
	return nil
}

// ProcessPendingMessages promotes what other participants sent the user while
// they were away. It returns how many messages were promoted.
func (s *Service) ProcessPendingMessages(ctx context.Context, userID string) (int, error) {
	convIDs, err := s.conversationIDs(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(convIDs) == 0 {
		return 0, nil
	}

	msgs, err := s.messages.FindMessages(ctx, repository.MessageFilter{
		Statuses:        []domain.MessageStatus{domain.StatusSent},
		ConversationIDs: convIDs,
		ExcludeSenderID: userID,
	})
	if err != nil {
		return 0, fmt.Errorf("query undelivered messages: %w", err)
	}

	return s.promoteAll(ctx, msgs, "catchup"), nil
}

// Synchronize streams every message in the user's conversations sent strictly
// after since to the user's private channel, oldest first. Status is not
// touched. A zero since means the last DefaultWindow.
func (s *Service) Synchronize(ctx context.Context, userID string, since time.Time) (int, error) {
	log := observability.GetLogger(ctx).With(zap.String("user_id", userID))

	if since.IsZero() {
		since = s.now().Add(-DefaultWindow)
	}

	convIDs, err := s.conversationIDs(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(convIDs) == 0 {
		return 0, nil
	}

	msgs, err := s.messages.FindMessages(ctx, repository.MessageFilter{
		ConversationIDs: convIDs,
		SentAfter:       since,
	})
	if err != nil {
		return 0, fmt.Errorf("query messages since %s: %w", since.Format(time.RFC3339), err)
	}

	channel := router.UserMessagesChannel(userID)
	streamed := 0
	for _, msg := range msgs {
		if err := s.notifier.Publish(ctx, channel, msg); err != nil {
			observability.LivePushFailuresTotal.WithLabelValues("replay").Inc()
			log.Warn("sync: replay push failed", zap.String("message_id", msg.ID), zap.Error(err))
			continue
		}
		streamed++
	}

	log.Info("sync: replay finished", zap.Int("count", streamed), zap.Time("since", since))
	return streamed, nil
}

// Reconnect is the full catch-up a client triggers after reconnecting:
// promote, replay, then tell the client the replay is over.
func (s *Service) Reconnect(ctx context.Context, userID string, since time.Time) (domain.SyncComplete, error) {
	if _, err := s.ProcessPendingMessages(ctx, userID); err != nil {
		observability.GetLogger(ctx).Error("sync: catch-up failed",
			zap.String("user_id", userID), zap.Error(err))
	}

	count, err := s.Synchronize(ctx, userID, since)
	if err != nil {
		return domain.SyncComplete{}, err
	}

	done := domain.SyncComplete{
		Status:      "complete",
		SyncedCount: count,
		Timestamp:   s.now(),
	}
	if err := s.notifier.Publish(ctx, router.UserSyncChannel(userID), done); err != nil {
		observability.LivePushFailuresTotal.WithLabelValues("sync").Inc()
		observability.GetLogger(ctx).Warn("sync: completion push failed",
			zap.String("user_id", userID), zap.Error(err))
	}
	return done, nil
}

func (s *Service) conversationIDs(ctx context.Context, userID string) ([]string, error) {
	convs, err := s.conversations.ListConversationsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations for %s: %w", userID, err)
	}
	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func (s *Service) promoteAll(ctx context.Context, msgs []*domain.Message, path string) int {
	log := observability.GetLogger(ctx)
	now := s.now()
	promoted := 0

	for _, msg := range msgs {
		prev := msg.Status
		if !msg.MarkDelivered(now) {
			continue
		}
		err := s.messages.SaveMessage(ctx, msg, prev)
		if errors.Is(err, domain.ErrStaleStatus) {
			log.Debug("sync: message moved since it was read, skipping",
				zap.String("message_id", msg.ID), zap.String("path", path))
			continue
		}
		if err != nil {
			log.Error("sync: failed to promote message",
				zap.String("message_id", msg.ID), zap.String("path", path), zap.Error(err))
			continue
		}
		promoted++
		observability.MessagesPromotedTotal.WithLabelValues(path).Inc()
		observability.MessageDeliveryLatency.Observe(now.Sub(msg.SentAt).Seconds())

		if err := s.notifier.Publish(ctx, router.StatusChannel(msg.ConversationID), msg); err != nil {
			observability.LivePushFailuresTotal.WithLabelValues("status").Inc()
			log.Warn("sync: status push failed", zap.String("message_id", msg.ID), zap.Error(err))
		}
	}
	return promoted
}
