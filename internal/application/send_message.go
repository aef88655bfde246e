package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/router"
	"go.uber.org/zap"
)

type SendMessageCommand struct {
	SenderID       string
	ConversationID string
	Content        string
}

// SendMessage persists a message as SENT, hands a snapshot to the broker and
// pushes it to live subscribers. A failed publish leaves the message PENDING
// for the retry scheduler instead of failing the call.
func (s *Service) SendMessage(ctx context.Context, cmd SendMessageCommand) (*domain.Message, error) {
	log := observability.GetLogger(ctx).With(
		zap.String("conversation_id", cmd.ConversationID),
		zap.String("user_id", cmd.SenderID),
	)

	if _, err := s.repo.GetUser(ctx, cmd.SenderID); err != nil {
		return nil, err
	}

	conv, err := s.repo.GetConversation(ctx, cmd.ConversationID)
	if err != nil {
		return nil, err
	}
	if err := conv.CanSend(cmd.SenderID); err != nil {
		return nil, err
	}

	msg, err := domain.NewMessage(s.newID(), cmd.ConversationID, cmd.SenderID, cmd.Content, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	log.Info("message stored", zap.String("message_id", msg.ID))

	if err := s.publisher.Publish(ctx, s.topic, domain.SnapshotEnvelope(msg, s.now())); err != nil {
		log.Error("broker publish failed, message left for retry",
			zap.String("message_id", msg.ID), zap.Error(err))
		if msg.MarkPending() {
			err := s.repo.SaveMessage(ctx, msg, domain.StatusSent)
			switch {
			case errors.Is(err, domain.ErrStaleStatus):
				// Delivered or read before we got here; report the stored row.
				if current, gerr := s.repo.GetMessage(ctx, msg.ID); gerr == nil {
					msg = current
				}
			case err != nil:
				log.Error("failed to mark message pending", zap.String("message_id", msg.ID), zap.Error(err))
			}
		}
	}

	if err := s.notifier.Publish(ctx, router.ConversationChannel(msg.ConversationID), msg); err != nil {
		observability.LivePushFailuresTotal.WithLabelValues("conversation").Inc()
		log.Warn("live push failed", zap.String("message_id", msg.ID), zap.Error(err))
	}

	return msg, nil
}
