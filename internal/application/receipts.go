package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/repository"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/router"
	"go.uber.org/zap"
)

// MarkConversationRead marks everything the other participants sent as READ
// and returns how many messages changed.
func (s *Service) MarkConversationRead(ctx context.Context, userID, conversationID string) (int, error) {
	if _, err := s.participantConversation(ctx, userID, conversationID); err != nil {
		return 0, err
	}

	msgs, err := s.repo.FindMessages(ctx, repository.MessageFilter{
		Statuses:        []domain.MessageStatus{domain.StatusSent, domain.StatusDelivered},
		ConversationIDs: []string{conversationID},
		ExcludeSenderID: userID,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to load unread messages: %w", err)
	}

	now := s.now()
	updated := 0
	for _, msg := range msgs {
		prev := msg.Status
		if !msg.MarkRead(now) {
			continue
		}
		err := s.repo.SaveMessage(ctx, msg, prev)
		if errors.Is(err, domain.ErrStaleStatus) {
			continue
		}
		if err != nil {
			return updated, fmt.Errorf("failed to mark message %s read: %w", msg.ID, err)
		}
		updated++
	}

	if updated > 0 {
		notice := domain.ReadNotice{
			ConversationID: conversationID,
			ReaderID:       userID,
			Status:         domain.StatusRead,
			Count:          updated,
			ReadAt:         now,
		}
		if err := s.notifier.Publish(ctx, router.StatusChannel(conversationID), notice); err != nil {
			observability.LivePushFailuresTotal.WithLabelValues("status").Inc()
			observability.GetLogger(ctx).Warn("read notice push failed",
				zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}

	return updated, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID, conversationID string) (int, error) {
	if _, err := s.participantConversation(ctx, userID, conversationID); err != nil {
		return 0, err
	}

	return s.repo.CountMessages(ctx, repository.MessageFilter{
		Statuses:        []domain.MessageStatus{domain.StatusPending, domain.StatusSent, domain.StatusDelivered},
		ConversationIDs: []string{conversationID},
		ExcludeSenderID: userID,
	})
}

func (s *Service) participantConversation(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, domain.ErrNotParticipant
	}
	return conv, nil
}
