package application

import (
	"context"
	"math"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/repository"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// ListMessages returns one page of a conversation's history, oldest first.
// Pages are zero-based.
func (s *Service) ListMessages(ctx context.Context, userID, conversationID string, page, size int) ([]*domain.Message, error) {
	if _, err := s.participantConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	if page > math.MaxInt/size {
		page = math.MaxInt / size
	}

	return s.repo.FindMessages(ctx, repository.MessageFilter{
		ConversationIDs: []string{conversationID},
		Offset:          page * size,
		Limit:           size,
	})
}

func (s *Service) GetMessage(ctx context.Context, userID, messageID string) (*domain.Message, error) {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.participantConversation(ctx, userID, msg.ConversationID); err != nil {
		return nil, err
	}
	return msg, nil
}
