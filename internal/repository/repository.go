package repository

import (
	"context"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
)

// MessageFilter is the query predicate over Message rows. Zero values mean
// "no constraint". Results are always ordered by sent_at, then id, ascending.
type MessageFilter struct {
	Statuses        []domain.MessageStatus
	MaxRetryCount   *int
	ConversationIDs []string
	ExcludeSenderID string
	SentAfter       time.Time
	Offset          int
	Limit           int
}

// RetryCountAtMost is a helper for building MessageFilter.MaxRetryCount.
func RetryCountAtMost(n int) *int {
	return &n
}

// Matches applies the filter to one row. Stores that cannot push a predicate
// down use it directly.
func (f MessageFilter) Matches(m *domain.Message) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if m.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.MaxRetryCount != nil && m.RetryCount > *f.MaxRetryCount {
		return false
	}
	if len(f.ConversationIDs) > 0 {
		ok := false
		for _, id := range f.ConversationIDs {
			if m.ConversationID == id {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.ExcludeSenderID != "" && m.SenderID == f.ExcludeSenderID {
		return false
	}
	if !f.SentAfter.IsZero() && !m.SentAt.After(f.SentAfter) {
		return false
	}
	return true
}

type MessageStore interface {
	// AppendMessage persists a new message and touches its conversation's
	// updated_at in one unit of work.
	AppendMessage(ctx context.Context, msg *domain.Message) error
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	// SaveMessage overwrites the mutable delivery fields of an existing row
	// only while its stored status still equals expected. Otherwise the row is
	// left untouched and domain.ErrStaleStatus is returned.
	SaveMessage(ctx context.Context, msg *domain.Message, expected domain.MessageStatus) error
	FindMessages(ctx context.Context, filter MessageFilter) ([]*domain.Message, error)
	CountMessages(ctx context.Context, filter MessageFilter) (int, error)
}

type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	ListConversationsByUser(ctx context.Context, userID string) ([]*domain.Conversation, error)
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

type Repository interface {
	MessageStore
	ConversationStore
	UserStore
}
