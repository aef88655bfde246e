package repository

import (
	"testing"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestMessageFilterMatches(t *testing.T) {
	t0 := time.Unix(1000, 0)
	msg := &domain.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "u1",
		SentAt:         t0,
		Status:         domain.StatusPending,
		RetryCount:     2,
	}

	tests := []struct {
		name   string
		filter MessageFilter
		want   bool
	}{
		{"empty", MessageFilter{}, true},
		{"status hit", MessageFilter{Statuses: []domain.MessageStatus{domain.StatusSent, domain.StatusPending}}, true},
		{"status miss", MessageFilter{Statuses: []domain.MessageStatus{domain.StatusSent}}, false},
		{"retry at limit", MessageFilter{MaxRetryCount: RetryCountAtMost(2)}, true},
		{"retry over limit", MessageFilter{MaxRetryCount: RetryCountAtMost(1)}, false},
		{"conversation hit", MessageFilter{ConversationIDs: []string{"c2", "c1"}}, true},
		{"conversation miss", MessageFilter{ConversationIDs: []string{"c2"}}, false},
		{"excluded sender", MessageFilter{ExcludeSenderID: "u1"}, false},
		{"other sender", MessageFilter{ExcludeSenderID: "u2"}, true},
		{"sent after is strict", MessageFilter{SentAfter: t0}, false},
		{"sent after earlier", MessageFilter{SentAfter: t0.Add(-time.Second)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(msg))
		})
	}
}
