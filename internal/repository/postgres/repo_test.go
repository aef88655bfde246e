package postgres

import (
	"testing"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/repository"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestBuildMessageWhere(t *testing.T) {
	since := time.Unix(100, 0)

	t.Run("empty", func(t *testing.T) {
		where, args := buildMessageWhere(repository.MessageFilter{})
		assert.Empty(t, where)
		assert.Empty(t, args)
	})

	t.Run("retry sweep", func(t *testing.T) {
		where, args := buildMessageWhere(repository.MessageFilter{
			Statuses:      []domain.MessageStatus{domain.StatusPending},
			MaxRetryCount: repository.RetryCountAtMost(3),
		})
		assert.Equal(t, " WHERE status = ANY($1) AND retry_count <= $2", where)
		assert.Equal(t, []interface{}{pq.Array([]string{"PENDING"}), 3}, args)
	})

	t.Run("catch-up", func(t *testing.T) {
		where, args := buildMessageWhere(repository.MessageFilter{
			Statuses:        []domain.MessageStatus{domain.StatusSent},
			ConversationIDs: []string{"c1", "c2"},
			ExcludeSenderID: "u1",
			SentAfter:       since,
		})
		assert.Equal(t,
			" WHERE status = ANY($1) AND conversation_id = ANY($2) AND sender_id <> $3 AND sent_at > $4",
			where)
		assert.Len(t, args, 4)
		assert.Equal(t, "u1", args[2])
		assert.Equal(t, since, args[3])
	})
}

func TestNullTime(t *testing.T) {
	assert.False(t, nullTime(nil).Valid)
	now := time.Now()
	nt := nullTime(&now)
	assert.True(t, nt.Valid)
	assert.Equal(t, now, nt.Time)
}
