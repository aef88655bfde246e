package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/repository/bolt"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/router"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/syncer"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store     *bolt.Store
	publisher *testutil.Publisher
	notifier  *testutil.Notifier
	svc       *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     testutil.NewStore(t),
		publisher: &testutil.Publisher{},
		notifier:  &testutil.Notifier{},
	}
	testutil.SeedConversation(t, f.store, "10", "1", "2")
	require.NoError(t, f.store.PutUser(context.Background(), &domain.User{ID: "3", Username: "outsider"}))

	f.svc = New(f.store, f.publisher, "chat-messages", f.notifier)
	f.svc.now = func() time.Time { return testutil.T0.Add(time.Minute) }
	n := 0
	f.svc.newID = func() string {
		n++
		return fmt.Sprintf("msg-%d", n)
	}
	return f
}

func TestSendMessage_OfflineRecipientThenSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.SendMessage(ctx, SendMessageCommand{SenderID: "1", ConversationID: "10", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, msg.Status)
	assert.Equal(t, 0, msg.RetryCount)
	assert.Nil(t, msg.DeliveredAt)

	sweeper := syncer.New(f.store, f.store, f.notifier, 100)
	require.NoError(t, sweeper.SweepSent(ctx))

	stored := testutil.MustGet(t, f.store, msg.ID)
	assert.Equal(t, domain.StatusDelivered, stored.Status)
	assert.NotNil(t, stored.DeliveredAt)
}

func TestSendMessage_PublishesSnapshotAndLivePush(t *testing.T) {
	f := newFixture(t)

	msg, err := f.svc.SendMessage(context.Background(), SendMessageCommand{SenderID: "1", ConversationID: "10", Content: "hi"})
	require.NoError(t, err)

	envs := f.publisher.Envelopes()
	require.Len(t, envs, 1)
	assert.Equal(t, msg.ID, envs[0].MessageID)
	require.NotNil(t, envs[0].Message)
	assert.Equal(t, "hi", envs[0].Message.Content)
	assert.Equal(t, []string{"chat-messages"}, f.publisher.Topics())

	pushed := f.notifier.Messages(t, router.ConversationChannel("10"))
	require.Len(t, pushed, 1)
	assert.Equal(t, msg.ID, pushed[0].ID)

	conv, err := f.store.GetConversation(context.Background(), "10")
	require.NoError(t, err)
	assert.True(t, conv.UpdatedAt.Equal(msg.SentAt))
}

func TestSendMessage_PublishFailureLeavesPending(t *testing.T) {
	f := newFixture(t)
	f.publisher.Err = errors.New("broker down")

	msg, err := f.svc.SendMessage(context.Background(), SendMessageCommand{SenderID: "1", ConversationID: "10", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, msg.Status)
	assert.Equal(t, domain.StatusPending, testutil.MustGet(t, f.store, msg.ID).Status)
}

func TestSendMessage_Rejections(t *testing.T) {
	tests := []struct {
		name string
		cmd  SendMessageCommand
		want error
	}{
		{"unknown sender", SendMessageCommand{SenderID: "99", ConversationID: "10", Content: "hi"}, domain.ErrUserNotFound},
		{"unknown conversation", SendMessageCommand{SenderID: "1", ConversationID: "404", Content: "hi"}, domain.ErrConversationNotFound},
		{"not a participant", SendMessageCommand{SenderID: "3", ConversationID: "10", Content: "hi"}, domain.ErrNotParticipant},
		{"empty content", SendMessageCommand{SenderID: "1", ConversationID: "10", Content: "  "}, domain.ErrInvalidMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.SendMessage(context.Background(), tt.cmd)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, f.publisher.Envelopes())
		})
	}
}

func TestMarkConversationRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.SeedMessage(t, f.store, "a", "10", "1", testutil.T0, domain.StatusSent, 0)
	testutil.SeedMessage(t, f.store, "b", "10", "1", testutil.T0, domain.StatusDelivered, 0)
	testutil.SeedMessage(t, f.store, "own", "10", "2", testutil.T0, domain.StatusSent, 0)
	testutil.SeedMessage(t, f.store, "stuck", "10", "1", testutil.T0, domain.StatusPending, 1)

	unread, err := f.svc.UnreadCount(ctx, "2", "10")
	require.NoError(t, err)
	assert.Equal(t, 3, unread)

	updated, err := f.svc.MarkConversationRead(ctx, "2", "10")
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	for _, id := range []string{"a", "b"} {
		msg := testutil.MustGet(t, f.store, id)
		assert.Equal(t, domain.StatusRead, msg.Status)
		assert.NotNil(t, msg.ReadAt)
		assert.NotNil(t, msg.DeliveredAt)
	}
	assert.Equal(t, domain.StatusSent, testutil.MustGet(t, f.store, "own").Status)
	assert.Equal(t, domain.StatusPending, testutil.MustGet(t, f.store, "stuck").Status)

	notices := f.notifier.On(router.StatusChannel("10"))
	require.Len(t, notices, 1)
	var notice domain.ReadNotice
	require.NoError(t, json.Unmarshal(notices[0], &notice))
	assert.Equal(t, "2", notice.ReaderID)
	assert.Equal(t, 2, notice.Count)
	assert.Equal(t, domain.StatusRead, notice.Status)

	unread, err = f.svc.UnreadCount(ctx, "2", "10")
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	again, err := f.svc.MarkConversationRead(ctx, "2", "10")
	require.NoError(t, err)
	assert.Zero(t, again)
	assert.Len(t, f.notifier.On(router.StatusChannel("10")), 1)
}

func TestMarkConversationRead_NotParticipant(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.MarkConversationRead(context.Background(), "3", "10")
	assert.ErrorIs(t, err, domain.ErrNotParticipant)
}

func TestListMessages_Pages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		testutil.SeedMessage(t, f.store, fmt.Sprintf("m%d", i), "10", "1", testutil.T0.Add(time.Duration(i)*time.Second), domain.StatusSent, 0)
	}
	testutil.SeedMessage(t, f.store, "failed", "10", "1", testutil.T0.Add(time.Minute), domain.StatusFailed, 3)

	first, err := f.svc.ListMessages(ctx, "2", "10", 0, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "m0", first[0].ID)
	assert.Equal(t, "m1", first[1].ID)

	last, err := f.svc.ListMessages(ctx, "2", "10", 2, 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "m4", last[0].ID)
	assert.Equal(t, domain.StatusFailed, last[1].Status)

	all, err := f.svc.ListMessages(ctx, "2", "10", -1, 0)
	require.NoError(t, err)
	assert.Len(t, all, 6)

	_, err = f.svc.ListMessages(ctx, "3", "10", 0, 10)
	assert.ErrorIs(t, err, domain.ErrNotParticipant)
}

func TestListMessages_HugePageIsEmpty(t *testing.T) {
	f := newFixture(t)
	testutil.SeedMessage(t, f.store, "m0", "10", "1", testutil.T0, domain.StatusSent, 0)

	for _, size := range []int{0, 2, MaxPageSize} {
		msgs, err := f.svc.ListMessages(context.Background(), "2", "10", math.MaxInt, size)
		require.NoError(t, err)
		assert.Empty(t, msgs, "size %d", size)
	}
}

func TestSendMessage_PublishFailureDoesNotUndoDelivery(t *testing.T) {
	f := newFixture(t)
	f.publisher.Err = errors.New("broker down")
	racing := &testutil.Interleave{Store: f.store}
	svc := New(racing, f.publisher, "chat-messages", f.notifier)
	svc.now = f.svc.now
	svc.newID = func() string { return "raced" }
	racing.Before = func() { testutil.ForceStatus(t, f.store, "raced", domain.StatusDelivered) }

	msg, err := svc.SendMessage(context.Background(), SendMessageCommand{SenderID: "1", ConversationID: "10", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, msg.Status)

	stored := testutil.MustGet(t, f.store, "raced")
	assert.Equal(t, domain.StatusDelivered, stored.Status)
	assert.NotNil(t, stored.DeliveredAt)
}

func TestMarkConversationRead_SkipsRowsMovedConcurrently(t *testing.T) {
	f := newFixture(t)
	testutil.SeedMessage(t, f.store, "m1", "10", "1", testutil.T0, domain.StatusSent, 0)
	racing := &testutil.Interleave{Store: f.store, Before: func() {
		testutil.ForceStatus(t, f.store, "m1", domain.StatusPending)
	}}
	svc := New(racing, f.publisher, "chat-messages", f.notifier)
	svc.now = f.svc.now

	updated, err := svc.MarkConversationRead(context.Background(), "2", "10")
	require.NoError(t, err)
	assert.Equal(t, 0, updated)

	msg := testutil.MustGet(t, f.store, "m1")
	assert.Equal(t, domain.StatusPending, msg.Status)
	assert.Nil(t, msg.ReadAt)
	assert.Empty(t, f.notifier.On(router.StatusChannel("10")))
}

func TestGetMessage_ParticipantOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.SeedMessage(t, f.store, "m1", "10", "1", testutil.T0, domain.StatusSent, 0)

	msg, err := f.svc.GetMessage(ctx, "2", "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)

	_, err = f.svc.GetMessage(ctx, "3", "m1")
	assert.ErrorIs(t, err, domain.ErrNotParticipant)

	_, err = f.svc.GetMessage(ctx, "2", "missing")
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}
