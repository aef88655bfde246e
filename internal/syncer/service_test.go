package syncer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/repository/bolt"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/router"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*Service, *bolt.Store, *testutil.Notifier, time.Time) {
	t.Helper()
	store := testutil.NewStore(t)
	testutil.SeedConversation(t, store, "10", "1", "2")
	testutil.SeedConversation(t, store, "20", "2", "3")
	testutil.SeedConversation(t, store, "30", "3", "4")

	notifier := &testutil.Notifier{}
	now := testutil.T0.Add(10 * time.Minute)
	s := New(store, store, notifier, 100)
	s.now = func() time.Time { return now }
	return s, store, notifier, now
}

func TestSweepSent_PromotesEverySentMessage(t *testing.T) {
	s, store, notifier, now := newService(t)
	testutil.SeedMessage(t, store, "a", "10", "1", testutil.T0, domain.StatusSent, 0)
	testutil.SeedMessage(t, store, "b", "30", "3", testutil.T0, domain.StatusSent, 0)
	testutil.SeedMessage(t, store, "c", "10", "1", testutil.T0, domain.StatusPending, 1)
	testutil.SeedMessage(t, store, "d", "10", "1", testutil.T0, domain.StatusRead, 0)

	require.NoError(t, s.SweepSent(context.Background()))

	for _, id := range []string{"a", "b"} {
		msg := testutil.MustGet(t, store, id)
		assert.Equal(t, domain.StatusDelivered, msg.Status, id)
		require.NotNil(t, msg.DeliveredAt)
		assert.True(t, msg.DeliveredAt.Equal(now))
	}
	assert.Equal(t, domain.StatusPending, testutil.MustGet(t, store, "c").Status)
	assert.Equal(t, domain.StatusRead, testutil.MustGet(t, store, "d").Status)

	assert.Len(t, notifier.On(router.StatusChannel("10")), 1)
	assert.Len(t, notifier.On(router.StatusChannel("30")), 1)
}

func TestSweepSent_BoundedByBatch(t *testing.T) {
	store := testutil.NewStore(t)
	testutil.SeedConversation(t, store, "10", "1", "2")
	for i, id := range []string{"a", "b", "c"} {
		testutil.SeedMessage(t, store, id, "10", "1", testutil.T0.Add(time.Duration(i)*time.Second), domain.StatusSent, 0)
	}

	s := New(store, store, &testutil.Notifier{}, 2)
	require.NoError(t, s.SweepSent(context.Background()))

	assert.Equal(t, domain.StatusDelivered, testutil.MustGet(t, store, "a").Status)
	assert.Equal(t, domain.StatusDelivered, testutil.MustGet(t, store, "b").Status)
	assert.Equal(t, domain.StatusSent, testutil.MustGet(t, store, "c").Status)

	require.NoError(t, s.SweepSent(context.Background()))
	assert.Equal(t, domain.StatusDelivered, testutil.MustGet(t, store, "c").Status)
}

func TestProcessPendingMessages_OnlyOthersInOwnConversations(t *testing.T) {
	s, store, notifier, _ := newService(t)
	testutil.SeedMessage(t, store, "from-1", "10", "1", testutil.T0, domain.StatusSent, 0)
	testutil.SeedMessage(t, store, "from-2", "10", "2", testutil.T0, domain.StatusSent, 0)
	testutil.SeedMessage(t, store, "from-3", "20", "3", testutil.T0, domain.StatusSent, 0)
	testutil.SeedMessage(t, store, "elsewhere", "30", "3", testutil.T0, domain.StatusSent, 0)
	testutil.SeedMessage(t, store, "pending", "10", "1", testutil.T0, domain.StatusPending, 1)

	count, err := s.ProcessPendingMessages(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.Equal(t, domain.StatusDelivered, testutil.MustGet(t, store, "from-1").Status)
	assert.Equal(t, domain.StatusDelivered, testutil.MustGet(t, store, "from-3").Status)
	assert.Equal(t, domain.StatusSent, testutil.MustGet(t, store, "from-2").Status)
	assert.Equal(t, domain.StatusSent, testutil.MustGet(t, store, "elsewhere").Status)
	assert.Equal(t, domain.StatusPending, testutil.MustGet(t, store, "pending").Status)

	assert.Len(t, notifier.On(router.StatusChannel("10")), 1)
	assert.Len(t, notifier.On(router.StatusChannel("20")), 1)
}

func TestProcessPendingMessages_NoConversations(t *testing.T) {
	s, _, _, _ := newService(t)
	count, err := s.ProcessPendingMessages(context.Background(), "99")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSynchronize_StreamsStrictlyAfterSince(t *testing.T) {
	s, store, notifier, _ := newService(t)
	t1 := testutil.T0.Add(time.Minute)
	t2 := t1.Add(time.Minute)
	testutil.SeedMessage(t, store, "M1", "10", "1", t1, domain.StatusDelivered, 0)
	testutil.SeedMessage(t, store, "M2", "10", "1", t2, domain.StatusSent, 0)

	count, err := s.Synchronize(context.Background(), "2", t1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	replayed := notifier.Messages(t, router.UserMessagesChannel("2"))
	require.Len(t, replayed, 1)
	assert.Equal(t, "M2", replayed[0].ID)

	// Replay never changes status.
	assert.Equal(t, domain.StatusSent, testutil.MustGet(t, store, "M2").Status)
}

func TestSynchronize_AscendingAcrossConversations(t *testing.T) {
	s, store, notifier, _ := newService(t)
	testutil.SeedMessage(t, store, "late", "20", "3", testutil.T0.Add(3*time.Minute), domain.StatusSent, 0)
	testutil.SeedMessage(t, store, "early", "10", "1", testutil.T0.Add(time.Minute), domain.StatusSent, 0)
	testutil.SeedMessage(t, store, "mine", "10", "2", testutil.T0.Add(2*time.Minute), domain.StatusSent, 0)
	testutil.SeedMessage(t, store, "foreign", "30", "4", testutil.T0.Add(2*time.Minute), domain.StatusSent, 0)

	count, err := s.Synchronize(context.Background(), "2", testutil.T0)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	var ids []string
	for _, m := range notifier.Messages(t, router.UserMessagesChannel("2")) {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"early", "mine", "late"}, ids)
}

func TestSynchronize_DefaultWindow(t *testing.T) {
	s, store, _, now := newService(t)
	testutil.SeedMessage(t, store, "old", "10", "1", now.Add(-2*time.Hour), domain.StatusSent, 0)
	testutil.SeedMessage(t, store, "recent", "10", "1", now.Add(-30*time.Minute), domain.StatusSent, 0)

	count, err := s.Synchronize(context.Background(), "2", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReconnect_PromotesReplaysAndSignalsCompletion(t *testing.T) {
	s, store, notifier, now := newService(t)
	testutil.SeedMessage(t, store, "m1", "10", "1", testutil.T0.Add(time.Minute), domain.StatusSent, 0)

	done, err := s.Reconnect(context.Background(), "2", testutil.T0)
	require.NoError(t, err)
	assert.Equal(t, 1, done.SyncedCount)
	assert.Equal(t, "complete", done.Status)

	assert.Equal(t, domain.StatusDelivered, testutil.MustGet(t, store, "m1").Status)

	replayed := notifier.Messages(t, router.UserMessagesChannel("2"))
	require.Len(t, replayed, 1)
	assert.Equal(t, domain.StatusDelivered, replayed[0].Status)

	syncs := notifier.On(router.UserSyncChannel("2"))
	require.Len(t, syncs, 1)
	var got map[string]any
	require.NoError(t, json.Unmarshal(syncs[0], &got))
	assert.Equal(t, "complete", got["status"])
	assert.EqualValues(t, 1, got["synced_count"])
	assert.True(t, done.Timestamp.Equal(now))
}

func TestSweepSent_ReadDuringSweepIsNotDowngraded(t *testing.T) {
	store := testutil.NewStore(t)
	testutil.SeedConversation(t, store, "10", "1", "2")
	testutil.SeedMessage(t, store, "a", "10", "1", testutil.T0, domain.StatusSent, 0)

	racing := &testutil.Interleave{Store: store, Before: func() {
		testutil.ForceStatus(t, store, "a", domain.StatusRead)
	}}
	notifier := &testutil.Notifier{}
	s := New(racing, store, notifier, 100)

	require.NoError(t, s.SweepSent(context.Background()))

	msg := testutil.MustGet(t, store, "a")
	assert.Equal(t, domain.StatusRead, msg.Status)
	assert.NotNil(t, msg.ReadAt)
	assert.Empty(t, notifier.On(router.StatusChannel("10")))
}
