// Package testutil holds the collaborators pipeline tests share: a seeded
// bbolt store and recording fakes for presence, live channels and the broker.
package testutil

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/repository/bolt"
	"github.com/stretchr/testify/require"
)

// T0 is the fixed clock origin used by pipeline tests.
var T0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func NewStore(t *testing.T) *bolt.Store {
	t.Helper()
	store, err := bolt.Open(filepath.Join(t.TempDir(), "messaging.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func SeedConversation(t *testing.T, store *bolt.Store, id string, participants ...string) *domain.Conversation {
	t.Helper()
	ctx := context.Background()
	for _, p := range participants {
		require.NoError(t, store.PutUser(ctx, &domain.User{ID: p, Username: "user-" + p, CreatedAt: T0}))
	}
	conv := &domain.Conversation{
		ID:             id,
		CreatorID:      participants[0],
		ParticipantIDs: participants,
		CreatedAt:      T0,
		UpdatedAt:      T0,
	}
	require.NoError(t, store.PutConversation(ctx, conv))
	return conv
}

// SeedMessage appends a message and then forces the given status and retry count.
func SeedMessage(t *testing.T, store *bolt.Store, id, convID, senderID string, sentAt time.Time, status domain.MessageStatus, retryCount int) *domain.Message {
	t.Helper()
	ctx := context.Background()
	msg, err := domain.NewMessage(id, convID, senderID, "content "+id, sentAt)
	require.NoError(t, err)
	require.NoError(t, store.AppendMessage(ctx, msg))

	msg.Status = status
	msg.RetryCount = retryCount
	if status.AtLeast(domain.StatusDelivered) {
		at := sentAt
		msg.DeliveredAt = &at
	}
	if status == domain.StatusRead {
		at := sentAt
		msg.ReadAt = &at
	}
	require.NoError(t, store.SaveMessage(ctx, msg, domain.StatusSent))
	return msg
}

// ForceStatus moves a stored message to status the way a concurrent writer
// would, filling the matching timestamps.
func ForceStatus(t *testing.T, store *bolt.Store, id string, status domain.MessageStatus) {
	t.Helper()
	msg := MustGet(t, store, id)
	prev := msg.Status
	msg.Status = status
	if status.AtLeast(domain.StatusDelivered) && msg.DeliveredAt == nil {
		at := T0
		msg.DeliveredAt = &at
	}
	if status == domain.StatusRead && msg.ReadAt == nil {
		at := T0
		msg.ReadAt = &at
	}
	require.NoError(t, store.SaveMessage(context.Background(), msg, prev))
}

// Interleave runs Before once, right ahead of the first SaveMessage that goes
// through it, so a test can land a competing write between a read and its save.
type Interleave struct {
	*bolt.Store
	Before func()
	once   sync.Once
}

func (s *Interleave) SaveMessage(ctx context.Context, msg *domain.Message, expected domain.MessageStatus) error {
	s.once.Do(func() {
		if s.Before != nil {
			s.Before()
		}
	})
	return s.Store.SaveMessage(ctx, msg, expected)
}

func MustGet(t *testing.T, store *bolt.Store, id string) *domain.Message {
	t.Helper()
	msg, err := store.GetMessage(context.Background(), id)
	require.NoError(t, err)
	return msg
}

// Reachability answers from a fixed online set. When Block is set, IsOnline
// signals Entered and then waits on Block, which lets a test hold one call in
// flight.
type Reachability struct {
	mu      sync.Mutex
	Online  map[string]bool
	Err     error
	Entered chan struct{}
	Block   chan struct{}
}

func NewReachability(online ...string) *Reachability {
	r := &Reachability{Online: make(map[string]bool)}
	for _, u := range online {
		r.Online[u] = true
	}
	return r
}

func (r *Reachability) SetOnline(userID string, online bool) {
	r.mu.Lock()
	r.Online[userID] = online
	r.mu.Unlock()
}

func (r *Reachability) IsOnline(_ context.Context, userID string) (bool, error) {
	if r.Block != nil {
		if r.Entered != nil {
			r.Entered <- struct{}{}
		}
		<-r.Block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	return r.Online[userID], nil
}

type Published struct {
	Channel string
	Payload json.RawMessage
}

// Notifier records live-channel publishes as the JSON a subscriber would see.
type Notifier struct {
	mu     sync.Mutex
	events []Published
	Err    error
}

func (n *Notifier) Publish(_ context.Context, channel string, payload any) error {
	if n.Err != nil {
		return n.Err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.events = append(n.events, Published{Channel: channel, Payload: data})
	n.mu.Unlock()
	return nil
}

func (n *Notifier) Events() []Published {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Published(nil), n.events...)
}

func (n *Notifier) On(channel string) []json.RawMessage {
	var out []json.RawMessage
	for _, e := range n.Events() {
		if e.Channel == channel {
			out = append(out, e.Payload)
		}
	}
	return out
}

// Messages decodes every payload published on channel as a Message.
func (n *Notifier) Messages(t *testing.T, channel string) []domain.Message {
	t.Helper()
	var out []domain.Message
	for _, raw := range n.On(channel) {
		var m domain.Message
		require.NoError(t, json.Unmarshal(raw, &m))
		out = append(out, m)
	}
	return out
}

// Publisher records broker publishes.
type Publisher struct {
	mu        sync.Mutex
	envelopes []domain.Envelope
	topics    []string
	Err       error
}

func (p *Publisher) Publish(_ context.Context, topic string, env domain.Envelope) error {
	if p.Err != nil {
		return p.Err
	}
	p.mu.Lock()
	p.envelopes = append(p.envelopes, env)
	p.topics = append(p.topics, topic)
	p.mu.Unlock()
	return nil
}

func (p *Publisher) Envelopes() []domain.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Envelope(nil), p.envelopes...)
}

func (p *Publisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}
