package membership

import (
	"context"
	"sync"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/repository"
)

const DefaultTTL = 30 * time.Second

type entry struct {
	conv      domain.Conversation
	expiresAt time.Time
}

// Directory answers "who is in this conversation" from an in-memory cache
// in front of the conversation store. Entries expire after ttl.
type Directory struct {
	store repository.ConversationStore
	ttl   time.Duration
	now   func() time.Time

	mu   sync.RWMutex
	data map[string]entry
}

func New(store repository.ConversationStore, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Directory{
		store: store,
		ttl:   ttl,
		now:   time.Now,
		data:  make(map[string]entry),
	}
}

// Conversation returns a copy of the cached conversation, loading it on a miss.
func (d *Directory) Conversation(ctx context.Context, convID string) (*domain.Conversation, error) {
	d.mu.RLock()
	e, ok := d.data[convID]
	d.mu.RUnlock()

	if ok && d.now().Before(e.expiresAt) {
		return copyConversation(&e.conv), nil
	}

	conv, err := d.store.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.data[convID] = entry{conv: *copyConversation(conv), expiresAt: d.now().Add(d.ttl)}
	d.mu.Unlock()

	return conv, nil
}

func (d *Directory) Members(ctx context.Context, convID string) ([]string, error) {
	conv, err := d.Conversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	return conv.ParticipantIDs, nil
}

func (d *Directory) IsMember(ctx context.Context, convID, userID string) (bool, error) {
	conv, err := d.Conversation(ctx, convID)
	if err != nil {
		return false, err
	}
	return conv.HasParticipant(userID), nil
}

func (d *Directory) Invalidate(convID string) {
	d.mu.Lock()
	delete(d.data, convID)
	d.mu.Unlock()
}

func copyConversation(c *domain.Conversation) *domain.Conversation {
	out := *c
	out.ParticipantIDs = append([]string(nil), c.ParticipantIDs...)
	return &out
}
