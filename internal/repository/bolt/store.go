package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/repository"
	bbolt "go.etcd.io/bbolt"
)

var (
	bucketUsers         = []byte("users")
	bucketConversations = []byte("conversations")
	bucketMessages      = []byte("messages")
)

// Store is the embedded record store used for single-node runs and tests.
// Rows are JSON documents keyed by id; predicates are evaluated in memory.
type Store struct {
	db *bbolt.DB
}

var _ repository.Repository = (*Store)(nil)

func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketUsers, bucketConversations, bucketMessages} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func put(b *bbolt.Bucket, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(id), data)
}

// PutUser and PutConversation seed the collaborator-owned records.
func (s *Store) PutUser(_ context.Context, u *domain.User) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx.Bucket(bucketUsers), u.ID, u)
	})
}

func (s *Store) PutConversation(_ context.Context, c *domain.Conversation) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx.Bucket(bucketConversations), c.ID, c)
	})
}

func (s *Store) GetUser(_ context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get([]byte(id))
		if data == nil {
			return domain.ErrUserNotFound
		}
		return json.Unmarshal(data, &u)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetConversation(_ context.Context, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketConversations).Get([]byte(id))
		if data == nil {
			return domain.ErrConversationNotFound
		}
		return json.Unmarshal(data, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListConversationsByUser(_ context.Context, userID string) ([]*domain.Conversation, error) {
	var out []*domain.Conversation
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConversations).ForEach(func(_, v []byte) error {
			var c domain.Conversation
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			if c.HasParticipant(userID) {
				out = append(out, &c)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Store) AppendMessage(_ context.Context, msg *domain.Message) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		convs := tx.Bucket(bucketConversations)
		data := convs.Get([]byte(msg.ConversationID))
		if data == nil {
			return domain.ErrConversationNotFound
		}
		var c domain.Conversation
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}

		msgs := tx.Bucket(bucketMessages)
		if msgs.Get([]byte(msg.ID)) != nil {
			return fmt.Errorf("message %s already exists", msg.ID)
		}
		if err := put(msgs, msg.ID, msg); err != nil {
			return err
		}

		if msg.SentAt.After(c.UpdatedAt) {
			c.UpdatedAt = msg.SentAt
		}
		return put(convs, c.ID, &c)
	})
}

func (s *Store) GetMessage(_ context.Context, id string) (*domain.Message, error) {
	var m domain.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMessages).Get([]byte(id))
		if data == nil {
			return domain.ErrMessageNotFound
		}
		return json.Unmarshal(data, &m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) SaveMessage(_ context.Context, msg *domain.Message, expected domain.MessageStatus) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMessages)
		data := b.Get([]byte(msg.ID))
		if data == nil {
			return domain.ErrMessageNotFound
		}
		var current struct {
			Status domain.MessageStatus `json:"status"`
		}
		if err := json.Unmarshal(data, &current); err != nil {
			return err
		}
		if current.Status != expected {
			return domain.ErrStaleStatus
		}
		return put(b, msg.ID, msg)
	})
}

func (s *Store) scan(filter repository.MessageFilter) ([]*domain.Message, error) {
	var out []*domain.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMessages).ForEach(func(_, v []byte) error {
			var m domain.Message
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			if filter.Matches(&m) {
				out = append(out, &m)
			}
			return nil
		})
	})
	return out, err
}

func (s *Store) FindMessages(_ context.Context, filter repository.MessageFilter) ([]*domain.Message, error) {
	msgs, err := s.scan(filter)
	if err != nil {
		return nil, err
	}

	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].SentAt.Equal(msgs[j].SentAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].SentAt.Before(msgs[j].SentAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(msgs) {
			return nil, nil
		}
		msgs = msgs[filter.Offset:]
	}
	if filter.Limit > 0 && len(msgs) > filter.Limit {
		msgs = msgs[:filter.Limit]
	}
	return msgs, nil
}

func (s *Store) CountMessages(_ context.Context, filter repository.MessageFilter) (int, error) {
	msgs, err := s.scan(filter)
	return len(msgs), err
}
