package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// Envelope is the unit carried on the broker topic. Submission publishes a full
// snapshot, the retry scheduler publishes the id alone. Consumers always resolve
// the id back to the stored row.
type Envelope struct {
	MessageID   string    `json:"message_id"`
	Message     *Message  `json:"message,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

func SnapshotEnvelope(m *Message, now time.Time) Envelope {
	return Envelope{
		MessageID:   m.ID,
		Message:     m.Clone(),
		PublishedAt: now,
	}
}

func IDEnvelope(messageID string, now time.Time) Envelope {
	return Envelope{
		MessageID:   messageID,
		PublishedAt: now,
	}
}

func (e Envelope) ResolveID() string {
	if e.MessageID != "" {
		return e.MessageID
	}
	if e.Message != nil {
		return e.Message.ID
	}
	return ""
}

// Key is the partitioning key: the conversation when known, so a conversation's
// envelopes share a partition, otherwise the message id.
func (e Envelope) Key() string {
	if e.Message != nil && e.Message.ConversationID != "" {
		return e.Message.ConversationID
	}
	return e.ResolveID()
}

func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope accepts the JSON envelope as well as a bare id, written either
// raw, as a JSON string or as a JSON number.
func DecodeEnvelope(data []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Envelope{}, ErrInvalidEnvelope
	}

	switch trimmed[0] {
	case '{':
		var env Envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return Envelope{}, ErrInvalidEnvelope
		}
		if env.ResolveID() == "" {
			return Envelope{}, ErrInvalidEnvelope
		}
		env.MessageID = env.ResolveID()
		return env, nil
	case '"':
		var id string
		if err := json.Unmarshal(trimmed, &id); err != nil || id == "" {
			return Envelope{}, ErrInvalidEnvelope
		}
		return Envelope{MessageID: id}, nil
	case '[':
		return Envelope{}, ErrInvalidEnvelope
	default:
		return Envelope{MessageID: string(trimmed)}, nil
	}
}
