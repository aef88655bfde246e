package domain

import (
	"strings"
	"time"
)

const MaxMessageSize = 5000

type MessageStatus string

const (
	StatusPending   MessageStatus = "PENDING"
	StatusSent      MessageStatus = "SENT"
	StatusDelivered MessageStatus = "DELIVERED"
	StatusRead      MessageStatus = "READ"
	StatusFailed    MessageStatus = "FAILED"
)

// rank places the progress statuses in order. FAILED sits outside the ordering.
func (s MessageStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return -1
}

func (s MessageStatus) Valid() bool {
	return s.rank() >= 0 || s == StatusFailed
}

// AtLeast reports whether s has progressed to other or beyond.
// FAILED only compares equal to itself.
func (s MessageStatus) AtLeast(other MessageStatus) bool {
	if s == StatusFailed || other == StatusFailed {
		return s == other
	}
	return s.rank() >= other.rank()
}

func ParseStatus(v string) (MessageStatus, error) {
	s := MessageStatus(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", ErrInvalidInput
	}
	return s, nil
}

// Message Invariants:
// 1. Progress: PENDING < SENT < DELIVERED < READ never moves backwards, except a
//    processing failure returning SENT/DELIVERED to PENDING and a manual retry
//    returning FAILED to PENDING.
// 2. Timestamps: DeliveredAt is set iff status >= DELIVERED, ReadAt iff status == READ.
// 3. RetryCount only grows through RecordRetryAttempt and only resets through ResetForRetry.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	Content        string        `json:"content"`
	SentAt         time.Time     `json:"sent_at"`
	DeliveredAt    *time.Time    `json:"delivered_at,omitempty"`
	ReadAt         *time.Time    `json:"read_at,omitempty"`
	Status         MessageStatus `json:"status"`
	RetryCount     int           `json:"retry_count"`
}

func NewMessage(
	id string,
	conversationID string,
	senderID string,
	content string,
	now time.Time,
) (*Message, error) {

	if id == "" || conversationID == "" || senderID == "" {
		return nil, ErrInvalidMessage
	}

	if strings.TrimSpace(content) == "" {
		return nil, ErrInvalidMessage
	}

	if len(content) > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	return &Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		SentAt:         now,
		Status:         StatusSent,
	}, nil
}

func (m *Message) Clone() *Message {
	c := *m
	if m.DeliveredAt != nil {
		t := *m.DeliveredAt
		c.DeliveredAt = &t
	}
	if m.ReadAt != nil {
		t := *m.ReadAt
		c.ReadAt = &t
	}
	return &c
}

// MarkDelivered promotes a PENDING or SENT message. It reports false and leaves
// the message untouched when it is already delivered, read or failed.
func (m *Message) MarkDelivered(now time.Time) bool {
	if m.Status != StatusPending && m.Status != StatusSent {
		return false
	}
	t := now
	m.Status = StatusDelivered
	m.DeliveredAt = &t
	return true
}

// MarkSent records that a previously failed distribution went through.
func (m *Message) MarkSent() bool {
	if m.Status != StatusPending {
		return false
	}
	m.Status = StatusSent
	return true
}

// MarkPending hands the message to the retry scheduler after a distribution or
// processing failure. READ and FAILED messages are never touched.
func (m *Message) MarkPending() bool {
	if m.Status != StatusSent && m.Status != StatusDelivered {
		return false
	}
	m.Status = StatusPending
	m.DeliveredAt = nil
	return true
}

func (m *Message) MarkRead(now time.Time) bool {
	if m.Status != StatusSent && m.Status != StatusDelivered {
		return false
	}
	t := now
	if m.DeliveredAt == nil {
		m.DeliveredAt = &t
	}
	m.ReadAt = &t
	m.Status = StatusRead
	return true
}

// RecordRetryAttempt counts one scheduler attempt on a PENDING message and
// reports whether the attempt budget is now exhausted, in which case the
// message has moved to FAILED.
func (m *Message) RecordRetryAttempt(maxRetryCount int) (bool, error) {
	if m.Status != StatusPending {
		return false, ErrInvalidTransition
	}
	m.RetryCount++
	if m.RetryCount >= maxRetryCount {
		m.Status = StatusFailed
		return true, nil
	}
	return false, nil
}

// ResetForRetry is the manual way out of FAILED.
func (m *Message) ResetForRetry() bool {
	if m.Status != StatusFailed {
		return false
	}
	m.Status = StatusPending
	m.RetryCount = 0
	m.DeliveredAt = nil
	m.ReadAt = nil
	return true
}
