package domain

import "time"

// ReadNotice is published on a conversation's status channel when a reader
// catches up on it.
type ReadNotice struct {
	ConversationID string        `json:"conversation_id"`
	ReaderID       string        `json:"reader_id"`
	Status         MessageStatus `json:"status"`
	Count          int           `json:"count"`
	ReadAt         time.Time     `json:"read_at"`
}

// TypingNotice is relayed on a conversation's typing channel. It is never stored.
type TypingNotice struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	At             time.Time `json:"at"`
}

// SyncComplete closes a replay on the user's private sync channel.
type SyncComplete struct {
	Status      string    `json:"status"`
	SyncedCount int       `json:"synced_count"`
	Timestamp   time.Time `json:"timestamp"`
}

// FailureNotice is emitted once a message exhausts its retry budget.
type FailureNotice struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	RetryCount     int       `json:"retry_count"`
	FailedAt       time.Time `json:"failed_at"`
}
