package domain

import "errors"

var (
	ErrInvalidMessage       = errors.New("invalid message")
	ErrMessageTooLarge      = errors.New("message too large")
	ErrNotParticipant       = errors.New("user not participant")
	ErrMessageNotFound      = errors.New("message not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrInvalidEnvelope      = errors.New("invalid envelope")
	// ErrStaleStatus means another writer moved the message since it was read.
	ErrStaleStatus = errors.New("message status changed concurrently")
)
