package websocket

import (
	"encoding/json"
	"time"
)

const (
	FrameEvent      = "event"
	FrameSubscribed = "subscribed"
	FrameRead       = "read"
	FrameSent       = "sent"
	FrameError      = "error"
)

// Frame is what the server writes to a client.
type Frame struct {
	Type           string          `json:"type"`
	Channel        string          `json:"channel,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Error          string          `json:"error,omitempty"`
}

const (
	ClientSync      = "sync"
	ClientSubscribe = "subscribe"
	ClientRead      = "read"
	ClientSend      = "send"
	ClientTyping    = "typing"
)

// ClientFrame is what a client sends. LastSyncTimestamp is epoch milliseconds.
type ClientFrame struct {
	Type              string `json:"type"`
	ConversationID    string `json:"conversation_id,omitempty"`
	Content           string `json:"content,omitempty"`
	LastSyncTimestamp int64  `json:"last_sync_timestamp,omitempty"`
}

func (f ClientFrame) Since() time.Time {
	if f.LastSyncTimestamp <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(f.LastSyncTimestamp)
}

func encodeFrame(f Frame) []byte {
	data, err := json.Marshal(f)
	if err != nil {
		// Only reachable with an invalid RawMessage payload.
		data, _ = json.Marshal(Frame{Type: FrameError, Error: "encode failed"})
	}
	return data
}

func eventFrame(channel string, payload []byte) []byte {
	return encodeFrame(Frame{Type: FrameEvent, Channel: channel, Payload: payload})
}

func errorFrame(msg string) []byte {
	return encodeFrame(Frame{Type: FrameError, Error: msg})
}
