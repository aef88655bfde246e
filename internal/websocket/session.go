package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	SendQueueSize = 128
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxFrameSize  = 16 * 1024
)

// Session is one device connection. Writes go through a bounded queue; a
// client that cannot keep up is disconnected rather than buffered forever.
type Session struct {
	ID       string
	UserID   string
	DeviceID string

	Conn      *websocket.Conn
	SendQueue chan []byte
	done      chan struct{}
	closed    atomic.Int32

	mu            sync.RWMutex
	conversations map[string]struct{}
}

func NewSession(id, userID, deviceID string, conn *websocket.Conn) *Session {
	return &Session{
		ID:            id,
		UserID:        userID,
		DeviceID:      deviceID,
		Conn:          conn,
		SendQueue:     make(chan []byte, SendQueueSize),
		done:          make(chan struct{}),
		conversations: make(map[string]struct{}),
	}
}

func (s *Session) Start() {
	go s.writeLoop()
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) subscribe(conversationID string) {
	s.mu.Lock()
	s.conversations[conversationID] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) Subscribed(conversationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.conversations[conversationID]
	return ok
}

func (s *Session) subscriptions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.conversations))
	for id := range s.conversations {
		out = append(out, id)
	}
	return out
}

func (s *Session) TrySend(msg []byte) bool {
	if s.closed.Load() == 1 {
		return false
	}
	select {
	case s.SendQueue <- msg:
		return true
	default:
		observability.GetLogger(context.Background()).Warn("session: backpressure overflow, dropping connection",
			zap.String("user_id", s.UserID), zap.String("device_id", s.DeviceID))
		s.CloseWithReason(websocket.CloseInternalServerErr, "backpressure overflow")
		return false
	}
}

func (s *Session) Close() {
	s.CloseWithReason(websocket.CloseNormalClosure, "server closing")
}

func (s *Session) CloseWithReason(code int, reason string) {
	if !s.closed.CompareAndSwap(0, 1) {
		return
	}

	observability.GetLogger(context.Background()).Info("session: closing",
		zap.String("user_id", s.UserID),
		zap.String("device_id", s.DeviceID),
		zap.Int("code", code),
		zap.String("reason", reason))
	close(s.done)

	if s.Conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = s.Conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		s.Conn.Close()
	}
}

func (s *Session) writeLoop() {
	log := observability.GetLogger(context.Background())
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case msg := <-s.SendQueue:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Warn("session: write error", zap.String("user_id", s.UserID), zap.String("device_id", s.DeviceID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn("session: ping error", zap.String("user_id", s.UserID), zap.String("device_id", s.DeviceID), zap.Error(err))
				return
			}
		case <-s.done:
			return
		}
	}
}
