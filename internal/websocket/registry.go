package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/router"
	"go.uber.org/zap"
)

// Registry holds this instance's sessions, indexed by user and device, plus
// the conversation subscriptions used for fan-out.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Session
	subs     map[string]map[*Session]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]map[string]*Session),
		subs:     make(map[string]map[*Session]struct{}),
	}
}

// Add registers s, closing any older session for the same user and device.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[s.UserID] == nil {
		r.sessions[s.UserID] = make(map[string]*Session)
	}

	if old, ok := r.sessions[s.UserID][s.DeviceID]; ok {
		observability.GetLogger(context.Background()).Info("session: replacing existing connection",
			zap.String("user_id", s.UserID),
			zap.String("device_id", s.DeviceID),
			zap.String("old_sid", old.ID),
			zap.String("new_sid", s.ID))
		r.unsubscribeLocked(old)
		old.CloseWithReason(4000, "session_replaced")
	}

	r.sessions[s.UserID][s.DeviceID] = s
}

// Remove is a no-op for a session that was already replaced.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if devices, ok := r.sessions[s.UserID]; ok {
		if current, ok := devices[s.DeviceID]; ok && current.ID == s.ID {
			delete(devices, s.DeviceID)
			if len(devices) == 0 {
				delete(r.sessions, s.UserID)
			}
		}
	}
	r.unsubscribeLocked(s)
}

func (r *Registry) Subscribe(s *Session, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.subscribe(conversationID)
	if r.subs[conversationID] == nil {
		r.subs[conversationID] = make(map[*Session]struct{})
	}
	r.subs[conversationID][s] = struct{}{}
}

func (r *Registry) unsubscribeLocked(s *Session) {
	for _, convID := range s.subscriptions() {
		if set, ok := r.subs[convID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(r.subs, convID)
			}
		}
	}
}

func (r *Registry) GetUserSessions(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Session
	for _, s := range r.sessions[userID] {
		result = append(result, s)
	}
	return result
}

func (r *Registry) subscribers(conversationID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Session, 0, len(r.subs[conversationID]))
	for s := range r.subs[conversationID] {
		result = append(result, s)
	}
	return result
}

func (r *Registry) all() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Session
	for _, devices := range r.sessions {
		for _, s := range devices {
			result = append(result, s)
		}
	}
	return result
}

// Deliver fans a live-channel payload out to the local sessions it addresses.
// It is the handler for the router's pattern subscription.
func (r *Registry) Deliver(channel string, payload []byte) {
	target, ok := router.ParseChannel(channel)
	if !ok {
		return
	}
	if !json.Valid(payload) {
		observability.GetLogger(context.Background()).Warn("registry: dropping non-JSON payload", zap.String("channel", channel))
		return
	}

	var sessions []*Session
	switch target.Kind {
	case router.TargetConversation:
		sessions = r.subscribers(target.ID)
	case router.TargetUser:
		sessions = r.GetUserSessions(target.ID)
	case router.TargetBroadcast:
		sessions = r.all()
	}
	if len(sessions) == 0 {
		return
	}

	frame := eventFrame(channel, payload)
	for _, s := range sessions {
		s.TrySend(frame)
	}
}

func (r *Registry) CloseAll() {
	for _, s := range r.all() {
		s.Close()
	}
}
