package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/application"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/middleware"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/repository"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/router"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Presence interface {
	Register(ctx context.Context, userID, deviceID, instanceID string) error
	Unregister(ctx context.Context, userID, deviceID string) error
	Refresh(ctx context.Context, userID, deviceID string) error
}

type Membership interface {
	IsMember(ctx context.Context, convID, userID string) (bool, error)
}

type Syncer interface {
	ProcessPendingMessages(ctx context.Context, userID string) (int, error)
	Reconnect(ctx context.Context, userID string, since time.Time) (domain.SyncComplete, error)
}

type Reader interface {
	MarkConversationRead(ctx context.Context, userID, conversationID string) (int, error)
}

type Sender interface {
	SendMessage(ctx context.Context, cmd application.SendMessageCommand) (*domain.Message, error)
}

type Handler struct {
	registry      *Registry
	presence      Presence
	conversations repository.ConversationStore
	membership    Membership
	syncer        Syncer
	reader        Reader
	sender        Sender
	notifier      router.Notifier
	now           func() time.Time
	instanceID    string
	serviceName   string
}

func NewHandler(
	registry *Registry,
	presence Presence,
	conversations repository.ConversationStore,
	membership Membership,
	syncer Syncer,
	reader Reader,
	sender Sender,
	notifier router.Notifier,
	instanceID string,
	serviceName string,
) *Handler {
	return &Handler{
		registry:      registry,
		presence:      presence,
		conversations: conversations,
		membership:    membership,
		syncer:        syncer,
		reader:        reader,
		sender:        sender,
		notifier:      notifier,
		now:           time.Now,
		instanceID:    instanceID,
		serviceName:   serviceName,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades an authenticated request. On connect the user goes
// ONLINE, is subscribed to every conversation they are in, and has any
// messages waiting for them promoted to DELIVERED.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := observability.GetLogger(r.Context())

	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("upgrade error", zap.Error(err))
		return
	}

	session := NewSession(uuid.NewString(), userID, deviceID, conn)
	h.registry.Add(session)

	ctx := context.Background()
	h.subscribeAll(ctx, session)

	if err := h.presence.Register(ctx, userID, deviceID, h.instanceID); err != nil {
		log.Error("error setting presence online", zap.Error(err))
	}
	StartHeartbeat(h.presence, userID, deviceID, session.Done())

	session.Start()
	log.Info("connected", zap.String("user_id", userID), zap.String("device_id", deviceID))
	observability.WebSocketConnectionsTotal.WithLabelValues(h.serviceName).Inc()

	if n, err := h.syncer.ProcessPendingMessages(ctx, userID); err != nil {
		log.Error("connect catch-up failed", zap.String("user_id", userID), zap.Error(err))
	} else if n > 0 {
		log.Info("connect catch-up promoted messages", zap.String("user_id", userID), zap.Int("count", n))
	}

	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go h.readLoop(session)
}

func (h *Handler) subscribeAll(ctx context.Context, s *Session) {
	convs, err := h.conversations.ListConversationsByUser(ctx, s.UserID)
	if err != nil {
		observability.GetLogger(ctx).Error("failed to list conversations for subscription",
			zap.String("user_id", s.UserID), zap.Error(err))
		return
	}
	for _, c := range convs {
		h.registry.Subscribe(s, c.ID)
	}
}

func (h *Handler) readLoop(s *Session) {
	ctx := context.Background()
	log := observability.GetLogger(ctx)

	defer func() {
		h.registry.Remove(s)
		s.Close()
		if err := h.presence.Unregister(ctx, s.UserID, s.DeviceID); err != nil {
			log.Error("presence: failed to unregister", zap.String("user_id", s.UserID), zap.String("device_id", s.DeviceID), zap.Error(err))
		}
		log.Info("disconnected", zap.String("user_id", s.UserID), zap.String("device_id", s.DeviceID))
		observability.WebSocketConnectionsTotal.WithLabelValues(h.serviceName).Dec()
	}()

	for {
		_, data, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("read loop error", zap.String("user_id", s.UserID), zap.String("device_id", s.DeviceID), zap.Error(err))
			}
			return
		}
		h.handleFrame(ctx, s, data)
	}
}

func (h *Handler) handleFrame(ctx context.Context, s *Session, data []byte) {
	log := observability.GetLogger(ctx).With(zap.String("user_id", s.UserID))

	var f ClientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		s.TrySend(errorFrame("invalid frame"))
		return
	}

	switch f.Type {
	case ClientSync:
		// The replay and the completion notice arrive through the user's
		// private channels.
		if _, err := h.syncer.Reconnect(ctx, s.UserID, f.Since()); err != nil {
			log.Error("sync failed", zap.Error(err))
			s.TrySend(errorFrame("sync failed"))
		}

	case ClientSubscribe:
		if f.ConversationID == "" {
			s.TrySend(errorFrame("conversation_id is required"))
			return
		}
		ok, err := h.membership.IsMember(ctx, f.ConversationID, s.UserID)
		if err != nil || !ok {
			s.TrySend(errorFrame("not a participant"))
			return
		}
		h.registry.Subscribe(s, f.ConversationID)
		s.TrySend(encodeFrame(Frame{Type: FrameSubscribed, ConversationID: f.ConversationID}))

	case ClientRead:
		if f.ConversationID == "" {
			s.TrySend(errorFrame("conversation_id is required"))
			return
		}
		n, err := h.reader.MarkConversationRead(ctx, s.UserID, f.ConversationID)
		if err != nil {
			log.Warn("read receipt failed", zap.String("conversation_id", f.ConversationID), zap.Error(err))
			s.TrySend(errorFrame("read failed"))
			return
		}
		payload, _ := json.Marshal(map[string]int{"updated": n})
		s.TrySend(encodeFrame(Frame{Type: FrameRead, ConversationID: f.ConversationID, Payload: payload}))

	case ClientSend:
		if f.ConversationID == "" {
			s.TrySend(errorFrame("conversation_id is required"))
			return
		}
		msg, err := h.sender.SendMessage(ctx, application.SendMessageCommand{
			SenderID:       s.UserID,
			ConversationID: f.ConversationID,
			Content:        f.Content,
		})
		if err != nil {
			log.Warn("send failed", zap.String("conversation_id", f.ConversationID), zap.Error(err))
			s.TrySend(errorFrame(sendError(err)))
			return
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			s.TrySend(errorFrame("send failed"))
			return
		}
		s.TrySend(encodeFrame(Frame{Type: FrameSent, ConversationID: f.ConversationID, Payload: payload}))

	case ClientTyping:
		if f.ConversationID == "" {
			s.TrySend(errorFrame("conversation_id is required"))
			return
		}
		ok, err := h.membership.IsMember(ctx, f.ConversationID, s.UserID)
		if err != nil || !ok {
			s.TrySend(errorFrame("not a participant"))
			return
		}
		notice := domain.TypingNotice{ConversationID: f.ConversationID, UserID: s.UserID, At: h.now()}
		if err := h.notifier.Publish(ctx, router.TypingChannel(f.ConversationID), notice); err != nil {
			observability.LivePushFailuresTotal.WithLabelValues("typing").Inc()
			log.Warn("typing relay failed", zap.String("conversation_id", f.ConversationID), zap.Error(err))
		}

	default:
		s.TrySend(errorFrame("unknown frame type"))
	}
}

func sendError(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotParticipant):
		return "not a participant"
	case errors.Is(err, domain.ErrConversationNotFound):
		return "conversation not found"
	case errors.Is(err, domain.ErrUserNotFound):
		return "unknown sender"
	case errors.Is(err, domain.ErrMessageTooLarge):
		return "message too large"
	case errors.Is(err, domain.ErrInvalidMessage):
		return "invalid message"
	default:
		return "send failed"
	}
}
