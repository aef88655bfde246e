package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/application"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/middleware"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/transport/response"
	"github.com/go-chi/chi/v5"
)

type MessageService interface {
	SendMessage(ctx context.Context, cmd application.SendMessageCommand) (*domain.Message, error)
	GetMessage(ctx context.Context, userID, messageID string) (*domain.Message, error)
	ListMessages(ctx context.Context, userID, conversationID string, page, size int) ([]*domain.Message, error)
	UnreadCount(ctx context.Context, userID, conversationID string) (int, error)
	MarkConversationRead(ctx context.Context, userID, conversationID string) (int, error)
}

type Retrier interface {
	RetryFailed(ctx context.Context, messageID string) (bool, error)
}

type Reconciler interface {
	Reconnect(ctx context.Context, userID string, since time.Time) (domain.SyncComplete, error)
}

// SweepRunner triggers one run of a periodic task unless one is in flight.
type SweepRunner interface {
	RunOnce(ctx context.Context) bool
}

type Handler struct {
	messages MessageService
	retrier  Retrier
	syncer   Reconciler
	sweeps   map[string]SweepRunner
}

func NewHandler(messages MessageService, retrier Retrier, syncer Reconciler, sweeps map[string]SweepRunner) *Handler {
	return &Handler{messages: messages, retrier: retrier, syncer: syncer, sweeps: sweeps}
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req struct {
		ConversationID string `json:"conversation_id"`
		Content        string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteError(w, http.StatusBadRequest, "invalid_body", "invalid json")
		return
	}
	if req.ConversationID == "" {
		response.WriteError(w, http.StatusBadRequest, "missing_conv_id", "conversation_id is required")
		return
	}

	msg, err := h.messages.SendMessage(r.Context(), application.SendMessageCommand{
		SenderID:       userID,
		ConversationID: req.ConversationID,
		Content:        req.Content,
	})
	if err != nil {
		response.MapError(r.Context(), w, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, msg)
}

func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.messages.GetMessage(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		response.MapError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, msg)
}

type retryResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// RetryMessage answers 400 with success=false when there is nothing to retry.
func (h *Handler) RetryMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if _, err := h.messages.GetMessage(ctx, middleware.UserID(ctx), id); err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			response.WriteJSON(w, http.StatusBadRequest, retryResponse{Success: false, Message: "message not found"})
			return
		}
		response.MapError(ctx, w, err)
		return
	}

	ok, err := h.retrier.RetryFailed(ctx, id)
	if err != nil {
		response.MapError(ctx, w, err)
		return
	}
	if !ok {
		response.WriteJSON(w, http.StatusBadRequest, retryResponse{Success: false, Message: "message is not in FAILED status"})
		return
	}
	response.WriteJSON(w, http.StatusOK, retryResponse{Success: true, Message: "message queued for retry"})
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 0)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, "invalid_page", "page must be an integer")
		return
	}
	size, err := queryInt(r, "size", application.DefaultPageSize)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, "invalid_size", "size must be an integer")
		return
	}

	msgs, err := h.messages.ListMessages(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "id"), page, size)
	if err != nil {
		response.MapError(r.Context(), w, err)
		return
	}
	if msgs == nil {
		msgs = []*domain.Message{}
	}

	response.WriteJSON(w, http.StatusOK, map[string]any{
		"messages": msgs,
		"page":     page,
		"size":     size,
	})
}

func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	n, err := h.messages.UnreadCount(r.Context(), middleware.UserID(r.Context()), convID)
	if err != nil {
		response.MapError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"conversation_id": convID, "unread": n})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	n, err := h.messages.MarkConversationRead(r.Context(), middleware.UserID(r.Context()), convID)
	if err != nil {
		response.MapError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"conversation_id": convID, "updated": n})
}

// Sync replays what the caller missed since last_sync_timestamp (epoch ms).
// The messages themselves go out on the caller's private channel.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LastSyncTimestamp int64  `json:"last_sync_timestamp"`
		ClientID          string `json:"client_id"`
	}
	// An empty body, chunked or not, means no checkpoint.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.WriteError(w, http.StatusBadRequest, "invalid_body", "invalid json")
		return
	}

	var since time.Time
	if req.LastSyncTimestamp > 0 {
		since = time.UnixMilli(req.LastSyncTimestamp)
	}

	done, err := h.syncer.Reconnect(r.Context(), middleware.UserID(r.Context()), since)
	if err != nil {
		response.MapError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, done)
}

func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	sweep, ok := h.sweeps[name]
	if !ok {
		response.WriteError(w, http.StatusNotFound, "not_found", "unknown sweep "+strconv.Quote(name))
		return
	}
	ran := sweep.RunOnce(r.Context())
	response.WriteJSON(w, http.StatusOK, map[string]any{"name": name, "ran": ran})
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
