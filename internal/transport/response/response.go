package response

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"go.uber.org/zap"
)

func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		observability.GetLogger(context.Background()).Error("failed to encode response", zap.Error(err))
	}
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}

type mappedError struct {
	status int
	code   string
}

var errorTable = []struct {
	target error
	mapped mappedError
}{
	{domain.ErrMessageNotFound, mappedError{http.StatusNotFound, "not_found"}},
	{domain.ErrConversationNotFound, mappedError{http.StatusNotFound, "not_found"}},
	{domain.ErrUserNotFound, mappedError{http.StatusNotFound, "not_found"}},
	{domain.ErrNotParticipant, mappedError{http.StatusForbidden, "forbidden"}},
	{domain.ErrInvalidMessage, mappedError{http.StatusBadRequest, "invalid_argument"}},
	{domain.ErrMessageTooLarge, mappedError{http.StatusBadRequest, "invalid_argument"}},
	{domain.ErrInvalidInput, mappedError{http.StatusBadRequest, "invalid_argument"}},
	{domain.ErrInvalidTransition, mappedError{http.StatusConflict, "invalid_state"}},
}

// MapError writes the HTTP form of a service error. Anything unrecognised is
// logged and reported as a 500 without leaking details.
func MapError(ctx context.Context, w http.ResponseWriter, err error) {
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			WriteError(w, e.mapped.status, e.mapped.code, e.target.Error())
			return
		}
	}

	observability.GetLogger(ctx).Error("internal_error", zap.Error(err))
	WriteError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
}
