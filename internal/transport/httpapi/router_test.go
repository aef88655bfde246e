package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/application"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/middleware"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/repository/bolt"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/retry"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/router"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/syncer"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/testutil"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/ticker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type api struct {
	store     *bolt.Store
	publisher *testutil.Publisher
	notifier  *testutil.Notifier
	server    *httptest.Server
}

func newAPI(t *testing.T, cfg RouterConfig) *api {
	t.Helper()
	a := &api{
		store:     testutil.NewStore(t),
		publisher: &testutil.Publisher{},
		notifier:  &testutil.Notifier{},
	}
	testutil.SeedConversation(t, a.store, "10", "1", "2")
	require.NoError(t, a.store.PutUser(context.Background(), &domain.User{ID: "3"}))

	svc := application.New(a.store, a.publisher, "chat-messages", a.notifier)
	sched := retry.New(a.store, a.publisher, "chat-messages", 3)
	sync := syncer.New(a.store, a.store, a.notifier, 100)
	sweeps := map[string]SweepRunner{
		"retry":    ticker.New("retry", time.Hour, sched.Sweep),
		"delivery": ticker.New("delivery", time.Hour, sync.SweepSent),
	}

	if cfg.AuthMode == "" {
		cfg.AuthMode = AuthHeader
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "messaging-test"
	}
	a.server = httptest.NewServer(NewRouter(NewHandler(svc, sched, sync, sweeps), nil, cfg))
	t.Cleanup(a.server.Close)
	return a
}

func (a *api) do(t *testing.T, method, path, user string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.server.URL+path, &buf)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set(middleware.UserIDHeader, user)
	}
	res, err := a.server.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res.StatusCode, out
}

func TestSendThenDeliverySweep(t *testing.T) {
	a := newAPI(t, RouterConfig{})

	code, body := a.do(t, http.MethodPost, "/api/v1/messages", "1", map[string]string{"conversation_id": "10", "content": "hi"})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "SENT", body["status"])
	id := body["id"].(string)

	code, body = a.do(t, http.MethodPost, "/api/v1/admin/sweeps/delivery", "1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ran"])

	code, body = a.do(t, http.MethodGet, "/api/v1/messages/"+id, "2", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "DELIVERED", body["status"])
	assert.NotNil(t, body["delivered_at"])
}

func TestSendMessage_Errors(t *testing.T) {
	a := newAPI(t, RouterConfig{})

	code, _ := a.do(t, http.MethodPost, "/api/v1/messages", "3", map[string]string{"conversation_id": "10", "content": "hi"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(t, http.MethodPost, "/api/v1/messages", "1", map[string]string{"conversation_id": "404", "content": "hi"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = a.do(t, http.MethodPost, "/api/v1/messages", "1", map[string]string{"content": "hi"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(t, http.MethodPost, "/api/v1/messages", "", map[string]string{"conversation_id": "10", "content": "hi"})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRetryEndpoint(t *testing.T) {
	a := newAPI(t, RouterConfig{})
	testutil.SeedMessage(t, a.store, "failed", "10", "1", testutil.T0, domain.StatusFailed, 3)
	testutil.SeedMessage(t, a.store, "sent", "10", "1", testutil.T0, domain.StatusSent, 0)

	code, body := a.do(t, http.MethodPost, "/api/v1/messages/failed/retry", "1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, domain.StatusPending, testutil.MustGet(t, a.store, "failed").Status)
	require.Len(t, a.publisher.Envelopes(), 1)

	code, body = a.do(t, http.MethodPost, "/api/v1/messages/sent/retry", "1", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["message"])

	code, body = a.do(t, http.MethodPost, "/api/v1/messages/ghost/retry", "1", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, body["success"])

	code, _ = a.do(t, http.MethodPost, "/api/v1/messages/failed/retry", "3", nil)
	assert.Equal(t, http.StatusForbidden, code)

	assert.Len(t, a.publisher.Envelopes(), 1)
}

func TestConversationEndpoints(t *testing.T) {
	a := newAPI(t, RouterConfig{})
	testutil.SeedMessage(t, a.store, "a", "10", "1", testutil.T0, domain.StatusDelivered, 0)
	testutil.SeedMessage(t, a.store, "b", "10", "1", testutil.T0.Add(time.Second), domain.StatusSent, 0)

	code, body := a.do(t, http.MethodGet, "/api/v1/conversations/10/unread", "2", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["unread"])

	code, body = a.do(t, http.MethodGet, "/api/v1/conversations/10/messages?page=0&size=1", "2", nil)
	require.Equal(t, http.StatusOK, code)
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "a", msgs[0].(map[string]any)["id"])

	code, _ = a.do(t, http.MethodGet, "/api/v1/conversations/10/messages?page=x", "2", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = a.do(t, http.MethodPost, "/api/v1/conversations/10/read", "2", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["updated"])

	code, body = a.do(t, http.MethodGet, "/api/v1/conversations/10/unread", "2", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["unread"])

	code, _ = a.do(t, http.MethodGet, "/api/v1/conversations/10/unread", "3", nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestSyncEndpoint(t *testing.T) {
	a := newAPI(t, RouterConfig{})
	testutil.SeedMessage(t, a.store, "m1", "10", "1", testutil.T0, domain.StatusSent, 0)

	since := testutil.T0.Add(-time.Second).UnixMilli()
	code, body := a.do(t, http.MethodPost, "/api/v1/sync", "2", map[string]any{"last_sync_timestamp": since, "client_id": "web"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "complete", body["status"])
	assert.EqualValues(t, 1, body["synced_count"])

	assert.Len(t, a.notifier.On(router.UserMessagesChannel("2")), 1)
	assert.Len(t, a.notifier.On(router.UserSyncChannel("2")), 1)
	assert.Equal(t, domain.StatusDelivered, testutil.MustGet(t, a.store, "m1").Status)
}

func TestUnknownSweep(t *testing.T) {
	a := newAPI(t, RouterConfig{})
	code, _ := a.do(t, http.MethodPost, "/api/v1/admin/sweeps/nope", "1", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRateLimiting(t *testing.T) {
	a := newAPI(t, RouterConfig{RateLimitRequests: 5, RateLimitWindow: "1m"})

	for i := 0; i < 5; i++ {
		code, _ := a.do(t, http.MethodGet, "/health/live", "", nil)
		require.NotEqual(t, http.StatusTooManyRequests, code, "request %d limited too early", i)
	}

	code, _ := a.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestJWTMode(t *testing.T) {
	a := newAPI(t, RouterConfig{AuthMode: AuthJWT, JWTSecret: "s3cret"})

	code, _ := a.do(t, http.MethodGet, "/api/v1/conversations/10/unread", "2", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}
