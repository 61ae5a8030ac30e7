package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/dispatch"
	"courier/internal/services"
	"courier/internal/services/gateway"
	"courier/internal/services/httpx"
)

type fakeGateway struct {
	posted    []map[string]string
	skillReqs []dispatch.SkillRequest
	failures  atomic.Int32
}

func (f *fakeGateway) router(t *testing.T) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Get("/api/channels/{channel}/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") == "missing" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(dispatch.Message{
			ID:        chi.URLParam(r, "id"),
			ChannelID: chi.URLParam(r, "channel"),
			AuthorID:  "u1",
			Content:   "hello",
		})
	})
	r.Post("/api/channels/{channel}/messages", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.posted = append(f.posted, body)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "sent-1"})
	})
	r.Get("/api/channels/{channel}/history", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"turns": []dispatch.Turn{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hey"}},
		})
	})
	r.Post("/api/skills/invoke", func(w http.ResponseWriter, r *http.Request) {
		if f.failures.Add(-1) >= 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req dispatch.SkillRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.skillReqs = append(f.skillReqs, req)
		_ = json.NewEncoder(w).Encode(dispatch.SkillResponse{Success: true, Message: "ok"})
	})
	r.Post("/api/actions/execute", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"unknown action"}`))
	})
	return r
}

func newClient(t *testing.T, fake *fakeGateway, token string) *gateway.Client {
	t.Helper()
	server := httptest.NewServer(fake.router(t))
	t.Cleanup(server.Close)
	client, err := gateway.New(
		gateway.Config{BaseURL: server.URL + "/api", Token: token, MaxMessageLength: 10},
		gateway.WithRetryPolicy(httpx.Policy{Attempts: 3, BaseDelay: time.Millisecond, Sleeper: func(time.Duration) {}}),
	)
	require.NoError(t, err)
	return client
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := gateway.New(gateway.Config{})
	assert.ErrorIs(t, err, services.ErrConfiguration)

	_, err = gateway.New(gateway.Config{BaseURL: "not a url"})
	assert.ErrorIs(t, err, services.ErrConfiguration)
}

func TestFetchAndNotFound(t *testing.T) {
	client := newClient(t, &fakeGateway{}, "secret")

	msg, err := client.Fetch(context.Background(), "c1", "42")
	require.NoError(t, err)
	assert.Equal(t, "42", msg.ID)
	assert.Equal(t, "c1", msg.ChannelID)
	assert.Equal(t, "hello", msg.Content)

	_, err = client.Fetch(context.Background(), "c1", "missing")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestSendAndReply(t *testing.T) {
	fake := &fakeGateway{}
	client := newClient(t, fake, "secret")

	id, err := client.Send(context.Background(), "c1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "sent-1", id)

	_, err = client.Reply(context.Background(), "c1", "42", "re: hi")
	require.NoError(t, err)

	require.Len(t, fake.posted, 2)
	assert.Equal(t, map[string]string{"content": "hi"}, fake.posted[0])
	assert.Equal(t, map[string]string{"content": "re: hi", "reply_to": "42"}, fake.posted[1])

	_, err = client.Send(context.Background(), "c1", "this is far too long")
	assert.ErrorIs(t, err, services.ErrValidation)
	assert.Len(t, fake.posted, 2)
	assert.Equal(t, 10, client.MaxMessageLength())
}

func TestHistory(t *testing.T) {
	client := newClient(t, &fakeGateway{}, "secret")
	turns, err := client.History(context.Background(), "c1", 5)
	require.NoError(t, err)
	assert.Equal(t, []dispatch.Turn{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hey"}}, turns)
}

func TestInvokeRetriesUnavailable(t *testing.T) {
	fake := &fakeGateway{}
	fake.failures.Store(2)
	client := newClient(t, fake, "secret")

	resp, err := client.Invoke(context.Background(), dispatch.SkillRequest{Intent: "weather", UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	require.Len(t, fake.skillReqs, 1)
	assert.Equal(t, "weather", fake.skillReqs[0].Intent)
}

func TestExecuteRejectedIsValidationError(t *testing.T) {
	client := newClient(t, &fakeGateway{}, "secret")
	_, err := client.Execute(context.Background(), dispatch.ActionRequest{Action: "nope"})
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrValidation)
	var statusErr *httpx.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}

func TestMissingTokenIsRejected(t *testing.T) {
	client := newClient(t, &fakeGateway{}, "")
	_, err := client.Fetch(context.Background(), "c1", "42")
	assert.ErrorIs(t, err, services.ErrValidation)
}
