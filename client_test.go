package chatsync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helpers
// ============================================================================

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   string
}

type requestLog struct {
	mu   sync.Mutex
	reqs []recordedRequest
}

func (l *requestLog) all() []recordedRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recordedRequest(nil), l.reqs...)
}

func newTestServer(t *testing.T, routes map[string]string) (*Client, *requestLog) {
	t.Helper()
	log := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		log.mu.Lock()
		log.reqs = append(log.reqs, recordedRequest{r.Method, r.URL.Path, r.Header.Get("Authorization"), string(body)})
		log.mu.Unlock()
		resp, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"code":"NOT_FOUND","message":"no route"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)
	return NewClient("tok", WithBaseURL(srv.URL+"/")), log
}

// ============================================================================
// Client
// ============================================================================

func TestClient_Conversations(t *testing.T) {
	ctx := context.Background()
	client, reqs := newTestServer(t, map[string]string{
		"GET /api/conversations": `[
			{"id":"c1","type":"group","name":"Team","unreadCount":2,"isPinned":true,
			 "participants":[{"id":"u1"},{"id":"u2"},{"id":"u1"}],
			 "lastMessage":{"id":"m1","content":"hey","timestamp":"2026-03-01T12:00:00Z"}},
			{"id":"c2","type":"individual","title":"Ann"}
		]`,
		"POST /api/conversations/c1/read":  `{"ok":true}`,
		"PATCH /api/conversations/c1":      `{}`,
		"DELETE /api/conversations/c2":     `{}`,
		"POST /api/conversations/c1/leave": `{}`,
	})
	api := client.API()

	convs, err := api.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, ConversationGroup, convs[0].Type)
	assert.Equal(t, 2, convs[0].UnreadCount)
	assert.Len(t, convs[0].Participants, 2, "participants deduped")
	assert.Equal(t, "hey", convs[0].LastMessage.Content)
	assert.Equal(t, "Ann", convs[1].DisplayName())

	require.NoError(t, api.MarkRead(ctx, "c1"))
	require.NoError(t, api.UpdateConversation(ctx, "c1", ConversationPatch{IsMuted: boolp(true)}))
	require.NoError(t, api.DeleteConversation(ctx, "c2"))
	require.NoError(t, api.LeaveConversation(ctx, "c1"))

	got := reqs.all()
	require.Len(t, got, 5)
	for _, r := range got {
		assert.Equal(t, "Bearer tok", r.Auth)
	}
	assert.JSONEq(t, `{"isMuted":true}`, got[2].Body)
	assert.Equal(t, "POST /api/conversations/c1/leave", got[4].Method+" "+got[4].Path)
}

func TestClient_CreateConversation(t *testing.T) {
	ctx := context.Background()
	for name, body := range map[string]string{
		"flat":    `{"id":"c9"}`,
		"wrapped": `{"conversation":{"id":"c9"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			client, reqs := newTestServer(t, map[string]string{"POST /api/conversations": body})
			group := ConversationGroup
			id, err := client.Conversations.Create(ctx, &CreateConversationRequest{
				ParticipantIDs: []string{"u1", "u2"}, Type: &group, Name: "x",
			})
			require.NoError(t, err)
			assert.Equal(t, "c9", id)
			assert.JSONEq(t, `{"participantIds":["u1","u2"],"type":"group","name":"x"}`, reqs.all()[0].Body)
		})
	}

	t.Run("no id", func(t *testing.T) {
		client, _ := newTestServer(t, map[string]string{"POST /api/conversations": `{"ok":true}`})
		_, err := client.Conversations.Create(ctx, &CreateConversationRequest{ParticipantIDs: []string{"u1"}})
		assert.ErrorIs(t, err, errMissingConversationID)
	})
}

func TestClient_Messages(t *testing.T) {
	ctx := context.Background()
	msg := `{"id":"m2","conversationId":"c1","senderId":"me","content":"hi","type":"text","timestamp":"2026-03-01T12:01:00Z","status":"sent"}`

	t.Run("list envelope", func(t *testing.T) {
		client, _ := newTestServer(t, map[string]string{
			"GET /api/conversations/c1/messages": `{"messages":[` + msg + `]}`,
		})
		list, err := client.Messages.List(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC), list[0].Timestamp)
	})

	for name, body := range map[string]string{"bare": msg, "wrapped": `{"message":` + msg + `}`} {
		t.Run("create "+name, func(t *testing.T) {
			client, reqs := newTestServer(t, map[string]string{"POST /api/conversations/c1/messages": body})
			m, err := client.Messages.Create(ctx, "c1", &CreateMessageRequest{Content: "hi"})
			require.NoError(t, err)
			assert.Equal(t, "m2", m.ID)
			assert.Equal(t, StatusSent, m.Status)
			assert.JSONEq(t, `{"content":"hi"}`, reqs.all()[0].Body)
		})
	}

	t.Run("create without id", func(t *testing.T) {
		client, _ := newTestServer(t, map[string]string{"POST /api/conversations/c1/messages": `{}`})
		_, err := client.Messages.Create(ctx, "c1", &CreateMessageRequest{Content: "hi", ReplyToID: "m1"})
		assert.Error(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		client, reqs := newTestServer(t, map[string]string{"DELETE /api/conversations/c1/messages/m2": `{}`})
		require.NoError(t, client.Messages.Delete(ctx, "c1", "m2"))
		assert.Len(t, reqs.all(), 1)
	})
}

func TestClient_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("api error body", func(t *testing.T) {
		client, _ := newTestServer(t, nil)
		_, err := client.Contacts.List(ctx)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.Status)
		assert.Equal(t, "NOT_FOUND: no route", apiErr.Error())
	})

	t.Run("plain text body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream exploded", http.StatusBadGateway)
		}))
		defer srv.Close()
		_, err := NewClient("", WithBaseURL(srv.URL)).Contacts.List(ctx)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "api error (502): upstream exploded", apiErr.Error())
	})

	t.Run("unknown conversation type", func(t *testing.T) {
		client, _ := newTestServer(t, map[string]string{"GET /api/conversations": `[{"id":"c1","type":"channel"}]`})
		_, err := client.Conversations.List(ctx)
		assert.Error(t, err)
	})

	t.Run("no token no header", func(t *testing.T) {
		client, reqs := newTestServer(t, map[string]string{"GET /api/contacts": `[]`})
		client.SetToken("")
		contacts, err := client.Contacts.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, contacts)
		assert.Empty(t, reqs.all()[0].Auth)
	})
}

func TestClient_Options(t *testing.T) {
	c := NewClient("t")
	assert.Equal(t, DefaultBaseURL, c.BaseURL())
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
	assert.Nil(t, c.limiter)

	c = NewClient("t", WithBaseURL("https://chat.example.com//"), WithTimeout(5*time.Second), WithRateLimit(2, 0))
	assert.Equal(t, "https://chat.example.com", c.BaseURL())
	assert.Equal(t, 5*time.Second, c.httpClient.Timeout)
	require.NotNil(t, c.limiter)
	assert.Equal(t, 1, c.limiter.Burst())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.doRequest(ctx, "GET", "/api/contacts", nil)
	assert.ErrorContains(t, err, "rate limit")
}

func TestConversationType_JSON(t *testing.T) {
	for _, ct := range []ConversationType{ConversationIndividual, ConversationGroup, ConversationCompany} {
		b, err := json.Marshal(ct)
		require.NoError(t, err)
		var back ConversationType
		require.NoError(t, json.Unmarshal(b, &back))
		assert.Equal(t, ct, back)
	}
	_, err := json.Marshal(ConversationType(7))
	assert.Error(t, err)
}
