// Package chatsync is a client-side synchronization engine for a REST
// conversation/message API.
//
// It keeps a local mirror of conversations and messages, applies user
// mutations optimistically, polls the server for the conversation list and
// reconciles confirmed state with local placeholders.
//
// Example:
//
//	client := chatsync.NewClient("token", chatsync.WithBaseURL("https://chat.example.com"))
//	engine := chatsync.NewEngine(client.API(), "user-1")
//	engine.Start(ctx)
//	defer engine.Stop()
//
//	engine.OpenConversation(ctx, "conv-1")
//	out := engine.Send(ctx, "conv-1", "hello", "")
package chatsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "http://localhost:3000"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter

	Conversations *ConversationsClient
	Messages      *MessagesClient
	Contacts      *ContactsClient
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// WithRateLimit caps outgoing requests to rps with the given burst.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a new API client. token may be empty.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Conversations = &ConversationsClient{c: c}
	c.Messages = &MessagesClient{c: c}
	c.Contacts = &ContactsClient{c: c}
	return c
}

// SetToken sets or updates the bearer token.
func (c *Client) SetToken(token string) {
	c.token = token
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(resp.StatusCode)
			}
		}
		return nil, apiErr
	}
	return data, nil
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// ============================================================================
// Sub-Clients
// ============================================================================

// ConversationsClient handles conversation endpoints.
type ConversationsClient struct{ c *Client }

func (cv *ConversationsClient) List(ctx context.Context) ([]Conversation, error) {
	data, err := cv.c.doRequest(ctx, "GET", "/api/conversations", nil)
	if err != nil {
		return nil, err
	}
	list, err := decodeJSON[[]Conversation](data)
	if err != nil {
		return nil, err
	}
	return *list, nil
}

// errMissingConversationID is returned when a create response carries no id
// in either of its known shapes.
var errMissingConversationID = errors.New("create conversation: response has no id")

// Create starts a conversation and returns its id.
func (cv *ConversationsClient) Create(ctx context.Context, req *CreateConversationRequest) (string, error) {
	data, err := cv.c.doRequest(ctx, "POST", "/api/conversations", req)
	if err != nil {
		return "", err
	}
	created, err := decodeJSON[createdConversation](data)
	if err != nil {
		return "", err
	}
	id := created.conversationID()
	if id == "" {
		return "", errMissingConversationID
	}
	return id, nil
}

func (cv *ConversationsClient) MarkAsRead(ctx context.Context, conversationID string) error {
	_, err := cv.c.doRequest(ctx, "POST", "/api/conversations/"+url.PathEscape(conversationID)+"/read", nil)
	return err
}

func (cv *ConversationsClient) Update(ctx context.Context, conversationID string, patch ConversationPatch) error {
	_, err := cv.c.doRequest(ctx, "PATCH", "/api/conversations/"+url.PathEscape(conversationID), patch)
	return err
}

func (cv *ConversationsClient) Delete(ctx context.Context, conversationID string) error {
	_, err := cv.c.doRequest(ctx, "DELETE", "/api/conversations/"+url.PathEscape(conversationID), nil)
	return err
}

func (cv *ConversationsClient) Leave(ctx context.Context, conversationID string) error {
	_, err := cv.c.doRequest(ctx, "POST", "/api/conversations/"+url.PathEscape(conversationID)+"/leave", nil)
	return err
}

// MessagesClient handles message endpoints of a conversation.
type MessagesClient struct{ c *Client }

func messagesPath(conversationID string) string {
	return "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
}

func (m *MessagesClient) List(ctx context.Context, conversationID string) ([]Message, error) {
	data, err := m.c.doRequest(ctx, "GET", messagesPath(conversationID), nil)
	if err != nil {
		return nil, err
	}
	env, err := decodeJSON[messagesEnvelope](data)
	if err != nil {
		return nil, err
	}
	return env.Messages, nil
}

// Create posts a message. Both a bare message and a {"message": ...}
// wrapper are accepted as the response.
func (m *MessagesClient) Create(ctx context.Context, conversationID string, req *CreateMessageRequest) (*Message, error) {
	data, err := m.c.doRequest(ctx, "POST", messagesPath(conversationID), req)
	if err != nil {
		return nil, err
	}
	var wrapped struct {
		Message *Message `json:"message"`
	}
	if json.Unmarshal(data, &wrapped) == nil && wrapped.Message != nil && wrapped.Message.ID != "" {
		return wrapped.Message, nil
	}
	msg, err := decodeJSON[Message](data)
	if err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errors.New("create message: response has no id")
	}
	return msg, nil
}

func (m *MessagesClient) Delete(ctx context.Context, conversationID, messageID string) error {
	_, err := m.c.doRequest(ctx, "DELETE", messagesPath(conversationID)+"/"+url.PathEscape(messageID), nil)
	return err
}

// ContactsClient handles the contact directory.
type ContactsClient struct{ c *Client }

func (ct *ContactsClient) List(ctx context.Context) ([]Contact, error) {
	data, err := ct.c.doRequest(ctx, "GET", "/api/contacts", nil)
	if err != nil {
		return nil, err
	}
	list, err := decodeJSON[[]Contact](data)
	if err != nil {
		return nil, err
	}
	return *list, nil
}

// ============================================================================
// Engine adapter
// ============================================================================

// API is the remote surface the Engine depends on.
type API interface {
	ListConversations(ctx context.Context) ([]Conversation, error)
	CreateConversation(ctx context.Context, req *CreateConversationRequest) (string, error)
	UpdateConversation(ctx context.Context, conversationID string, patch ConversationPatch) error
	DeleteConversation(ctx context.Context, conversationID string) error
	LeaveConversation(ctx context.Context, conversationID string) error
	MarkRead(ctx context.Context, conversationID string) error
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	CreateMessage(ctx context.Context, conversationID string, req *CreateMessageRequest) (*Message, error)
	DeleteMessage(ctx context.Context, conversationID, messageID string) error
	ListContacts(ctx context.Context) ([]Contact, error)
}

// API returns the client as an engine API.
func (c *Client) API() API {
	return clientAPI{c}
}

type clientAPI struct{ c *Client }

func (a clientAPI) ListConversations(ctx context.Context) ([]Conversation, error) {
	return a.c.Conversations.List(ctx)
}

func (a clientAPI) CreateConversation(ctx context.Context, req *CreateConversationRequest) (string, error) {
	return a.c.Conversations.Create(ctx, req)
}

func (a clientAPI) UpdateConversation(ctx context.Context, id string, patch ConversationPatch) error {
	return a.c.Conversations.Update(ctx, id, patch)
}

func (a clientAPI) DeleteConversation(ctx context.Context, id string) error {
	return a.c.Conversations.Delete(ctx, id)
}

func (a clientAPI) LeaveConversation(ctx context.Context, id string) error {
	return a.c.Conversations.Leave(ctx, id)
}

func (a clientAPI) MarkRead(ctx context.Context, id string) error {
	return a.c.Conversations.MarkAsRead(ctx, id)
}

func (a clientAPI) ListMessages(ctx context.Context, id string) ([]Message, error) {
	return a.c.Messages.List(ctx, id)
}

func (a clientAPI) CreateMessage(ctx context.Context, id string, req *CreateMessageRequest) (*Message, error) {
	return a.c.Messages.Create(ctx, id, req)
}

func (a clientAPI) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	return a.c.Messages.Delete(ctx, conversationID, messageID)
}

func (a clientAPI) ListContacts(ctx context.Context) ([]Contact, error) {
	return a.c.Contacts.List(ctx)
}
