package chatsync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
)

// fakeAPI is an in-memory server. Calls block on a gate channel when one is
// set, so tests control how remote calls interleave.
type fakeAPI struct {
	mu            sync.Mutex
	conversations []Conversation
	messages      map[string][]Message
	contacts      []Contact
	nextID        int
	clock         time.Time

	listErr     error
	messagesErr error
	createErr   error
	markReadErr error

	listGate     chan struct{}
	createGate   chan struct{}
	markReadGate chan struct{}
	// messagesGate blocks ListMessages after it took its snapshot.
	messagesGate chan struct{}
	// replyGate blocks CreateMessage after the message was stored.
	replyGate chan struct{}
	fetching  chan struct{}

	listCalls int
	creates   []CreateMessageRequest
	markReads []string
}

func newFakeAPI(convs ...Conversation) *fakeAPI {
	return &fakeAPI{
		conversations: convs,
		messages:      make(map[string][]Message),
		clock:         t0.Add(2 * time.Hour),
	}
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeAPI) ListConversations(ctx context.Context) ([]Conversation, error) {
	f.mu.Lock()
	f.listCalls++
	gate := f.listGate
	f.mu.Unlock()
	if err := wait(ctx, gate); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]Conversation, len(f.conversations))
	for i := range f.conversations {
		out[i] = f.conversations[i].Clone()
	}
	return out, nil
}

func (f *fakeAPI) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	f.mu.Lock()
	err := f.messagesErr
	out := append([]Message(nil), f.messages[conversationID]...)
	gate, fetching := f.messagesGate, f.fetching
	f.mu.Unlock()
	if fetching != nil {
		fetching <- struct{}{}
	}
	if werr := wait(ctx, gate); werr != nil {
		return nil, werr
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakeAPI) CreateMessage(ctx context.Context, conversationID string, req *CreateMessageRequest) (*Message, error) {
	f.mu.Lock()
	f.creates = append(f.creates, *req)
	gate := f.createGate
	f.mu.Unlock()
	if err := wait(ctx, gate); err != nil {
		return nil, err
	}

	f.mu.Lock()
	if f.createErr != nil {
		f.mu.Unlock()
		return nil, f.createErr
	}
	f.nextID++
	f.clock = f.clock.Add(time.Second)
	m := Message{
		ID:             fmt.Sprintf("msg-%d", f.nextID),
		ConversationID: conversationID,
		SenderID:       "me",
		Content:        req.Content,
		Type:           MessageText,
		Timestamp:      f.clock,
		Status:         StatusSent,
		ReplyTo:        req.ReplyToID,
	}
	f.messages[conversationID] = append(f.messages[conversationID], m)
	for i := range f.conversations {
		if f.conversations[i].ID == conversationID {
			last := m
			f.conversations[i].LastMessage = &last
		}
	}
	reply := f.replyGate
	f.mu.Unlock()
	if err := wait(ctx, reply); err != nil {
		return nil, err
	}
	return &m, nil
}

func (f *fakeAPI) MarkRead(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	gate := f.markReadGate
	f.mu.Unlock()
	if err := wait(ctx, gate); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReads = append(f.markReads, conversationID)
	if f.markReadErr != nil {
		return f.markReadErr
	}
	for i := range f.conversations {
		if f.conversations[i].ID == conversationID {
			f.conversations[i].UnreadCount = 0
		}
	}
	return nil
}

func (f *fakeAPI) CreateConversation(ctx context.Context, req *CreateConversationRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("conv-%d", f.nextID)
	c := Conversation{ID: id, Name: req.Name}
	if req.Type != nil {
		c.Type = *req.Type
	}
	f.conversations = append(f.conversations, c)
	return id, nil
}

func (f *fakeAPI) UpdateConversation(ctx context.Context, conversationID string, patch ConversationPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.conversations {
		if f.conversations[i].ID == conversationID {
			patch.apply(&f.conversations[i])
		}
	}
	return nil
}

func (f *fakeAPI) DeleteConversation(ctx context.Context, conversationID string) error {
	return f.dropConversation(conversationID)
}

func (f *fakeAPI) LeaveConversation(ctx context.Context, conversationID string) error {
	return f.dropConversation(conversationID)
}

func (f *fakeAPI) dropConversation(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.conversations {
		if f.conversations[i].ID == id {
			f.conversations = append(f.conversations[:i:i], f.conversations[i+1:]...)
			return nil
		}
	}
	return &APIError{Status: 404, Message: "not found"}
}

func (f *fakeAPI) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.messages[conversationID]
	for i := range list {
		if list[i].ID == messageID {
			f.messages[conversationID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return &APIError{Status: 404, Message: "not found"}
}

func (f *fakeAPI) ListContacts(ctx context.Context) ([]Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Contact(nil), f.contacts...), nil
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAPI) calls() (lists int, creates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, len(f.creates)
}

// mockAPI is a testify mock for tests that assert exact remote calls.
type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) ListConversations(ctx context.Context) ([]Conversation, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]Conversation)
	return list, args.Error(1)
}

func (m *mockAPI) CreateConversation(ctx context.Context, req *CreateConversationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockAPI) UpdateConversation(ctx context.Context, conversationID string, patch ConversationPatch) error {
	return m.Called(ctx, conversationID, patch).Error(0)
}

func (m *mockAPI) DeleteConversation(ctx context.Context, conversationID string) error {
	return m.Called(ctx, conversationID).Error(0)
}

func (m *mockAPI) LeaveConversation(ctx context.Context, conversationID string) error {
	return m.Called(ctx, conversationID).Error(0)
}

func (m *mockAPI) MarkRead(ctx context.Context, conversationID string) error {
	return m.Called(ctx, conversationID).Error(0)
}

func (m *mockAPI) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	args := m.Called(ctx, conversationID)
	list, _ := args.Get(0).([]Message)
	return list, args.Error(1)
}

func (m *mockAPI) CreateMessage(ctx context.Context, conversationID string, req *CreateMessageRequest) (*Message, error) {
	args := m.Called(ctx, conversationID, req)
	msg, _ := args.Get(0).(*Message)
	return msg, args.Error(1)
}

func (m *mockAPI) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	return m.Called(ctx, conversationID, messageID).Error(0)
}

func (m *mockAPI) ListContacts(ctx context.Context) ([]Contact, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]Contact)
	return list, args.Error(1)
}

// newTestEngine builds an engine acting as "me" with a manual poll ticker.
func newTestEngine(t *testing.T, api API, opts ...EngineOption) (*Engine, *manualTicker) {
	t.Helper()
	mt := newManualTicker()
	opts = append([]EngineOption{
		WithTicker(mt.factory),
		WithClock(func() time.Time { return t0.Add(2 * time.Hour) }),
	}, opts...)
	e := NewEngine(api, "me", opts...)
	t.Cleanup(e.Stop)
	return e, mt
}

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func record(e *Engine, events ...string) *recorder {
	r := &recorder{}
	for _, ev := range events {
		e.On(ev, func(event string, _ any) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, event)
		})
	}
	return r
}

func (r *recorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev == event {
			n++
		}
	}
	return n
}
