package chatsync

import "sync"

// Event names emitted by the Engine.
const (
	EventConversationsChanged = "conversations.changed"
	EventMessagesChanged      = "messages.changed"
	EventMessageLocal         = "message.local"
	EventMessageConfirmed     = "message.confirmed"
	EventMessageFailed        = "message.failed"
	EventActiveChanged        = "conversation.active"
	EventLoadFailed           = "load.failed"
	EventDraftChanged         = "draft.changed"
)

// EventHandler receives engine events. Payload types per event:
//
//	conversations.changed  nil
//	messages.changed       conversation id (string)
//	message.local          Message
//	message.confirmed      MessageConfirmed
//	message.failed         MessageFailed
//	conversation.active    conversation id (string)
//	load.failed            LoadFailed
//	draft.changed          Draft
type EventHandler func(event string, payload any)

// MessageConfirmed is the payload of EventMessageConfirmed.
type MessageConfirmed struct {
	TempID  string
	Message Message
}

// MessageFailed is the payload of EventMessageFailed.
type MessageFailed struct {
	TempID         string
	ConversationID string
	Content        string
	Err            error
}

// LoadFailed is the payload of EventLoadFailed.
type LoadFailed struct {
	What           string // "conversations" or "messages"
	ConversationID string
	Err            error
}

type emitter struct {
	mu        sync.RWMutex
	listeners map[string][]EventHandler
}

func newEmitter() emitter {
	return emitter{listeners: make(map[string][]EventHandler)}
}

// On registers handler for event.
func (e *emitter) On(event string, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[event] = append(e.listeners[event], handler)
}

func (e *emitter) emit(event string, payload any) {
	e.mu.RLock()
	handlers := e.listeners[event]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() { recover() }() // swallow panics in user callbacks
			h(event, payload)
		}()
	}
}

func (e *emitter) removeAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = make(map[string][]EventHandler)
}
