package chatsync

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ============================================================================
// Shared Types
// ============================================================================

// APIError represents a non-2xx response from the conversation API.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
	}
	return e.Code + ": " + e.Message
}

// ============================================================================
// Conversation
// ============================================================================

// ConversationType is the closed set of conversation kinds.
type ConversationType int

const (
	ConversationIndividual ConversationType = iota
	ConversationGroup
	ConversationCompany
)

func (t ConversationType) String() string {
	switch t {
	case ConversationIndividual:
		return "individual"
	case ConversationGroup:
		return "group"
	case ConversationCompany:
		return "company"
	}
	return fmt.Sprintf("ConversationType(%d)", int(t))
}

// ParseConversationType maps the wire name to a ConversationType.
func ParseConversationType(s string) (ConversationType, error) {
	switch s {
	case "individual":
		return ConversationIndividual, nil
	case "group":
		return ConversationGroup, nil
	case "company":
		return ConversationCompany, nil
	}
	return 0, fmt.Errorf("unknown conversation type %q", s)
}

func (t ConversationType) MarshalJSON() ([]byte, error) {
	switch t {
	case ConversationIndividual, ConversationGroup, ConversationCompany:
		return json.Marshal(t.String())
	}
	return nil, fmt.Errorf("cannot marshal %s", t)
}

func (t *ConversationType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("conversation type: %w", err)
	}
	parsed, err := ParseConversationType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// User is a conversation participant.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Image    string `json:"image,omitempty"`
	Presence string `json:"presence,omitempty"`
}

// Participants is an ordered set of users, unique by ID.
type Participants []User

func (p *Participants) UnmarshalJSON(data []byte) error {
	var users []User
	if err := json.Unmarshal(data, &users); err != nil {
		return err
	}
	seen := make(map[string]bool, len(users))
	out := make([]User, 0, len(users))
	for _, u := range users {
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		out = append(out, u)
	}
	*p = out
	return nil
}

// Conversation mirrors a server conversation.
type Conversation struct {
	ID           string           `json:"id"`
	Type         ConversationType `json:"type"`
	Name         string           `json:"name,omitempty"`
	Title        string           `json:"title,omitempty"`
	LastMessage  *Message         `json:"lastMessage,omitempty"`
	UnreadCount  int              `json:"unreadCount"`
	IsPinned     bool             `json:"isPinned"`
	IsMuted      bool             `json:"isMuted"`
	IsArchived   bool             `json:"isArchived"`
	Participants Participants     `json:"participants,omitempty"`
}

// DisplayName returns the name, falling back to the title.
func (c *Conversation) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Title
}

// Clone returns a deep copy.
func (c Conversation) Clone() Conversation {
	if c.LastMessage != nil {
		m := c.LastMessage.Clone()
		c.LastMessage = &m
	}
	if c.Participants != nil {
		c.Participants = append(Participants(nil), c.Participants...)
	}
	return c
}

// ============================================================================
// Message
// ============================================================================

// MessageType is the content kind of a message.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageDocument MessageType = "document"
	MessageAudio    MessageType = "audio"
	MessageVideo    MessageType = "video"
	MessageLink     MessageType = "link"
	MessageSystem   MessageType = "system"
)

// MessageStatus is the delivery status of a message.
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Reaction is one user's emoji on a message.
type Reaction struct {
	UserID string `json:"userId"`
	Emoji  string `json:"emoji"`
}

// Message mirrors a server message or a local optimistic one.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	SenderID       string        `json:"senderId"`
	Content        string        `json:"content"`
	Type           MessageType   `json:"type"`
	Timestamp      time.Time     `json:"timestamp"`
	Status         MessageStatus `json:"status"`
	Reactions      []Reaction    `json:"reactions,omitempty"`
	ReplyTo        string        `json:"replyTo,omitempty"`
}

// Clone returns a deep copy.
func (m Message) Clone() Message {
	if m.Reactions != nil {
		m.Reactions = append([]Reaction(nil), m.Reactions...)
	}
	return m
}

// TempIDPrefix marks identifiers generated locally for unconfirmed entities.
const TempIDPrefix = "tmp-"

// IsTempID reports whether id was generated locally.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// ============================================================================
// Contacts & requests
// ============================================================================

// Contact is a summary used to pick participants for a new conversation.
type Contact struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Presence string `json:"presence,omitempty"`
	Image    string `json:"image,omitempty"`
}

// CreateMessageRequest is the body of a message create call.
type CreateMessageRequest struct {
	Content   string `json:"content"`
	ReplyToID string `json:"replyToId,omitempty"`
}

// CreateConversationRequest is the body of a conversation create call.
type CreateConversationRequest struct {
	ParticipantIDs []string          `json:"participantIds"`
	Type           *ConversationType `json:"type,omitempty"`
	Name           string            `json:"name,omitempty"`
}

// ConversationPatch updates conversation flags. Nil fields are left alone.
type ConversationPatch struct {
	IsMuted    *bool `json:"isMuted,omitempty"`
	IsArchived *bool `json:"isArchived,omitempty"`
	IsPinned   *bool `json:"isPinned,omitempty"`
}

func (p ConversationPatch) apply(c *Conversation) {
	if p.IsMuted != nil {
		c.IsMuted = *p.IsMuted
	}
	if p.IsArchived != nil {
		c.IsArchived = *p.IsArchived
	}
	if p.IsPinned != nil {
		c.IsPinned = *p.IsPinned
	}
}

type messagesEnvelope struct {
	Messages []Message `json:"messages"`
}

type createdConversation struct {
	ID           string `json:"id"`
	Conversation *struct {
		ID string `json:"id"`
	} `json:"conversation"`
}

// conversationID normalizes the two creation response shapes.
func (c createdConversation) conversationID() string {
	if c.ID != "" {
		return c.ID
	}
	if c.Conversation != nil {
		return c.Conversation.ID
	}
	return ""
}
