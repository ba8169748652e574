package chatsync

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ── Flags ────────────────────────────────────────────────

// SetMuted mutes or unmutes a conversation.
func (e *Engine) SetMuted(ctx context.Context, conversationID string, muted bool) error {
	return e.patchFlags(ctx, conversationID, ConversationPatch{IsMuted: &muted})
}

// SetArchived archives or unarchives a conversation.
func (e *Engine) SetArchived(ctx context.Context, conversationID string, archived bool) error {
	return e.patchFlags(ctx, conversationID, ConversationPatch{IsArchived: &archived})
}

// SetPinned pins or unpins a conversation.
func (e *Engine) SetPinned(ctx context.Context, conversationID string, pinned bool) error {
	return e.patchFlags(ctx, conversationID, ConversationPatch{IsPinned: &pinned})
}

// patchFlags applies patch locally, then remotely. If the remote call fails
// the touched flags go back to their prior values.
func (e *Engine) patchFlags(ctx context.Context, conversationID string, patch ConversationPatch) error {
	if _, ok := e.store.Conversation(conversationID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConversation, conversationID)
	}
	prev, seq, found := e.store.patchConversation(conversationID, overlay{patch: patch})
	if found {
		e.emit(EventConversationsChanged, nil)
	}

	if err := e.api.UpdateConversation(ctx, conversationID, patch); err != nil {
		if found {
			e.store.restoreFlags(prev, patch, seq)
			e.emit(EventConversationsChanged, nil)
		}
		e.log.Warn("conversation update failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return fmt.Errorf("update conversation %s: %w", conversationID, err)
	}
	e.store.settleOverlay(conversationID, seq)
	return nil
}

// ── Removal ──────────────────────────────────────────────

// DeleteConversation removes a conversation and its messages locally, then
// asks the server to delete it. A remote failure is logged; the conversation
// stays removed until a refresh brings it back.
func (e *Engine) DeleteConversation(ctx context.Context, conversationID string) bool {
	if _, ok := e.store.removeConversation(conversationID); !ok {
		return false
	}
	e.emit(EventConversationsChanged, nil)
	if err := e.api.DeleteConversation(ctx, conversationID); err != nil {
		e.log.Warn("conversation delete failed", zap.String("conversation_id", conversationID), zap.Error(err))
	}
	return true
}

// LeaveGroup leaves a group conversation. It is removed locally once the
// server accepted the call.
func (e *Engine) LeaveGroup(ctx context.Context, conversationID string) error {
	c, ok := e.store.Conversation(conversationID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConversation, conversationID)
	}
	switch c.Type {
	case ConversationGroup:
	case ConversationIndividual, ConversationCompany:
		return fmt.Errorf("%w: %s is %s", ErrNotGroup, conversationID, c.Type)
	default:
		return fmt.Errorf("%w: %s", ErrNotGroup, conversationID)
	}

	if err := e.api.LeaveConversation(ctx, conversationID); err != nil {
		e.log.Warn("leave group failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return fmt.Errorf("leave %s: %w", conversationID, err)
	}
	if _, ok := e.store.removeConversation(conversationID); ok {
		e.emit(EventConversationsChanged, nil)
	}
	return nil
}

// ── Creation ─────────────────────────────────────────────

// StartConversation creates a conversation and returns its id, or "" when
// the call failed or the response carried no id. On success a placeholder
// entry is shown until the following refresh replaces it.
func (e *Engine) StartConversation(ctx context.Context, req *CreateConversationRequest) string {
	if req == nil {
		e.log.Warn("conversation create skipped: no request")
		return ""
	}
	id, err := e.api.CreateConversation(ctx, req)
	if err != nil || id == "" {
		e.log.Warn("conversation create failed",
			zap.Strings("participants", req.ParticipantIDs),
			zap.Error(err),
		)
		return ""
	}

	stub := Conversation{ID: id, Name: strings.TrimSpace(req.Name)}
	if req.Type != nil {
		stub.Type = *req.Type
	} else if len(req.ParticipantIDs) > 1 {
		stub.Type = ConversationGroup
	}
	for _, p := range req.ParticipantIDs {
		stub.Participants = append(stub.Participants, User{ID: p})
	}
	if e.store.insertConversation(stub) {
		e.emit(EventConversationsChanged, nil)
	}
	e.refreshInBackground()
	return id
}

// StartAndOpen creates a conversation and opens it. It is a no-op returning
// "" when no id came back.
func (e *Engine) StartAndOpen(ctx context.Context, req *CreateConversationRequest) (string, error) {
	id := e.StartConversation(ctx, req)
	if id == "" {
		return "", nil
	}
	return id, e.OpenConversation(ctx, id)
}

// ── Messages & contacts ──────────────────────────────────

// DeleteMessage removes a message locally and asks the server to delete it.
// Messages still being sent cannot be deleted.
func (e *Engine) DeleteMessage(ctx context.Context, conversationID, messageID string) bool {
	if IsTempID(messageID) {
		return false
	}
	m, ok := e.store.Message(messageID)
	if !ok || m.ConversationID != conversationID || m.Status == StatusSending {
		return false
	}
	if _, ok := e.store.removeMessage(conversationID, messageID); !ok {
		return false
	}
	e.emit(EventMessagesChanged, conversationID)
	if err := e.api.DeleteMessage(ctx, conversationID, messageID); err != nil {
		e.log.Warn("message delete failed",
			zap.String("conversation_id", conversationID),
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
	return true
}

// Contacts returns the contact directory, or an empty list on failure.
func (e *Engine) Contacts(ctx context.Context) []Contact {
	contacts, err := e.api.ListContacts(ctx)
	if err != nil {
		e.log.Warn("contact fetch failed", zap.Error(err))
		return []Contact{}
	}
	if contacts == nil {
		return []Contact{}
	}
	return contacts
}
