package chatsync

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// OpenConversation makes conversationID the active conversation and loads
// its messages. On success the list is replaced, keeping messages still
// being sent and messages confirmed while the fetch was in flight. The
// unread count is zeroed locally and the server is told the conversation
// was read. A mark-as-read failure is logged and the local
// zeroing stays. On fetch failure nothing but the active id changes.
func (e *Engine) OpenConversation(ctx context.Context, conversationID string) error {
	if e.store.setActive(conversationID) {
		e.emit(EventActiveChanged, conversationID)
	}

	since := e.store.beginMessageFetch()
	defer e.store.endMessageFetch()
	msgs, err := e.api.ListMessages(ctx, conversationID)
	if err != nil {
		e.log.Warn("message fetch failed", zap.String("conversation_id", conversationID), zap.Error(err))
		e.emit(EventLoadFailed, LoadFailed{What: "messages", ConversationID: conversationID, Err: err})
		return fmt.Errorf("open conversation %s: %w", conversationID, err)
	}

	e.store.replaceMessages(conversationID, msgs, e.tracker.PendingIn(conversationID), since)
	e.emit(EventMessagesChanged, conversationID)

	prev, seq, found := e.store.patchConversation(conversationID, overlay{zeroUnread: true})
	if found && prev.UnreadCount != 0 {
		e.emit(EventConversationsChanged, nil)
	}

	started := e.background(func(ctx context.Context) {
		defer e.store.settleOverlay(conversationID, seq)
		if err := e.api.MarkRead(ctx, conversationID); err != nil {
			e.metrics.MarkReadFailed.Inc()
			e.log.Warn("mark as read failed", zap.String("conversation_id", conversationID), zap.Error(err))
		}
	})
	if !started {
		e.store.settleOverlay(conversationID, seq)
	}
	return nil
}

// CloseConversation clears the active conversation.
func (e *Engine) CloseConversation() {
	if e.store.setActive("") {
		e.emit(EventActiveChanged, "")
	}
}
