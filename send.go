package chatsync

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// SendStatus is the final state of a send attempt.
type SendStatus int

const (
	SendConfirmed SendStatus = iota
	SendFailed
	SendSkipped
)

func (s SendStatus) String() string {
	switch s {
	case SendConfirmed:
		return "confirmed"
	case SendFailed:
		return "failed"
	case SendSkipped:
		return "skipped"
	}
	return "unknown"
}

// SendOutcome reports how a send resolved.
//
// Confirmed: Message holds the server message. Failed: Restore holds the
// trimmed text so the caller can put it back into the input. Skipped: the
// call changed nothing; Err says why.
type SendOutcome struct {
	Status  SendStatus
	TempID  string
	Message *Message
	Restore string
	Err     error
}

// PendingSend is a send whose optimistic entry is already in the store.
type PendingSend struct {
	TempID  string
	done    chan struct{}
	outcome SendOutcome
}

// Done is closed once the send resolved.
func (p *PendingSend) Done() <-chan struct{} { return p.done }

// Wait blocks until the send resolved and returns its outcome.
func (p *PendingSend) Wait() SendOutcome {
	<-p.done
	return p.outcome
}

func skippedSend(err error) *PendingSend {
	p := &PendingSend{done: make(chan struct{}), outcome: SendOutcome{Status: SendSkipped, Err: err}}
	close(p.done)
	return p
}

// Send sends content to a conversation and waits for the server.
func (e *Engine) Send(ctx context.Context, conversationID, content, replyToID string) SendOutcome {
	return e.SendAsync(ctx, conversationID, content, replyToID).Wait()
}

// SendDraft sends the current draft to the active conversation.
func (e *Engine) SendDraft(ctx context.Context) *PendingSend {
	active := e.store.ActiveID()
	if active == "" {
		return skippedSend(ErrNoActiveConversation)
	}
	d := e.store.Draft()
	return e.SendAsync(ctx, active, d.Text, d.ReplyTo)
}

// SendAsync inserts an optimistic message with status sending and returns
// before the server answers. The draft and reply context are cleared at once.
// While another send is in flight the call is skipped and nothing changes.
func (e *Engine) SendAsync(ctx context.Context, conversationID, content, replyToID string) *PendingSend {
	text := strings.TrimSpace(content)
	if text == "" {
		e.metrics.Sends.WithLabelValues("skipped").Inc()
		return skippedSend(ErrEmptyContent)
	}

	if e.isStopped() {
		e.metrics.Sends.WithLabelValues("skipped").Inc()
		return skippedSend(ErrEngineStopped)
	}

	e.sendMu.Lock()
	if e.sending {
		e.sendMu.Unlock()
		e.metrics.Sends.WithLabelValues("skipped").Inc()
		return skippedSend(ErrSendInFlight)
	}
	e.sending = true
	e.sendMu.Unlock()

	e.store.takeDraft()
	e.emit(EventDraftChanged, Draft{})

	op := e.tracker.Begin(conversationID)
	local := Message{
		ID:             op.TempID,
		ConversationID: conversationID,
		SenderID:       e.userID,
		Content:        text,
		Type:           MessageText,
		Timestamp:      e.now(),
		Status:         StatusSending,
		ReplyTo:        replyToID,
	}
	e.store.appendMessage(local)
	e.metrics.PendingMessages.Set(float64(e.tracker.PendingCount()))
	e.emit(EventMessageLocal, local.Clone())
	e.emit(EventMessagesChanged, conversationID)

	p := &PendingSend{TempID: op.TempID, done: make(chan struct{})}
	started := e.background(func(bg context.Context) {
		// Stop cancels the send as well as the caller.
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		unhook := context.AfterFunc(bg, cancel)
		defer unhook()
		e.completeSend(ctx, p, local)
	})
	if !started {
		p.outcome = e.rollbackSend(local, ErrEngineStopped)
		e.releaseSendGate()
		close(p.done)
	}
	return p
}

func (e *Engine) releaseSendGate() {
	e.sendMu.Lock()
	e.sending = false
	e.sendMu.Unlock()
}

func (e *Engine) completeSend(ctx context.Context, p *PendingSend, local Message) {
	defer close(p.done)
	defer e.releaseSendGate()

	server, err := e.api.CreateMessage(ctx, local.ConversationID, &CreateMessageRequest{
		Content:   local.Content,
		ReplyToID: local.ReplyTo,
	})
	if err != nil {
		p.outcome = e.rollbackSend(local, err)
		return
	}

	confirmed := normalizeConfirmed(*server, local)
	if terr := e.tracker.Confirm(local.ID, confirmed.ID); terr != nil {
		e.log.Error("confirm rejected", zap.String("temp_id", local.ID), zap.Error(terr))
		e.store.removeMessage(local.ConversationID, local.ID)
		e.tracker.Forget(local.ID)
		e.metrics.PendingMessages.Set(float64(e.tracker.PendingCount()))
		e.metrics.Sends.WithLabelValues("failed").Inc()
		e.emit(EventMessagesChanged, local.ConversationID)
		p.outcome = SendOutcome{Status: SendFailed, TempID: local.ID, Restore: local.Content, Err: terr}
		return
	}
	e.store.confirmMessage(local.ID, confirmed)
	e.tracker.Forget(local.ID)
	e.metrics.PendingMessages.Set(float64(e.tracker.PendingCount()))
	e.metrics.Sends.WithLabelValues("confirmed").Inc()
	e.log.Debug("message confirmed",
		zap.String("conversation_id", local.ConversationID),
		zap.String("temp_id", local.ID),
		zap.String("message_id", confirmed.ID),
	)
	e.emit(EventMessageConfirmed, MessageConfirmed{TempID: local.ID, Message: confirmed.Clone()})
	e.emit(EventMessagesChanged, local.ConversationID)

	msg := confirmed.Clone()
	p.outcome = SendOutcome{Status: SendConfirmed, TempID: local.ID, Message: &msg}
	e.refreshInBackground()
}

// rollbackSend removes the optimistic entry and hands the text back. The
// reply context stays cleared.
func (e *Engine) rollbackSend(local Message, cause error) SendOutcome {
	if terr := e.tracker.Fail(local.ID, cause); terr != nil {
		e.log.Error("fail rejected", zap.String("temp_id", local.ID), zap.Error(terr))
	}
	e.store.removeMessage(local.ConversationID, local.ID)
	e.tracker.Forget(local.ID)
	if e.store.restoreText(local.Content) {
		e.emit(EventDraftChanged, e.store.Draft())
	}
	e.metrics.PendingMessages.Set(float64(e.tracker.PendingCount()))
	e.metrics.Sends.WithLabelValues("failed").Inc()
	e.log.Warn("send failed",
		zap.String("conversation_id", local.ConversationID),
		zap.String("temp_id", local.ID),
		zap.Error(cause),
	)
	e.emit(EventMessageFailed, MessageFailed{
		TempID:         local.ID,
		ConversationID: local.ConversationID,
		Content:        local.Content,
		Err:            cause,
	})
	e.emit(EventMessagesChanged, local.ConversationID)
	return SendOutcome{Status: SendFailed, TempID: local.ID, Restore: local.Content, Err: cause}
}

// normalizeConfirmed fills fields the server left out from the local entry.
func normalizeConfirmed(server, local Message) Message {
	if server.ConversationID == "" {
		server.ConversationID = local.ConversationID
	}
	if server.SenderID == "" {
		server.SenderID = local.SenderID
	}
	if server.Content == "" {
		server.Content = local.Content
	}
	if server.Type == "" {
		server.Type = local.Type
	}
	if server.Timestamp.IsZero() {
		server.Timestamp = local.Timestamp
	}
	if server.ReplyTo == "" {
		server.ReplyTo = local.ReplyTo
	}
	if server.Status == "" || server.Status == StatusSending {
		server.Status = StatusSent
	}
	return server
}
