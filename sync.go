package chatsync

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// RefreshConversations fetches the conversation list and replaces the
// collection. Local patches made after the fetch started, or whose remote
// call is still unsettled, are re-applied on top. Message lists are never
// touched. On failure the collection is left as it was.
func (e *Engine) RefreshConversations(ctx context.Context) error {
	start := e.store.beginRefresh()
	began := e.now()
	convs, err := e.api.ListConversations(ctx)
	e.metrics.RefreshDuration.Observe(e.now().Sub(began).Seconds())
	if err != nil {
		e.metrics.Refreshes.WithLabelValues("failed").Inc()
		e.log.Warn("conversation refresh failed", zap.Error(err))
		e.emit(EventLoadFailed, LoadFailed{What: "conversations", Err: err})
		return fmt.Errorf("refresh conversations: %w", err)
	}

	changed, stale := e.store.applyRefresh(start, convs)
	switch {
	case stale:
		e.metrics.Refreshes.WithLabelValues("stale").Inc()
		e.log.Debug("discarded stale conversation refresh", zap.Uint64("start", start))
	case changed:
		e.metrics.Refreshes.WithLabelValues("applied").Inc()
		e.emit(EventConversationsChanged, nil)
	default:
		e.metrics.Refreshes.WithLabelValues("unchanged").Inc()
	}
	return nil
}

func (e *Engine) refreshInBackground() {
	e.background(func(ctx context.Context) {
		_ = e.RefreshConversations(ctx)
	})
}
