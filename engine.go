package chatsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	ErrEmptyContent         = errors.New("message content is empty")
	ErrSendInFlight         = errors.New("a send is already in flight")
	ErrNoActiveConversation = errors.New("no active conversation")
	ErrUnknownConversation  = errors.New("unknown conversation")
	ErrNotGroup             = errors.New("conversation is not a group")
	ErrEngineStopped        = errors.New("engine stopped")
)

// ============================================================================
// Engine
// ============================================================================

// Engine owns the Store and is the only writer to it. Every user mutation
// enters through one of its methods.
type Engine struct {
	emitter
	api     API
	store   *Store
	tracker *Tracker
	userID  string

	log          *zap.Logger
	metrics      *Metrics
	pollInterval time.Duration
	newTicker    func(time.Duration) Ticker
	now          func() time.Time
	poller       *Poller

	sendMu  sync.Mutex
	sending bool

	bgMu     sync.Mutex
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
	stopped  bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the diagnostic logger. The default discards everything.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// WithRegisterer registers the engine metrics with reg.
func WithRegisterer(reg prometheus.Registerer) EngineOption {
	return func(e *Engine) { e.metrics = NewMetrics(reg) }
}

// WithPollInterval sets the conversation refresh interval.
func WithPollInterval(d time.Duration) EngineOption {
	return func(e *Engine) { e.pollInterval = d }
}

// WithTicker replaces the poller clock.
func WithTicker(newTicker func(time.Duration) Ticker) EngineOption {
	return func(e *Engine) { e.newTicker = newTicker }
}

// WithClock replaces the time source used for optimistic timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine acting as userID against api.
func NewEngine(api API, userID string, opts ...EngineOption) *Engine {
	e := &Engine{
		emitter:      newEmitter(),
		api:          api,
		store:        NewStore(),
		tracker:      NewTracker(),
		userID:       userID,
		pollInterval: DefaultPollInterval,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	e.bgCtx, e.bgCancel = context.WithCancel(context.Background())
	e.poller = NewPoller(e.pollInterval, func(ctx context.Context) {
		_ = e.RefreshConversations(ctx)
	}, e.newTicker)
	return e
}

// Start performs the initial conversation refresh and starts polling. The
// poller runs even when the initial refresh fails; its error is returned.
func (e *Engine) Start(ctx context.Context) error {
	err := e.RefreshConversations(ctx)
	e.poller.Start(e.bgCtx)
	return err
}

// Stop cancels polling, background calls and sends in flight, waits for
// them and drops all event handlers. The engine is not reusable after Stop.
func (e *Engine) Stop() {
	e.bgMu.Lock()
	if e.stopped {
		e.bgMu.Unlock()
		return
	}
	e.stopped = true
	e.bgMu.Unlock()

	e.poller.Cancel()
	e.bgCancel()
	e.bgWG.Wait()
	e.removeAll()
}

// background runs fn on its own goroutine with the engine's lifetime context.
func (e *Engine) background(fn func(ctx context.Context)) bool {
	e.bgMu.Lock()
	defer e.bgMu.Unlock()
	if e.stopped {
		return false
	}
	e.bgWG.Add(1)
	go func() {
		defer e.bgWG.Done()
		fn(e.bgCtx)
	}()
	return true
}

func (e *Engine) isStopped() bool {
	e.bgMu.Lock()
	defer e.bgMu.Unlock()
	return e.stopped
}

// Wait blocks until background calls and sends started so far have returned.
func (e *Engine) Wait() {
	e.bgWG.Wait()
}

// ── Snapshots ─────────────────────────────────────────────

// Store exposes read access to the mirror.
func (e *Engine) Store() *Store { return e.store }

// UserID returns the user the engine acts as.
func (e *Engine) UserID() string { return e.userID }

func (e *Engine) Conversations() []Conversation { return e.store.Conversations() }

// Visible returns the filtered, sorted conversation list.
func (e *Engine) Visible(filter Filter, search string) []Conversation {
	return VisibleConversations(e.store.Conversations(), filter, search)
}

func (e *Engine) Messages(conversationID string) []Message { return e.store.Messages(conversationID) }

func (e *Engine) ActiveConversationID() string { return e.store.ActiveID() }

// PendingCount returns the number of sends awaiting the server.
func (e *Engine) PendingCount() int { return e.tracker.PendingCount() }

// ── Draft ─────────────────────────────────────────────────

func (e *Engine) Draft() Draft { return e.store.Draft() }

// SetDraft replaces the input text, keeping the reply context.
func (e *Engine) SetDraft(text string) {
	d := e.store.Draft()
	d.Text = text
	e.store.setDraft(d)
	e.emit(EventDraftChanged, d)
}

// SetReplyTo sets the message being replied to; "" clears it.
func (e *Engine) SetReplyTo(messageID string) {
	d := e.store.Draft()
	d.ReplyTo = messageID
	e.store.setDraft(d)
	e.emit(EventDraftChanged, d)
}
