package chatsync

import (
	"context"
	"sync"
	"time"
)

// DefaultPollInterval is how often the conversation list is re-fetched.
const DefaultPollInterval = 30 * time.Second

// Ticker is the clock the Poller waits on. Tests substitute a manual one.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker wraps time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{time.NewTicker(d)}
}

// Poller runs a task on a fixed interval until cancelled.
type Poller struct {
	interval  time.Duration
	task      func(context.Context)
	newTicker func(time.Duration) Ticker

	mu        sync.Mutex
	started   bool
	cancelled bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewPoller creates a poller. newTicker may be nil for wall-clock time.
func NewPoller(interval time.Duration, task func(context.Context), newTicker func(time.Duration) Ticker) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if newTicker == nil {
		newTicker = NewTimeTicker
	}
	return &Poller{
		interval:  interval,
		task:      task,
		newTicker: newTicker,
	}
}

// Start launches the loop. It returns false if the poller already started
// or was cancelled.
func (p *Poller) Start(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.cancelled {
		return false
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	ticker := p.newTicker(p.interval)
	go p.loop(ctx, ticker)
	return true
}

func (p *Poller) loop(ctx context.Context, ticker Ticker) {
	defer close(p.done)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if ctx.Err() != nil {
				return
			}
			p.task(ctx)
		}
	}
}

// Cancel stops the loop and waits for a running task to return. No task
// runs after Cancel returns. Must not be called from the task itself.
func (p *Poller) Cancel() {
	p.mu.Lock()
	if p.cancelled {
		p.mu.Unlock()
		return
	}
	p.cancelled = true
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started && !p.cancelled
}
