package chatsync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualTicker fires only when tick is called.
type manualTicker struct {
	c       chan time.Time
	stopped atomic.Bool
}

func newManualTicker() *manualTicker {
	return &manualTicker{c: make(chan time.Time)}
}

func (m *manualTicker) C() <-chan time.Time { return m.c }
func (m *manualTicker) Stop()               { m.stopped.Store(true) }

// tick blocks until the loop has received the tick.
func (m *manualTicker) tick(t *testing.T) {
	t.Helper()
	select {
	case m.c <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not receive tick")
	}
}

func (m *manualTicker) factory(time.Duration) Ticker { return m }

func TestPoller_RunsTaskOnTick(t *testing.T) {
	mt := newManualTicker()
	runs := make(chan struct{}, 10)
	p := NewPoller(time.Minute, func(context.Context) { runs <- struct{}{} }, mt.factory)

	require.True(t, p.Start(context.Background()))
	assert.True(t, p.Running())
	assert.Empty(t, runs, "no run before the first tick")

	mt.tick(t)
	mt.tick(t)
	p.Cancel()
	assert.Len(t, runs, 2)
	assert.True(t, mt.stopped.Load())
	assert.False(t, p.Running())
}

func TestPoller_CancelJoinsRunningTask(t *testing.T) {
	mt := newManualTicker()
	entered := make(chan struct{})
	var finished atomic.Bool
	p := NewPoller(time.Minute, func(ctx context.Context) {
		close(entered)
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		finished.Store(true)
	}, mt.factory)

	p.Start(context.Background())
	mt.tick(t)
	<-entered
	p.Cancel()
	assert.True(t, finished.Load(), "Cancel returned before the task")
}

func TestPoller_StartCancelEdgeCases(t *testing.T) {
	t.Run("double start", func(t *testing.T) {
		mt := newManualTicker()
		p := NewPoller(time.Minute, func(context.Context) {}, mt.factory)
		assert.True(t, p.Start(context.Background()))
		assert.False(t, p.Start(context.Background()))
		p.Cancel()
	})

	t.Run("cancel is idempotent", func(t *testing.T) {
		p := NewPoller(time.Minute, func(context.Context) {}, newManualTicker().factory)
		p.Start(context.Background())
		p.Cancel()
		p.Cancel()
	})

	t.Run("start after cancel", func(t *testing.T) {
		p := NewPoller(time.Minute, func(context.Context) {}, newManualTicker().factory)
		p.Cancel()
		assert.False(t, p.Start(context.Background()))
		assert.False(t, p.Running())
	})

	t.Run("parent context stops loop", func(t *testing.T) {
		mt := newManualTicker()
		var runs atomic.Int32
		p := NewPoller(time.Minute, func(context.Context) { runs.Add(1) }, mt.factory)
		ctx, cancel := context.WithCancel(context.Background())
		p.Start(ctx)
		cancel()
		require.Eventually(t, mt.stopped.Load, time.Second, 5*time.Millisecond)
		assert.Zero(t, runs.Load())
		p.Cancel()
	})
}

func TestNewPoller_Defaults(t *testing.T) {
	p := NewPoller(0, func(context.Context) {}, nil)
	assert.Equal(t, DefaultPollInterval, p.interval)
	assert.NotNil(t, p.newTicker)
}
