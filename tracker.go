package chatsync

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalState is the lifecycle of a locally originated entity.
type LocalState int

const (
	LocalPending LocalState = iota
	LocalConfirmed
	LocalFailed
)

func (s LocalState) String() string {
	switch s {
	case LocalPending:
		return "pending"
	case LocalConfirmed:
		return "confirmed"
	case LocalFailed:
		return "failed"
	}
	return fmt.Sprintf("LocalState(%d)", int(s))
}

// ErrInvalidTransition is returned for any transition other than
// pending→confirmed or pending→failed.
var ErrInvalidTransition = errors.New("invalid local state transition")

// NewTempID returns a fresh local identifier.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// LocalOp tracks one optimistic entity until the server answers.
type LocalOp struct {
	TempID         string
	ConversationID string
	State          LocalState
	ServerID       string
	Err            error
	CreatedAt      time.Time
}

// Tracker owns the pending/confirmed/failed state of optimistic entities.
type Tracker struct {
	mu    sync.Mutex
	ops   map[string]*LocalOp
	newID func() string
	now   func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		ops:   make(map[string]*LocalOp),
		newID: NewTempID,
		now:   time.Now,
	}
}

// Begin registers a new pending op and returns a copy of it.
func (t *Tracker) Begin(conversationID string) LocalOp {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.newID()
	for t.ops[id] != nil {
		id = t.newID()
	}
	op := &LocalOp{
		TempID:         id,
		ConversationID: conversationID,
		State:          LocalPending,
		CreatedAt:      t.now(),
	}
	t.ops[id] = op
	return *op
}

func (t *Tracker) transition(tempID string, to LocalState, apply func(*LocalOp)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	op := t.ops[tempID]
	if op == nil {
		return fmt.Errorf("%w: %s unknown", ErrInvalidTransition, tempID)
	}
	if op.State != LocalPending {
		return fmt.Errorf("%w: %s %s→%s", ErrInvalidTransition, tempID, op.State, to)
	}
	op.State = to
	apply(op)
	return nil
}

// Confirm moves a pending op to confirmed.
func (t *Tracker) Confirm(tempID, serverID string) error {
	return t.transition(tempID, LocalConfirmed, func(op *LocalOp) { op.ServerID = serverID })
}

// Fail moves a pending op to failed.
func (t *Tracker) Fail(tempID string, cause error) error {
	return t.transition(tempID, LocalFailed, func(op *LocalOp) { op.Err = cause })
}

// Get returns a copy of the op.
func (t *Tracker) Get(tempID string) (LocalOp, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op := t.ops[tempID]
	if op == nil {
		return LocalOp{}, false
	}
	return *op, true
}

// PendingIn returns the temp ids still pending for a conversation.
func (t *Tracker) PendingIn(conversationID string) map[string]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make(map[string]bool)
	for id, op := range t.ops {
		if op.ConversationID == conversationID && op.State == LocalPending {
			ids[id] = true
		}
	}
	return ids
}

// PendingCount returns the number of pending ops.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, op := range t.ops {
		if op.State == LocalPending {
			n++
		}
	}
	return n
}

// Forget drops a terminal op. Pending ops are kept.
func (t *Tracker) Forget(tempID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if op := t.ops[tempID]; op != nil && op.State != LocalPending {
		delete(t.ops, tempID)
	}
}
