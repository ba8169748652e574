package chatsync

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTempID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewTempID()
		require.True(t, IsTempID(id), id)
		require.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}
	assert.False(t, IsTempID("msg-123"))
	assert.True(t, strings.HasPrefix(NewTempID(), "tmp-"))
}

func TestTracker_Transitions(t *testing.T) {
	t.Run("pending to confirmed", func(t *testing.T) {
		tr := NewTracker()
		op := tr.Begin("c1")
		assert.Equal(t, LocalPending, op.State)

		require.NoError(t, tr.Confirm(op.TempID, "msg-1"))
		got, ok := tr.Get(op.TempID)
		require.True(t, ok)
		assert.Equal(t, LocalConfirmed, got.State)
		assert.Equal(t, "msg-1", got.ServerID)
	})

	t.Run("pending to failed", func(t *testing.T) {
		tr := NewTracker()
		op := tr.Begin("c1")
		cause := errors.New("boom")
		require.NoError(t, tr.Fail(op.TempID, cause))
		got, _ := tr.Get(op.TempID)
		assert.Equal(t, LocalFailed, got.State)
		assert.ErrorIs(t, got.Err, cause)
	})

	t.Run("terminal states are final", func(t *testing.T) {
		tr := NewTracker()
		a := tr.Begin("c1")
		b := tr.Begin("c1")
		require.NoError(t, tr.Confirm(a.TempID, "msg-1"))
		require.NoError(t, tr.Fail(b.TempID, errors.New("x")))

		assert.ErrorIs(t, tr.Confirm(a.TempID, "msg-2"), ErrInvalidTransition)
		assert.ErrorIs(t, tr.Fail(a.TempID, errors.New("x")), ErrInvalidTransition)
		assert.ErrorIs(t, tr.Confirm(b.TempID, "msg-3"), ErrInvalidTransition)
	})

	t.Run("unknown op", func(t *testing.T) {
		assert.ErrorIs(t, NewTracker().Confirm("tmp-nope", "x"), ErrInvalidTransition)
	})
}

func TestTracker_PendingAndForget(t *testing.T) {
	tr := NewTracker()
	a := tr.Begin("c1")
	b := tr.Begin("c1")
	c := tr.Begin("c2")

	assert.Equal(t, 3, tr.PendingCount())
	assert.Equal(t, map[string]bool{a.TempID: true, b.TempID: true}, tr.PendingIn("c1"))

	tr.Forget(c.TempID)
	_, ok := tr.Get(c.TempID)
	assert.True(t, ok, "pending ops are not forgotten")

	require.NoError(t, tr.Confirm(a.TempID, "msg-1"))
	assert.Equal(t, map[string]bool{b.TempID: true}, tr.PendingIn("c1"))
	tr.Forget(a.TempID)
	_, ok = tr.Get(a.TempID)
	assert.False(t, ok)
	assert.Equal(t, 2, tr.PendingCount())
}

func TestTracker_RegeneratesCollidingIDs(t *testing.T) {
	tr := NewTracker()
	ids := []string{"tmp-a", "tmp-a", "tmp-b"}
	tr.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	assert.Equal(t, "tmp-a", tr.Begin("c1").TempID)
	assert.Equal(t, "tmp-b", tr.Begin("c1").TempID)
}

func TestLocalState_String(t *testing.T) {
	assert.Equal(t, "pending", LocalPending.String())
	assert.Equal(t, "confirmed", LocalConfirmed.String())
	assert.Equal(t, "failed", LocalFailed.String())
	assert.Equal(t, "LocalState(9)", LocalState(9).String())
}
