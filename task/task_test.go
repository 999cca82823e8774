package task

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDispatcher is a minimal, synchronous Dispatcher for exercising task
// scheduling/dependency logic in isolation from fiber/sched.
type fakeDispatcher struct {
	mu    sync.Mutex
	ready []*Task
}

func (f *fakeDispatcher) SubmitLocal(t *Task) bool {
	f.mu.Lock()
	f.ready = append(f.ready, t)
	f.mu.Unlock()
	return true
}

func (f *fakeDispatcher) SubmitGlobal(t *Task) {
	f.SubmitLocal(t)
}

// RunOneOrYield drains one ready task per call, running its Func to
// completion synchronously (good enough to drive Wait's run-or-yield loop
// in tests without a real worker goroutine).
func (f *fakeDispatcher) RunOneOrYield() bool {
	f.mu.Lock()
	if len(f.ready) == 0 {
		f.mu.Unlock()
		return false
	}
	t := f.ready[0]
	f.ready = f.ready[1:]
	f.mu.Unlock()

	t.state.Store(int32(StateRunning))
	if t.Func != nil {
		t.Func(context.Background())
	}
	Complete(t)
	return true
}

func newTestDispatcher(t *testing.T) *fakeDispatcher {
	t.Helper()
	Init(64)
	d := &fakeDispatcher{}
	SetDispatcher(d)
	t.Cleanup(func() {
		SetDispatcher(nil)
		Shutdown()
	})
	return d
}

func TestSchedule_ImmediateReadyWithNoDependency(t *testing.T) {
	newTestDispatcher(t)

	var ran bool
	h, err := Schedule("t1", func(context.Context) { ran = true }, nil, Handle{})
	require.NoError(t, err)
	assert.False(t, h.IsZero())

	Wait(h)
	assert.True(t, ran)
	assert.Equal(t, StateCompleted, Lookup(h).State())
}

func TestSchedule_DependentWaitsForPredecessor(t *testing.T) {
	newTestDispatcher(t)

	var order []string
	var mu sync.Mutex
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	first, err := Schedule("first", func(context.Context) { record("first") }, nil, Handle{})
	require.NoError(t, err)

	second, err := Schedule("second", func(context.Context) { record("second") }, nil, first)
	require.NoError(t, err)

	// "second" must not be ready before "first" completes.
	assert.Equal(t, StatePending, Lookup(second).State())

	Wait(second)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestSchedule_ChainOfThreeRunsInOrder(t *testing.T) {
	newTestDispatcher(t)

	var order []string
	var mu sync.Mutex
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	a, err := Schedule("a", func(context.Context) { record("a") }, nil, Handle{})
	require.NoError(t, err)
	b, err := Schedule("b", func(context.Context) { record("b") }, nil, a)
	require.NoError(t, err)
	c, err := Schedule("c", func(context.Context) { record("c") }, nil, b)
	require.NoError(t, err)

	Wait(c)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestSchedule_TooManyChildrenRejected(t *testing.T) {
	newTestDispatcher(t)

	pred, err := Schedule("pred", func(context.Context) {}, nil, Handle{})
	require.NoError(t, err)
	Wait(pred) // make sure it stops accepting new deps cleanly either way

	pred2, err := Schedule("pred2", func(context.Context) {}, nil, Handle{})
	require.NoError(t, err)

	for i := 0; i < MaxChildren; i++ {
		_, err := Schedule("child", func(context.Context) {}, nil, pred2)
		require.NoError(t, err)
	}
	_, err = Schedule("overflow-child", func(context.Context) {}, nil, pred2)
	assert.ErrorIs(t, err, ErrTooManyChildren)
}

func TestSchedule_NoDispatcherReturnsError(t *testing.T) {
	SetDispatcher(nil)
	Shutdown()
	_, err := Schedule("t", func(context.Context) {}, nil, Handle{})
	assert.ErrorIs(t, err, ErrNoDispatcher)
}

func TestLookup_StaleHandleReturnsNil(t *testing.T) {
	newTestDispatcher(t)

	h, err := Schedule("t", func(context.Context) {}, nil, Handle{})
	require.NoError(t, err)
	Wait(h)

	stale := Handle{Index: h.Index, Generation: h.Generation + 1}
	assert.Nil(t, Lookup(stale))
}

func TestWait_ZeroHandleReturnsImmediately(t *testing.T) {
	newTestDispatcher(t)
	Wait(Handle{}) // must not block or panic
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "completed", StateCompleted.String())
	assert.Equal(t, "cancelled", StateCancelled.String())
	assert.Equal(t, "unknown", State(99).String())
}
