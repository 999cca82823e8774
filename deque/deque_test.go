package deque

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RoundsUpToPowerOfTwoAndMinCapacity(t *testing.T) {
	d := New[int](3)
	assert.Equal(t, MinCapacity, d.Stats().CurrentCapacity)

	d2 := New[int](100)
	assert.Equal(t, 128, d2.Stats().CurrentCapacity)
}

func TestPushPopBottom_LIFOOrder(t *testing.T) {
	d := New[int](8)
	for i := 0; i < 5; i++ {
		require.NoError(t, d.PushBottom(i))
	}
	for i := 4; i >= 0; i-- {
		v, ok := d.PopBottom()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := d.PopBottom()
	assert.False(t, ok)
}

func TestPopBottom_EmptyReturnsFalse(t *testing.T) {
	d := New[int](8)
	_, ok := d.PopBottom()
	assert.False(t, ok)
	assert.True(t, d.IsEmpty())
}

func TestStealTop_FIFOAgainstPushBottom(t *testing.T) {
	d := New[string](8)
	require.NoError(t, d.PushBottom("a"))
	require.NoError(t, d.PushBottom("b"))
	require.NoError(t, d.PushBottom("c"))

	v, res := d.StealTop()
	require.Equal(t, StealOK, res)
	assert.Equal(t, "a", v)

	v, res = d.StealTop()
	require.Equal(t, StealOK, res)
	assert.Equal(t, "b", v)
}

func TestStealTop_EmptyDeque(t *testing.T) {
	d := New[int](8)
	_, res := d.StealTop()
	assert.Equal(t, StealEmpty, res)
}

func TestPushBottom_SignalsFullAtCapacity(t *testing.T) {
	d := New[int](MinCapacity)
	var sawFull bool
	for i := 0; i < MinCapacity; i++ {
		err := d.PushBottom(i)
		if err != nil {
			sawFull = true
			assert.ErrorIs(t, err, ErrDequeFull)
		}
	}
	assert.True(t, sawFull, "pushing exactly capacity elements should report full on the last push")
}

func TestGrow_PreservesLiveElementsInOrder(t *testing.T) {
	d := New[int](MinCapacity)
	for i := 0; i < MinCapacity; i++ {
		err := d.PushBottom(i)
		if i < MinCapacity-1 {
			require.NoError(t, err)
		} else {
			// The push that fills the ring still stores i and reports full.
			require.ErrorIs(t, err, ErrDequeFull)
		}
	}
	require.True(t, d.Grow())
	assert.Equal(t, MinCapacity*2, d.Stats().CurrentCapacity)

	for i := MinCapacity - 1; i >= 0; i-- {
		v, ok := d.PopBottom()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestGrow_RespectsMaxCapacity(t *testing.T) {
	d := &Deque[int]{}
	d.buf.Store(newRing[int](MaxCapacity))
	assert.False(t, d.Grow())
}

func TestLastElement_RaceBetweenPopAndSteal(t *testing.T) {
	// Runs many trials; exactly one of PopBottom/StealTop should win the
	// last element, never both and never neither.
	const trials = 2000
	var popWins, stealWins int64

	for i := 0; i < trials; i++ {
		d := New[int](MinCapacity)
		require.NoError(t, d.PushBottom(7))

		var wg sync.WaitGroup
		var popOK, stealOK bool
		var popVal int
		var stealVal int
		var stealRes StealResult

		wg.Add(2)
		go func() {
			defer wg.Done()
			popVal, popOK = d.PopBottom()
		}()
		go func() {
			defer wg.Done()
			stealVal, stealRes = d.StealTop()
			stealOK = stealRes == StealOK
		}()
		wg.Wait()

		if popOK && stealOK {
			t.Fatalf("trial %d: both pop and steal claimed the last element (pop=%d steal=%d)", i, popVal, stealVal)
		}
		if !popOK && !stealOK {
			t.Fatalf("trial %d: neither pop nor steal claimed the last element", i)
		}
		if popOK {
			assert.Equal(t, 7, popVal)
			atomic.AddInt64(&popWins, 1)
		} else {
			assert.Equal(t, 7, stealVal)
			atomic.AddInt64(&stealWins, 1)
		}
	}

	t.Logf("pop wins: %d, steal wins: %d", popWins, stealWins)
}

func TestConcurrentStealers_NeverDuplicateOrDropElements(t *testing.T) {
	const n = 10000
	const stealers = 8

	d := New[int](MinCapacity)
	for i := 0; i < n; i++ {
		if err := d.PushBottom(i); err == ErrDequeFull {
			// i is already stored; grow before the next push.
			require.True(t, d.Grow())
		}
	}
	require.Equal(t, n, d.Len())

	var mu sync.Mutex
	seen := make(map[int]int, n)
	record := func(v int) {
		mu.Lock()
		seen[v]++
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for s := 0; s < stealers; s++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, res := d.StealTop()
				switch res {
				case StealOK:
					record(v)
				case StealEmpty:
					return
				case StealAborted:
					// Another stealer won the race; retry.
				}
			}
		}()
	}
	for {
		v, ok := d.PopBottom()
		if !ok {
			break
		}
		record(v)
	}
	wg.Wait()

	require.Len(t, seen, n)
	for v, count := range seen {
		assert.Equalf(t, 1, count, "element %d observed %d times", v, count)
	}
}

func TestStats_TracksStealSuccessRate(t *testing.T) {
	d := New[int](8)
	require.NoError(t, d.PushBottom(1))

	_, res := d.StealTop()
	require.Equal(t, StealOK, res)
	_, res = d.StealTop()
	require.Equal(t, StealEmpty, res)

	stats := d.Stats()
	assert.Equal(t, int64(2), stats.TotalStealsAttempted)
	assert.Equal(t, int64(1), stats.TotalStealsSucceeded)
	assert.InDelta(t, 0.5, stats.StealSuccessRate, 0.0001)

	d.ResetStats()
	assert.Zero(t, d.Stats().TotalStealsAttempted)
}

func TestStealResult_String(t *testing.T) {
	assert.Equal(t, "ok", StealOK.String())
	assert.Equal(t, "empty", StealEmpty.String())
	assert.Equal(t, "aborted", StealAborted.String())
	assert.Equal(t, "unknown", StealResult(99).String())
}
