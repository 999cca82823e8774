package profiler

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_AppearsInFrameEndTimeline(t *testing.T) {
	p := New(2, 16)
	p.FrameStart()

	start := p.frameStart + int64(5*time.Microsecond)
	end := start + int64(120*time.Microsecond)
	p.Record(start, end, 1, "physics")

	out := p.FrameEnd()
	assert.True(t, strings.Contains(out, "worker 1"))
	assert.True(t, strings.Contains(out, "physics"))
}

func TestRecord_OutOfRangeWorkerIsIgnored(t *testing.T) {
	p := New(2, 16)
	p.FrameStart()
	p.Record(0, 1, 7, "oob") // must not panic or grow rings
	out := p.FrameEnd()
	assert.False(t, strings.Contains(out, "oob"))
}

func TestRecord_OverflowPastPerFrameCapIsCounted(t *testing.T) {
	p := New(1, 2)
	p.FrameStart()
	now := time.Now().UnixNano()
	p.Record(now, now+1, 0, "a")
	p.Record(now, now+1, 0, "b")
	p.Record(now, now+1, 0, "c") // dropped, counted as overflow

	out := p.FrameEnd()
	assert.True(t, strings.Contains(out, "1 events dropped"))
}

func TestFrameStart_ClearsPriorFrameEvents(t *testing.T) {
	p := New(1, 16)
	p.FrameStart()
	now := time.Now().UnixNano()
	p.Record(now, now+1000, 0, "first-frame")

	p.FrameStart()
	out := p.FrameEnd()
	assert.False(t, strings.Contains(out, "first-frame"))
}

func TestQuantiles_ConvergeTowardUniformDistribution(t *testing.T) {
	p := New(1, 16)
	p.FrameStart()
	now := time.Now().UnixNano()
	for i := 1; i <= 200; i++ {
		dur := int64(i) * int64(time.Microsecond)
		p.Record(now, now+dur, 0, "job")
	}
	p50, p90, p99 := p.Quantiles()
	require.True(t, p50 > 0)
	assert.True(t, p50 < p90)
	assert.True(t, p90 < p99 || p90 == p99)
}

func TestActivate_RoundTrips(t *testing.T) {
	Activate(nil)
	assert.Nil(t, Active())
	p := New(1, 4)
	Activate(p)
	assert.Same(t, p, Active())
	Activate(nil)
}
