// Package profiler records per-worker job execution spans and reduces them
// to a per-frame timeline plus streaming p50/p90/p99 latency estimates.
package profiler

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/floater"
)

// DefaultEventsPerFrame bounds how many events a single worker's per-frame
// ring can hold before further Record calls for that worker are dropped
// (and counted) until the next FrameStart.
const DefaultEventsPerFrame = 4096

// Event is one recorded job execution span.
type Event struct {
	Start  int64 // UnixNano
	End    int64 // UnixNano
	Worker int32
	Name   string
}

// Duration returns the span's length.
func (e Event) Duration() time.Duration { return time.Duration(e.End - e.Start) }

type workerRing struct {
	mu       sync.Mutex
	events   []Event
	overflow int64
}

// Profiler aggregates job spans across a fixed worker count, producing a
// per-frame text timeline and streaming quantile estimates of job latency.
type Profiler struct {
	perFrame int
	rings    []*workerRing
	quant    *multiQuantile

	frameStart int64
	frameIndex atomic.Int64
}

var active atomic.Pointer[Profiler]

// New creates a Profiler sized for workerCount workers.
func New(workerCount int, perFrame int) *Profiler {
	if perFrame <= 0 {
		perFrame = DefaultEventsPerFrame
	}
	p := &Profiler{
		perFrame: perFrame,
		rings:    make([]*workerRing, workerCount),
		quant:    newMultiQuantile(0.5, 0.9, 0.99),
	}
	for i := range p.rings {
		p.rings[i] = &workerRing{events: make([]Event, 0, perFrame)}
	}
	return p
}

// Activate installs p as the process-wide active profiler, used by fiber's
// job trampoline via Record. Passing nil disables recording.
func Activate(p *Profiler) { active.Store(p) }

// Active returns the currently active Profiler, or nil if none is set.
func Active() *Profiler { return active.Load() }

// FrameStart clears every worker's per-frame ring and marks the frame's
// start time for timeline labeling.
func (p *Profiler) FrameStart() {
	p.frameStart = time.Now().UnixNano()
	p.frameIndex.Add(1)
	for _, r := range p.rings {
		r.mu.Lock()
		r.events = r.events[:0]
		r.overflow = 0
		r.mu.Unlock()
	}
}

// Record appends one job span for worker and feeds it into the latency
// quantile estimators. It is safe to call concurrently from any worker.
func (p *Profiler) Record(start, end int64, worker int32, name string) {
	if p == nil || int(worker) < 0 || int(worker) >= len(p.rings) {
		return
	}
	r := p.rings[worker]
	r.mu.Lock()
	if len(r.events) >= p.perFrame {
		r.overflow++
	} else {
		r.events = append(r.events, Event{Start: start, End: end, Worker: worker, Name: name})
	}
	r.mu.Unlock()

	p.quant.update(float64(end - start))
}

// FrameEnd renders the current frame's per-worker timeline as one line per
// event, sorted by start time within each worker, followed by a summary
// line of the running p50/p90/p99 job latencies (in seconds). Offsets and
// durations are printed as trimmed decimal seconds; idle gaps between
// events are not printed.
func (p *Profiler) FrameEnd() string {
	var b strings.Builder
	for w, r := range p.rings {
		r.mu.Lock()
		events := make([]Event, len(r.events))
		copy(events, r.events)
		overflow := r.overflow
		r.mu.Unlock()

		sort.Slice(events, func(i, j int) bool { return events[i].Start < events[j].Start })
		for _, e := range events {
			b.WriteString("worker ")
			writeInt(&b, w)
			b.WriteString(" +")
			b.WriteString(formatSecondsNanos(e.Start - p.frameStart))
			b.WriteString("s ")
			b.WriteString(e.Name)
			b.WriteString(" (")
			b.WriteString(formatSecondsNanos(e.End - e.Start))
			b.WriteString("s)\n")
		}
		if overflow > 0 {
			b.WriteString("worker ")
			writeInt(&b, w)
			b.WriteString(": ")
			writeInt(&b, int(overflow))
			b.WriteString(" events dropped (ring full)\n")
		}
	}
	b.WriteString("p50=")
	b.WriteString(formatSecondsNanos(int64(p.quant.quantile(0))))
	b.WriteString("s p90=")
	b.WriteString(formatSecondsNanos(int64(p.quant.quantile(1))))
	b.WriteString("s p99=")
	b.WriteString(formatSecondsNanos(int64(p.quant.quantile(2))))
	b.WriteString("s\n")
	return b.String()
}

// Quantiles returns the current streaming p50, p90 and p99 job latency
// estimates as durations.
func (p *Profiler) Quantiles() (p50, p90, p99 time.Duration) {
	return time.Duration(p.quant.quantile(0)),
		time.Duration(p.quant.quantile(1)),
		time.Duration(p.quant.quantile(2))
}

// formatSecondsNanos renders a nanosecond duration as trimmed decimal
// seconds, e.g. "0.000142" for 142us. Using floater rather than a hand-
// rolled fixed-point divide avoids every caller here having to reason about
// rounding at the nanosecond/second boundary itself.
func formatSecondsNanos(ns int64) string {
	units := ns / int64(time.Second)
	nanos := int32(ns % int64(time.Second))
	if nanos < 0 {
		nanos = -nanos
	}
	return floater.FormatUnitsNanosTrimmed(units, nanos)
}

func writeInt(b *strings.Builder, v int) {
	if v < 0 {
		b.WriteByte('-')
		v = -v
	}
	if v >= 10 {
		writeInt(b, v/10)
	}
	b.WriteByte(byte('0' + v%10))
}
