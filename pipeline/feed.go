package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alexherrero/chronoline/event"
)

// sourceState tracks one upstream source's buffered head event inside
// the Feed's merge.
type sourceState struct {
	id     string
	in     <-chan event.Envelope
	buffer *event.Envelope // nil means "waiting for more input"
	done   bool
}

// Feed is the N-producer, 1-consumer chronological merge at the heart
// of a backtest run. Every registered source must either have a
// buffered event or be marked done before the Feed will emit; filler
// (Empty) events are drained and discarded without ever being compared
// by timestamp, and ties between two buffered events with the same dt
// resolve by source id, lexicographically.
type Feed struct {
	id  string
	out chan event.Envelope

	mu      sync.Mutex
	sources []*sourceState
	closed  bool
}

// NewFeed creates a Feed with the given component id and output buffer
// size.
func NewFeed(id string, outBuffer int) *Feed {
	return &Feed{
		id:  id,
		out: make(chan event.Envelope, outBuffer),
	}
}

// ID implements Component.
func (f *Feed) ID() string { return f.id }

// Type implements Component.
func (f *Feed) Type() ComponentType { return TypeConduit }

// AddSource registers an upstream channel with the Feed. Must be
// called before Open.
func (f *Feed) AddSource(id string, in <-chan event.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, &sourceState{id: id, in: in})
	sort.Slice(f.sources, func(i, j int) bool { return f.sources[i].id < f.sources[j].id })
}

// Out returns the Feed's merged, chronologically ordered output
// channel.
func (f *Feed) Out() <-chan event.Envelope { return f.out }

// Open implements Component. The Feed itself holds no external
// resources; sources must already be registered.
func (f *Feed) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sources) == 0 {
		return fmt.Errorf("pipeline: feed %q opened with no sources", f.id)
	}
	return nil
}

// DoWork drains available filler events, tops up every source's
// buffer from whatever input is immediately available, and — once the
// fullness predicate holds — emits the earliest buffered event. It
// never blocks waiting on a single source; a source with nothing
// ready yet simply leaves the Feed non-full until the next call.
func (f *Feed) DoWork() (done bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fill()

	if f.allDone() {
		if !f.closed {
			close(f.out)
			f.closed = true
		}
		return true, nil
	}

	if !f.isFull() {
		return false, nil
	}

	idx := f.earliest()
	if idx < 0 {
		return false, nil
	}
	ev := *f.sources[idx].buffer
	f.sources[idx].buffer = nil
	f.out <- ev
	return false, nil
}

// fill performs one non-blocking read attempt per source, discarding
// filler events immediately: they carry no timestamp and must never
// enter the comparison below.
func (f *Feed) fill() {
	for _, s := range f.sources {
		if s.done || s.buffer != nil {
			continue
		}
		for {
			select {
			case ev, ok := <-s.in:
				if !ok {
					s.done = true
					goto next
				}
				if ev.IsFiller() {
					continue
				}
				s.buffer = &ev
				goto next
			default:
				goto next
			}
		}
	next:
	}
}

// isFull is the Feed's fullness predicate: every source must have a
// buffered event or be done before a merge decision can be made.
// Satisfying this before comparing timestamps is what keeps the merge
// correct — a source that simply hasn't spoken yet must never be
// skipped over.
func (f *Feed) isFull() bool {
	for _, s := range f.sources {
		if s.buffer == nil && !s.done {
			return false
		}
	}
	return true
}

func (f *Feed) allDone() bool {
	for _, s := range f.sources {
		if !s.done || s.buffer != nil {
			return false
		}
	}
	return true
}

// earliest picks the buffered event with the smallest dt, breaking
// ties by source id in lexicographic order (sources are kept sorted by
// id, so the first match among equal timestamps is the tie winner).
func (f *Feed) earliest() int {
	best := -1
	for i, s := range f.sources {
		if s.buffer == nil {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		if s.buffer.DT.Before(f.sources[best].buffer.DT) {
			best = i
		}
	}
	return best
}

// Done implements Component.
func (f *Feed) Done() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		close(f.out)
		f.closed = true
	}
	return nil
}

// Kill implements Component: identical to Done for a Feed, which holds
// no external resources beyond its own output channel.
func (f *Feed) Kill() error {
	return f.Done()
}
