package pipeline

import (
	"sort"

	"github.com/alexherrero/chronoline/event"
)

// TradeSource replays a pre-sorted slice of trade envelopes onto its
// output channel, one per DoWork call; it never emits a filler Empty
// event. It implements Component as TypeSource.
type TradeSource struct {
	id     string
	trades []event.Envelope
	pos    int
	out    chan event.Envelope
	onDone func()
}

// NewTradeSource builds a TradeSource from an unsorted slice of trade
// envelopes, sorting them by dt ascending so the Feed's merge sees a
// monotone stream from this source.
func NewTradeSource(id string, trades []event.Envelope, outBuffer int) *TradeSource {
	sorted := make([]event.Envelope, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].DT.Before(sorted[j].DT) })
	return &TradeSource{id: id, trades: sorted, out: make(chan event.Envelope, outBuffer)}
}

// ID implements Component.
func (s *TradeSource) ID() string { return s.id }

// Type implements Component.
func (s *TradeSource) Type() ComponentType { return TypeSource }

// Out returns the source's output channel.
func (s *TradeSource) Out() <-chan event.Envelope { return s.out }

// Open implements Component.
func (s *TradeSource) Open() error { return nil }

// OnDone registers a callback fired once, the moment every trade has
// been emitted, before the output channel is closed. Used to signal a
// companion OrderSource that no further fills are possible so it can
// stop waiting on algorithm submissions and let the Feed drain.
func (s *TradeSource) OnDone(fn func()) {
	s.onDone = fn
}

// DoWork emits the next trade, and reports done once every trade has
// been emitted and the channel closed.
func (s *TradeSource) DoWork() (done bool, err error) {
	if s.pos >= len(s.trades) {
		if s.onDone != nil {
			s.onDone()
			s.onDone = nil
		}
		close(s.out)
		return true, nil
	}
	s.out <- s.trades[s.pos]
	s.pos++
	return false, nil
}

// Done implements Component.
func (s *TradeSource) Done() error { return nil }

// Kill implements Component.
func (s *TradeSource) Kill() error { return nil }

// OrderSource adapts an algorithm's order intents into the pipeline.
// Unlike TradeSource it is driven externally: the trading client
// pushes orders onto Submit as the algorithm issues them, and
// OrderSource is required to emit exactly one event per DoWork call —
// an order if one is pending, a filler Empty event otherwise — so the
// Feed's fullness predicate is never starved by algorithm think time.
type OrderSource struct {
	id      string
	pending chan event.Envelope
	out     chan event.Envelope
	closing chan struct{}
	closed  bool
}

// NewOrderSource builds an OrderSource. queueDepth bounds how many
// in-flight order submissions may be buffered before Submit blocks.
func NewOrderSource(id string, queueDepth, outBuffer int) *OrderSource {
	return &OrderSource{
		id:      id,
		pending: make(chan event.Envelope, queueDepth),
		out:     make(chan event.Envelope, outBuffer),
		closing: make(chan struct{}),
	}
}

// ID implements Component.
func (s *OrderSource) ID() string { return s.id }

// Type implements Component.
func (s *OrderSource) Type() ComponentType { return TypeSource }

// Out returns the source's output channel.
func (s *OrderSource) Out() <-chan event.Envelope { return s.out }

// Open implements Component.
func (s *OrderSource) Open() error { return nil }

// Submit enqueues an order envelope issued by the algorithm. Safe to
// call from the trading client's goroutine.
func (s *OrderSource) Submit(ev event.Envelope) {
	s.pending <- ev
}

// CloseSubmission signals that the algorithm will issue no further
// orders; DoWork will report done once drained.
func (s *OrderSource) CloseSubmission() {
	if !s.closed {
		close(s.closing)
		s.closed = true
	}
}

// DoWork emits a pending order if one is queued, otherwise a filler
// Empty event, unless submission has been closed and the queue is
// drained.
func (s *OrderSource) DoWork() (done bool, err error) {
	select {
	case ev := <-s.pending:
		s.out <- ev
		return false, nil
	default:
	}

	select {
	case <-s.closing:
		close(s.out)
		return true, nil
	default:
		s.out <- event.NewEmpty(s.id)
		return false, nil
	}
}

// Done implements Component.
func (s *OrderSource) Done() error { return nil }

// Kill implements Component.
func (s *OrderSource) Kill() error { return nil }
