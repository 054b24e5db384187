package pipeline

import (
	"time"

	"github.com/alexherrero/chronoline/algorithm"
	"github.com/alexherrero/chronoline/event"
)

// PerformanceSink is the subset of performance.Tracker the trading
// client depends on, kept as an interface so tests can substitute a
// fake.
type PerformanceSink interface {
	ProcessEvent(ev event.Envelope) error
}

// TradingClient is the sink at the end of the pipeline: it reads the
// merged trade/transaction stream, forwards every event to the
// performance tracker before the algorithm ever sees it (so downstream
// consumers can assume performance is always current), and buffers
// trades by timestamp into a multi-sid Frame. Because the merged
// stream is chronologically ordered, the client can tell a tick is
// complete the moment it sees an event with a later dt (or end of
// stream) and only then hands the accumulated Frame to the algorithm —
// so Handle always sees every sid's print for a given instant
// together, never one sid at a time. Resulting orders are forwarded to
// an OrderSource for the simulator to act on.
type TradingClient struct {
	id     string
	in     <-chan event.Envelope
	orders *OrderSource

	perf PerformanceSink
	algo algorithm.Algorithm

	history    map[int64][]event.TradePayload
	historyCap int

	pending     map[int64]algorithm.SnapshotRow
	pendingDT   time.Time
	havePending bool
}

// NewTradingClient builds a TradingClient. in is the Merge component's
// combined output; orders is where algorithm-issued orders are
// submitted for the simulator to pick up.
func NewTradingClient(id string, in <-chan event.Envelope, orders *OrderSource, perf PerformanceSink, algo algorithm.Algorithm, historyCap int) *TradingClient {
	return &TradingClient{
		id:         id,
		in:         in,
		orders:     orders,
		perf:       perf,
		algo:       algo,
		history:    make(map[int64][]event.TradePayload),
		historyCap: historyCap,
	}
}

// ID implements Component.
func (c *TradingClient) ID() string { return c.id }

// Type implements Component.
func (c *TradingClient) Type() ComponentType { return TypeSink }

// Open calls the wrapped algorithm's Initialize.
func (c *TradingClient) Open() error {
	return c.algo.Initialize()
}

// DoWork consumes one event from the merged stream. Every event is
// recorded against performance first. A non-filler trade is folded
// into the pending tick's Frame; once an event with a later timestamp
// arrives (or the stream ends), the pending Frame is flushed to the
// algorithm in a single Handle call. Reaching end of stream signals
// the OrderSource closed and reports done so the Controller can
// finalize the run.
func (c *TradingClient) DoWork() (done bool, err error) {
	ev, ok := <-c.in
	if !ok {
		if flushErr := c.flush(); flushErr != nil {
			return false, flushErr
		}
		c.orders.CloseSubmission()
		return true, nil
	}

	if perfErr := c.perf.ProcessEvent(ev); perfErr != nil {
		return false, perfErr
	}

	if ev.IsFiller() || ev.Type != event.TypeTrade || ev.Trade == nil {
		return false, nil
	}

	if c.havePending && !ev.DT.Equal(c.pendingDT) {
		if flushErr := c.flush(); flushErr != nil {
			return false, flushErr
		}
	}

	c.bufferTrade(ev)
	return false, nil
}

// bufferTrade folds ev into the sid's rolling history and stages its
// snapshot row in the pending tick's Frame.
func (c *TradingClient) bufferTrade(ev event.Envelope) {
	if c.pending == nil {
		c.pending = make(map[int64]algorithm.SnapshotRow)
	}
	c.pendingDT = ev.DT
	c.havePending = true

	sid := ev.Trade.SID
	hist := c.history[sid]
	c.pending[sid] = algorithm.SnapshotRow{
		Latest:  *ev.Trade,
		History: append([]event.TradePayload(nil), hist...),
	}

	hist = append(hist, *ev.Trade)
	if c.historyCap > 0 && len(hist) > c.historyCap {
		hist = hist[len(hist)-c.historyCap:]
	}
	c.history[sid] = hist
}

// flush dispatches the pending tick's Frame to the algorithm, if one
// is staged, and clears it.
func (c *TradingClient) flush() error {
	if !c.havePending {
		return nil
	}
	frame := algorithm.Frame{DT: c.pendingDT, Data: c.pending}
	dt := c.pendingDT
	c.pending = nil
	c.havePending = false

	if handleErr := c.algo.Handle(frame, func(sid int64, amount int64) {
		c.orders.Submit(event.NewOrder(c.orders.ID(), sid, amount, dt))
	}); handleErr != nil {
		return &AlgorithmError{ComponentID: c.id, Cause: handleErr}
	}
	return nil
}

// Done implements Component.
func (c *TradingClient) Done() error { return nil }

// Kill implements Component.
func (c *TradingClient) Kill() error { return nil }
