package simulator

import (
	"github.com/alexherrero/chronoline/event"
	"github.com/alexherrero/chronoline/pipeline"
	"github.com/rs/zerolog/log"
)

// FillModel is the strategy a Component uses to turn open orders into
// fills against observed trade events.
type FillModel interface {
	Simulate(ev event.Envelope, book *OpenOrderBook) (*event.TransactionPayload, error)
}

// Component is the transaction-simulator pipeline stage: it consumes
// the Feed's merged trade/order stream, maintains the open order book,
// and echoes every trade back onto Out with the FillModel's resulting
// Transaction attached when one was produced. Order events are only
// filed into the book, never echoed — the Merge stage's main stream
// already carries them. It is a conduit, one output record per trade
// input, so a downstream Merge can pair a trade with its fill without
// racing two independently-paced taps of the same Feed.
type Component struct {
	id    string
	model FillModel
	in    <-chan event.Envelope
	out   chan event.Envelope
	book  *OpenOrderBook
}

// NewComponent builds a transaction simulator reading from in and
// writing transactions to its own buffered output channel.
func NewComponent(id string, model FillModel, in <-chan event.Envelope, outBuffer int) *Component {
	return &Component{
		id:    id,
		model: model,
		in:    in,
		out:   make(chan event.Envelope, outBuffer),
		book:  NewOpenOrderBook(),
	}
}

// ID returns the component's identity.
func (c *Component) ID() string { return c.id }

// Type implements pipeline.Component.
func (c *Component) Type() pipeline.ComponentType { return pipeline.TypeConduit }

// Out returns the simulator's transaction output stream.
func (c *Component) Out() <-chan event.Envelope { return c.out }

// Open acquires no external resources.
func (c *Component) Open() error { return nil }

// DoWork consumes one upstream event: order events are filed into the
// open order book and not echoed; trade events are offered to the
// FillModel and echoed back on Out with Transaction attached if a fill
// resulted. A frame that fails to decode is logged and the trade is
// still echoed unfilled rather than dropped, so the Merge stage's
// downstream pairing never stalls waiting on a trade that will never
// arrive.
func (c *Component) DoWork() (done bool, err error) {
	ev, ok := <-c.in
	if !ok {
		close(c.out)
		return true, nil
	}

	switch ev.Type {
	case event.TypeOrder:
		if ev.Order != nil {
			c.book.Add(ev.Order)
		}
	case event.TypeTrade:
		txn, simErr := c.model.Simulate(ev, c.book)
		if simErr != nil {
			log.Warn().Err(&FrameDecodeError{SourceID: ev.SourceID, Cause: simErr}).Msg("simulator: skipping frame")
			c.out <- ev
			return false, nil
		}
		if txn != nil {
			ev.Transaction = txn
		}
		c.out <- ev
	}
	return false, nil
}

// Done releases no resources.
func (c *Component) Done() error { return nil }

// Kill releases no resources.
func (c *Component) Kill() error { return nil }
