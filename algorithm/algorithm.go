// Package algorithm defines the callback surface a backtest drives: one
// call per distinct timestamp in the merged event stream, with the
// ability to place orders against the frame currently in view.
package algorithm

import (
	"time"

	"github.com/alexherrero/chronoline/event"
)

// SnapshotRow is one security's view inside a Frame: the trade that
// triggered this tick for that sid, plus the trailing window of prior
// trades for the same security, oldest first, not including Latest.
type SnapshotRow struct {
	Latest  event.TradePayload
	History []event.TradePayload
}

// Frame is the current, as-of-this-instant view the Algorithm callback
// sees: a mapping from sid to that sid's snapshot row, covering every
// security that printed a trade at DT. A backtest replaying more than
// one symbol delivers one Frame per distinct timestamp rather than one
// per trade, so Handle always sees every sid's tick together.
type Frame struct {
	// DT is the timestamp shared by every row in Data.
	DT time.Time
	// Data maps sid to that security's snapshot row at DT.
	Data map[int64]SnapshotRow
}

// OrderFunc places an order for sid, signed (positive buys, negative
// sells). The algorithm may call it zero or more times per Frame.
type OrderFunc func(sid int64, amount int64)

// Algorithm is the user-supplied trading logic a backtest drives. It
// is called once per distinct timestamp with the current Frame and an
// OrderFunc bound to that frame's timestamp.
type Algorithm interface {
	// Name identifies the algorithm for reporting.
	Name() string

	// Initialize is called once before the first Handle call.
	Initialize() error

	// Handle is called once per tick. Any error returned is fatal and
	// propagates as an AlgorithmError, terminating the run.
	Handle(frame Frame, order OrderFunc) error
}
