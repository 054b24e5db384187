package simulator

import (
	"math"

	"github.com/alexherrero/chronoline/event"
)

// FixedSlippageSimulator is the simplified fill model: every open
// order for a sid fills in full against the observed trade price,
// adjusted by half the configured spread, and the order book for that
// sid is cleared in one shot rather than walked order-by-order.
type FixedSlippageSimulator struct {
	// Spread is added on buys and subtracted on sells, split in half.
	Spread float64
	// Commission is the per-share commission charged on the combined
	// fill.
	Commission float64
}

// NewFixedSlippageSimulator builds a FixedSlippageSimulator with the
// given spread and commission.
func NewFixedSlippageSimulator(spread, commission float64) *FixedSlippageSimulator {
	return &FixedSlippageSimulator{Spread: spread, Commission: commission}
}

// Simulate fills every open order queued for ev's sid in a single
// transaction at the trade price plus/minus half the spread.
func (s *FixedSlippageSimulator) Simulate(ev event.Envelope, book *OpenOrderBook) (*event.TransactionPayload, error) {
	if ev.Type != event.TypeTrade || ev.Trade == nil {
		return nil, nil
	}
	trade := ev.Trade

	orders, ok := book.OrdersFor(trade.SID)
	if !ok {
		return nil, nil
	}

	var amount int64
	for _, o := range orders {
		amount += o.Amount
	}
	if amount == 0 {
		return nil, nil
	}

	direction := float64(amount) / math.Abs(float64(amount))
	txn := &event.TransactionPayload{
		SID:        trade.SID,
		Amount:     amount,
		Price:      trade.Price + direction*s.Spread/2.0,
		Commission: s.Commission * float64(amount) * direction,
	}

	book.Prune(trade.SID, nil)
	return txn, nil
}
