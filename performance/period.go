package performance

import "github.com/alexherrero/chronoline/event"

// Period aggregates positions and cash flow over a span of time —
// either the whole backtest (cumulative) or a single trading day
// (today). It mirrors zipline's PerformancePeriod: starting
// value/cash are fixed at construction, and CalculatePerformance folds
// the period's running capital use into ending cash/value/pnl/returns.
type Period struct {
	Positions map[int64]*Position

	StartingValue float64
	StartingCash  float64
	EndingValue   float64
	EndingCash    float64

	PeriodCapitalUsed float64
	PNL               float64
	Returns           float64
}

// NewPeriod seeds a Period from an initial position set (nil for a
// fresh period) and starting value/cash.
func NewPeriod(initial map[int64]*Position, startingValue, startingCash float64) *Period {
	if initial == nil {
		initial = make(map[int64]*Position)
	}
	return &Period{
		Positions:     initial,
		StartingValue: startingValue,
		StartingCash:  startingCash,
		EndingCash:    startingCash,
	}
}

// ExecuteTransaction folds a simulated fill into the period: updates
// (or creates) the position for the fill's sid and debits period
// capital used by the cash cost of the trade.
func (p *Period) ExecuteTransaction(txn *event.TransactionPayload) {
	pos, ok := p.Positions[txn.SID]
	if !ok {
		pos = NewPosition(txn.SID)
		p.Positions[txn.SID] = pos
	}
	pos.Update(txn)
	p.PeriodCapitalUsed += -1 * txn.Price * float64(txn.Amount)
}

// UpdateLastSale records the latest trade price/time against the
// position for event's sid, if one is open. Only trade events move
// last-sale state.
func (p *Period) UpdateLastSale(ev event.Envelope) {
	if ev.Type != event.TypeTrade || ev.Trade == nil {
		return
	}
	pos, ok := p.Positions[ev.Trade.SID]
	if !ok {
		return
	}
	pos.LastSalePrice = ev.Trade.Price
	pos.LastSaleDate = ev.DT
}

// CalculatePositionsValue sums every open position's mark-to-market
// value.
func (p *Period) CalculatePositionsValue() float64 {
	total := 0.0
	for _, pos := range p.Positions {
		total += pos.CurrentValue()
	}
	return total
}

// CalculatePerformance recomputes ending value, ending cash, pnl, and
// returns from the period's starting state and accumulated capital
// use. Call after every event and at period close.
func (p *Period) CalculatePerformance() {
	p.EndingValue = p.CalculatePositionsValue()

	totalAtStart := p.StartingCash + p.StartingValue
	p.EndingCash = p.StartingCash + p.PeriodCapitalUsed
	totalAtEnd := p.EndingCash + p.EndingValue

	p.PNL = totalAtEnd - totalAtStart
	if totalAtStart != 0 {
		p.Returns = p.PNL / totalAtStart
	} else {
		p.Returns = 0.0
	}
}
