// Package performance tracks cumulative and daily trading performance
// through a backtest: positions, cost basis, realized/unrealized PnL,
// and the risk metrics derived from daily returns.
package performance

import (
	"time"

	"github.com/alexherrero/chronoline/event"
)

// Position is one security's current holding within a PerformancePeriod.
type Position struct {
	SID            int64
	Amount         int64
	CostBasis      float64
	LastSalePrice  float64
	LastSaleDate   time.Time
}

// NewPosition creates an empty position for sid.
func NewPosition(sid int64) *Position {
	return &Position{SID: sid}
}

// Update folds a transaction into the position's cost basis. Closing a
// position (or fully covering a short) resets cost basis to zero
// rather than leaving a stale per-share figure behind.
func (p *Position) Update(txn *event.TransactionPayload) {
	if p.Amount+txn.Amount == 0 {
		p.CostBasis = 0.0
		p.Amount = 0
		return
	}
	prevCost := p.CostBasis * float64(p.Amount)
	txnCost := float64(txn.Amount) * txn.Price
	totalShares := p.Amount + txn.Amount
	p.CostBasis = (prevCost + txnCost) / float64(totalShares)
	p.Amount = totalShares
}

// CurrentValue is the position's mark-to-market value at LastSalePrice.
func (p *Position) CurrentValue() float64 {
	return float64(p.Amount) * p.LastSalePrice
}
