// Package simulator turns algorithm orders into simulated fills
// against observed trade volume, the way a transaction simulator
// component does inside a backtest pipeline.
package simulator

import (
	"sort"

	"github.com/alexherrero/chronoline/event"
)

// OpenOrderBook tracks unfilled orders per security id, in the order
// they were issued.
type OpenOrderBook struct {
	orders map[int64][]*event.OrderPayload
}

// NewOpenOrderBook creates an empty order book.
func NewOpenOrderBook() *OpenOrderBook {
	return &OpenOrderBook{orders: make(map[int64][]*event.OrderPayload)}
}

// Add inserts an order into the book, keyed by its sid.
func (b *OpenOrderBook) Add(o *event.OrderPayload) {
	b.orders[o.SID] = append(b.orders[o.SID], o)
}

// OrdersFor returns a copy of the orders queued for sid, sorted by
// CreatedAt ascending (earliest-issued first). Returns (nil, false) if
// there are none.
func (b *OpenOrderBook) OrdersFor(sid int64) ([]*event.OrderPayload, bool) {
	orders, ok := b.orders[sid]
	if !ok || len(orders) == 0 {
		return nil, false
	}
	sorted := make([]*event.OrderPayload, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	return sorted, true
}

// Prune replaces the orders queued for sid with keep, and removes sid
// from the book when keep is empty. It does not itself check fills or
// expiry; the caller passes only the orders to keep. Call after every
// simulation attempt for that sid.
func (b *OpenOrderBook) Prune(sid int64, keep []*event.OrderPayload) {
	if len(keep) == 0 {
		delete(b.orders, sid)
		return
	}
	b.orders[sid] = keep
}
