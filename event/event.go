// Package event defines the typed envelope that flows through the
// backtest pipeline: trades, orders, transactions, and the empty
// filler events sources emit to keep the Feed's fullness predicate
// satisfied.
package event

import (
	"fmt"
	"time"
)

// Type discriminates the payload carried by an Envelope.
type Type int

const (
	// TypeTrade carries a TradePayload — an observed market print.
	TypeTrade Type = iota
	// TypeOrder carries an OrderPayload — an algorithm instruction.
	TypeOrder
	// TypeTransaction carries a TransactionPayload — a simulated fill.
	TypeTransaction
	// TypeEmpty is a dateless heartbeat placeholder with no payload.
	TypeEmpty
)

// String returns the human-readable name of the type tag.
func (t Type) String() string {
	switch t {
	case TypeTrade:
		return "trade"
	case TypeOrder:
		return "order"
	case TypeTransaction:
		return "transaction"
	case TypeEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Unset is the sentinel dt used by Empty events. Feed must discard
// events carrying it without ever comparing it to another timestamp.
var Unset = time.Time{}

// TradePayload is an observed market print: price x volume at a
// timestamp.
type TradePayload struct {
	// SID is the integer security identifier.
	SID int64
	// Price is the trade price.
	Price float64
	// Volume is the non-negative traded share count.
	Volume int64
}

// OrderPayload is an instruction to buy (positive Amount) or sell
// (negative Amount) shares of a sid, issued by the algorithm.
type OrderPayload struct {
	// SID is the integer security identifier.
	SID int64
	// Amount is the signed requested quantity.
	Amount int64
	// Filled is the quantity already executed against this order.
	Filled int64
	// CreatedAt is when the algorithm issued the order.
	CreatedAt time.Time
}

// RemainingOpen returns the unfilled portion of the order, signed.
func (o *OrderPayload) RemainingOpen() int64 {
	return o.Amount - o.Filled
}

// TransactionPayload is a simulated fill: the portion of an order
// executed against a trade.
type TransactionPayload struct {
	// SID is the integer security identifier.
	SID int64
	// Amount is the signed filled quantity, matching the filling
	// order's open-quantity sign.
	Amount int64
	// Price is the impact-adjusted execution price.
	Price float64
	// Commission is the signed commission charged for this fill.
	Commission float64
}

// Envelope is the universal message carried through the pipeline. For
// TypeOrder and TypeEmpty, Transaction is always nil. For TypeTrade,
// Transaction starts nil and is attached by the simulator/merge stage
// once a fill results from that trade, so a single envelope can carry
// both the trade that triggered a fill and the fill itself. A
// standalone TypeTransaction envelope (Trade nil, Transaction set) is
// still valid wire form, used when a transaction is reported with no
// accompanying trade in view.
type Envelope struct {
	// SourceID identifies the component that produced this event.
	SourceID string
	// Type discriminates the payload.
	Type Type
	// DT is the absolute UTC timestamp, microsecond precision. Unset
	// (zero value) for TypeEmpty.
	DT time.Time

	Trade       *TradePayload
	Order       *OrderPayload
	Transaction *TransactionPayload
}

// NewTrade builds a Trade envelope, truncating dt to microsecond
// precision and normalizing it to UTC.
func NewTrade(sourceID string, sid int64, price float64, volume int64, dt time.Time) Envelope {
	return Envelope{
		SourceID: sourceID,
		Type:     TypeTrade,
		DT:       normalize(dt),
		Trade:    &TradePayload{SID: sid, Price: price, Volume: volume},
	}
}

// NewOrder builds an Order envelope.
func NewOrder(sourceID string, sid int64, amount int64, dt time.Time) Envelope {
	return Envelope{
		SourceID: sourceID,
		Type:     TypeOrder,
		DT:       normalize(dt),
		Order:    &OrderPayload{SID: sid, Amount: amount, CreatedAt: normalize(dt)},
	}
}

// NewTransaction builds a Transaction envelope.
func NewTransaction(sourceID string, sid int64, amount int64, price, commission float64, dt time.Time) Envelope {
	return Envelope{
		SourceID:    sourceID,
		Type:        TypeTransaction,
		DT:          normalize(dt),
		Transaction: &TransactionPayload{SID: sid, Amount: amount, Price: price, Commission: commission},
	}
}

// NewEmpty builds a filler Empty envelope for the given source. Empty
// envelopes carry the Unset sentinel dt and must never be compared by
// timestamp.
func NewEmpty(sourceID string) Envelope {
	return Envelope{SourceID: sourceID, Type: TypeEmpty, DT: Unset}
}

// IsFiller reports whether this envelope is a dateless filler that the
// Feed must discard without comparison.
func (e Envelope) IsFiller() bool {
	return e.Type == TypeEmpty || e.DT.Equal(Unset)
}

func normalize(dt time.Time) time.Time {
	return dt.UTC().Truncate(time.Microsecond)
}

// WireMessage is the flat, framing-agnostic representation described
// in spec.md section 6: (type, source_id, payload fields in order).
// Timestamps are stored as a single int64 microseconds-since-epoch
// field so both the (epoch-seconds, microseconds) and single-int64
// wire conventions round-trip exactly.
type WireMessage struct {
	Type        string
	SourceID    string
	DTMicros    int64
	SID         int64
	Price       float64
	Volume      int64
	Amount      int64
	Filled      int64
	Commission  float64
}

// Encode converts an Envelope to its wire representation.
func Encode(e Envelope) (WireMessage, error) {
	w := WireMessage{
		Type:     e.Type.String(),
		SourceID: e.SourceID,
	}
	if !e.IsFiller() {
		w.DTMicros = e.DT.UnixMicro()
	}

	switch e.Type {
	case TypeTrade:
		if e.Trade == nil {
			return WireMessage{}, fmt.Errorf("event: encode: trade envelope missing payload")
		}
		w.SID = e.Trade.SID
		w.Price = e.Trade.Price
		w.Volume = e.Trade.Volume
	case TypeOrder:
		if e.Order == nil {
			return WireMessage{}, fmt.Errorf("event: encode: order envelope missing payload")
		}
		w.SID = e.Order.SID
		w.Amount = e.Order.Amount
		w.Filled = e.Order.Filled
	case TypeTransaction:
		if e.Transaction == nil {
			return WireMessage{}, fmt.Errorf("event: encode: transaction envelope missing payload")
		}
		w.SID = e.Transaction.SID
		w.Amount = e.Transaction.Amount
		w.Price = e.Transaction.Price
		w.Commission = e.Transaction.Commission
	case TypeEmpty:
		// no payload
	default:
		return WireMessage{}, fmt.Errorf("event: encode: unknown type tag %d", e.Type)
	}
	return w, nil
}

// Decode reconstructs an Envelope from its wire representation. It is
// the inverse of Encode: decode(encode(e)) == e field-by-field, with
// datetimes compared at microsecond precision after UTC normalization.
func Decode(w WireMessage) (Envelope, error) {
	var dt time.Time
	if w.DTMicros != 0 {
		dt = time.UnixMicro(w.DTMicros).UTC()
	}

	switch w.Type {
	case TypeTrade.String():
		return Envelope{
			SourceID: w.SourceID,
			Type:     TypeTrade,
			DT:       dt,
			Trade:    &TradePayload{SID: w.SID, Price: w.Price, Volume: w.Volume},
		}, nil
	case TypeOrder.String():
		return Envelope{
			SourceID: w.SourceID,
			Type:     TypeOrder,
			DT:       dt,
			Order:    &OrderPayload{SID: w.SID, Amount: w.Amount, Filled: w.Filled, CreatedAt: dt},
		}, nil
	case TypeTransaction.String():
		return Envelope{
			SourceID: w.SourceID,
			Type:     TypeTransaction,
			DT:       dt,
			Transaction: &TransactionPayload{
				SID: w.SID, Amount: w.Amount, Price: w.Price, Commission: w.Commission,
			},
		}, nil
	case TypeEmpty.String():
		return Envelope{SourceID: w.SourceID, Type: TypeEmpty, DT: Unset}, nil
	default:
		return Envelope{}, fmt.Errorf("event: decode: unknown type tag %q", w.Type)
	}
}
