package simulator

import (
	"math"
	"time"

	"github.com/alexherrero/chronoline/event"
)

// Default tuning for VolumeShareSimulator, matching the upstream
// default fill model.
const (
	DefaultVolumeLimit = 0.25
	DefaultPriceImpact = 0.1
	DefaultCommission  = 0.03
	// OrderTTLDays is how many calendar days an order remains eligible
	// for a fill after it was issued.
	OrderTTLDays = 1
)

// VolumeShareSimulator is the canonical fill model: it allocates a
// capped share of the observed trade's volume to each open order for
// that sid, in issue order, walking price against the filled share
// squared, until either every order is satisfied or the volume cap is
// hit.
type VolumeShareSimulator struct {
	// VolumeLimit caps the fraction of a single trade's volume that may
	// be allocated to fills.
	VolumeLimit float64
	// PriceImpact scales how much the filled volume share moves price.
	PriceImpact float64
	// Commission is the per-share commission charged on each fill.
	Commission float64
}

// NewVolumeShareSimulator builds a VolumeShareSimulator with the
// default tuning.
func NewVolumeShareSimulator() *VolumeShareSimulator {
	return &VolumeShareSimulator{
		VolumeLimit: DefaultVolumeLimit,
		PriceImpact: DefaultPriceImpact,
		Commission:  DefaultCommission,
	}
}

// Simulate attempts to fill open orders for ev's sid against the
// observed trade. Orders are only eligible once fully elapsed — an
// order is eligible for a trade only if it was issued strictly before
// the trade's timestamp, and expires at the end of the calendar day it
// was issued on. Returns (nil, nil) when nothing fills.
func (s *VolumeShareSimulator) Simulate(ev event.Envelope, book *OpenOrderBook) (*event.TransactionPayload, error) {
	if ev.Type != event.TypeTrade || ev.Trade == nil {
		return nil, nil
	}
	trade := ev.Trade
	if trade.Volume == 0 {
		return nil, nil
	}

	orders, ok := book.OrdersFor(trade.SID)
	if !ok {
		return nil, nil
	}

	var (
		totalOrder      int64
		simulatedAmount int64
		simulatedImpact float64
		direction       float64 = 1.0
	)

	for _, order := range orders {
		if !order.CreatedAt.Before(ev.DT) {
			continue
		}
		// Orders are only good on the day they were issued.
		if !sameDay(order.CreatedAt, ev.DT) {
			continue
		}

		openAmount := order.Amount - order.Filled
		if openAmount != 0 {
			direction = float64(openAmount) / math.Abs(float64(openAmount))
		} else {
			direction = 1
		}

		desiredOrder := totalOrder + openAmount
		volumeShare := direction * float64(desiredOrder) / float64(trade.Volume)
		if volumeShare > s.VolumeLimit {
			volumeShare = s.VolumeLimit
		}

		simulatedAmount = int64(volumeShare * float64(trade.Volume) * direction)
		simulatedImpact = math.Pow(volumeShare, 2) * s.PriceImpact * direction * trade.Price

		order.Filled += simulatedAmount - totalOrder
		totalOrder = simulatedAmount

		if volumeShare == s.VolumeLimit {
			break
		}
	}

	remaining := make([]*event.OrderPayload, 0, len(orders))
	for _, o := range orders {
		if o.Amount-o.Filled == 0 {
			continue
		}
		if dayBefore(o.CreatedAt, ev.DT) {
			continue
		}
		remaining = append(remaining, o)
	}
	book.Prune(trade.SID, remaining)

	if simulatedAmount == 0 {
		return nil, nil
	}

	return &event.TransactionPayload{
		SID:        trade.SID,
		Amount:     simulatedAmount,
		Price:      trade.Price + simulatedImpact,
		Commission: s.Commission * float64(simulatedAmount) * direction,
	}, nil
}

// sameDay reports whether a and b fall on the same UTC calendar day.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// dayBefore reports whether a's UTC calendar day is strictly before
// b's.
func dayBefore(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}
