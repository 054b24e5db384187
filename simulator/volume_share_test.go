package simulator

import (
	"testing"
	"time"

	"github.com/alexherrero/chronoline/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolumeShareSimulator_FillsWithinVolumeLimit(t *testing.T) {
	sim := NewVolumeShareSimulator()
	book := NewOpenOrderBook()

	issued := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	book.Add(&event.OrderPayload{SID: 1, Amount: 100, CreatedAt: issued})

	trade := event.NewTrade("trades", 1, 50.0, 1000, issued.Add(time.Hour))
	txn, err := sim.Simulate(trade, book)
	require.NoError(t, err)
	require.NotNil(t, txn)

	assert.Equal(t, int64(1), txn.SID)
	assert.True(t, txn.Amount > 0)
	assert.True(t, txn.Amount <= int64(sim.VolumeLimit*1000))
}

func TestVolumeShareSimulator_OrderNotYetEligibleSameTimestamp(t *testing.T) {
	sim := NewVolumeShareSimulator()
	book := NewOpenOrderBook()

	dt := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	book.Add(&event.OrderPayload{SID: 1, Amount: 100, CreatedAt: dt})

	// An order issued at the exact trade dt is not strictly-before and
	// must not fill.
	trade := event.NewTrade("trades", 1, 50.0, 1000, dt)
	txn, err := sim.Simulate(trade, book)
	require.NoError(t, err)
	assert.Nil(t, txn)
}

func TestVolumeShareSimulator_OrderExpiresNextDay(t *testing.T) {
	sim := NewVolumeShareSimulator()
	book := NewOpenOrderBook()

	issued := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	book.Add(&event.OrderPayload{SID: 1, Amount: 100, CreatedAt: issued})

	nextDay := event.NewTrade("trades", 1, 50.0, 1000, issued.AddDate(0, 0, 1))
	txn, err := sim.Simulate(nextDay, book)
	require.NoError(t, err)
	assert.Nil(t, txn)

	// The expired order must also be pruned from the book.
	_, ok := book.OrdersFor(1)
	assert.False(t, ok)
}

func TestVolumeShareSimulator_FillSignAndMagnitudeBoundByOrderRemaining(t *testing.T) {
	issued := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	trade := event.NewTrade("trades", 1, 50.0, 1000, issued.Add(time.Hour))

	cases := []struct {
		name   string
		amount int64
	}{
		{"long order", 100},
		{"short order", -100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sim := NewVolumeShareSimulator()
			book := NewOpenOrderBook()
			order := &event.OrderPayload{SID: 1, Amount: tc.amount, CreatedAt: issued}
			book.Add(order)

			txn, err := sim.Simulate(trade, book)
			require.NoError(t, err)
			require.NotNil(t, txn)

			remaining := order.Amount - 0 // order carried no prior fills into Simulate
			if remaining > 0 {
				assert.True(t, txn.Amount > 0)
			} else {
				assert.True(t, txn.Amount < 0)
			}
			assert.True(t, absInt64(txn.Amount) <= absInt64(remaining))
		})
	}
}

func absInt64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func TestVolumeShareSimulator_IgnoresNonTradeEvents(t *testing.T) {
	sim := NewVolumeShareSimulator()
	book := NewOpenOrderBook()
	book.Add(&event.OrderPayload{SID: 1, Amount: 100})

	txn, err := sim.Simulate(event.NewEmpty("src"), book)
	require.NoError(t, err)
	assert.Nil(t, txn)
}
