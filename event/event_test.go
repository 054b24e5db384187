package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, e Envelope) Envelope {
	t.Helper()
	w, err := Encode(e)
	require.NoError(t, err)
	decoded, err := Decode(w)
	require.NoError(t, err)
	return decoded
}

func TestRoundTrip_Trade(t *testing.T) {
	dt := time.Date(2026, 1, 5, 14, 30, 0, 123000, time.UTC)
	e := NewTrade("trades-AAPL", 42, 101.25, 500, dt)

	got := roundTrip(t, e)

	assert.Equal(t, e.SourceID, got.SourceID)
	assert.Equal(t, e.Type, got.Type)
	assert.WithinDuration(t, e.DT, got.DT, time.Microsecond)
	require.NotNil(t, got.Trade)
	assert.Equal(t, *e.Trade, *got.Trade)
}

func TestRoundTrip_Order(t *testing.T) {
	dt := time.Now()
	e := NewOrder("orders", 7, -100, dt)

	got := roundTrip(t, e)

	assert.Equal(t, e.SourceID, got.SourceID)
	assert.Equal(t, e.Type, got.Type)
	assert.WithinDuration(t, e.DT, got.DT, time.Microsecond)
	require.NotNil(t, got.Order)
	assert.Equal(t, e.Order.SID, got.Order.SID)
	assert.Equal(t, e.Order.Amount, got.Order.Amount)
}

func TestRoundTrip_Transaction(t *testing.T) {
	dt := time.Now()
	e := NewTransaction("txsim", 7, -25, 99.5, -0.75, dt)

	got := roundTrip(t, e)

	require.NotNil(t, got.Transaction)
	assert.Equal(t, *e.Transaction, *got.Transaction)
}

func TestRoundTrip_Empty(t *testing.T) {
	e := NewEmpty("orders")
	got := roundTrip(t, e)

	assert.Equal(t, TypeEmpty, got.Type)
	assert.True(t, got.IsFiller())
	assert.True(t, got.DT.Equal(Unset))
}

func TestIsFiller(t *testing.T) {
	assert.True(t, NewEmpty("s").IsFiller())
	assert.False(t, NewTrade("s", 1, 1, 1, time.Now()).IsFiller())
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode(WireMessage{Type: "bogus"})
	assert.Error(t, err)
}
