package pipeline

import (
	"testing"
	"time"

	"github.com/alexherrero/chronoline/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainMerge(t *testing.T, m *Merge, rounds int) []event.Envelope {
	t.Helper()
	var out []event.Envelope
	for i := 0; i < rounds; i++ {
		done, err := m.DoWork()
		require.NoError(t, err)
		select {
		case ev := <-m.Out():
			out = append(out, ev)
		default:
		}
		if done {
			break
		}
	}
	return out
}

func TestMerge_PairsTradeWithItsSimulatorEcho(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	main := make(chan event.Envelope, 4)
	tx := make(chan event.Envelope, 4)

	main <- event.NewTrade("feed", 1, 10, 100, base)
	close(main)

	echo := event.NewTrade("sim", 1, 10, 100, base)
	echo.Transaction = &event.TransactionPayload{SID: 1, Amount: 10, Price: 10.05, Commission: 0.03}
	tx <- echo
	close(tx)

	m := NewMerge("merge", "feed", main, "sim", tx, 16)
	require.NoError(t, m.Open())

	out := drainMerge(t, m, 8)

	require.Len(t, out, 1)
	assert.Equal(t, event.TypeTrade, out[0].Type)
	require.NotNil(t, out[0].Transaction)
	assert.Equal(t, int64(10), out[0].Transaction.Amount)
	assert.Equal(t, 10.05, out[0].Transaction.Price)
}

func TestMerge_ForwardsTradeUnfilledWhenEchoStreamExhausted(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	main := make(chan event.Envelope, 4)
	tx := make(chan event.Envelope, 4)

	main <- event.NewTrade("feed", 1, 10, 100, base)
	close(main)
	close(tx)

	m := NewMerge("merge", "feed", main, "sim", tx, 16)
	require.NoError(t, m.Open())

	out := drainMerge(t, m, 8)

	require.Len(t, out, 1)
	assert.Equal(t, event.TypeTrade, out[0].Type)
	assert.Nil(t, out[0].Transaction)
}

func TestMerge_PassesOrdersThroughWithoutWaitingOnEchoStream(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	main := make(chan event.Envelope, 4)
	tx := make(chan event.Envelope, 4)

	main <- event.NewOrder("algo", 1, 50, base)
	close(main)

	m := NewMerge("merge", "feed", main, "sim", tx, 16)
	require.NoError(t, m.Open())

	done, err := m.DoWork()
	require.NoError(t, err)
	assert.False(t, done)

	var out []event.Envelope
	select {
	case ev := <-m.Out():
		out = append(out, ev)
	default:
	}
	close(tx)

	require.Len(t, out, 1)
	assert.Equal(t, event.TypeOrder, out[0].Type)
}
