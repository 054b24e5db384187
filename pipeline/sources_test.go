package pipeline

import (
	"testing"
	"time"

	"github.com/alexherrero/chronoline/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradeSource_SortsAndReplaysInOrder(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	trades := []event.Envelope{
		event.NewTrade("trades", 1, 11, 100, base.Add(time.Minute)),
		event.NewTrade("trades", 1, 10, 100, base),
	}
	src := NewTradeSource("trades", trades, 4)
	require.NoError(t, src.Open())

	done, err := src.DoWork()
	require.NoError(t, err)
	assert.False(t, done)
	first := <-src.Out()
	assert.InDelta(t, 10.0, first.Trade.Price, 1e-9)

	done, err = src.DoWork()
	require.NoError(t, err)
	assert.False(t, done)
	second := <-src.Out()
	assert.InDelta(t, 11.0, second.Trade.Price, 1e-9)
}

func TestTradeSource_OnDoneFiresOnceBeforeClose(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	trades := []event.Envelope{event.NewTrade("trades", 1, 10, 100, base)}
	src := NewTradeSource("trades", trades, 4)

	var calls int
	src.OnDone(func() { calls++ })

	_, err := src.DoWork() // emits the one trade
	require.NoError(t, err)
	assert.Equal(t, 0, calls)

	done, err := src.DoWork() // exhausted: fires OnDone, closes Out
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 1, calls)

	_, ok := <-src.Out()
	assert.False(t, ok, "Out must be closed once done")
}

func TestOrderSource_EmitsFillerWhenIdle(t *testing.T) {
	src := NewOrderSource("orders", 4, 4)
	done, err := src.DoWork()
	require.NoError(t, err)
	assert.False(t, done)

	ev := <-src.Out()
	assert.Equal(t, event.TypeEmpty, ev.Type)
}

func TestOrderSource_EmitsPendingOrderBeforeFiller(t *testing.T) {
	src := NewOrderSource("orders", 4, 4)
	src.Submit(event.NewOrder("client", 1, 10, time.Now()))

	done, err := src.DoWork()
	require.NoError(t, err)
	assert.False(t, done)

	ev := <-src.Out()
	assert.Equal(t, event.TypeOrder, ev.Type)
}

func TestOrderSource_DoneOnlyAfterSubmissionClosedAndDrained(t *testing.T) {
	src := NewOrderSource("orders", 4, 4)
	src.Submit(event.NewOrder("client", 1, 10, time.Now()))
	src.CloseSubmission()

	// The pending order still drains before reporting done.
	done, err := src.DoWork()
	require.NoError(t, err)
	assert.False(t, done)
	<-src.Out()

	done, err = src.DoWork()
	require.NoError(t, err)
	assert.True(t, done)
}

func TestOrderSource_CloseSubmissionIdempotent(t *testing.T) {
	src := NewOrderSource("orders", 4, 4)
	src.CloseSubmission()
	assert.NotPanics(t, func() { src.CloseSubmission() })
}
