package pipeline

import (
	"testing"
	"time"

	"github.com/alexherrero/chronoline/algorithm"
	"github.com/alexherrero/chronoline/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePerfSink struct {
	events []event.Envelope
}

func (f *fakePerfSink) ProcessEvent(ev event.Envelope) error {
	f.events = append(f.events, ev)
	return nil
}

type fakeAlgo struct {
	frames []algorithm.Frame
	order  int64
}

func (a *fakeAlgo) Name() string      { return "fake" }
func (a *fakeAlgo) Initialize() error { return nil }
func (a *fakeAlgo) Handle(frame algorithm.Frame, order algorithm.OrderFunc) error {
	a.frames = append(a.frames, frame)
	if a.order != 0 {
		for sid := range frame.Data {
			order(sid, a.order)
		}
	}
	return nil
}

func TestTradingClient_BuffersTradeUntilTickIsKnownComplete(t *testing.T) {
	in := make(chan event.Envelope, 4)
	orders := NewOrderSource("orders", 4, 4)
	perf := &fakePerfSink{}
	algo := &fakeAlgo{order: 10}

	client := NewTradingClient("client", in, orders, perf, algo, 10)
	require.NoError(t, client.Open())

	in <- event.NewTrade("feed", 1, 50.0, 100, time.Now())
	close(in)

	done, err := client.DoWork()
	require.NoError(t, err)
	assert.False(t, done)
	assert.Empty(t, algo.frames, "a lone trade stays buffered until the tick is known complete")

	done, err = client.DoWork()
	require.NoError(t, err)
	assert.True(t, done)

	assert.Len(t, perf.events, 1)
	require.Len(t, algo.frames, 1)
	row, ok := algo.frames[0].Data[1]
	require.True(t, ok)
	assert.Equal(t, int64(1), row.Latest.SID)

	select {
	case ev := <-orders.pending:
		assert.Equal(t, int64(10), ev.Order.Amount)
	default:
		t.Fatal("expected an order submitted to the OrderSource")
	}
}

func TestTradingClient_GroupsSameTimestampTradesAcrossSIDsIntoOneFrame(t *testing.T) {
	in := make(chan event.Envelope, 4)
	orders := NewOrderSource("orders", 4, 4)
	perf := &fakePerfSink{}
	algo := &fakeAlgo{}

	client := NewTradingClient("client", in, orders, perf, algo, 10)
	require.NoError(t, client.Open())

	base := time.Now()
	in <- event.NewTrade("feed", 1, 10.0, 100, base)
	in <- event.NewTrade("feed", 2, 20.0, 200, base)
	in <- event.NewTrade("feed", 1, 11.0, 50, base.Add(time.Second))
	close(in)

	for i := 0; i < 4; i++ {
		if _, err := client.DoWork(); err != nil {
			require.NoError(t, err)
		}
	}

	require.Len(t, algo.frames, 2, "the later-dt trade should flush the first tick as one frame")
	first := algo.frames[0]
	assert.Len(t, first.Data, 2)
	assert.Contains(t, first.Data, int64(1))
	assert.Contains(t, first.Data, int64(2))

	second := algo.frames[1]
	assert.Len(t, second.Data, 1)
	assert.Contains(t, second.Data, int64(1))
}

func TestTradingClient_SkipsAlgorithmForFillerEvents(t *testing.T) {
	in := make(chan event.Envelope, 4)
	orders := NewOrderSource("orders", 4, 4)
	perf := &fakePerfSink{}
	algo := &fakeAlgo{}

	client := NewTradingClient("client", in, orders, perf, algo, 10)
	require.NoError(t, client.Open())

	in <- event.NewEmpty("feed")
	close(in)

	done, err := client.DoWork()
	require.NoError(t, err)
	assert.False(t, done)
	assert.Len(t, perf.events, 1)
	assert.Empty(t, algo.frames)
}

func TestTradingClient_ClosedInputClosesOrderSubmission(t *testing.T) {
	in := make(chan event.Envelope)
	close(in)
	orders := NewOrderSource("orders", 4, 4)
	client := NewTradingClient("client", in, orders, &fakePerfSink{}, &fakeAlgo{}, 10)
	require.NoError(t, client.Open())

	done, err := client.DoWork()
	require.NoError(t, err)
	assert.True(t, done)

	// CloseSubmission must be idempotent even though TradeSource.OnDone
	// may have already closed it.
	assert.NotPanics(t, func() { orders.CloseSubmission() })
}

func TestTradingClient_HandleErrorWrapsAsAlgorithmError(t *testing.T) {
	in := make(chan event.Envelope, 2)
	in <- event.NewTrade("feed", 1, 50.0, 100, time.Now())
	close(in)
	orders := NewOrderSource("orders", 4, 4)
	client := NewTradingClient("client", in, orders, &fakePerfSink{}, &erroringAlgo{}, 10)
	require.NoError(t, client.Open())

	_, err := client.DoWork()
	require.NoError(t, err)

	_, err = client.DoWork()
	require.Error(t, err)
	var algErr *AlgorithmError
	assert.ErrorAs(t, err, &algErr)
}

func TestTradingClient_IssuesExactlyOneOrderEventPerNonzeroOrderCall(t *testing.T) {
	in := make(chan event.Envelope, 4)
	orders := NewOrderSource("orders", 8, 8)
	perf := &fakePerfSink{}
	algo := &fakeAlgo{order: 5}

	client := NewTradingClient("client", in, orders, perf, algo, 10)
	require.NoError(t, client.Open())

	base := time.Now()
	in <- event.NewTrade("feed", 1, 10.0, 100, base)
	in <- event.NewTrade("feed", 2, 20.0, 200, base)
	close(in)

	for i := 0; i < 3; i++ {
		if _, err := client.DoWork(); err != nil {
			require.NoError(t, err)
		}
	}

	require.Len(t, algo.frames, 1)
	assert.Len(t, algo.frames[0].Data, 2)

	var submitted []event.Envelope
	for {
		select {
		case ev := <-orders.pending:
			submitted = append(submitted, ev)
		default:
			goto drained
		}
	}
drained:
	require.Len(t, submitted, 2, "exactly one Order event per nonzero order() call")
	for _, ev := range submitted {
		assert.Equal(t, event.TypeOrder, ev.Type)
		assert.Equal(t, int64(5), ev.Order.Amount)
	}
}

type erroringAlgo struct{}

func (erroringAlgo) Name() string      { return "erroring" }
func (erroringAlgo) Initialize() error { return nil }
func (erroringAlgo) Handle(frame algorithm.Frame, order algorithm.OrderFunc) error {
	return assertErr{}
}
