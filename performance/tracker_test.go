package performance

import (
	"testing"
	"time"

	"github.com/alexherrero/chronoline/calendar"
	"github.com/alexherrero/chronoline/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestTracker builds a Tracker over a calendar that is a trading
// day for every day in [start, end], so ProcessEvent calls timed
// within the trading day returned by tr.MarketOpen/tr.MarketClose
// behave deterministically regardless of wall-clock time.
func newTestTracker(start, end time.Time) *Tracker {
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	cal := calendar.NewTradingCalendar(start, end, days)
	return NewTracker(cal, 10000)
}

func TestTracker_ProcessEventAppliesTransactionToBothPeriods(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 5)
	tr := newTestTracker(start, end)

	txn := event.NewTransaction("sim", 1, 10, 50.0, 0, tr.MarketOpen.Add(time.Minute))
	require.NoError(t, tr.ProcessEvent(txn))

	assert.Equal(t, 1, tr.TxnCount)
	assert.Equal(t, int64(10), tr.Cumulative.Positions[1].Amount)
	assert.Equal(t, int64(10), tr.Today.Positions[1].Amount)
	assert.Empty(t, tr.Returns, "an event inside the trading day must not roll the market close")
}

func TestTracker_HandleMarketCloseRollsTodayForward(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 5)
	tr := newTestTracker(start, end)

	txn := event.NewTransaction("sim", 1, 10, 50.0, 0, tr.MarketOpen.Add(time.Minute))
	require.NoError(t, tr.ProcessEvent(txn))

	// An event past MarketClose forces a rollover before it's applied.
	nextDayTrade := event.NewTrade("trades", 1, 55.0, 100, tr.MarketClose.Add(time.Hour))
	require.NoError(t, tr.ProcessEvent(nextDayTrade))

	assert.Len(t, tr.Returns, 1)
	// Today's position carries forward the prior day's ending state.
	assert.Equal(t, int64(10), tr.Today.Positions[1].Amount)
}

func TestTracker_OnEventCallbackFiresPerEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 5)
	tr := newTestTracker(start, end)

	var calls int
	tr.OnEvent(func(ev event.Envelope, cumulative Period) { calls++ })

	require.NoError(t, tr.ProcessEvent(event.NewTrade("trades", 1, 50.0, 100, tr.MarketOpen.Add(time.Minute))))
	require.NoError(t, tr.ProcessEvent(event.NewTrade("trades", 1, 51.0, 100, tr.MarketOpen.Add(2*time.Minute))))

	assert.Equal(t, 2, calls)
}

func TestTracker_OnMarketCloseCallbackFiresOnRollover(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 5)
	tr := newTestTracker(start, end)

	var closes int
	tr.OnMarketClose(func(snapshot Tracker) { closes++ })

	require.NoError(t, tr.ProcessEvent(event.NewTrade("trades", 1, 50.0, 100, tr.MarketOpen.Add(time.Minute))))
	require.NoError(t, tr.ProcessEvent(event.NewTrade("trades", 1, 51.0, 100, tr.MarketClose.Add(time.Hour))))

	assert.Equal(t, 1, closes)
}

func TestTracker_LatchesCalendarExhaustionInsteadOfFailing(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start // calendar covers only the first day.
	tr := newTestTracker(start, end)

	// This event crosses MarketClose with no further trading day on the
	// calendar: the rollover must be swallowed, not returned as an error.
	err := tr.ProcessEvent(event.NewTrade("trades", 1, 50.0, 100, tr.MarketClose.Add(time.Hour)))
	require.NoError(t, err)
	assert.True(t, tr.calendarExhausted)

	// A later event landing the same side of the stale MarketClose must
	// not re-trigger the rollover (and thus not re-append a return).
	returnsBefore := len(tr.Returns)
	err = tr.ProcessEvent(event.NewTrade("trades", 1, 51.0, 100, tr.MarketClose.Add(2*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, returnsBefore, len(tr.Returns))
}

func TestTracker_RecordCapitalUseRatchetNeverShrinks(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 5)
	tr := newTestTracker(start, end)

	require.NoError(t, tr.ProcessEvent(event.NewTransaction("sim", 1, 100, 50.0, 0, tr.MarketOpen.Add(time.Minute))))
	peak := tr.MaxCapitalUsed
	assert.True(t, peak > 0)

	// Closing the position out entirely must not reduce the ratchet.
	require.NoError(t, tr.ProcessEvent(event.NewTransaction("sim", 1, -100, 50.0, 0, tr.MarketOpen.Add(2*time.Minute))))
	assert.Equal(t, peak, tr.MaxCapitalUsed)
}
