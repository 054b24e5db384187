package performance

import (
	"math"
	"time"

	"github.com/alexherrero/chronoline/calendar"
	"github.com/alexherrero/chronoline/event"
)

// tradingDayLength is the exchange's session length used to compute
// each day's market close from its open.
const tradingDayLength = 6*time.Hour + 30*time.Minute

// Tracker accumulates performance across a backtest: a Cumulative
// period spanning the whole run and a Today period scoped to the
// current trading day, both updated on every event, with Today rolled
// over at each market close.
//
// MaxCapitalUsed intentionally never shrinks: it tracks a 10% cushion
// over the largest capital deployment seen so far, rounded to the
// nearest 5,000, and is preserved verbatim from the upstream
// accounting even though it over-states leverage once a position is
// closed down. Flagged for product review, not a bug to silently fix.
type Tracker struct {
	Calendar *calendar.TradingCalendar

	CapitalBase float64

	MarketOpen  time.Time
	MarketClose time.Time

	Cumulative *Period
	Today      *Period

	CumulativeCapitalUsed float64
	MaxCapitalUsed        float64
	MaxLeverage           float64

	TxnCount   int
	EventCount int

	Returns []DailyReturn

	calendarExhausted bool

	onMarketClose func(Tracker)
	onEvent       func(ev event.Envelope, cumulative Period)
}

// NewTracker seeds a Tracker from a calendar and starting capital. The
// first trading day's open/close is set from the calendar's period
// start.
func NewTracker(cal *calendar.TradingCalendar, capitalBase float64) *Tracker {
	open := cal.PeriodStart
	return &Tracker{
		Calendar:    cal,
		CapitalBase: capitalBase,
		MarketOpen:  open,
		MarketClose: open.Add(tradingDayLength),
		Cumulative:  NewPeriod(nil, capitalBase, capitalBase),
		Today:       NewPeriod(nil, capitalBase, capitalBase),
	}
}

// ProcessEvent folds one pipeline event into both the cumulative and
// today performance periods: rolls the market day forward first if
// the event has crossed market close, applies the transaction (if
// any) to both periods and the capital-used ratchet, then recomputes
// performance and last-sale state for both periods.
func (t *Tracker) ProcessEvent(ev event.Envelope) error {
	t.EventCount++

	if !t.calendarExhausted && !ev.IsFiller() && !ev.DT.Before(t.MarketClose) {
		if err := t.handleMarketClose(); err != nil {
			// Running out of calendar only matters if more events are
			// still to come; the event in hand still lands within (or
			// before) the last known trading day, so record it against
			// the current period instead of aborting the run over a
			// rollover nothing downstream needed. Latched so a later
			// same-day event doesn't re-trigger (and re-record) the
			// same close against the now-stale MarketClose.
			if _, exhausted := err.(*calendar.ExhaustedError); !exhausted {
				return err
			}
			t.calendarExhausted = true
		}
	}

	if ev.Transaction != nil {
		t.TxnCount++
		t.Cumulative.ExecuteTransaction(ev.Transaction)
		t.Today.ExecuteTransaction(ev.Transaction)
		t.recordCapitalUse(ev.Transaction)
	}

	t.Cumulative.UpdateLastSale(ev)
	t.Today.UpdateLastSale(ev)

	t.Cumulative.CalculatePerformance()
	t.Today.CalculatePerformance()

	if t.onEvent != nil {
		t.onEvent(ev, *t.Cumulative)
	}
	return nil
}

// OnEvent registers a callback invoked with the cumulative period's
// state after every processed event, for streaming consumers that
// need a mark-to-market snapshot finer-grained than a daily close.
func (t *Tracker) OnEvent(fn func(ev event.Envelope, cumulative Period)) {
	t.onEvent = fn
}

// recordCapitalUse applies the 10%-cushion-then-round-to-5000 ratchet
// to MaxCapitalUsed. The ratchet is monotonically non-decreasing by
// construction: it is recomputed from the running maximum, never from
// the instantaneous capital use, so it can never step back down even
// as positions are closed out.
func (t *Tracker) recordCapitalUse(txn *event.TransactionPayload) {
	transactionCost := txn.Price * float64(txn.Amount)
	t.CumulativeCapitalUsed += transactionCost

	if math.Abs(t.CumulativeCapitalUsed) > t.MaxCapitalUsed {
		t.MaxCapitalUsed = math.Abs(t.CumulativeCapitalUsed)
	}

	cushioned := 1.1 * t.MaxCapitalUsed
	t.MaxCapitalUsed = roundToNearest(cushioned, 5000)
	if t.CapitalBase != 0 {
		t.MaxLeverage = t.MaxCapitalUsed / t.CapitalBase
	}
}

// handleMarketClose records the day's return, rolls Today's ending
// state into a fresh period for the next day, and advances the market
// open/close markers to the next trading day.
func (t *Tracker) handleMarketClose() error {
	todaysDate := normalizeDay(t.MarketClose)
	t.Returns = append(t.Returns, DailyReturn{Date: todaysDate, Returns: t.Today.Returns})

	next, err := t.Calendar.NextTradingDayOpen(t.MarketOpen)
	if err != nil {
		return err
	}
	t.MarketOpen = next
	t.MarketClose = next.Add(tradingDayLength)

	t.Today.CalculatePerformance()
	t.Today = NewPeriod(t.Today.Positions, t.Today.EndingValue, t.Today.EndingCash)

	if t.onMarketClose != nil {
		t.onMarketClose(*t)
	}
	return nil
}

func normalizeDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// OnMarketClose registers a callback invoked with a snapshot of the
// Tracker at the end of every trading day, for streaming consumers.
func (t *Tracker) OnMarketClose(fn func(Tracker)) {
	t.onMarketClose = fn
}

// HandleSimulationEnd builds the final RiskReport over the whole run's
// daily returns. Call once after the last event has been processed.
func (t *Tracker) HandleSimulationEnd() RiskReport {
	return BuildRiskReport(t.Returns)
}

// Progress reports the fraction of the calendar's period elapsed, by
// day count, for UI/streaming consumers.
func (t *Tracker) Progress() float64 {
	total := t.Calendar.PeriodEnd.Sub(t.Calendar.PeriodStart).Hours() / 24
	if total <= 0 {
		return 1.0
	}
	elapsed := t.MarketClose.Sub(t.Calendar.PeriodStart).Hours() / 24
	if elapsed > total {
		return 1.0
	}
	if elapsed < 0 {
		return 0.0
	}
	return elapsed / total
}
