// Package backtesting drives a strategy through the event pipeline
// against historical data and reports the resulting performance.
package backtesting

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/alexherrero/chronoline/algorithm"
	"github.com/alexherrero/chronoline/calendar"
	"github.com/alexherrero/chronoline/event"
	"github.com/alexherrero/chronoline/models"
	"github.com/alexherrero/chronoline/performance"
	"github.com/alexherrero/chronoline/pipeline"
	"github.com/alexherrero/chronoline/simulator"
	"github.com/alexherrero/chronoline/strategies"
	"github.com/rs/zerolog/log"
)

// defaultSID is the security id assigned to a backtest's single
// symbol; a future multi-symbol backtest would assign one sid per
// symbol instead.
const defaultSID int64 = 1

// BacktestConfig holds configuration for a backtest run.
type BacktestConfig struct {
	// ID optionally pins the run's result id to a caller-supplied
	// value instead of one generated from the Engine's counter. A
	// caller that wants to observe OnSnapshot callbacks live (e.g. to
	// relay them over a websocket keyed by backtest id) must set this,
	// since the generated id isn't known until after Run starts.
	ID string
	// Symbol is the ticker symbol to backtest.
	Symbol string
	// StartDate is the start of the backtest period.
	StartDate time.Time
	// EndDate is the end of the backtest period.
	EndDate time.Time
	// InitialCapital is the starting capital.
	InitialCapital float64
	// PositionSize is the fixed position size (0 = use all capital).
	PositionSize float64
	// Commission is the commission per share charged on every fill.
	Commission float64
	// SimulationStyle selects the fill model: "fixed_slippage" or
	// "volume_share". Empty defaults to "volume_share".
	SimulationStyle string
	// MaxDrawdown, if nonzero, is the drawdown fraction above which
	// Run logs a warning once the risk report is computed. It never
	// aborts a run in progress.
	MaxDrawdown float64
	// HeartbeatInterval and HeartbeatTimeout, if nonzero, override the
	// pipeline Controller's default heartbeat cadence for this run.
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	// OnSnapshot, if set, is called with every EquityPoint as the run
	// produces it, letting a caller stream progress while Run blocks.
	OnSnapshot func(EquityPoint)
}

// BacktestResult holds the results of a backtest run.
type BacktestResult struct {
	// ID is a unique identifier for this backtest.
	ID string
	// Config holds the backtest configuration.
	Config BacktestConfig
	// Strategy is the name of the strategy tested.
	Strategy string
	// Metrics holds performance metrics.
	Metrics *Metrics
	// Trades is the list of simulated trades.
	Trades []SimulatedTrade
	// EquityCurve tracks equity over time.
	EquityCurve []EquityPoint
	// RiskReport is the rolling-window risk summary computed at the
	// end of the simulation.
	RiskReport performance.RiskReport
	// StartedAt is when the backtest started.
	StartedAt time.Time
	// CompletedAt is when the backtest completed.
	CompletedAt time.Time
}

// SimulatedTrade represents a realized round trip (or partial round
// trip) produced by the transaction simulator.
type SimulatedTrade struct {
	EntryTime  time.Time        `json:"entry_time"`
	ExitTime   time.Time        `json:"exit_time"`
	Symbol     string           `json:"symbol"`
	Side       models.OrderSide `json:"side"`
	EntryPrice float64          `json:"entry_price"`
	ExitPrice  float64          `json:"exit_price"`
	Quantity   float64          `json:"quantity"`
	PnL        float64          `json:"pnl"`
	PnLPercent float64          `json:"pnl_percent"`
}

// EquityPoint represents equity at a point in time.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Engine drives a strategy through the event pipeline: a trade source
// replays historical bars, a transaction simulator fills the
// algorithm's orders against them, and a performance tracker
// accumulates the resulting positions and returns.
type Engine struct {
	idCounter int
}

// NewEngine creates a new backtest engine.
func NewEngine() *Engine {
	return &Engine{idCounter: 0}
}

// Run executes a backtest for a strategy against historical data.
//
// Args:
//   - strategy: The trading strategy to test
//   - data: Historical OHLCV data (oldest first)
//   - config: Backtest configuration
//
// Returns:
//   - *BacktestResult: Backtest results and metrics
//   - error: Any error encountered
func (e *Engine) Run(strategy strategies.Strategy, data []models.OHLCV, config BacktestConfig) (*BacktestResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("no data provided for backtest")
	}

	e.idCounter++
	id := fmt.Sprintf("bt-%06d", e.idCounter)
	if config.ID != "" {
		id = config.ID
	}
	result := &BacktestResult{
		ID:        id,
		Config:    config,
		Strategy:  strategy.Name(),
		StartedAt: time.Now(),
	}

	log.Info().
		Str("strategy", strategy.Name()).
		Str("symbol", config.Symbol).
		Int("data_points", len(data)).
		Msg("starting backtest")

	periodStart, periodEnd := periodBounds(data, config)
	cal := calendar.NewTradingCalendar(periodStart, periodEnd, barDays(data))
	tracker := performance.NewTracker(cal, config.InitialCapital)

	fills := newFillBook()
	tracker.OnEvent(func(ev event.Envelope, cumulative performance.Period) {
		if ev.Type != event.TypeTrade {
			return
		}
		point := EquityPoint{
			Timestamp: ev.DT,
			Equity:    cumulative.EndingCash + cumulative.EndingValue,
		}
		result.EquityCurve = append(result.EquityCurve, point)
		if config.OnSnapshot != nil {
			config.OnSnapshot(point)
		}
	})

	trades := make([]event.Envelope, 0, len(data))
	for _, bar := range data {
		trades = append(trades, event.NewTrade("trades", defaultSID, bar.Close, int64(bar.Volume), bar.Timestamp))
	}

	tradeSource := pipeline.NewTradeSource("trades", trades, 64)
	orderSource := pipeline.NewOrderSource("orders", 64, 64)
	// Once every bar has been replayed no further fill is possible;
	// close order submission so the Feed (and everything downstream)
	// can drain instead of waiting on an algorithm that has nothing
	// left to react to.
	tradeSource.OnDone(orderSource.CloseSubmission)

	feed := pipeline.NewFeed("feed", 256)
	feed.AddSource(tradeSource.ID(), tradeSource.Out())
	feed.AddSource(orderSource.ID(), orderSource.Out())

	mainCh, simCh := fanOut(feed.Out(), 256)

	fillModel := newFillModel(config)
	simComponent := simulator.NewComponent("simulator", fillModel, simCh, 256)

	txCh, tradeLogCh := fanOut(simComponent.Out(), 256)
	tradeLogDone := make(chan struct{})
	go func() {
		defer close(tradeLogDone)
		for ev := range tradeLogCh {
			if trade := fills.record(ev, config.Symbol); trade != nil {
				result.Trades = append(result.Trades, *trade)
			}
		}
	}()

	merge := pipeline.NewMerge("merge", "feed", mainCh, "simulator", txCh, 256)

	algo := algorithm.NewFromStrategy(strategy, map[int64]string{defaultSID: config.Symbol})
	client := pipeline.NewTradingClient("client", merge.Out(), orderSource, tracker, algo, 500)

	components := []pipeline.Component{tradeSource, orderSource, feed, simComponent, merge, client}
	topology := make([]string, 0, len(components))
	for _, c := range components {
		topology = append(topology, c.ID())
	}
	controller := pipeline.NewController(topology, false)
	if config.HeartbeatInterval > 0 {
		controller.HeartbeatInterval = config.HeartbeatInterval
	}
	if config.HeartbeatTimeout > 0 {
		controller.HeartbeatTimeout = config.HeartbeatTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go controller.Run(ctx)

	var wg sync.WaitGroup
	errs := make(chan error, len(components))
	for _, c := range components {
		wg.Add(1)
		go func(comp pipeline.Component) {
			defer wg.Done()
			if err := pipeline.RunComponent(ctx, controller, comp); err != nil && err != context.Canceled {
				errs <- err
			}
		}(c)
	}

	allDone := make(chan struct{})
	go func() { wg.Wait(); close(allDone) }()

	select {
	case <-allDone:
	case report := <-controller.Exceptions():
		cancel()
		wg.Wait()
		return nil, fmt.Errorf("backtest %s terminated: %s: %s", report.ComponentID, report.Kind, report.Message)
	}
	cancel()
	<-tradeLogDone

	select {
	case err := <-errs:
		if err != nil {
			return nil, err
		}
	default:
	}

	result.RiskReport = tracker.HandleSimulationEnd()
	result.Metrics = CalculateMetrics(result.Trades, result.EquityCurve, config.InitialCapital)
	result.CompletedAt = time.Now()

	if config.MaxDrawdown > 0 && result.RiskReport.Full.MaxDrawdown > config.MaxDrawdown {
		log.Warn().
			Str("id", result.ID).
			Float64("max_drawdown", result.RiskReport.Full.MaxDrawdown).
			Float64("limit", config.MaxDrawdown).
			Msg("backtest exceeded configured max drawdown")
	}

	log.Info().
		Str("id", result.ID).
		Float64("total_return", result.Metrics.TotalReturn).
		Int("total_trades", result.Metrics.TotalTrades).
		Msg("backtest complete")

	return result, nil
}

// defaultSpread is the bid/ask spread FixedSlippageSimulator assumes
// when a backtest doesn't pin its own.
const defaultSpread = 0.05

// newFillModel builds the transaction simulator's fill model from the
// config's SimulationStyle, defaulting to volume_share when unset.
func newFillModel(config BacktestConfig) simulator.FillModel {
	if config.SimulationStyle == "fixed_slippage" {
		return simulator.NewFixedSlippageSimulator(defaultSpread, config.Commission)
	}
	fillModel := simulator.NewVolumeShareSimulator()
	if config.Commission > 0 {
		fillModel.Commission = config.Commission
	}
	return fillModel
}

// periodBounds derives the calendar span a backtest covers: the
// config's explicit dates if set, otherwise the data's own timestamp
// range.
func periodBounds(data []models.OHLCV, config BacktestConfig) (time.Time, time.Time) {
	start, end := config.StartDate, config.EndDate
	if start.IsZero() {
		start = data[0].Timestamp
	}
	if end.IsZero() {
		end = data[len(data)-1].Timestamp
	}
	if !end.After(start) {
		end = start.AddDate(0, 0, 1)
	}
	return start, end
}

// barDays returns the calendar day of every bar in data, so the
// calendar a backtest runs against always treats a day a bar actually
// falls on as a trading day, whether or not it's a weekday — historical
// data (e.g. crypto) need not follow an equities trading week.
func barDays(data []models.OHLCV) []time.Time {
	days := make([]time.Time, len(data))
	for i, bar := range data {
		days[i] = bar.Timestamp
	}
	return days
}

// fanOut duplicates every event read from in onto two independently
// buffered output channels, closing both once in is exhausted. Used
// to let a stage's output feed both the next pipeline stage and a
// side observer (equity curve / trade recording) without contention.
func fanOut(in <-chan event.Envelope, buf int) (<-chan event.Envelope, <-chan event.Envelope) {
	a := make(chan event.Envelope, buf)
	b := make(chan event.Envelope, buf)
	go func() {
		defer close(a)
		defer close(b)
		for ev := range in {
			a <- ev
			b <- ev
		}
	}()
	return a, b
}

// fillBook turns a stream of per-sid transactions into realized
// round-trip trades using the same weighted-average-cost approach as
// analysis.CalculateMetrics, adapted to fold streaming fills instead
// of discrete filled orders.
type fillBook struct {
	avgCost    map[int64]float64
	qty        map[int64]int64
	entryTime  map[int64]time.Time
	entryPrice map[int64]float64
}

func newFillBook() *fillBook {
	return &fillBook{
		avgCost:    make(map[int64]float64),
		qty:        make(map[int64]int64),
		entryTime:  make(map[int64]time.Time),
		entryPrice: make(map[int64]float64),
	}
}

// record folds a fill attached to a (possibly echoed, possibly
// standalone) envelope into the book, returning a SimulatedTrade when
// the fill closes or reduces an existing position (realizing PnL), or
// nil when it only opens or adds to one, or when ev carries no fill at
// all (an unfilled trade echo).
func (b *fillBook) record(ev event.Envelope, symbol string) *SimulatedTrade {
	if ev.Transaction == nil {
		return nil
	}
	txn := ev.Transaction
	prevQty := b.qty[txn.SID]
	prevCost := b.avgCost[txn.SID]

	if prevQty == 0 {
		b.open(txn, ev.DT)
		return nil
	}

	sameDirection := (prevQty > 0) == (txn.Amount > 0)
	if sameDirection {
		totalCost := prevCost*float64(prevQty) + txn.Price*float64(txn.Amount)
		newQty := prevQty + txn.Amount
		if newQty != 0 {
			b.avgCost[txn.SID] = totalCost / float64(newQty)
		}
		b.qty[txn.SID] = newQty
		return nil
	}

	closeQty := int64(math.Min(math.Abs(float64(prevQty)), math.Abs(float64(txn.Amount))))
	direction := 1.0
	if prevQty < 0 {
		direction = -1.0
	}
	pnl := direction * (txn.Price - prevCost) * float64(closeQty)

	side := models.OrderSideSell
	if txn.Amount > 0 {
		side = models.OrderSideBuy
	}

	pnlPercent := 0.0
	entryPrice := b.entryPrice[txn.SID]
	if entryPrice != 0 {
		pnlPercent = (txn.Price - entryPrice) / entryPrice * 100 * direction
	}

	trade := &SimulatedTrade{
		EntryTime:  b.entryTime[txn.SID],
		ExitTime:   ev.DT,
		Symbol:     symbol,
		Side:       side,
		EntryPrice: entryPrice,
		ExitPrice:  txn.Price,
		Quantity:   float64(closeQty),
		PnL:        pnl,
		PnLPercent: pnlPercent,
	}

	newQty := prevQty + txn.Amount
	if newQty == 0 {
		delete(b.avgCost, txn.SID)
		delete(b.entryTime, txn.SID)
		delete(b.entryPrice, txn.SID)
		b.qty[txn.SID] = 0
	} else {
		// Position flipped direction; the remainder opens a fresh lot
		// at this fill's price.
		b.qty[txn.SID] = newQty
		b.open(&event.TransactionPayload{SID: txn.SID, Amount: newQty, Price: txn.Price}, ev.DT)
	}

	return trade
}

func (b *fillBook) open(txn *event.TransactionPayload, dt time.Time) {
	b.qty[txn.SID] = txn.Amount
	b.avgCost[txn.SID] = txn.Price
	b.entryTime[txn.SID] = dt
	b.entryPrice[txn.SID] = txn.Price
}
