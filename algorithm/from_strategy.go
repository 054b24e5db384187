package algorithm

import (
	"github.com/alexherrero/chronoline/models"
	"github.com/alexherrero/chronoline/strategies"
)

// historyLimit bounds how many trailing bars FromStrategy keeps per
// symbol before handing them to a Strategy's OnData.
const historyLimit = 500

// defaultQuantity is the order size used when a signal doesn't specify
// one, matching the live engine's executeSignal fallback.
const defaultQuantity = 1.0

// FromStrategy adapts the live-trading strategies.Strategy interface
// to the backtest Algorithm contract, so the same strategy
// implementations run unmodified against historical replay.
type FromStrategy struct {
	strategy strategies.Strategy
	symbols  map[int64]string
	history  map[int64][]models.OHLCV
}

// NewFromStrategy wraps strategy for backtest use. symbols maps the
// integer security ids used on the wire to the symbol string the
// strategy's OnData expects.
func NewFromStrategy(strategy strategies.Strategy, symbols map[int64]string) *FromStrategy {
	return &FromStrategy{
		strategy: strategy,
		symbols:  symbols,
		history:  make(map[int64][]models.OHLCV),
	}
}

// Name implements Algorithm.
func (a *FromStrategy) Name() string { return a.strategy.Name() }

// Initialize implements Algorithm.
func (a *FromStrategy) Initialize() error {
	return a.strategy.Validate()
}

// Handle implements Algorithm. For every sid present in frame it folds
// that tick's trade into a synthetic single-trade OHLCV bar, appends
// it to the symbol's rolling window, and forwards the window to the
// wrapped strategy's OnData. Sids not registered in symbols are
// skipped rather than treated as an error, since a multi-symbol
// backtest may replay securities a given strategy instance ignores.
func (a *FromStrategy) Handle(frame Frame, order OrderFunc) error {
	for sid, row := range frame.Data {
		symbol, ok := a.symbols[sid]
		if !ok {
			continue
		}

		bar := models.OHLCV{
			Timestamp: frame.DT,
			Symbol:    symbol,
			Open:      row.Latest.Price,
			High:      row.Latest.Price,
			Low:       row.Latest.Price,
			Close:     row.Latest.Price,
			Volume:    float64(row.Latest.Volume),
		}

		bars := append(a.history[sid], bar)
		if len(bars) > historyLimit {
			bars = bars[len(bars)-historyLimit:]
		}
		a.history[sid] = bars

		signal := a.strategy.OnData(bars)
		quantity := defaultQuantity
		if signal.Quantity > 0 {
			quantity = signal.Quantity
		}

		switch signal.Type {
		case models.SignalBuy:
			order(sid, int64(quantity))
		case models.SignalSell:
			order(sid, -int64(quantity))
		case models.SignalHold:
		}
	}
	return nil
}
