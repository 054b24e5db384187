package performance

import (
	"math"
	"time"

	"github.com/alexherrero/chronoline/analysis"
)

// DailyReturn is one trading day's fractional return, recorded at
// market close.
type DailyReturn struct {
	Date    time.Time
	Returns float64
}

// RiskMetrics summarizes a span of daily returns: Sharpe ratio, max
// drawdown of the cumulative return curve, and basic return
// statistics. The Sharpe/drawdown math is shared with the live-trading
// metrics calculator in the analysis package rather than duplicated.
type RiskMetrics struct {
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	TradingDays int       `json:"trading_days"`

	SharpeRatio        float64 `json:"sharpe_ratio"`
	MaxDrawdown        float64 `json:"max_drawdown"`
	AverageDailyReturn float64 `json:"average_daily_return"`
	CumulativeReturn   float64 `json:"cumulative_return"`
}

// CalculateRiskMetrics computes RiskMetrics over the given slice of
// DailyReturn, which must already be sorted ascending by Date.
func CalculateRiskMetrics(returns []DailyReturn) RiskMetrics {
	if len(returns) == 0 {
		return RiskMetrics{}
	}

	m := RiskMetrics{
		StartDate:   returns[0].Date,
		EndDate:     returns[len(returns)-1].Date,
		TradingDays: len(returns),
	}

	daily := make([]float64, len(returns))
	equityCurve := make([]float64, 0, len(returns)+1)
	equity := 1.0
	equityCurve = append(equityCurve, equity)

	sum := 0.0
	for i, r := range returns {
		daily[i] = r.Returns
		sum += r.Returns
		equity *= 1.0 + r.Returns
		equityCurve = append(equityCurve, equity)
	}

	m.AverageDailyReturn = sum / float64(len(returns))
	m.CumulativeReturn = equity - 1.0
	m.SharpeRatio = analysis.CalculateSharpeRatio(daily)
	m.MaxDrawdown = analysis.CalculateMaxDrawdown(equityCurve)
	return m
}

// windowMonths defines the rolling windows a RiskReport aggregates,
// keyed by their report label.
var windowMonths = []struct {
	label  string
	months int
}{
	{"1m", 1},
	{"3m", 3},
	{"6m", 6},
	{"12m", 12},
}

// RiskReport is the end-of-simulation summary: risk metrics over the
// whole run plus trailing 1/3/6/12-month windows measured back from
// the run's final day.
type RiskReport struct {
	Full    RiskMetrics            `json:"full"`
	Windows map[string]RiskMetrics `json:"windows"`
}

// BuildRiskReport aggregates returns (sorted ascending by Date) into a
// full-period RiskMetrics plus each rolling window that has enough
// history to compute; windows longer than the available history are
// omitted rather than computed on a partial period.
func BuildRiskReport(returns []DailyReturn) RiskReport {
	report := RiskReport{
		Full:    CalculateRiskMetrics(returns),
		Windows: make(map[string]RiskMetrics),
	}
	if len(returns) == 0 {
		return report
	}

	first := returns[0].Date
	last := returns[len(returns)-1].Date
	for _, w := range windowMonths {
		cutoff := last.AddDate(0, -w.months, 0)
		if cutoff.Before(first) {
			continue
		}
		window := windowSince(returns, cutoff)
		if len(window) == 0 {
			continue
		}
		report.Windows[w.label] = CalculateRiskMetrics(window)
	}
	return report
}

func windowSince(returns []DailyReturn, cutoff time.Time) []DailyReturn {
	idx := 0
	for i, r := range returns {
		if !r.Date.Before(cutoff) {
			idx = i
			break
		}
		idx = len(returns)
	}
	if idx >= len(returns) {
		return nil
	}
	return returns[idx:]
}

// roundToNearest mirrors the cushion-then-round quirk preserved in
// Tracker.recordCapitalUse: round x to the nearest multiple of base.
func roundToNearest(x, base float64) float64 {
	return base * math.Round(x/base)
}
