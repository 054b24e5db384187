package performance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func dailyReturn(y int, m time.Month, d int, r float64) DailyReturn {
	return DailyReturn{Date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Returns: r}
}

func TestCalculateRiskMetrics_Empty(t *testing.T) {
	assert.Equal(t, RiskMetrics{}, CalculateRiskMetrics(nil))
}

func TestCalculateRiskMetrics_CumulativeReturnCompounds(t *testing.T) {
	returns := []DailyReturn{
		dailyReturn(2026, 1, 1, 0.01),
		dailyReturn(2026, 1, 2, 0.02),
	}
	m := CalculateRiskMetrics(returns)

	assert.Equal(t, 2, m.TradingDays)
	assert.InDelta(t, 1.01*1.02-1.0, m.CumulativeReturn, 1e-9)
}

func TestBuildRiskReport_OmitsWindowsWithoutHistory(t *testing.T) {
	returns := []DailyReturn{dailyReturn(2026, 1, 1, 0.01)}
	report := BuildRiskReport(returns)

	assert.Equal(t, 1, report.Full.TradingDays)
	// Every rolling window's cutoff falls before the single day of
	// history, so no window has enough history to be populated.
	assert.Empty(t, report.Windows)
}

func TestBuildRiskReport_PopulatesWindowWithEnoughHistory(t *testing.T) {
	var returns []DailyReturn
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 40; i++ {
		returns = append(returns, DailyReturn{Date: start.AddDate(0, 0, i), Returns: 0.001})
	}
	report := BuildRiskReport(returns)

	assert.Equal(t, 40, report.Full.TradingDays)
	assert.Contains(t, report.Windows, "1m")
}
