package perf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReturnsSeries(t *testing.T) {
	returns := Returns([]float64{100, 110, 99})
	require.Len(t, returns, 2)
	require.InDelta(t, 0.10, returns[0], 1e-12)
	require.InDelta(t, -0.10, returns[1], 1e-12)
}

func TestReturnsTooShort(t *testing.T) {
	require.Nil(t, Returns(nil))
	require.Nil(t, Returns([]float64{100}))
}

func TestSharpeZeroForConstantCurve(t *testing.T) {
	returns := Returns([]float64{100, 100, 100, 100})
	require.Zero(t, Sharpe(returns, 0))
}

func TestSortinoZeroWithoutLosses(t *testing.T) {
	require.Zero(t, Sortino([]float64{0.01, 0.02, 0.01}, 0))
}

func TestMaxDrawdown(t *testing.T) {
	// Peak 120, trough 90: drawdown 25%, three consecutive non-peak points.
	dd, duration := MaxDrawdown([]float64{100, 120, 110, 100, 90, 130})
	require.InDelta(t, 0.25, dd, 1e-12)
	require.Equal(t, 3, duration)
}

func TestMaxDrawdownMonotonicCurve(t *testing.T) {
	dd, duration := MaxDrawdown([]float64{100, 110, 120, 130})
	require.Zero(t, dd)
	require.Zero(t, duration)
}

func TestComputeTradeStats(t *testing.T) {
	a := NewAnalyzer(0)
	for _, e := range []float64{100, 105, 103, 108} {
		a.AddEquityPoint(e)
	}
	a.AddTrade(TradeStat{RealizedPnL: 10, MFE: 12, MAE: 2})
	a.AddTrade(TradeStat{RealizedPnL: -5, MFE: 3, MAE: 6})
	a.AddTrade(TradeStat{RealizedPnL: 15, MFE: 16, MAE: 1})

	m := a.Compute()
	require.Equal(t, 3, m.TotalTrades)
	require.InDelta(t, 2.0/3.0, m.WinRate, 1e-12)
	require.InDelta(t, 5.0, m.ProfitFactor, 1e-12) // 25 / 5
	require.InDelta(t, 31.0/3.0, m.AvgMFE, 1e-12)
	require.InDelta(t, 3.0, m.AvgMAE, 1e-12)
	require.InDelta(t, 0.08, m.TotalReturn, 1e-12)
}

func TestComputeBetaAgainstIdenticalBenchmark(t *testing.T) {
	a := NewAnalyzer(0)
	for _, e := range []float64{100, 102, 101, 105, 104} {
		a.AddEquityPoint(e)
		a.AddBenchmarkPoint(e)
	}
	m := a.Compute()
	require.InDelta(t, 1.0, m.Beta, 1e-9)
	require.InDelta(t, 0.0, m.Alpha, 1e-9)
}

func TestComputeBenchmarkLengthMismatchSkipsBeta(t *testing.T) {
	a := NewAnalyzer(0)
	for _, e := range []float64{100, 102, 104} {
		a.AddEquityPoint(e)
	}
	a.AddBenchmarkPoint(100)
	m := a.Compute()
	require.Zero(t, m.Beta)
}

func TestAnnualizedReturn(t *testing.T) {
	a := NewAnalyzer(0)
	for i := 0; i < 252; i++ {
		a.AddEquityPoint(100 * math.Pow(1.1, float64(i)/251))
	}
	m := a.Compute()
	require.InDelta(t, 0.10, m.TotalReturn, 1e-9)
	require.InDelta(t, 0.10, m.AnnualizedReturn, 1e-9)
}
