// Package perf computes end-of-run performance statistics from an ordered
// equity curve and trade log: returns, Sharpe, Sortino, max drawdown and
// its duration, Calmar, volatility, beta/alpha against an optional
// benchmark, profit factor, win rate, and average MFE/MAE.
//
// Annualization always assumes 252 trading days per year, whichever driver
// produced the curve — the replay driver's synthetic microsecond counter
// and the live driver's wall clock both collapse to "one point per fill"
// here, and the units are documented on Metrics.
package perf

import "math"

// tradingDaysPerYear is the annualization base for every ratio below.
const tradingDaysPerYear = 252.0

const epsilon = 1e-6

// TradeStat is the per-trade input to the analyzer: realized P&L plus the
// maximum favorable and adverse excursions observed during the trade.
type TradeStat struct {
	RealizedPnL float64
	MFE         float64
	MAE         float64
}

// Metrics is the full statistics block for one run. Ratio fields are
// annualized on a 252-day basis; MaxDrawdownDuration counts equity points,
// not wall-clock time.
type Metrics struct {
	TotalReturn         float64
	AnnualizedReturn    float64
	SharpeRatio         float64
	SortinoRatio        float64
	MaxDrawdown         float64
	MaxDrawdownDuration int
	CalmarRatio         float64
	Volatility          float64
	Beta                float64
	Alpha               float64
	ProfitFactor        float64
	WinRate             float64
	AvgMFE              float64
	AvgMAE              float64
	TotalTrades         int
}

// Analyzer accumulates equity points, benchmark points, and trades, then
// computes Metrics on demand.
type Analyzer struct {
	equity    []float64
	benchmark []float64
	trades    []TradeStat

	riskFreeRate float64
}

// NewAnalyzer constructs an Analyzer with the given annual risk-free rate.
func NewAnalyzer(riskFreeRate float64) *Analyzer {
	return &Analyzer{riskFreeRate: riskFreeRate}
}

// AddEquityPoint appends one equity observation.
func (a *Analyzer) AddEquityPoint(equity float64) {
	a.equity = append(a.equity, equity)
}

// AddBenchmarkPoint appends one benchmark observation. Beta/alpha are only
// computed when the benchmark curve has the same length as the equity curve.
func (a *Analyzer) AddBenchmarkPoint(value float64) {
	a.benchmark = append(a.benchmark, value)
}

// AddTrade appends one closed trade's statistics.
func (a *Analyzer) AddTrade(t TradeStat) {
	a.trades = append(a.trades, t)
}

// EquityCurve returns the accumulated equity curve.
func (a *Analyzer) EquityCurve() []float64 { return a.equity }

// Returns computes the simple-return series r_i = e_i/e_{i-1} - 1.
func Returns(curve []float64) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		out = append(out, curve[i]/curve[i-1]-1)
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	sq := 0.0
	for _, x := range xs {
		d := x - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(xs)))
}

// Sharpe computes the annualized Sharpe ratio of a return series against
// the given annual risk-free rate.
func Sharpe(returns []float64, riskFreeRate float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sd := stddev(returns)
	if sd < epsilon {
		return 0
	}
	annualizedReturn := mean(returns) * tradingDaysPerYear
	annualizedStd := sd * math.Sqrt(tradingDaysPerYear)
	return (annualizedReturn - riskFreeRate) / annualizedStd
}

// Sortino computes the annualized Sortino ratio: same numerator as Sharpe
// with the denominator built from downside deviation only.
func Sortino(returns []float64, riskFreeRate float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sq, count := 0.0, 0
	for _, r := range returns {
		if r < 0 {
			sq += r * r
			count++
		}
	}
	if count == 0 {
		return 0
	}
	downside := math.Sqrt(sq / float64(count))
	if downside < epsilon {
		return 0
	}
	annualizedReturn := mean(returns) * tradingDaysPerYear
	annualizedDownside := downside * math.Sqrt(tradingDaysPerYear)
	return (annualizedReturn - riskFreeRate) / annualizedDownside
}

// MaxDrawdown returns the largest peak-to-trough drawdown as a fraction of
// the peak, plus the length (in points) of the longest run of consecutive
// non-peak points at the time the maximum drawdown occurred.
func MaxDrawdown(curve []float64) (drawdown float64, duration int) {
	if len(curve) < 2 {
		return 0, 0
	}
	peak := curve[0]
	current := 0
	for i := 1; i < len(curve); i++ {
		if curve[i] > peak {
			peak = curve[i]
			current = 0
			continue
		}
		current++
		if peak <= 0 {
			continue
		}
		dd := (peak - curve[i]) / peak
		if dd > drawdown {
			drawdown = dd
			duration = current
		}
	}
	return drawdown, duration
}

// Compute derives the full metrics block from the accumulated curves and
// trades.
func (a *Analyzer) Compute() Metrics {
	var m Metrics
	if len(a.equity) == 0 {
		return m
	}

	returns := Returns(a.equity)

	if a.equity[0] != 0 {
		m.TotalReturn = a.equity[len(a.equity)-1]/a.equity[0] - 1
	}
	years := float64(len(a.equity)) / tradingDaysPerYear
	if years > 0 {
		m.AnnualizedReturn = math.Pow(1+m.TotalReturn, 1/years) - 1
	}

	m.SharpeRatio = Sharpe(returns, a.riskFreeRate)
	m.SortinoRatio = Sortino(returns, a.riskFreeRate)
	m.MaxDrawdown, m.MaxDrawdownDuration = MaxDrawdown(a.equity)
	if m.MaxDrawdown > epsilon {
		m.CalmarRatio = m.AnnualizedReturn / m.MaxDrawdown
	}
	m.Volatility = stddev(returns) * math.Sqrt(tradingDaysPerYear)

	wins := 0
	grossProfit, grossLoss := 0.0, 0.0
	totalMFE, totalMAE := 0.0, 0.0
	for _, t := range a.trades {
		if t.RealizedPnL > 0 {
			wins++
			grossProfit += t.RealizedPnL
		} else {
			grossLoss -= t.RealizedPnL
		}
		totalMFE += t.MFE
		totalMAE += t.MAE
	}
	m.TotalTrades = len(a.trades)
	if m.TotalTrades > 0 {
		m.WinRate = float64(wins) / float64(m.TotalTrades)
		m.AvgMFE = totalMFE / float64(m.TotalTrades)
		m.AvgMAE = totalMAE / float64(m.TotalTrades)
	}
	if grossLoss > epsilon {
		m.ProfitFactor = grossProfit / grossLoss
	}

	a.computeBetaAlpha(&m, returns, years)
	return m
}

// computeBetaAlpha fills Beta and Alpha when a benchmark curve of matching
// length is present: beta via covariance/variance of the two return
// series, alpha via the CAPM residual on annualized returns.
func (a *Analyzer) computeBetaAlpha(m *Metrics, returns []float64, years float64) {
	if len(a.benchmark) == 0 || len(a.benchmark) != len(a.equity) {
		return
	}
	benchReturns := Returns(a.benchmark)
	if len(benchReturns) != len(returns) || len(returns) == 0 {
		return
	}

	meanX := mean(returns)
	meanY := mean(benchReturns)
	cov, varY := 0.0, 0.0
	for i := range returns {
		cov += (returns[i] - meanX) * (benchReturns[i] - meanY)
		d := benchReturns[i] - meanY
		varY += d * d
	}
	cov /= float64(len(returns))
	varY /= float64(len(benchReturns))
	if varY < epsilon {
		return
	}
	m.Beta = cov / varY

	if a.benchmark[0] == 0 || years <= 0 {
		return
	}
	benchTotal := a.benchmark[len(a.benchmark)-1]/a.benchmark[0] - 1
	benchAnnualized := math.Pow(1+benchTotal, 1/years) - 1
	m.Alpha = m.AnnualizedReturn - (a.riskFreeRate + m.Beta*(benchAnnualized-a.riskFreeRate))
}
