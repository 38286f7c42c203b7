package statarb

import "math"

// spreadWindow is a fixed-size spread history with running sum and sum of
// squares so mean, stddev, and z-score stay O(1) per push.
type spreadWindow struct {
	values []float64
	size   int
	sum    float64
	sumSq  float64
}

func newSpreadWindow(size int) *spreadWindow {
	if size < 2 {
		size = 2
	}
	return &spreadWindow{
		values: make([]float64, 0, size),
		size:   size,
	}
}

func (w *spreadWindow) push(v float64) {
	w.values = append(w.values, v)
	w.sum += v
	w.sumSq += v * v
	if len(w.values) > w.size {
		old := w.values[0]
		w.values = w.values[1:]
		w.sum -= old
		w.sumSq -= old * old
	}
}

func (w *spreadWindow) full() bool { return len(w.values) >= w.size }

func (w *spreadWindow) mean() float64 {
	if len(w.values) == 0 {
		return 0
	}
	return w.sum / float64(len(w.values))
}

func (w *spreadWindow) stddev() float64 {
	if len(w.values) < 2 {
		return 0
	}
	avg := w.mean()
	variance := w.sumSq/float64(len(w.values)) - avg*avg
	return math.Sqrt(math.Max(0, variance))
}

// zScore returns 0 when the window is underfilled or the deviation is
// below 1e-4, so flat spreads never gate an entry.
func (w *spreadWindow) zScore(v float64) float64 {
	if !w.full() {
		return 0
	}
	sd := w.stddev()
	if sd < 1e-4 {
		return 0
	}
	return (v - w.mean()) / sd
}

// olsBeta regresses the returns of leg A on the returns of leg B over two
// equal-length price histories and returns the slope, clamped to
// [minBeta, maxBeta]. The input histories must move in lockstep (one entry
// per joint observation of the pair).
func olsBeta(pricesA, pricesB []float64, fallback float64) float64 {
	n := len(pricesA)
	if len(pricesB) < n {
		n = len(pricesB)
	}
	if n < 3 {
		return fallback
	}

	retA := make([]float64, 0, n-1)
	retB := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		if pricesA[i-1] == 0 || pricesB[i-1] == 0 {
			return fallback
		}
		retA = append(retA, pricesA[i]/pricesA[i-1]-1)
		retB = append(retB, pricesB[i]/pricesB[i-1]-1)
	}

	meanA, meanB := 0.0, 0.0
	for i := range retA {
		meanA += retA[i]
		meanB += retB[i]
	}
	meanA /= float64(len(retA))
	meanB /= float64(len(retB))

	cov, varB := 0.0, 0.0
	for i := range retA {
		cov += (retA[i] - meanA) * (retB[i] - meanB)
		d := retB[i] - meanB
		varB += d * d
	}
	if varB < 1e-12 {
		return fallback
	}
	return clamp(cov/varB, minBeta, maxBeta)
}

// halfLife estimates the mean-reversion half-life of a spread series via
// an AR(1) regression of the change on the lagged level. A non-reverting
// series (coefficient >= 0) reports a large half-life so the sizing factor
// shrinks instead of blowing up.
func halfLife(spread []float64) float64 {
	if len(spread) < 3 {
		return defaultHalfLife
	}
	lag := spread[:len(spread)-1]
	delta := make([]float64, len(spread)-1)
	for i := 1; i < len(spread); i++ {
		delta[i-1] = spread[i] - spread[i-1]
	}

	meanLag, meanDelta := 0.0, 0.0
	for i := range lag {
		meanLag += lag[i]
		meanDelta += delta[i]
	}
	meanLag /= float64(len(lag))
	meanDelta /= float64(len(delta))

	cov, varLag := 0.0, 0.0
	for i := range lag {
		cov += (lag[i] - meanLag) * (delta[i] - meanDelta)
		d := lag[i] - meanLag
		varLag += d * d
	}
	if varLag < 1e-12 {
		return defaultHalfLife
	}
	phi := cov / varLag
	if phi >= 0 {
		return maxHalfLife
	}
	if phi <= -1 {
		// The spread overshoots its mean on every step: it reverts within
		// one step.
		return 1
	}
	hl := -math.Ln2 / math.Log(1+phi)
	if hl <= 0 || hl > maxHalfLife {
		return maxHalfLife
	}
	return hl
}

// realizedVolatility is the annualized standard deviation of simple
// returns over a price history, on a 252-day basis.
func realizedVolatility(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			return 0
		}
		returns = append(returns, prices[i]/prices[i-1]-1)
	}
	m := 0.0
	for _, r := range returns {
		m += r
	}
	m /= float64(len(returns))
	sq := 0.0
	for _, r := range returns {
		d := r - m
		sq += d * d
	}
	return math.Sqrt(sq/float64(len(returns))) * math.Sqrt(252)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
