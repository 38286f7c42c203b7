package meanrev

import "math"

// rollingStats is a fixed-size price window with running sum and sum of
// squares, so mean, stddev, and z-score are O(1) per update.
type rollingStats struct {
	prices []float64
	window int
	sum    float64
	sumSq  float64
}

func newRollingStats(window int) *rollingStats {
	if window < 2 {
		window = 2
	}
	return &rollingStats{
		prices: make([]float64, 0, window),
		window: window,
	}
}

func (r *rollingStats) add(price float64) {
	r.prices = append(r.prices, price)
	r.sum += price
	r.sumSq += price * price
	if len(r.prices) > r.window {
		old := r.prices[0]
		r.prices = r.prices[1:]
		r.sum -= old
		r.sumSq -= old * old
	}
}

func (r *rollingStats) full() bool { return len(r.prices) >= r.window }

func (r *rollingStats) mean() float64 {
	if len(r.prices) == 0 {
		return 0
	}
	return r.sum / float64(len(r.prices))
}

func (r *rollingStats) stddev() float64 {
	if len(r.prices) < 2 {
		return 0
	}
	avg := r.mean()
	variance := r.sumSq/float64(len(r.prices)) - avg*avg
	return math.Sqrt(math.Max(0, variance))
}

// zScore returns 0 when the window is underfilled or the deviation is
// effectively zero, so a constant-price series never produces a signal.
func (r *rollingStats) zScore(price float64) float64 {
	if !r.full() {
		return 0
	}
	sd := r.stddev()
	if sd < 1e-4 {
		return 0
	}
	return (price - r.mean()) / sd
}

// bbWidth is the Bollinger band width (4 standard deviations) relative to
// the window mean.
func (r *rollingStats) bbWidth() float64 {
	m := r.mean()
	if m == 0 {
		return 0
	}
	return 4 * r.stddev() / m
}

// ema is a streaming exponential moving average seeded with a simple
// average over the first period samples.
type ema struct {
	period     int
	multiplier float64
	value      float64
	count      int
	warmupSum  float64
}

func newEMA(period int) *ema {
	if period < 1 {
		period = 1
	}
	return &ema{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *ema) update(x float64) {
	if e.count < e.period {
		e.warmupSum += x
		e.count++
		if e.count == e.period {
			e.value = e.warmupSum / float64(e.period)
		}
		return
	}
	e.value = (x-e.value)*e.multiplier + e.value
}

func (e *ema) ready() bool { return e.count >= e.period }

// rsi is a Wilder-smoothed relative strength index over price changes.
type rsi struct {
	period   int
	avgGain  float64
	avgLoss  float64
	prev     float64
	seen     int
	seedGain float64
	seedLoss float64
}

func newRSI(period int) *rsi {
	if period < 1 {
		period = 1
	}
	return &rsi{period: period}
}

func (r *rsi) update(price float64) {
	if r.seen == 0 {
		r.prev = price
		r.seen++
		return
	}
	change := price - r.prev
	r.prev = price
	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	if r.seen <= r.period {
		r.seedGain += gain
		r.seedLoss += loss
		if r.seen == r.period {
			r.avgGain = r.seedGain / float64(r.period)
			r.avgLoss = r.seedLoss / float64(r.period)
		}
		r.seen++
		return
	}
	r.avgGain = (r.avgGain*float64(r.period-1) + gain) / float64(r.period)
	r.avgLoss = (r.avgLoss*float64(r.period-1) + loss) / float64(r.period)
	r.seen++
}

func (r *rsi) ready() bool { return r.seen > r.period }

func (r *rsi) value() float64 {
	if !r.ready() {
		return 50
	}
	if r.avgLoss == 0 {
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs)
}

// atr tracks the average absolute tick-to-tick price change. There is no
// OHLC bar in a tick stream, so the true range collapses to |Δprice|.
type atr struct {
	period int
	value  float64
	prev   float64
	seen   int
	seed   float64
}

func newATR(period int) *atr {
	if period < 1 {
		period = 1
	}
	return &atr{period: period}
}

func (a *atr) update(price float64) {
	if a.seen == 0 {
		a.prev = price
		a.seen++
		return
	}
	tr := math.Abs(price - a.prev)
	a.prev = price
	if a.seen <= a.period {
		a.seed += tr
		if a.seen == a.period {
			a.value = a.seed / float64(a.period)
		}
		a.seen++
		return
	}
	a.value = (a.value*float64(a.period-1) + tr) / float64(a.period)
	a.seen++
}

func (a *atr) ready() bool { return a.seen > a.period }

// volumeOscillator compares a fast and a slow simple moving average of
// volume, expressed as a percentage of the slow average.
type volumeOscillator struct {
	fast *rollingStats
	slow *rollingStats
}

func newVolumeOscillator(fastPeriod, slowPeriod int) *volumeOscillator {
	return &volumeOscillator{
		fast: newRollingStats(fastPeriod),
		slow: newRollingStats(slowPeriod),
	}
}

func (v *volumeOscillator) update(volume float64) {
	v.fast.add(volume)
	v.slow.add(volume)
}

func (v *volumeOscillator) ready() bool { return v.slow.full() }

func (v *volumeOscillator) value() float64 {
	slow := v.slow.mean()
	if slow == 0 {
		return 0
	}
	return (v.fast.mean() - slow) / slow * 100
}
