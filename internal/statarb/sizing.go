package statarb

import "math"

// sizePosition computes the share quantity for one leg of an entry. Five
// multiplicative factors scale the base allocation: realized symbol
// volatility (calmer symbols take more size), z-score magnitude relative
// to the entry threshold (stronger dislocations take more), the pair's
// recent Sharpe ratio, the estimated half-life of mean reversion (faster
// reversion takes more), and the market-wide volatility proxy (quiet tape
// takes more). Always at least one share.
func (c *Core) sizePosition(price, absZ, symbolVol, marketVol float64, p *pairState) int32 {
	if price <= 0 {
		return 0
	}

	volFactor := clamp(0.3/math.Max(0.05, symbolVol), 0.5, 2.5)
	zFactor := clamp(0.8+math.Pow(absZ/c.params.EntryThreshold, 0.7), 0.8, 2.5)
	sharpeFactor := clamp(p.sharpeRatio/2, 0.5, 1.5)
	halfLifeFactor := clamp(10/math.Max(1, p.halfLife), 0.5, 1.5)
	marketFactor := clamp(0.015/math.Max(0.005, marketVol), 0.5, 1.5)

	qty := c.params.Capital * c.params.MaxPositionPct *
		volFactor * zFactor * sharpeFactor * halfLifeFactor * marketFactor / price
	if qty < 1 {
		return 1
	}
	return int32(qty)
}
