package statarb

import "math"

// pairSide is the discrete position state of a pair.
type pairSide uint8

const (
	pairFlat pairSide = iota
	pairLongSpread
	pairShortSpread
)

func (s pairSide) String() string {
	switch s {
	case pairLongSpread:
		return "LONG_SPREAD"
	case pairShortSpread:
		return "SHORT_SPREAD"
	default:
		return "FLAT"
	}
}

// PairConfig declares one tradable pair. Sector defaults to "Unknown" when
// left empty; sector budgeting groups pairs by this field.
type PairConfig struct {
	Symbol1 string
	Symbol2 string
	Sector  string
}

// pairState is the full mutable state for one pair, guarded by the core's
// pair mutex. Invariant: pos1 and pos2 are either both zero or have
// opposite signs.
type pairState struct {
	symbol1 string
	symbol2 string
	sector  string

	short  *spreadWindow
	medium *spreadWindow
	long   *spreadWindow

	// Joint price history of both legs, one entry per tick where both
	// latest prices were known; feeds the periodic OLS beta refit.
	history1 []float64
	history2 []float64

	beta        float64
	halfLife    float64
	betaUpdates int

	side        pairSide
	pos1        int32
	pos2        int32
	entryPrice1 float64
	entryPrice2 float64
	entryZ      float64
	entryTimeUS int64
	reserved    float64

	peakProfit float64
	mfe        float64
	prevZ      float64

	returns     []float64
	sharpeRatio float64
	tradeCount  int
}

func newPairState(cfg PairConfig, shortN, mediumN, longN int) *pairState {
	sector := cfg.Sector
	if sector == "" {
		sector = "Unknown"
	}
	return &pairState{
		symbol1:     cfg.Symbol1,
		symbol2:     cfg.Symbol2,
		sector:      sector,
		short:       newSpreadWindow(shortN),
		medium:      newSpreadWindow(mediumN),
		long:        newSpreadWindow(longN),
		beta:        1.0,
		halfLife:    defaultHalfLife,
		sharpeRatio: 1.0,
	}
}

func (p *pairState) key() string { return p.symbol1 + "_" + p.symbol2 }

func (p *pairState) inPosition() bool { return p.side != pairFlat }

// pushPrices records a joint observation of both legs and refits beta on a
// fixed cadence once enough history has accumulated.
func (p *pairState) pushPrices(price1, price2 float64, mediumN int) {
	p.history1 = append(p.history1, price1)
	p.history2 = append(p.history2, price2)
	if len(p.history1) > mediumN+1 {
		p.history1 = p.history1[1:]
		p.history2 = p.history2[1:]
	}

	p.betaUpdates++
	if p.betaUpdates%betaRefitEvery == 0 && len(p.history1) > 2 {
		p.beta = olsBeta(p.history1, p.history2, p.beta)
	}
}

func (p *pairState) pushSpread(spread float64) {
	p.short.push(spread)
	p.medium.push(spread)
	p.long.push(spread)
	p.halfLife = halfLife(p.medium.values)
}

// unrealizedPnL marks both legs to the given current prices.
func (p *pairState) unrealizedPnL(price1, price2 float64) float64 {
	if !p.inPosition() {
		return 0
	}
	leg1 := float64(p.pos1) * (price1 - p.entryPrice1)
	leg2 := float64(p.pos2) * (price2 - p.entryPrice2)
	return leg1 + leg2
}

// notional is the absolute market value of both legs at current prices.
func (p *pairState) notional(price1, price2 float64) float64 {
	if !p.inPosition() {
		return 0
	}
	return math.Abs(float64(p.pos1)*price1) + math.Abs(float64(p.pos2)*price2)
}

// favorableExcursion measures how far the z-score has moved in the
// profitable direction since entry: up for a long spread, down for a
// short spread.
func (p *pairState) favorableExcursion(z float64) float64 {
	switch p.side {
	case pairLongSpread:
		return z - p.entryZ
	case pairShortSpread:
		return p.entryZ - z
	default:
		return 0
	}
}

// addReturn appends a realized per-trade return, capped at the last
// returnHistoryLen trades, and recomputes the pair's Sharpe ratio.
func (p *pairState) addReturn(r float64) {
	p.returns = append(p.returns, r)
	if len(p.returns) > returnHistoryLen {
		p.returns = p.returns[1:]
	}
	p.updateSharpe()
}

func (p *pairState) updateSharpe() {
	if len(p.returns) < 5 {
		return
	}
	sum := 0.0
	for _, r := range p.returns {
		sum += r
	}
	m := sum / float64(len(p.returns))
	sq := 0.0
	for _, r := range p.returns {
		d := r - m
		sq += d * d
	}
	sd := math.Sqrt(sq / float64(len(p.returns)))
	if sd > 1e-4 {
		p.sharpeRatio = m / sd
	}
}

// reset clears the position state after an exit, leaving the statistical
// windows and realized-return history intact.
func (p *pairState) reset() {
	p.side = pairFlat
	p.pos1 = 0
	p.pos2 = 0
	p.entryPrice1 = 0
	p.entryPrice2 = 0
	p.entryZ = 0
	p.entryTimeUS = 0
	p.reserved = 0
	p.peakProfit = 0
	p.mfe = 0
}
