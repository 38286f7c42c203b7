// Package meanrev implements the mean-reversion decision core:
// per-symbol rolling statistics with multi-indicator confirmation. A raw
// z-score extreme only becomes a signal when band width, volume flow, the
// 200-period trend filter, and RSI all agree, which keeps the strategy out
// of strongly trending tape.
package meanrev

import (
	"math"
	"strconv"

	"winter/internal/model"
	"winter/internal/strategy"
)

// StrategyID is the registry identifier for this core.
const StrategyID = "MeanReversion"

// Default window and thresholds. Configure can override the window and the
// entry/exit thresholds; the indicator periods and confirmation levels are
// fixed.
const (
	defaultWindow         = 20
	defaultEntryThreshold = 2.0
	defaultExitThreshold  = 0.5

	trendPeriod   = 200
	volOscFast    = 14
	volOscSlow    = 28
	atrPeriod     = 14
	rsiPeriod     = 14
	minBBWidth    = 0.15
	volOscExtreme = 30.0
	rsiOversold   = 35.0
	rsiOverbought = 65.0
)

// symbolState is the full indicator set for one symbol.
type symbolState struct {
	stats  *rollingStats
	trend  *ema
	volOsc *volumeOscillator
	atr    *atr
	rsi    *rsi
}

// Core is the mean-reversion strategy. It implements strategy.Strategy and
// keeps one indicator set per symbol seen.
type Core struct {
	symbols map[string]*symbolState

	window         int
	entryThreshold float64
	exitThreshold  float64

	enabled bool
}

var _ strategy.Strategy = (*Core)(nil)

// New constructs a Core with default thresholds.
func New() *Core {
	return &Core{
		symbols:        make(map[string]*symbolState),
		window:         defaultWindow,
		entryThreshold: defaultEntryThreshold,
		exitThreshold:  defaultExitThreshold,
		enabled:        true,
	}
}

// NewStrategy is the registry constructor for StrategyID.
func NewStrategy() strategy.Strategy { return New() }

func (c *Core) ID() string { return StrategyID }

func (c *Core) Initialize() error { return nil }

// Configure applies keyed configuration. Recognized keys: window,
// entry_threshold, exit_threshold, enabled. Unknown keys are ignored so a
// shared config file can carry other strategies' sections.
func (c *Core) Configure(cfg strategy.Config) error {
	if v, ok := cfg["window"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 2 {
			c.window = n
		}
	}
	if v, ok := cfg["entry_threshold"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.entryThreshold = f
		}
	}
	if v, ok := cfg["exit_threshold"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.exitThreshold = f
		}
	}
	if v, ok := cfg["enabled"]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.enabled = b
		}
	}
	return nil
}

func (c *Core) IsEnabled() bool { return c.enabled }

func (c *Core) Shutdown() error { return nil }

// Warmup pre-feeds a slice of history so the rolling windows are full
// before the first live tick; no signals are emitted during warmup.
func (c *Core) Warmup(ticks []model.Tick) {
	for _, t := range ticks {
		c.state(t.Symbol).update(t)
	}
}

func (c *Core) state(symbol string) *symbolState {
	st, ok := c.symbols[symbol]
	if !ok {
		st = &symbolState{
			stats:  newRollingStats(c.window),
			trend:  newEMA(trendPeriod),
			volOsc: newVolumeOscillator(volOscFast, volOscSlow),
			atr:    newATR(atrPeriod),
			rsi:    newRSI(rsiPeriod),
		}
		c.symbols[symbol] = st
	}
	return st
}

func (s *symbolState) update(t model.Tick) {
	s.stats.add(t.Price)
	s.trend.update(t.Price)
	s.volOsc.update(float64(t.Volume))
	s.atr.update(t.Price)
	s.rsi.update(t.Price)
}

// ProcessTick updates the symbol's indicators and emits at most one signal.
func (c *Core) ProcessTick(tick model.Tick) []model.Signal {
	st := c.state(tick.Symbol)
	st.update(tick)

	if !st.stats.full() {
		return nil
	}

	z := st.stats.zScore(tick.Price)

	switch {
	case z <= -c.entryThreshold && c.buyConfirmed(st, tick.Price):
		return []model.Signal{{
			Symbol:   tick.Symbol,
			Kind:     model.SignalBuy,
			Strength: math.Min(1, (-z-c.entryThreshold)/2),
			Price:    tick.Price,
		}}

	case z >= c.entryThreshold && c.sellConfirmed(st, tick.Price):
		return []model.Signal{{
			Symbol:   tick.Symbol,
			Kind:     model.SignalSell,
			Strength: math.Min(1, (z-c.entryThreshold)/2),
			Price:    tick.Price,
		}}

	case math.Abs(z) < c.exitThreshold:
		return []model.Signal{{
			Symbol:   tick.Symbol,
			Kind:     model.SignalExit,
			Strength: 1 - math.Abs(z)/c.exitThreshold,
			Price:    tick.Price,
		}}
	}
	return nil
}

// buyConfirmed requires a wide band, a washed-out volume oscillator, price
// above the long trend, and an oversold RSI before a long entry.
func (c *Core) buyConfirmed(st *symbolState, price float64) bool {
	if !st.trend.ready() || !st.volOsc.ready() || !st.rsi.ready() {
		return false
	}
	return st.stats.bbWidth() > minBBWidth &&
		st.volOsc.value() < -volOscExtreme &&
		price > st.trend.value &&
		st.rsi.value() < rsiOversold
}

func (c *Core) sellConfirmed(st *symbolState, price float64) bool {
	if !st.trend.ready() || !st.volOsc.ready() || !st.rsi.ready() {
		return false
	}
	return st.stats.bbWidth() > minBBWidth &&
		st.volOsc.value() > volOscExtreme &&
		price < st.trend.value &&
		st.rsi.value() > rsiOverbought
}
