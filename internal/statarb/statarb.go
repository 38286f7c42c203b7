// Package statarb implements the statistical-arbitrage decision core:
// a fixed list of symbol pairs, each with rolling spread statistics on
// three timeframes, a dynamically refit hedge ratio, z-score-gated entries
// with multi-timeframe confirmation, and layered exits (stop loss,
// trailing stop, time, mean reversion, profit target) under strict cash
// and sector budgets.
//
// The core runs in one of two modes. With Workers == 0 every tick is
// processed inline on the caller's goroutine, which is fully deterministic
// and is what the replay driver uses. With Workers > 0 ticks fan out to
// per-worker bounded queues keyed by symbol hash, the shape the live
// driver wants under load; signals then surface through a pending buffer
// drained on the next ProcessTick call.
package statarb

import (
	"hash/fnv"
	"math"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"winter/internal/model"
	"winter/internal/strategy"

	"github.com/yanun0323/logs"
)

// StrategyID is the registry identifier for this core.
const StrategyID = "StatArbitrage"

const (
	minBeta = 0.5
	maxBeta = 2.0

	betaRefitEvery   = 16
	returnHistoryLen = 20
	defaultHalfLife  = 10.0
	maxHalfLife      = 1000.0

	// Emergency capital management cadence and scope.
	cashCheckEvery    = 512
	emergencyClosePct = 0.20

	// Multi-timeframe confirmation scaling on the entry threshold.
	shortConfirmScale = 0.8
	longConfirmScale  = 0.6

	// Short-window confirmation scaling on the exit threshold.
	exitConfirmScale = 1.5

	// Trailing stop arms only after this much unrealized profit.
	trailingArmPct = 0.01
)

// Params holds every tunable for the core. Zero values fall back to the
// defaults below in New.
type Params struct {
	Capital float64

	EntryThreshold   float64
	ExitThreshold    float64
	ProfitTargetMult float64
	TrailingStopPct  float64
	StopLossPct      float64

	MaxPositionPct      float64
	MaxSectorAllocation float64
	MinCashReservePct   float64
	EmergencyCashLevel  float64

	ShortLookback  int
	MediumLookback int
	LongLookback   int

	MaxHoldingHours   int
	MinHoldingMinutes int

	// Workers > 0 enables the internal fan-out; 0 processes inline.
	Workers   int
	QueueSize int
}

// DefaultParams mirrors the tuned production values.
func DefaultParams() Params {
	return Params{
		Capital:             5_000_000,
		EntryThreshold:      1.3,
		ExitThreshold:       0.5,
		ProfitTargetMult:    0.7,
		TrailingStopPct:     0.25,
		StopLossPct:         0.018,
		MaxPositionPct:      0.004,
		MaxSectorAllocation: 0.25,
		MinCashReservePct:   0.15,
		EmergencyCashLevel:  0.05,
		ShortLookback:       3,
		MediumLookback:      5,
		LongLookback:        10,
		MaxHoldingHours:     72,
		MinHoldingMinutes:   30,
		Workers:             0,
		QueueSize:           8192,
	}
}

// Core is the stat-arb strategy. It implements strategy.Strategy.
type Core struct {
	params Params

	pairMu        sync.Mutex
	pairs         map[string]*pairState
	pairsBySymbol map[string][]*pairState
	activeSymbols map[string]struct{}

	pricesMu     sync.RWMutex
	latestPrices map[string]float64

	cash    *cashPool
	sectors *sectorBook

	pendingMu sync.Mutex
	pending   []model.Signal

	workers     []*workerState
	workersOnce sync.Once
	running     atomic.Bool
	wg          sync.WaitGroup

	processed     atomic.Uint64
	dropped       atomic.Uint64
	sinceCashChk  atomic.Uint64
	throttleLevel atomic.Int32

	warmup  bool
	enabled bool
}

var _ strategy.Strategy = (*Core)(nil)

// New constructs a Core with the given parameters; zero fields take the
// defaults.
func New(params Params) *Core {
	def := DefaultParams()
	if params.Capital <= 0 {
		params.Capital = def.Capital
	}
	if params.EntryThreshold <= 0 {
		params.EntryThreshold = def.EntryThreshold
	}
	if params.ExitThreshold < 0 {
		params.ExitThreshold = def.ExitThreshold
	}
	if params.ExitThreshold == 0 {
		params.ExitThreshold = def.ExitThreshold
	}
	if params.ProfitTargetMult <= 0 {
		params.ProfitTargetMult = def.ProfitTargetMult
	}
	if params.TrailingStopPct <= 0 {
		params.TrailingStopPct = def.TrailingStopPct
	}
	if params.StopLossPct <= 0 {
		params.StopLossPct = def.StopLossPct
	}
	if params.MaxPositionPct <= 0 {
		params.MaxPositionPct = def.MaxPositionPct
	}
	if params.MaxSectorAllocation <= 0 {
		params.MaxSectorAllocation = def.MaxSectorAllocation
	}
	if params.MinCashReservePct <= 0 {
		params.MinCashReservePct = def.MinCashReservePct
	}
	if params.EmergencyCashLevel <= 0 {
		params.EmergencyCashLevel = def.EmergencyCashLevel
	}
	if params.ShortLookback <= 0 {
		params.ShortLookback = def.ShortLookback
	}
	if params.MediumLookback <= 0 {
		params.MediumLookback = def.MediumLookback
	}
	if params.LongLookback <= 0 {
		params.LongLookback = def.LongLookback
	}
	if params.MaxHoldingHours <= 0 {
		params.MaxHoldingHours = def.MaxHoldingHours
	}
	if params.MinHoldingMinutes <= 0 {
		params.MinHoldingMinutes = def.MinHoldingMinutes
	}
	if params.Workers < 0 {
		params.Workers = 0
	}
	if params.Workers > 16 {
		params.Workers = 16
	}
	if cores := runtime.NumCPU(); params.Workers > cores {
		params.Workers = cores
	}
	if params.QueueSize <= 0 {
		params.QueueSize = def.QueueSize
	}

	return &Core{
		params:        params,
		pairs:         make(map[string]*pairState),
		pairsBySymbol: make(map[string][]*pairState),
		activeSymbols: make(map[string]struct{}),
		latestPrices:  make(map[string]float64),
		cash:          newCashPool(params.Capital, params.MinCashReservePct),
		sectors:       newSectorBook(params.Capital, params.MaxSectorAllocation),
		enabled:       true,
	}
}

// NewStrategy is the registry constructor for StrategyID.
func NewStrategy() strategy.Strategy { return New(DefaultParams()) }

func (c *Core) ID() string { return StrategyID }

func (c *Core) Initialize() error { return nil }

func (c *Core) IsEnabled() bool { return c.enabled }

// AddPair registers one tradable pair. Pairs must be added before the
// first tick is processed.
func (c *Core) AddPair(cfg PairConfig) {
	if cfg.Symbol1 == "" || cfg.Symbol2 == "" || cfg.Symbol1 == cfg.Symbol2 {
		return
	}
	c.pairMu.Lock()
	defer c.pairMu.Unlock()

	p := newPairState(cfg, c.params.ShortLookback, c.params.MediumLookback, c.params.LongLookback)
	if _, exists := c.pairs[p.key()]; exists {
		return
	}
	c.pairs[p.key()] = p
	c.pairsBySymbol[cfg.Symbol1] = append(c.pairsBySymbol[cfg.Symbol1], p)
	c.pairsBySymbol[cfg.Symbol2] = append(c.pairsBySymbol[cfg.Symbol2], p)
	c.activeSymbols[cfg.Symbol1] = struct{}{}
	c.activeSymbols[cfg.Symbol2] = struct{}{}
	logs.Infof("statarb: initialized pair %s-%s (%s)", cfg.Symbol1, cfg.Symbol2, p.sector)
}

// Configure applies keyed configuration. The "pairs" key carries a
// semicolon-separated list of SYM1:SYM2[:Sector] entries; numeric keys
// override the matching Params field. Reconfiguring capital rebuilds the
// cash pool and sector book.
func (c *Core) Configure(cfg strategy.Config) error {
	getF := func(key string, dst *float64) {
		if v, ok := cfg[key]; ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
				*dst = f
			}
		}
	}
	getI := func(key string, dst *int) {
		if v, ok := cfg[key]; ok {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}

	prevCapital := c.params.Capital
	getF("capital", &c.params.Capital)
	getF("entry_threshold", &c.params.EntryThreshold)
	getF("exit_threshold", &c.params.ExitThreshold)
	getF("profit_target_mult", &c.params.ProfitTargetMult)
	getF("trailing_stop_pct", &c.params.TrailingStopPct)
	getF("stop_loss_pct", &c.params.StopLossPct)
	getF("max_position_pct", &c.params.MaxPositionPct)
	getF("max_sector_allocation", &c.params.MaxSectorAllocation)
	getF("min_cash_reserve_pct", &c.params.MinCashReservePct)
	getF("emergency_cash_level", &c.params.EmergencyCashLevel)
	getI("short_lookback", &c.params.ShortLookback)
	getI("medium_lookback", &c.params.MediumLookback)
	getI("long_lookback", &c.params.LongLookback)
	getI("max_holding_hours", &c.params.MaxHoldingHours)
	getI("min_holding_minutes", &c.params.MinHoldingMinutes)
	getI("queue_size", &c.params.QueueSize)
	if v, ok := cfg["workers"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.params.Workers = n
		}
	}
	if v, ok := cfg["enabled"]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.enabled = b
		}
	}

	if c.params.Capital != prevCapital {
		c.cash = newCashPool(c.params.Capital, c.params.MinCashReservePct)
		c.sectors = newSectorBook(c.params.Capital, c.params.MaxSectorAllocation)
	}

	if v, ok := cfg["pairs"]; ok {
		for _, entry := range strings.Split(v, ";") {
			parts := strings.Split(strings.TrimSpace(entry), ":")
			if len(parts) < 2 {
				continue
			}
			pc := PairConfig{Symbol1: strings.TrimSpace(parts[0]), Symbol2: strings.TrimSpace(parts[1])}
			if len(parts) > 2 {
				pc.Sector = strings.TrimSpace(parts[2])
			}
			c.AddPair(pc)
		}
	}
	return nil
}

// Shutdown stops the internal workers, if any were started.
func (c *Core) Shutdown() error {
	if c.running.CompareAndSwap(true, false) {
		c.wg.Wait()
	}
	return nil
}

// Warmup pre-feeds history through the statistics path without emitting
// any entry or exit signals, so the spread windows are full before live
// processing starts. Inline only; call before the first ProcessTick.
func (c *Core) Warmup(ticks []model.Tick) {
	c.warmup = true
	defer func() { c.warmup = false }()
	ws := c.inlineWorker()
	for _, t := range ticks {
		c.processTickInternal(t, ws)
	}
	c.drainPending() // discard anything produced during warmup
}

// Dropped returns the number of ticks rejected by full worker queues.
func (c *Core) Dropped() uint64 { return c.dropped.Load() }

// AvailableCash returns the core's uncommitted capital.
func (c *Core) AvailableCash() float64 { return c.cash.available() }

// ProcessTick routes one tick through the core and returns any signals
// that are ready: inline results in deterministic mode, or the drained
// pending buffer in fan-out mode.
func (c *Core) ProcessTick(tick model.Tick) []model.Signal {
	c.pairMu.Lock()
	_, active := c.activeSymbols[tick.Symbol]
	c.pairMu.Unlock()
	if !active {
		return nil
	}

	if c.params.Workers == 0 {
		signals := c.processTickInternal(tick, c.inlineWorker())
		c.maybeFreeCapital()
		if pending := c.drainPending(); len(pending) > 0 {
			signals = append(signals, pending...)
		}
		return signals
	}

	c.startWorkers()
	ws := c.workers[c.workerFor(tick.Symbol)]
	select {
	case ws.queue <- tick:
	default:
		if n := c.dropped.Add(1); n%10_000 == 0 {
			logs.Errorf("statarb: worker queues full, dropped %d ticks", n)
		}
		c.adjustThrottle()
	}
	c.maybeFreeCapital()
	return c.drainPending()
}

func (c *Core) workerFor(symbol string) int {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return int(h.Sum32()) % len(c.workers)
}

func (c *Core) drainPending() []model.Signal {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if len(c.pending) == 0 {
		return nil
	}
	out := c.pending
	c.pending = nil
	return out
}

func (c *Core) appendPending(signals []model.Signal) {
	if len(signals) == 0 {
		return
	}
	c.pendingMu.Lock()
	c.pending = append(c.pending, signals...)
	c.pendingMu.Unlock()
}

// maybeFreeCapital runs the emergency cash check on a fixed tick cadence:
// when uncommitted capital falls below the emergency level, the worst
// performing fifth of open pairs is force-closed to free budget.
func (c *Core) maybeFreeCapital() {
	if c.warmup {
		return
	}
	if c.sinceCashChk.Add(1)%cashCheckEvery != 0 {
		return
	}
	if c.cash.available()/c.params.Capital >= c.params.EmergencyCashLevel {
		return
	}

	type ranked struct {
		pair        *pairState
		performance float64
	}

	c.pricesMu.RLock()
	prices := make(map[string]float64, len(c.latestPrices))
	for k, v := range c.latestPrices {
		prices[k] = v
	}
	c.pricesMu.RUnlock()

	c.pairMu.Lock()
	defer c.pairMu.Unlock()

	var open []ranked
	for _, p := range c.pairs {
		if !p.inPosition() {
			continue
		}
		p1, ok1 := prices[p.symbol1]
		p2, ok2 := prices[p.symbol2]
		if !ok1 || !ok2 {
			continue
		}
		notional := p.notional(p1, p2)
		if notional <= 0 {
			continue
		}
		open = append(open, ranked{pair: p, performance: p.unrealizedPnL(p1, p2) / notional})
	}
	if len(open) == 0 {
		return
	}
	sort.Slice(open, func(i, j int) bool { return open[i].performance < open[j].performance })

	toClose := int(math.Ceil(float64(len(open)) * emergencyClosePct))
	if toClose < 1 {
		toClose = 1
	}
	logs.Infof("statarb: low capital (%.1f%%), force-closing %d of %d open pairs",
		c.cash.available()/c.params.Capital*100, toClose, len(open))

	for i := 0; i < toClose; i++ {
		p := open[i].pair
		signals := c.closePair(p, prices[p.symbol1], prices[p.symbol2], "capital release")
		c.appendPending(signals)
	}
}

// processTickInternal is the full per-tick pipeline for one worker: update
// the worker's private history and volatility, publish the latest price,
// then walk every pair containing the symbol.
func (c *Core) processTickInternal(tick model.Tick, ws *workerState) []model.Signal {
	ws.observePrice(tick.Symbol, tick.Price, c.params.LongLookback*2)

	c.pricesMu.Lock()
	c.latestPrices[tick.Symbol] = tick.Price
	c.pricesMu.Unlock()

	c.pairMu.Lock()
	pairsForSymbol := c.pairsBySymbol[tick.Symbol]
	c.pairMu.Unlock()

	var signals []model.Signal
	for _, p := range pairsForSymbol {
		c.pricesMu.RLock()
		price1, ok1 := c.latestPrices[p.symbol1]
		price2, ok2 := c.latestPrices[p.symbol2]
		c.pricesMu.RUnlock()
		if !ok1 || !ok2 {
			continue
		}
		signals = append(signals, c.processPair(p, tick, price1, price2, ws)...)
	}
	c.processed.Add(1)
	return signals
}

// processPair applies the exit and entry rules for one pair under the
// pair lock.
func (c *Core) processPair(p *pairState, tick model.Tick, price1, price2 float64, ws *workerState) []model.Signal {
	c.pairMu.Lock()
	defer c.pairMu.Unlock()

	var signals []model.Signal

	// Risk exits are checked against current prices before the spread
	// statistics move.
	if p.inPosition() && !c.warmup {
		if exit := c.checkRiskExits(p, tick, price1, price2); exit != nil {
			return exit
		}
	}

	spread := price1 - p.beta*price2
	p.pushPrices(price1, price2, c.params.MediumLookback)
	p.pushSpread(spread)

	if !p.medium.full() {
		return nil
	}

	zS := p.short.zScore(spread)
	zM := p.medium.zScore(spread)
	zL := p.long.zScore(spread)
	prevZ := p.prevZ
	p.prevZ = zM

	if p.inPosition() {
		if fav := p.favorableExcursion(zM); fav > p.mfe {
			p.mfe = fav
		}
	}

	if c.warmup {
		return nil
	}

	if p.inPosition() {
		if exit := c.checkStatExits(p, zS, zM, price1, price2); exit != nil {
			return exit
		}
		return nil
	}

	// Flat: evaluate entries with confirmation on all three timeframes.
	confirmed := math.Abs(zS) > shortConfirmScale*c.params.EntryThreshold &&
		math.Abs(zL) > longConfirmScale*c.params.EntryThreshold

	switch {
	case zM > c.params.EntryThreshold && zM < prevZ && confirmed:
		signals = c.enterPair(p, pairShortSpread, zM, tick.TimestampUS, price1, price2, ws)
	case zM < -c.params.EntryThreshold && zM > prevZ && confirmed:
		signals = c.enterPair(p, pairLongSpread, zM, tick.TimestampUS, price1, price2, ws)
	}
	return signals
}

// checkRiskExits covers stop loss, trailing stop, and the time-based
// exit. Caller holds the pair lock.
func (c *Core) checkRiskExits(p *pairState, tick model.Tick, price1, price2 float64) []model.Signal {
	notional := p.notional(price1, price2)
	if notional <= 0 {
		return nil
	}
	unrealized := p.unrealizedPnL(price1, price2)
	profitPct := unrealized / notional
	if profitPct > p.peakProfit {
		p.peakProfit = profitPct
	}

	holdingUS := tick.TimestampUS - p.entryTimeUS
	minHoldingUS := int64(c.params.MinHoldingMinutes) * 60 * 1_000_000

	stopLoss := unrealized <= -c.params.StopLossPct*notional
	trailing := p.peakProfit >= trailingArmPct &&
		p.peakProfit-profitPct >= c.params.TrailingStopPct*p.peakProfit &&
		holdingUS >= minHoldingUS
	timeExit := holdingUS > int64(c.params.MaxHoldingHours)*3600*1_000_000

	if !stopLoss && !trailing && !timeExit {
		return nil
	}

	reason := "stop loss"
	if trailing {
		reason = "trailing stop"
	}
	if timeExit {
		reason = "time exit"
	}
	return c.closePair(p, price1, price2, reason)
}

// checkStatExits covers the mean-reversion and profit-target exits.
// Caller holds the pair lock.
func (c *Core) checkStatExits(p *pairState, zS, zM, price1, price2 float64) []model.Signal {
	// Mean reversion: z has crossed back through the exit band, confirmed
	// on the short window.
	reverted := (p.side == pairLongSpread && zM > -c.params.ExitThreshold) ||
		(p.side == pairShortSpread && zM < c.params.ExitThreshold)
	confirmed := math.Abs(zS) < exitConfirmScale*c.params.ExitThreshold
	if reverted && confirmed {
		return c.closePair(p, price1, price2, "mean reversion")
	}

	if p.mfe > 0 && p.mfe*c.params.ProfitTargetMult <= math.Abs(p.entryZ-zM) {
		return c.closePair(p, price1, price2, "profit target")
	}
	return nil
}

// enterPair sizes both legs, takes the cash and sector budget, and emits
// the two entry signals. Caller holds the pair lock.
func (c *Core) enterPair(p *pairState, side pairSide, zM float64, timestampUS int64, price1, price2 float64, ws *workerState) []model.Signal {
	absZ := math.Abs(zM)
	qty1 := c.sizePosition(price1, absZ, ws.volatilityFor(p.symbol1), ws.marketVol, p)
	qty2 := c.sizePosition(price2, absZ, ws.volatilityFor(p.symbol2), ws.marketVol, p)
	if qty1 <= 0 || qty2 <= 0 {
		return nil
	}

	notional := float64(qty1)*price1 + float64(qty2)*price2
	if !c.cash.reserve(notional) {
		return nil
	}
	if !c.sectors.tryAdd(p.sector, notional) {
		c.cash.release(notional)
		return nil
	}

	var kind1, kind2 model.SignalKind
	switch side {
	case pairShortSpread:
		kind1, kind2 = model.SignalSell, model.SignalBuy
		p.pos1, p.pos2 = -qty1, qty2
	case pairLongSpread:
		kind1, kind2 = model.SignalBuy, model.SignalSell
		p.pos1, p.pos2 = qty1, -qty2
	default:
		c.sectors.remove(p.sector, notional)
		c.cash.release(notional)
		return nil
	}

	p.side = side
	p.entryPrice1 = price1
	p.entryPrice2 = price2
	p.entryZ = zM
	p.entryTimeUS = timestampUS
	p.reserved = notional
	p.peakProfit = 0
	p.mfe = 0
	p.tradeCount++

	return []model.Signal{
		{Symbol: p.symbol1, Kind: kind1, Strength: 1, Price: price1},
		{Symbol: p.symbol2, Kind: kind2, Strength: 1, Price: price2},
	}
}

// closePair emits the two closing signals, releases the committed budget,
// and records the realized return. Caller holds the pair lock.
func (c *Core) closePair(p *pairState, price1, price2 float64, reason string) []model.Signal {
	if !p.inPosition() {
		return nil
	}

	var signals []model.Signal
	if p.pos1 != 0 {
		kind := model.SignalSell
		if p.pos1 < 0 {
			kind = model.SignalBuy
		}
		signals = append(signals, model.Signal{Symbol: p.symbol1, Kind: kind, Strength: 1, Price: price1})
	}
	if p.pos2 != 0 {
		kind := model.SignalSell
		if p.pos2 < 0 {
			kind = model.SignalBuy
		}
		signals = append(signals, model.Signal{Symbol: p.symbol2, Kind: kind, Strength: 1, Price: price2})
	}

	if notional := p.notional(price1, price2); notional > 0 {
		p.addReturn(p.unrealizedPnL(price1, price2) / notional)
	}
	c.sectors.remove(p.sector, p.reserved)
	c.cash.release(p.reserved)

	logs.Infof("statarb: exit (%s) %s-%s", reason, p.symbol1, p.symbol2)
	p.reset()
	return signals
}
