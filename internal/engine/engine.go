// Package engine implements the event engine: it owns the tick and
// order rings, runs a strategy worker and an execution worker as
// core-pinned goroutines, converts signals into sized orders, and applies
// fills to the portfolio while invoking the caller's fill callback.
//
// Internal state sits behind one mutex; the fill callback is invoked
// synchronously on the execution worker, outside any engine lock, so
// listeners cannot deadlock against the producer side.
package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"winter/internal/model"
	"winter/internal/obs"
	"winter/internal/portfolio"
	"winter/internal/strategy"
	"winter/pkg/affinity"
	"winter/pkg/spscring"

	"github.com/yanun0323/logs"
)

// idleSleep is the microsecond-scale yield a worker takes when its ring is
// empty, instead of spinning.
const idleSleep = 50 * time.Microsecond

// FillCallback is invoked exactly once per accepted fill, synchronously on
// the execution worker, before the order is considered applied. It must
// not block or acquire locks the producer holds.
type FillCallback func(order model.Order, trade model.Trade)

// Params configures queue sizes, batch size, and best-effort scheduling
// hints. Ring capacities are fixed once the engine is constructed;
// Configure after construction only adjusts batch size and hints.
type Params struct {
	TickCapacity    int
	OrderCapacity   int
	BatchSize       int
	ExecutionMode   string // best-effort hint, logged only
	ThreadPriority  string // best-effort hint, logged only
}

// DefaultParams returns reasonable defaults for all Params fields.
func DefaultParams() Params {
	return Params{
		TickCapacity:  4096,
		OrderCapacity: 4096,
		BatchSize:     64,
	}
}

// Engine owns the two rings and runs the strategy/execution workers.
type Engine struct {
	mu sync.Mutex

	tickRing  *spscring.Ring[model.Tick]
	orderRing *spscring.Ring[model.Order]

	portfolio *portfolio.Portfolio
	metrics   *obs.Metrics

	strategies []strategy.Strategy
	fillFn     FillCallback

	batchSize      int
	executionMode  string
	threadPriority string

	quit chan struct{}
	wg   sync.WaitGroup

	// ticksDone counts ticks fully processed by the strategy worker
	// (including all order pushes they caused); ordersDone counts orders
	// fully applied by the execution worker (including the fill
	// callback). Together with the rings' push counters they let a driver
	// wait for the pipeline to drain between ticks — the replay driver
	// leans on this for deterministic runs.
	ticksDone  atomic.Int64
	ordersDone atomic.Int64

	latestPrice map[string]float64
}

// New constructs an Engine over pf with the given queue/batch parameters.
func New(pf *portfolio.Portfolio, params Params) *Engine {
	if params.TickCapacity <= 0 {
		params.TickCapacity = DefaultParams().TickCapacity
	}
	if params.OrderCapacity <= 0 {
		params.OrderCapacity = DefaultParams().OrderCapacity
	}
	if params.BatchSize <= 0 {
		params.BatchSize = DefaultParams().BatchSize
	}
	return &Engine{
		tickRing:      spscring.New[model.Tick](params.TickCapacity),
		orderRing:     spscring.New[model.Order](params.OrderCapacity),
		portfolio:     pf,
		metrics:       obs.NewMetrics(),
		batchSize:     params.BatchSize,
		executionMode: params.ExecutionMode,
		threadPriority: params.ThreadPriority,
		latestPrice:   make(map[string]float64),
	}
}

// Configure updates batch size and scheduling hints. Queue capacities are
// immutable after construction; a nonzero TickCapacity/OrderCapacity here
// is ignored and logged rather than silently reallocating rings mid-run.
func (e *Engine) Configure(params Params) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if params.BatchSize > 0 {
		e.batchSize = params.BatchSize
	}
	if params.ExecutionMode != "" {
		e.executionMode = params.ExecutionMode
	}
	if params.ThreadPriority != "" {
		e.threadPriority = params.ThreadPriority
	}
	if params.TickCapacity > 0 || params.OrderCapacity > 0 {
		logs.Info("engine: ring capacities are fixed at construction; ignoring Configure capacity hint")
	}
}

// Metrics returns the engine's metrics collector.
func (e *Engine) Metrics() *obs.Metrics { return e.metrics }

// Portfolio returns the underlying portfolio. Drivers may only read it
// safely after Stop or from inside the fill callback.
func (e *Engine) Portfolio() *portfolio.Portfolio { return e.portfolio }

// AddStrategy appends s to the strategy list.
func (e *Engine) AddStrategy(s strategy.Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies = append(e.strategies, s)
}

// SetFillCallback installs fn as the fill callback.
func (e *Engine) SetFillCallback(fn FillCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fillFn = fn
}

// ProcessTick pushes tick onto the tick ring. Producer-side pushes must be
// serialized by the caller — ProcessTick itself does not lock,
// matching the ring's single-producer contract.
func (e *Engine) ProcessTick(tick model.Tick) {
	if err := e.tickRing.Push(tick); err != nil {
		e.metrics.IncTickDrop()
	}
}

// ProcessTickBatch pushes every tick in batch, in order, serializing the
// fan-in through the ring's single-producer contract.
func (e *Engine) ProcessTickBatch(batch []model.Tick) {
	for _, t := range batch {
		e.ProcessTick(t)
	}
}

// TickDrops returns the number of ticks rejected for a full ring.
func (e *Engine) TickDrops() int64 { return e.tickRing.Dropped() }

// OrderDrops returns the number of orders rejected for a full ring.
func (e *Engine) OrderDrops() int64 { return e.orderRing.Dropped() }

// Start spawns the strategy and execution workers, pinning each to the
// given core if >= 0 (best effort; a failed pin is logged and the worker
// keeps running on any core).
func (e *Engine) Start(strategyCore, executionCore int) {
	if e.executionMode != "" || e.threadPriority != "" {
		logs.Infof("engine: scheduling hints mode=%q priority=%q (best effort)", e.executionMode, e.threadPriority)
	}
	e.quit = make(chan struct{})
	e.wg.Add(2)
	go e.runStrategyWorker(strategyCore)
	go e.runExecutionWorker(executionCore)
}

// Stop sets the quit flag, waits for both workers to drain their current
// batch and exit, then joins them. Cooperative; there is no per-order
// cancel.
func (e *Engine) Stop() {
	if e.quit == nil {
		return
	}
	close(e.quit)
	e.wg.Wait()
}

func (e *Engine) pinWorker(coreID int, name string) {
	if coreID < 0 {
		return
	}
	if !affinity.PinBestEffort(coreID) {
		e.metrics.IncAffinityFailed()
		logs.Infof("engine: failed to pin %s worker to core %d, continuing unpinned", name, coreID)
	}
}

func (e *Engine) runStrategyWorker(coreID int) {
	defer e.wg.Done()
	e.pinWorker(coreID, "strategy")

	batch := make([]model.Tick, e.batchSize)
	for {
		select {
		case <-e.quit:
			e.drainStrategyBatch(batch)
			return
		default:
		}

		n := e.tickRing.PopBatch(batch)
		if n == 0 {
			time.Sleep(idleSleep)
			continue
		}
		start := time.Now()
		e.processTicks(batch[:n])
		e.metrics.ObserveStrategyTurn(time.Since(start))
	}
}

func (e *Engine) drainStrategyBatch(batch []model.Tick) {
	for {
		n := e.tickRing.PopBatch(batch)
		if n == 0 {
			return
		}
		e.processTicks(batch[:n])
	}
}

func (e *Engine) processTicks(ticks []model.Tick) {
	e.mu.Lock()
	strategies := e.strategies
	e.mu.Unlock()

	for _, tick := range ticks {
		e.latestPrice[tick.Symbol] = tick.Price
		for _, s := range strategies {
			if !s.IsEnabled() {
				continue
			}
			signals := s.ProcessTick(tick)
			for _, sig := range signals {
				e.dispatchSignal(sig)
			}
		}
		e.ticksDone.Add(1)
	}
}

// dispatchSignal converts a non-NEUTRAL signal into a sized order and
// pushes it onto the order ring.
func (e *Engine) dispatchSignal(sig model.Signal) {
	order, ok := e.sizeOrder(sig)
	if !ok {
		return
	}
	if err := e.orderRing.Push(order); err != nil {
		e.metrics.IncOrderDrop()
	}
}

func (e *Engine) sizeOrder(sig model.Signal) (model.Order, bool) {
	switch sig.Kind {
	case model.SignalNeutral:
		return model.Order{}, false

	case model.SignalBuy:
		cash := e.portfolio.Cash()
		if sig.Price <= 0 {
			return model.Order{}, false
		}
		budget := cash * 0.10
		if budget > cash {
			budget = cash
		}
		qty := int32(budget / sig.Price)
		if qty <= 0 {
			e.metrics.IncBudgetSkipped()
			return model.Order{}, false
		}
		if float64(qty)*sig.Price > cash {
			e.metrics.IncBudgetSkipped()
			return model.Order{}, false
		}
		return model.Order{Symbol: sig.Symbol, Side: model.SideBuy, Type: model.OrderTypeMarket, Quantity: qty, Price: sig.Price}, true

	case model.SignalSell:
		qty := e.portfolio.GetPosition(sig.Symbol)
		if qty <= 0 {
			return model.Order{}, false
		}
		return model.Order{Symbol: sig.Symbol, Side: model.SideSell, Type: model.OrderTypeMarket, Quantity: qty, Price: sig.Price}, true

	case model.SignalExit:
		pos := e.portfolio.GetPosition(sig.Symbol)
		if pos == 0 {
			return model.Order{}, false
		}
		side := model.SideSell
		qty := pos
		if pos < 0 {
			side = model.SideBuy
			qty = -pos
		}
		return model.Order{Symbol: sig.Symbol, Side: side, Type: model.OrderTypeMarket, Quantity: qty, Price: sig.Price}, true

	default:
		return model.Order{}, false
	}
}

func (e *Engine) runExecutionWorker(coreID int) {
	defer e.wg.Done()
	e.pinWorker(coreID, "execution")

	batch := make([]model.Order, e.batchSize)
	for {
		select {
		case <-e.quit:
			e.drainExecutionBatch(batch)
			return
		default:
		}

		n := e.orderRing.PopBatch(batch)
		if n == 0 {
			time.Sleep(idleSleep)
			continue
		}
		start := time.Now()
		for _, order := range batch[:n] {
			e.applyOrder(order)
			e.ordersDone.Add(1)
		}
		e.metrics.ObserveExecutionTurn(time.Since(start))
	}
}

func (e *Engine) drainExecutionBatch(batch []model.Order) {
	for {
		n := e.orderRing.PopBatch(batch)
		if n == 0 {
			return
		}
		for _, order := range batch[:n] {
			e.applyOrder(order)
			e.ordersDone.Add(1)
		}
	}
}

// applyOrder is the execution worker's sole mutator of the portfolio
//. It implements the fill table: full fills for covered BUYs
// and SELLs, oversell reconciliation for partial SELLs, and silent drops
// for SELLs against a flat position.
func (e *Engine) applyOrder(order model.Order) {
	now := time.Now().UnixMicro()
	fillStart := time.Now()

	switch order.Side {
	case model.SideBuy:
		cost := order.Price * float64(order.Quantity)
		if e.portfolio.Cash() < cost {
			return
		}
		e.portfolio.ReduceCash(cost)
		e.portfolio.AddPosition(order.Symbol, order.Quantity, order.Price, now)
		e.fireFill(order, now, fillStart)

	case model.SideSell:
		held := e.portfolio.GetPosition(order.Symbol)
		switch {
		case held >= order.Quantity && held > 0:
			proceeds := order.Price * float64(order.Quantity)
			e.portfolio.ReducePosition(order.Symbol, order.Quantity, order.Price, now)
			e.portfolio.AddCash(proceeds)
			e.fireFill(order, now, fillStart)

		case held > 0 && held < order.Quantity:
			e.metrics.IncOversell()
			order.Quantity = held
			proceeds := order.Price * float64(order.Quantity)
			e.portfolio.ReducePosition(order.Symbol, order.Quantity, order.Price, now)
			e.portfolio.AddCash(proceeds)
			e.fireFill(order, now, fillStart)

		default:
			// held <= 0: silently drop.
		}
	}
}

func (e *Engine) fireFill(order model.Order, timestampUS int64, fillStart time.Time) {
	e.metrics.ObserveFill(time.Since(fillStart))
	if e.fillFn == nil {
		return
	}
	trade := model.Trade{
		Symbol:      order.Symbol,
		Side:        order.Side,
		Quantity:    order.Quantity,
		Price:       order.Price,
		Cost:        order.Price * float64(order.Quantity),
		TimestampUS: timestampUS,
	}
	if len(e.portfolio.Trades()) > 0 {
		trade.RealizedPnL = e.portfolio.Trades()[len(e.portfolio.Trades())-1].RealizedPnL
	}
	e.fillFn(order, trade)
}

// Quiesced reports whether every tick accepted so far has been fully
// processed and every order it produced fully applied, fill callbacks
// included. A driver that serializes its pushes can poll this between
// ticks to run the pipeline deterministically; it is meaningless while
// another producer is still pushing.
func (e *Engine) Quiesced() bool {
	if e.ticksDone.Load() != e.tickRing.Pushed() {
		return false
	}
	return e.ordersDone.Load() == e.orderRing.Pushed()
}

// LatestPrice returns the most recently observed price for symbol, or
// (0, false) if none has been seen. It is populated by the strategy
// worker and is only safe to read after Stop, matching the portfolio's
// own visibility rule.
func (e *Engine) LatestPrice(symbol string) (float64, bool) {
	p, ok := e.latestPrice[symbol]
	return p, ok
}
