package statarb

import (
	"time"

	"winter/internal/model"

	"github.com/yanun0323/logs"
)

const (
	workerBatchSize   = 50
	workerWaitTimeout = 5 * time.Millisecond
	idleSleep         = 500 * time.Microsecond
	throttleStep      = 50 * time.Microsecond
	maxThrottleLevel  = 3

	// Queue occupancy above which a worker grows its per-iteration batch.
	backpressureRatio = 0.7
)

// workerState is one internal worker: a bounded tick queue plus private
// price history and volatility caches reached only by that worker (and by
// the caller's goroutine in inline mode, where a single state is shared
// with no concurrency).
type workerState struct {
	id    int
	queue chan model.Tick

	priceHistory map[string][]float64
	volatility   map[string]float64
	marketVol    float64
}

func newWorkerState(id, queueSize int) *workerState {
	return &workerState{
		id:           id,
		queue:        make(chan model.Tick, queueSize),
		priceHistory: make(map[string][]float64),
		volatility:   make(map[string]float64),
	}
}

// observePrice appends a price to the worker's private history, refreshes
// the symbol's realized volatility once enough samples exist, and folds it
// into the worker's market-wide volatility proxy.
func (ws *workerState) observePrice(symbol string, price float64, maxHistory int) {
	hist := append(ws.priceHistory[symbol], price)
	if len(hist) > maxHistory {
		hist = hist[1:]
	}
	ws.priceHistory[symbol] = hist

	if len(hist) >= 10 {
		vol := realizedVolatility(hist)
		ws.volatility[symbol] = vol
		if ws.marketVol == 0 {
			ws.marketVol = vol
		} else {
			ws.marketVol = 0.9*ws.marketVol + 0.1*vol
		}
	}
}

// volatilityFor returns the worker's latest volatility estimate for
// symbol, or the default market volatility when none exists yet.
func (ws *workerState) volatilityFor(symbol string) float64 {
	if v, ok := ws.volatility[symbol]; ok && v > 0 {
		return v
	}
	return 0.015
}

// inlineWorker returns the single worker state used in deterministic
// inline mode, creating it on first use.
func (c *Core) inlineWorker() *workerState {
	if len(c.workers) == 0 {
		c.workers = []*workerState{newWorkerState(0, 1)}
	}
	return c.workers[0]
}

// startWorkers lazily spawns the fan-out workers on the first fan-out
// tick.
func (c *Core) startWorkers() {
	c.workersOnce.Do(func() {
		c.workers = make([]*workerState, c.params.Workers)
		for i := range c.workers {
			c.workers[i] = newWorkerState(i, c.params.QueueSize)
		}
		c.running.Store(true)
		c.wg.Add(len(c.workers))
		for _, ws := range c.workers {
			go c.runWorker(ws)
		}
		logs.Infof("statarb: started %d worker threads", len(c.workers))
	})
}

// runWorker drains one worker's queue in adaptive batches. The batch size
// grows when queue occupancy crosses the backpressure threshold, and the
// throttle level (raised by the drop-rate monitor) adds micro-sleeps to
// this non-critical path.
func (c *Core) runWorker(ws *workerState) {
	defer c.wg.Done()

	for c.running.Load() {
		batch := workerBatchSize
		if occ := len(ws.queue); float64(occ) > backpressureRatio*float64(cap(ws.queue)) {
			grown := workerBatchSize * 3
			if occ < grown {
				grown = occ
			}
			batch = grown
		}

		processedAny := false
		for i := 0; i < batch; i++ {
			select {
			case tick := <-ws.queue:
				signals := c.processTickInternal(tick, ws)
				c.appendPending(signals)
				processedAny = true
			case <-time.After(workerWaitTimeout):
				i = batch // queue drained, stop this iteration
			}
		}

		if level := c.throttleLevel.Load(); level > 0 {
			time.Sleep(time.Duration(level) * throttleStep)
		}
		if !processedAny {
			time.Sleep(idleSleep)
		}
	}

	// Drain what is left so Shutdown loses nothing already queued.
	for {
		select {
		case tick := <-ws.queue:
			c.appendPending(c.processTickInternal(tick, ws))
		default:
			return
		}
	}
}

// adjustThrottle runs each time a tick is dropped and reacts to the
// cumulative drop rate: above 10% it raises the throttle level (adding
// micro-sleeps to worker loops), below 2% it lowers it.
func (c *Core) adjustThrottle() {
	processed := c.processed.Load()
	dropped := c.dropped.Load()
	total := processed + dropped
	if total == 0 {
		return
	}
	rate := float64(dropped) / float64(total) * 100

	level := c.throttleLevel.Load()
	switch {
	case rate > 10 && level < maxThrottleLevel:
		c.throttleLevel.Store(level + 1)
		logs.Infof("statarb: raising throttle level to %d, drop rate %.1f%%", level+1, rate)
	case rate < 2 && level > 0:
		c.throttleLevel.Store(level - 1)
	}
}
