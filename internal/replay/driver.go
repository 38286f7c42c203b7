package replay

import (
	"math"
	"sync"
	"time"

	"winter/internal/engine"
	"winter/internal/model"
	"winter/internal/perf"
	"winter/internal/strategy"
	"winter/internal/xerrors"

	"github.com/yanun0323/logs"
)

// Warmer is implemented by decision cores that can pre-fill their rolling
// windows from a slice of history before live processing starts.
type Warmer interface {
	Warmup(ticks []model.Tick)
}

// Config controls one replay run.
type Config struct {
	CSVPath        string
	InitialBalance float64
	RiskFreeRate   float64

	// WarmupTicks routes the first N parsed ticks through Warmup-capable
	// strategies instead of the live pipeline, so windows are full before
	// the first signal can fire. 0 disables the pass.
	WarmupTicks int

	TradesCSVPath string
	ReportPath    string
	GraphsPath    string

	// Cores for the engine workers; negative leaves them unpinned.
	StrategyCore  int
	ExecutionCore int
}

// DefaultConfig returns a Config with the standard output paths.
func DefaultConfig(csvPath string, initialBalance float64) Config {
	return Config{
		CSVPath:        csvPath,
		InitialBalance: initialBalance,
		TradesCSVPath:  "winter_trades.csv",
		ReportPath:     "backtest_report.html",
		GraphsPath:     "trade_result_graphs.html",
		StrategyCore:   -1,
		ExecutionCore:  -1,
	}
}

// EquityPoint is one observation of portfolio value, stamped with a
// monotonic sequence number so two replays of the same file compare
// point-for-point regardless of wall-clock resolution.
type EquityPoint struct {
	Seq         int64
	TimestampUS int64
	Equity      float64
	Symbol      string
	Side        string
}

// TradeRow is one row of the output trade CSV.
type TradeRow struct {
	TimestampUS int64
	Symbol      string
	Side        string
	Quantity    int32
	Price       float64
	Value       float64
	RealizedPnL float64
	ZScore      float64
}

// openLot tracks excursions for one symbol's open position, for MFE/MAE.
type openLot struct {
	quantity int32
	avgCost  float64
	mfe      float64
	mae      float64
}

// Driver replays a tick file through the engine: deterministically with a
// per-tick quiesce barrier (Run), or flat out through the parallel
// pipeline (RunParallel, the --trade mode).
type Driver struct {
	cfg        Config
	engine     *engine.Engine
	strategies []strategy.Strategy

	// mu guards the tracking state below; in deterministic mode the
	// quiesce barrier already serializes the producer and the fill
	// callback, in parallel mode the lock is what keeps them apart.
	mu       sync.Mutex
	analyzer *perf.Analyzer
	equity   []EquityPoint
	trades   []TradeRow

	zscores map[string]*zTracker
	lots    map[string]*openLot
	seq     int64

	// currentTS is the timestamp of the tick being replayed. Fills are
	// stamped with it rather than with the book's wall-clock stamp, so
	// two replays of the same file produce identical rows (replay determinism depends on it).
	currentTS int64
}

// New constructs a Driver over an already-assembled engine (portfolio
// funded, strategies added). The strategies slice is used only for the
// optional warmup pass.
func New(eng *engine.Engine, strategies []strategy.Strategy, cfg Config) *Driver {
	return &Driver{
		cfg:        cfg,
		engine:     eng,
		strategies: strategies,
		analyzer:   perf.NewAnalyzer(cfg.RiskFreeRate),
		zscores:    make(map[string]*zTracker),
		lots:       make(map[string]*openLot),
	}
}

// Equity returns the recorded equity curve.
func (d *Driver) Equity() []EquityPoint { return d.equity }

// Trades returns the recorded trade rows.
func (d *Driver) Trades() []TradeRow { return d.trades }

// Run loads the CSV, replays it through the engine with a quiesce barrier
// after every tick, and writes the trade CSV and both HTML reports. The
// returned metrics are computed from the per-fill equity curve.
func (d *Driver) Run() (perf.Metrics, error) {
	return d.run(false)
}

// RunParallel drives the same pipeline without per-tick barriers: ticks
// fan in as fast as the rings accept them and the run quiesces once at
// the end. Trade rows are stamped with the last pushed tick's timestamp,
// so unlike Run the output is timing-dependent.
func (d *Driver) RunParallel() (perf.Metrics, error) {
	return d.run(true)
}

func (d *Driver) run(parallel bool) (perf.Metrics, error) {
	ticks, err := LoadCSV(d.cfg.CSVPath)
	if err != nil {
		return perf.Metrics{}, err
	}
	if len(ticks) == 0 {
		return perf.Metrics{}, xerrors.Newf("replay: no usable ticks in %s", d.cfg.CSVPath)
	}
	logs.Infof("replay: loaded %d ticks from %s", len(ticks), d.cfg.CSVPath)

	if n := d.cfg.WarmupTicks; n > 0 {
		if n > len(ticks) {
			n = len(ticks)
		}
		for _, s := range d.strategies {
			if w, ok := s.(Warmer); ok {
				w.Warmup(ticks[:n])
			}
		}
		ticks = ticks[n:]
	}

	d.engine.SetFillCallback(d.onFill)
	d.analyzer.AddEquityPoint(d.cfg.InitialBalance)
	d.equity = append(d.equity, EquityPoint{Seq: d.nextSeq(), Equity: d.cfg.InitialBalance})

	d.engine.Start(d.cfg.StrategyCore, d.cfg.ExecutionCore)
	start := time.Now()
	for _, tick := range ticks {
		d.observeTickLocked(tick)
		d.engine.ProcessTick(tick)
		if !parallel {
			d.quiesce()
		}
	}
	if parallel {
		d.quiesce()
	}
	d.engine.Stop()
	logs.Infof("replay: processed %d ticks in %s, %d trades",
		len(ticks), time.Since(start).Round(time.Millisecond), len(d.trades))

	metrics := d.analyzer.Compute()
	if err := d.writeOutputs(metrics); err != nil {
		return metrics, err
	}
	return metrics, nil
}

// quiesce spins until the engine pipeline has fully drained the tick just
// pushed. This per-tick barrier is what makes two replays of the same
// file byte-identical (replay determinism depends on it).
func (d *Driver) quiesce() {
	for !d.engine.Quiesced() {
		time.Sleep(10 * time.Microsecond)
	}
}

// observeTickLocked updates the driver's own per-symbol z-score tracker
// and the open-lot excursions before the tick enters the pipeline.
func (d *Driver) observeTickLocked(tick model.Tick) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.currentTS = tick.TimestampUS
	z, ok := d.zscores[tick.Symbol]
	if !ok {
		z = newZTracker(20)
		d.zscores[tick.Symbol] = z
	}
	z.observe(tick.Price)

	if lot, ok := d.lots[tick.Symbol]; ok && lot.quantity > 0 {
		unrealized := (tick.Price - lot.avgCost) * float64(lot.quantity)
		if unrealized > lot.mfe {
			lot.mfe = unrealized
		}
		if -unrealized > lot.mae {
			lot.mae = -unrealized
		}
	}
}

// onFill runs synchronously on the execution worker; the lock keeps its
// tracking-state writes apart from the producer's in parallel mode.
func (d *Driver) onFill(order model.Order, trade model.Trade) {
	d.mu.Lock()
	defer d.mu.Unlock()

	zscore := 0.0
	if z, ok := d.zscores[order.Symbol]; ok {
		zscore = z.value()
	}

	row := TradeRow{
		TimestampUS: d.currentTS,
		Symbol:      order.Symbol,
		Side:        order.Side.String(),
		Quantity:    order.Quantity,
		Price:       order.Price,
		Value:       order.Price * float64(order.Quantity),
		ZScore:      zscore,
	}

	switch order.Side {
	case model.SideBuy:
		lot, ok := d.lots[order.Symbol]
		if !ok {
			lot = &openLot{}
			d.lots[order.Symbol] = lot
		}
		total := lot.avgCost*float64(lot.quantity) + order.Price*float64(order.Quantity)
		lot.quantity += order.Quantity
		lot.avgCost = total / float64(lot.quantity)

	case model.SideSell:
		row.RealizedPnL = trade.RealizedPnL
		if lot, ok := d.lots[order.Symbol]; ok {
			stat := perf.TradeStat{RealizedPnL: trade.RealizedPnL, MFE: lot.mfe, MAE: lot.mae}
			d.analyzer.AddTrade(stat)
			lot.quantity -= order.Quantity
			if lot.quantity <= 0 {
				delete(d.lots, order.Symbol)
			}
		} else {
			d.analyzer.AddTrade(perf.TradeStat{RealizedPnL: trade.RealizedPnL})
		}
	}
	d.trades = append(d.trades, row)

	equity := d.engine.Portfolio().TotalValue()
	d.analyzer.AddEquityPoint(equity)
	d.equity = append(d.equity, EquityPoint{
		Seq:         d.nextSeq(),
		TimestampUS: d.currentTS,
		Equity:      equity,
		Symbol:      order.Symbol,
		Side:        order.Side.String(),
	})
}

func (d *Driver) nextSeq() int64 {
	d.seq++
	return d.seq
}

func (d *Driver) writeOutputs(metrics perf.Metrics) error {
	finalBalance := d.cfg.InitialBalance
	if len(d.equity) > 0 {
		finalBalance = d.equity[len(d.equity)-1].Equity
	}
	if d.cfg.TradesCSVPath != "" {
		if err := WriteTradesCSV(d.cfg.TradesCSVPath, d.trades, d.cfg.InitialBalance, finalBalance); err != nil {
			return err
		}
	}
	if d.cfg.ReportPath != "" {
		if err := WriteBacktestReport(d.cfg.ReportPath, metrics, d.equity, d.cfg.InitialBalance); err != nil {
			return err
		}
	}
	if d.cfg.GraphsPath != "" {
		if err := WriteTradeGraphs(d.cfg.GraphsPath, d.equity, d.trades); err != nil {
			return err
		}
	}
	return nil
}

// zTracker is the driver's own rolling z-score view of each symbol, kept
// independently of any strategy so the trade CSV's Z-Score column does
// not depend on which strategies are loaded.
type zTracker struct {
	prices []float64
	window int
	sum    float64
	sumSq  float64
}

func newZTracker(window int) *zTracker {
	return &zTracker{prices: make([]float64, 0, window), window: window}
}

func (z *zTracker) observe(price float64) {
	z.prices = append(z.prices, price)
	z.sum += price
	z.sumSq += price * price
	if len(z.prices) > z.window {
		old := z.prices[0]
		z.prices = z.prices[1:]
		z.sum -= old
		z.sumSq -= old * old
	}
}

func (z *zTracker) value() float64 {
	n := len(z.prices)
	if n < z.window {
		return 0
	}
	mean := z.sum / float64(n)
	variance := z.sumSq/float64(n) - mean*mean
	sd := math.Sqrt(math.Max(0, variance))
	if sd < 1e-4 {
		return 0
	}
	return (z.prices[n-1] - mean) / sd
}
