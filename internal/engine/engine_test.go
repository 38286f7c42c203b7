package engine

import (
	"testing"
	"time"

	"winter/internal/model"
	"winter/internal/portfolio"
	"winter/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedStrategy returns a fixed signal kind for every tick it sees.
type scriptedStrategy struct {
	kind    model.SignalKind
	enabled bool
}

func (s *scriptedStrategy) ID() string                            { return "scripted" }
func (s *scriptedStrategy) Initialize() error                     { return nil }
func (s *scriptedStrategy) Configure(_ strategy.Config) error     { return nil }
func (s *scriptedStrategy) IsEnabled() bool                       { return s.enabled }
func (s *scriptedStrategy) Shutdown() error                       { return nil }
func (s *scriptedStrategy) ProcessTick(t model.Tick) []model.Signal {
	return []model.Signal{{Symbol: t.Symbol, Kind: s.kind, Strength: 1, Price: t.Price}}
}

// waitQuiesced polls the engine until the pipeline drains or the deadline
// passes.
func waitQuiesced(t *testing.T, e *Engine) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !e.Quiesced() {
		if time.Now().After(deadline) {
			t.Fatal("engine did not quiesce in time")
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// TestBasicBuyPath: one tick, one BUY signal, one fill sized at 10% of
// cash.
func TestBasicBuyPath(t *testing.T) {
	pf := portfolio.New(10_000)
	e := New(pf, Params{TickCapacity: 16, OrderCapacity: 16, BatchSize: 4})
	e.AddStrategy(&scriptedStrategy{kind: model.SignalBuy, enabled: true})

	fills := 0
	e.SetFillCallback(func(order model.Order, trade model.Trade) {
		fills++
		assert.Equal(t, "AAPL", order.Symbol)
		assert.Equal(t, model.SideBuy, order.Side)
		assert.EqualValues(t, 10, order.Quantity)
	})

	e.Start(-1, -1)
	e.ProcessTick(model.Tick{Symbol: "AAPL", Price: 100, Volume: 1})
	waitQuiesced(t, e)
	e.Stop()

	require.Equal(t, 1, fills)
	require.EqualValues(t, 10, pf.GetPosition("AAPL"))
	require.Equal(t, 9_000.0, pf.Cash())
	require.EqualValues(t, 1, pf.TradeCount())
	require.Len(t, pf.Trades(), 1)
	require.Equal(t, model.SideBuy, pf.Trades()[0].Side)
}

// TestSellToFlat buys on the first tick, then sells the whole position at
// a higher price.
func TestSellToFlat(t *testing.T) {
	pf := portfolio.New(10_000)
	e := New(pf, Params{TickCapacity: 16, OrderCapacity: 16, BatchSize: 4})
	buy := &scriptedStrategy{kind: model.SignalBuy, enabled: true}
	e.AddStrategy(buy)

	e.Start(-1, -1)
	e.ProcessTick(model.Tick{Symbol: "AAPL", Price: 100, Volume: 1})
	waitQuiesced(t, e)

	buy.kind = model.SignalSell
	e.ProcessTick(model.Tick{Symbol: "AAPL", Price: 110, Volume: 1})
	waitQuiesced(t, e)
	e.Stop()

	require.Zero(t, pf.GetPosition("AAPL"))
	_, present := pf.Positions()["AAPL"]
	require.False(t, present)
	require.Equal(t, 10_100.0, pf.Cash())
	require.EqualValues(t, 2, pf.TradeCount())

	sell := pf.Trades()[1]
	require.Equal(t, model.SideSell, sell.Side)
	require.EqualValues(t, 10, sell.Quantity)
	require.Equal(t, 110.0, sell.Price)
	require.Equal(t, 100.0, sell.RealizedPnL)
}

// TestOversellReconciliation: an EXIT-sized order larger than the held
// quantity fills partially for what is held.
func TestOversellReconciliation(t *testing.T) {
	pf := portfolio.New(0)
	pf.AddPosition("AAPL", 5, 100, 1)
	pf.ReduceCash(500) // cancel out the synthetic lot's trade cost

	e := New(pf, Params{TickCapacity: 16, OrderCapacity: 16, BatchSize: 4})
	e.Start(-1, -1)

	var filledQty int32
	e.SetFillCallback(func(order model.Order, trade model.Trade) {
		filledQty = order.Quantity
	})

	// Inject an oversized SELL directly, as the engine would after an EXIT
	// signal raced a fill on another venue.
	require.NoError(t, e.orderRing.Push(model.Order{
		Symbol: "AAPL", Side: model.SideSell, Type: model.OrderTypeMarket,
		Quantity: 10, Price: 120,
	}))
	waitQuiesced(t, e)
	e.Stop()

	require.EqualValues(t, 5, filledQty, "order must be mutated down to the held quantity")
	require.Zero(t, pf.GetPosition("AAPL"))
	require.Equal(t, 100.0, pf.Cash()) // -500 basis adjustment + 5*120
	require.EqualValues(t, 1, e.Metrics().Snapshot().OversellCount)
}

// TestRingOverflow: with capacity 4 and no workers running, the fifth
// push is rejected and counted.
func TestRingOverflow(t *testing.T) {
	pf := portfolio.New(1_000)
	e := New(pf, Params{TickCapacity: 4, OrderCapacity: 4, BatchSize: 4})

	for i := 0; i < 5; i++ {
		e.ProcessTick(model.Tick{Symbol: "AAPL", Price: 100, Volume: 1})
	}
	require.EqualValues(t, 1, e.TickDrops())
	require.EqualValues(t, 1, e.Metrics().Snapshot().TickDrops)
}

// TestNeutralSignalsProduceNothing: a NEUTRAL signal produces no order
// and no state change.
func TestNeutralSignalsProduceNothing(t *testing.T) {
	pf := portfolio.New(10_000)
	e := New(pf, Params{TickCapacity: 16, OrderCapacity: 16, BatchSize: 4})
	e.AddStrategy(&scriptedStrategy{kind: model.SignalNeutral, enabled: true})

	fills := 0
	e.SetFillCallback(func(model.Order, model.Trade) { fills++ })

	e.Start(-1, -1)
	for i := 0; i < 10; i++ {
		e.ProcessTick(model.Tick{Symbol: "AAPL", Price: 100, Volume: 1})
	}
	waitQuiesced(t, e)
	e.Stop()

	require.Zero(t, fills)
	require.Equal(t, 10_000.0, pf.Cash())
	require.Empty(t, pf.Trades())
}

// TestDisabledStrategySkipped: the engine must not dispatch ticks to a
// disabled strategy.
func TestDisabledStrategySkipped(t *testing.T) {
	pf := portfolio.New(10_000)
	e := New(pf, Params{TickCapacity: 16, OrderCapacity: 16, BatchSize: 4})
	e.AddStrategy(&scriptedStrategy{kind: model.SignalBuy, enabled: false})

	e.Start(-1, -1)
	e.ProcessTick(model.Tick{Symbol: "AAPL", Price: 100, Volume: 1})
	waitQuiesced(t, e)
	e.Stop()

	require.Empty(t, pf.Trades())
}

// TestBuySkippedWhenCashInsufficient: a BUY that cannot be covered is
// silently skipped at the sizing layer.
func TestBuySkippedWhenCashInsufficient(t *testing.T) {
	pf := portfolio.New(50) // 10% budget sizes to qty 0 at price 100
	e := New(pf, Params{TickCapacity: 16, OrderCapacity: 16, BatchSize: 4})
	e.AddStrategy(&scriptedStrategy{kind: model.SignalBuy, enabled: true})

	e.Start(-1, -1)
	e.ProcessTick(model.Tick{Symbol: "AAPL", Price: 100, Volume: 1})
	waitQuiesced(t, e)
	e.Stop()

	require.Empty(t, pf.Trades())
	require.Equal(t, 50.0, pf.Cash())
}

// TestExitFlatPositionSkipped: EXIT against a flat book produces no order.
func TestExitFlatPositionSkipped(t *testing.T) {
	pf := portfolio.New(10_000)
	e := New(pf, Params{TickCapacity: 16, OrderCapacity: 16, BatchSize: 4})
	e.AddStrategy(&scriptedStrategy{kind: model.SignalExit, enabled: true})

	e.Start(-1, -1)
	e.ProcessTick(model.Tick{Symbol: "AAPL", Price: 100, Volume: 1})
	waitQuiesced(t, e)
	e.Stop()

	require.Empty(t, pf.Trades())
}
