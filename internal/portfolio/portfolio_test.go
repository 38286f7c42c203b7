package portfolio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddPositionRecordsBuyTrade(t *testing.T) {
	p := New(10_000)
	p.ReduceCash(1_000) // pay for 10 @ 100
	p.AddPosition("AAPL", 10, 100, 1)

	require.Equal(t, int32(10), p.GetPosition("AAPL"))
	require.Equal(t, 9_000.0, p.Cash())
	require.EqualValues(t, 1, p.TradeCount())
	require.Len(t, p.Trades(), 1)

	trade := p.Trades()[0]
	require.Equal(t, "AAPL", trade.Symbol)
	require.EqualValues(t, 10, trade.Quantity)
	require.Equal(t, 100.0, trade.Price)
	require.Equal(t, 0.0, trade.RealizedPnL)
}

// TestSellToFlat sells the whole position and expects the symbol gone
// from the book.
func TestSellToFlat(t *testing.T) {
	p := New(10_000)
	p.ReduceCash(1_000)
	p.AddPosition("AAPL", 10, 100, 1)

	p.ReduceCash(-1_100) // proceeds credited back via AddCash-equivalent
	p.ReducePosition("AAPL", 10, 110, 2)

	require.Equal(t, int32(0), p.GetPosition("AAPL"))
	_, stillPresent := p.Positions()["AAPL"]
	require.False(t, stillPresent)
	require.Equal(t, 10_100.0, p.Cash())
	require.EqualValues(t, 2, p.TradeCount())

	sell := p.Trades()[1]
	require.Equal(t, 100.0, sell.RealizedPnL)
}

func TestAverageCostPreservedOnPartialSell(t *testing.T) {
	p := New(100_000)
	p.AddPosition("MSFT", 20, 50, 1)
	require.Equal(t, 50.0, p.AverageCost("MSFT"))

	p.ReducePosition("MSFT", 5, 60, 2)
	require.Equal(t, int32(15), p.GetPosition("MSFT"))
	require.Equal(t, 50.0, p.AverageCost("MSFT"), "average cost of remaining shares must not change")
}

// TestOversellClampedToHeld: the book clamps an oversell request down to
// the held quantity rather than erroring.
func TestOversellClampedToHeld(t *testing.T) {
	p := New(0)
	p.AddPosition("AAPL", 5, 0, 1) // position seeded directly, cost irrelevant here

	p.ReducePosition("AAPL", 10, 20, 2)

	require.Equal(t, int32(0), p.GetPosition("AAPL"))
	_, present := p.Positions()["AAPL"]
	require.False(t, present)

	sell := p.Trades()[len(p.Trades())-1]
	require.EqualValues(t, 5, sell.Quantity, "oversell must be reconciled to the held quantity")
}

func TestTradeCountEqualsTradeLogLength(t *testing.T) {
	p := New(10_000)
	p.AddPosition("AAPL", 10, 100, 1)
	p.AddPosition("MSFT", 5, 200, 2)
	p.ReducePosition("AAPL", 10, 110, 3)

	require.EqualValues(t, len(p.Trades()), p.TradeCount())
}

func TestPositionRemovedWhenQuantityReachesZero(t *testing.T) {
	p := New(10_000)
	p.AddPosition("AAPL", 10, 100, 1)
	p.ReducePosition("AAPL", 10, 100, 2)

	_, ok := p.Positions()["AAPL"]
	require.False(t, ok, "invariant: quantity == 0 implies symbol absent from positions map")
}

func TestReduceCashAllowsNegativeWithWarning(t *testing.T) {
	p := New(10)
	p.ReduceCash(100) // engine is responsible for preventing this; book still applies it
	require.Equal(t, -90.0, p.Cash())
}

func TestTotalValueIsMarkToCost(t *testing.T) {
	p := New(1_000)
	p.AddPosition("AAPL", 10, 50, 1)
	require.Equal(t, 1_500.0, p.TotalValue())
}
