// Package portfolio implements the book/portfolio state machine:
// cash, positions, and an append-only trade log with average-cost
// accounting. It is the sole source of truth for cash and position state;
// only the execution worker mutates it.
//
// There is one mutation path per fill: cash moves, the position map
// updates, and a trade row is appended with its realized P&L. The engine
// debits cash before the position update on a buy and credits it after
// the position update on a sell.
package portfolio

import (
	"winter/internal/model"
	"winter/internal/xerrors"

	"github.com/yanun0323/logs"
)

// Portfolio holds cash, open positions keyed by symbol, and the trade log.
// It is not safe for concurrent use by multiple writers — the engine
// guarantees a single mutator (the execution worker).
type Portfolio struct {
	cash       float64
	positions  map[string]model.Position
	trades     []model.Trade
	tradeCount int32
}

// New constructs a Portfolio with the given starting cash.
func New(initialCash float64) *Portfolio {
	return &Portfolio{
		cash:      initialCash,
		positions: make(map[string]model.Position),
	}
}

// Cash returns the current cash balance.
func (p *Portfolio) Cash() float64 { return p.cash }

// SetCash overwrites the cash balance directly.
func (p *Portfolio) SetCash(x float64) { p.cash = x }

// AddCash credits the cash balance.
func (p *Portfolio) AddCash(x float64) { p.cash += x }

// ReduceCash debits the cash balance. It warns but still applies the
// debit when cash would go negative — the caller (the engine) is responsible for
// preventing that by gating buy orders against available cash.
func (p *Portfolio) ReduceCash(x float64) {
	if p.cash-x < 0 {
		logs.Infof("portfolio: reduce_cash would drive cash negative, cash=%.2f reduce=%.2f", p.cash, x)
	}
	p.cash -= x
}

// GetPosition returns the held quantity for symbol, 0 if flat.
func (p *Portfolio) GetPosition(symbol string) int32 {
	return p.positions[symbol].Quantity
}

// GetPositionCost returns the total cost basis for symbol, 0 if flat.
func (p *Portfolio) GetPositionCost(symbol string) float64 {
	return p.positions[symbol].Cost
}

// AverageCost returns cost/quantity for symbol, 0 if flat.
func (p *Portfolio) AverageCost(symbol string) float64 {
	return p.positions[symbol].AverageCost()
}

// AddPosition adds a new lot of qty shares at the given per-share cost,
// recording a BUY trade. The trade's price is the order price the engine
// passed in, not a reconstructed average.
func (p *Portfolio) AddPosition(symbol string, qty int32, costPerShare float64, timestampUS int64) {
	if qty <= 0 {
		return
	}
	pos := p.positions[symbol]
	pos.Quantity += qty
	pos.Cost += costPerShare * float64(qty)
	p.positions[symbol] = pos

	p.recordTrade(model.Trade{
		Symbol:      symbol,
		Side:        model.SideBuy,
		Quantity:    qty,
		Price:       costPerShare,
		Cost:        costPerShare * float64(qty),
		RealizedPnL: 0,
		TimestampUS: timestampUS,
	})
}

// ReducePosition sells qty shares from symbol's position at sellPrice,
// realizing P&L against the current average cost and preserving the
// average cost of whatever remains. The caller must not call this with
// qty greater than the held quantity — oversell reconciliation is the
// engine's responsibility, not the book's.
func (p *Portfolio) ReducePosition(symbol string, qty int32, sellPrice float64, timestampUS int64) {
	if qty <= 0 {
		return
	}
	pos, ok := p.positions[symbol]
	if !ok || qty > pos.Quantity {
		logs.Infof("portfolio: reduce_position called beyond held quantity, symbol=%s held=%d requested=%d", symbol, pos.Quantity, qty)
		if qty > pos.Quantity {
			qty = pos.Quantity
		}
		if qty <= 0 {
			return
		}
	}

	avgCost := pos.AverageCost()
	costBasis := avgCost * float64(qty)
	proceeds := sellPrice * float64(qty)
	realized := proceeds - costBasis

	pos.Quantity -= qty
	pos.Cost -= costBasis
	if pos.Quantity == 0 {
		delete(p.positions, symbol)
	} else {
		p.positions[symbol] = pos
	}

	p.recordTrade(model.Trade{
		Symbol:      symbol,
		Side:        model.SideSell,
		Quantity:    qty,
		Price:       sellPrice,
		Cost:        proceeds,
		RealizedPnL: realized,
		TimestampUS: timestampUS,
	})
}

func (p *Portfolio) recordTrade(t model.Trade) {
	p.trades = append(p.trades, t)
	p.tradeCount++
}

// TradeCount returns the number of recorded trades. Invariant:
// always equal to len(Trades()).
func (p *Portfolio) TradeCount() int32 { return p.tradeCount }

// Trades returns the append-only trade log in recording order. The
// returned slice is owned by the caller not to mutate; it aliases the
// portfolio's internal storage.
func (p *Portfolio) Trades() []model.Trade { return p.trades }

// TotalValue returns cash plus the sum of position cost bases
// (mark-to-cost). Mark-to-market is the caller's responsibility once
// current prices are known.
func (p *Portfolio) TotalValue() float64 {
	total := p.cash
	for _, pos := range p.positions {
		total += pos.Cost
	}
	return total
}

// MarkToMarket returns cash plus the sum of position quantities valued at
// the caller-supplied current prices, falling back to cost basis for any
// symbol missing from prices.
func (p *Portfolio) MarkToMarket(prices map[string]float64) float64 {
	total := p.cash
	for symbol, pos := range p.positions {
		if price, ok := prices[symbol]; ok {
			total += price * float64(pos.Quantity)
			continue
		}
		total += pos.Cost
	}
	return total
}

// Positions returns a snapshot copy of the current positions map.
func (p *Portfolio) Positions() map[string]model.Position {
	out := make(map[string]model.Position, len(p.positions))
	for k, v := range p.positions {
		out[k] = v
	}
	return out
}

// ErrNoPosition is returned by helpers that require an existing position.
var ErrNoPosition = xerrors.New("portfolio: no open position for symbol")
