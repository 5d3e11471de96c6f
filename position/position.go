// Package position tracks a strategy's net exposure per Security, derived
// purely from fill events the portfolio projection forwards to it. It never
// talks to a client or database directly.
//
// Grounded on core/engine.go's in-memory position map and risk/manager.go's
// realized/unrealized PnL bookkeeping from the teacher repo, keyed here by
// (StrategyID, Security) instead of symbol alone, per spec.md §3.
package position

import (
	"github.com/shopspring/decimal"

	"github.com/axiom-trade/exengine/command"
	"github.com/axiom-trade/exengine/currency"
	"github.com/axiom-trade/exengine/event"
	"github.com/axiom-trade/exengine/identifiers"
	"github.com/axiom-trade/exengine/money"
)

// Side is the net direction of a position.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
	Flat  Side = "FLAT"
)

// Key identifies a position uniquely.
type Key struct {
	StrategyID identifiers.StrategyID
	Sec        identifiers.Security
}

// Position is one strategy's net exposure in one Security.
type Position struct {
	Key Key

	Side     Side
	Quantity decimal.Decimal // always non-negative; Side carries direction

	AvgEntryPrice money.Price
	RealizedPnL   money.Money
	UnrealizedPnL money.Money

	LastFillAt int64 // unix nanos; ApplyFill does not set it, so it stays zero unless a caller does
}

// New returns a flat position for key.
func New(key Key, quoteCurrency currency.Currency) *Position {
	return &Position{
		Key:           key,
		Side:          Flat,
		Quantity:      decimal.Zero,
		AvgEntryPrice: money.NewPrice(decimal.Zero, 8),
		RealizedPnL:   money.NewMoney(decimal.Zero, quoteCurrency),
		UnrealizedPnL: money.NewMoney(decimal.Zero, quoteCurrency),
	}
}

// ApplyFill folds a fill into the position, flipping side and resetting
// the average entry price when a fill crosses through flat (spec.md §3:
// "a side flip closes the existing position and opens a new one").
func (p *Position) ApplyFill(side command.Side, f event.Fill) {
	signedQty := f.Quantity.Decimal
	if side == command.Sell {
		signedQty = signedQty.Neg()
	}

	current := p.signedQuantity()
	next := current.Add(signedQty)

	switch {
	case current.IsZero():
		p.openFresh(next, f.Price)
	case sameSign(current, next) || next.IsZero():
		p.reduceOrExtend(current, next, signedQty, f.Price)
	default:
		// crossed through flat: realize the close of `current`, then open
		// the remainder fresh at the fill price.
		p.realizeClose(current.Abs(), f.Price)
		p.openFresh(next, f.Price)
	}
}

func (p *Position) signedQuantity() decimal.Decimal {
	switch p.Side {
	case Long:
		return p.Quantity
	case Short:
		return p.Quantity.Neg()
	default:
		return decimal.Zero
	}
}

func (p *Position) openFresh(signedQty decimal.Decimal, px money.Price) {
	if signedQty.IsZero() {
		p.Side = Flat
		p.Quantity = decimal.Zero
		return
	}
	if signedQty.IsPositive() {
		p.Side = Long
	} else {
		p.Side = Short
	}
	p.Quantity = signedQty.Abs()
	p.AvgEntryPrice = px
}

func (p *Position) reduceOrExtend(current, next, signedQty decimal.Decimal, px money.Price) {
	if next.IsZero() {
		p.realizeClose(current.Abs(), px)
		p.Side = Flat
		p.Quantity = decimal.Zero
		return
	}
	extending := sameSign(current, signedQty)
	if extending {
		p.AvgEntryPrice = money.WeightedAverage(
			p.AvgEntryPrice,
			money.NewQuantity(current.Abs(), p.AvgEntryPrice.Precision),
			px,
			money.NewQuantity(signedQty.Abs(), p.AvgEntryPrice.Precision),
		)
	} else {
		closedQty := decimal.Min(current.Abs(), signedQty.Abs())
		p.realizeClose(closedQty, px)
	}
	p.Quantity = next.Abs()
	if next.IsPositive() {
		p.Side = Long
	} else {
		p.Side = Short
	}
}

// realizeClose books PnL for closing qty units at px against the current
// average entry price.
func (p *Position) realizeClose(qty decimal.Decimal, px money.Price) {
	var pnl decimal.Decimal
	if p.Side == Long {
		pnl = px.Decimal.Sub(p.AvgEntryPrice.Decimal).Mul(qty)
	} else {
		pnl = p.AvgEntryPrice.Decimal.Sub(px.Decimal).Mul(qty)
	}
	p.RealizedPnL = p.RealizedPnL.Add(money.NewMoney(pnl, p.RealizedPnL.Currency))
}

// MarkToMarket recomputes UnrealizedPnL against the supplied mark price.
func (p *Position) MarkToMarket(mark money.Price) {
	if p.Side == Flat || p.Quantity.IsZero() {
		p.UnrealizedPnL = money.NewMoney(decimal.Zero, p.UnrealizedPnL.Currency)
		return
	}
	var pnl decimal.Decimal
	if p.Side == Long {
		pnl = mark.Decimal.Sub(p.AvgEntryPrice.Decimal).Mul(p.Quantity)
	} else {
		pnl = p.AvgEntryPrice.Decimal.Sub(mark.Decimal).Mul(p.Quantity)
	}
	p.UnrealizedPnL = money.NewMoney(pnl, p.UnrealizedPnL.Currency)
}

func sameSign(a, b decimal.Decimal) bool {
	return a.Sign() == b.Sign()
}
