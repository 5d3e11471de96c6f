// Package money wraps github.com/shopspring/decimal into the three
// fixed-precision value types the engine passes around: Price, Quantity,
// and Money. None of them are ever represented as float64 — spec §9 is
// explicit that value accounting stays in exact decimals and floats are
// for serialization hints and logging only.
//
// Grounded on execution/executor.go's Order/Position fields, which already
// carried decimal.Decimal throughout; this package just gives those values
// a name and a precision instead of passing bare decimal.Decimal around.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/axiom-trade/exengine/currency"
)

// Price is a fixed-precision trade price.
type Price struct {
	decimal.Decimal
	Precision uint8
}

// NewPrice rounds v to precision and returns a Price.
func NewPrice(v decimal.Decimal, precision uint8) Price {
	return Price{Decimal: v.Round(int32(precision)), Precision: precision}
}

// ParsePrice parses a decimal string at the given precision.
func ParsePrice(s string, precision uint8) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Price{}, fmt.Errorf("money: invalid price %q: %w", s, err)
	}
	return NewPrice(d, precision), nil
}

// Quantity is a fixed-precision order/fill size.
type Quantity struct {
	decimal.Decimal
	Precision uint8
}

// NewQuantity rounds v to precision and returns a Quantity.
func NewQuantity(v decimal.Decimal, precision uint8) Quantity {
	return Quantity{Decimal: v.Round(int32(precision)), Precision: precision}
}

// ParseQuantity parses a decimal string at the given precision.
func ParseQuantity(s string, precision uint8) (Quantity, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Quantity{}, fmt.Errorf("money: invalid quantity %q: %w", s, err)
	}
	return NewQuantity(d, precision), nil
}

// IsZero reports whether the quantity is exactly zero.
func (q Quantity) IsZero() bool { return q.Decimal.IsZero() }

// Money is an amount denominated in a specific Currency.
type Money struct {
	decimal.Decimal
	Currency currency.Currency
}

// NewMoney rounds v to the currency's precision.
func NewMoney(v decimal.Decimal, cur currency.Currency) Money {
	return Money{Decimal: v.Round(int32(cur.Precision)), Currency: cur}
}

// Add returns a+b; panics if currencies differ, matching the teacher's
// assumption that Money arithmetic never crosses currencies silently.
func (m Money) Add(o Money) Money {
	if m.Currency != o.Currency {
		panic(fmt.Sprintf("money: currency mismatch %s vs %s", m.Currency, o.Currency))
	}
	return NewMoney(m.Decimal.Add(o.Decimal), m.Currency)
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Decimal.StringFixed(int32(m.Currency.Precision)), m.Currency.Code)
}

// WeightedAverage computes the quantity-weighted mean price across fills,
// used by order.Order's avg-price invariant (spec §3/§4.2):
// new_avg = (old_avg*old_cum + fill_px*fill_qty) / (old_cum+fill_qty)
func WeightedAverage(oldAvg Price, oldCum Quantity, fillPx Price, fillQty Quantity) Price {
	newCum := oldCum.Decimal.Add(fillQty.Decimal)
	if newCum.IsZero() {
		return oldAvg
	}
	if oldCum.IsZero() {
		return fillPx
	}
	numerator := oldAvg.Decimal.Mul(oldCum.Decimal).Add(fillPx.Decimal.Mul(fillQty.Decimal))
	return NewPrice(numerator.Div(newCum), oldAvg.Precision)
}
