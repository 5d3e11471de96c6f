// Package instrument describes a tradable contract for a Security. This is
// the value object spec.md §3 names; the engine never infers contract
// shape from wire data, it is supplied by an InstrumentProvider
// (see the instrumentprovider package) and validated once at construction.
package instrument

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/axiom-trade/exengine/currency"
	"github.com/axiom-trade/exengine/identifiers"
)

// Instrument is the immutable contract specification for a Security.
type Instrument struct {
	Security identifiers.Security

	BaseCurrency       currency.Currency
	QuoteCurrency      currency.Currency
	SettlementCurrency currency.Currency

	IsInverse bool // quantity expressed in quote currency
	IsQuanto  bool // settlement currency differs from both base and quote

	PricePrecision uint8
	SizePrecision  uint8
	CostPrecision  uint8

	TickSize   decimal.Decimal
	Multiplier decimal.Decimal
	Leverage   decimal.Decimal
	LotSize    decimal.Decimal

	MinQuantity *decimal.Decimal
	MaxQuantity *decimal.Decimal
	MinNotional *decimal.Decimal
	MaxNotional *decimal.Decimal
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal

	InitialMarginRate    decimal.Decimal
	MaintenanceMarginRate decimal.Decimal
	MakerFeeRate         decimal.Decimal
	TakerFeeRate         decimal.Decimal

	FundingInterval time.Duration
	InitializedAt   time.Time
}

// New validates and constructs an Instrument, enforcing the invariants
// from spec.md §3.
func New(i Instrument) (*Instrument, error) {
	wantQuanto := i.SettlementCurrency != i.BaseCurrency && i.SettlementCurrency != i.QuoteCurrency
	if i.IsQuanto != wantQuanto {
		return nil, fmt.Errorf("instrument %s: is_quanto=%v inconsistent with settlement currency %s (base=%s quote=%s)",
			i.Security, i.IsQuanto, i.SettlementCurrency, i.BaseCurrency, i.QuoteCurrency)
	}
	if i.MinQuantity != nil && i.MaxQuantity != nil && i.MinQuantity.GreaterThan(*i.MaxQuantity) {
		return nil, fmt.Errorf("instrument %s: min_quantity > max_quantity", i.Security)
	}
	for name, rate := range map[string]decimal.Decimal{
		"maker_fee_rate":          i.MakerFeeRate,
		"taker_fee_rate":          i.TakerFeeRate,
		"initial_margin_rate":     i.InitialMarginRate,
		"maintenance_margin_rate": i.MaintenanceMarginRate,
	} {
		if rate.IsNegative() {
			return nil, fmt.Errorf("instrument %s: %s must be non-negative, got %s", i.Security, name, rate)
		}
	}
	if i.InitializedAt.IsZero() {
		i.InitializedAt = time.Now()
	}
	inst := i
	return &inst, nil
}

// NotionalValue returns price*size*multiplier, the quantity used for
// margin and bound checks.
func (i *Instrument) NotionalValue(price, size decimal.Decimal) decimal.Decimal {
	mult := i.Multiplier
	if mult.IsZero() {
		mult = decimal.NewFromInt(1)
	}
	return price.Mul(size).Mul(mult)
}
