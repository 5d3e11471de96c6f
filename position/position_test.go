package position

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiom-trade/exengine/command"
	"github.com/axiom-trade/exengine/currency"
	"github.com/axiom-trade/exengine/event"
	"github.com/axiom-trade/exengine/identifiers"
	"github.com/axiom-trade/exengine/money"
)

func testKey(t *testing.T) Key {
	sec, err := identifiers.NewSecurity("BTC-USD", "BINANCE", identifiers.AssetClassCrypto, identifiers.AssetTypeSpot)
	require.NoError(t, err)
	return Key{StrategyID: identifiers.StrategyID("momentum-1"), Sec: sec}
}

func fill(px, qty float64) event.Fill {
	return event.Fill{
		Price:    money.NewPrice(decimal.NewFromFloat(px), 2),
		Quantity: money.NewQuantity(decimal.NewFromFloat(qty), 8),
	}
}

func TestPositionOpenFreshFromFlat(t *testing.T) {
	p := New(testKey(t), currency.USD)
	p.ApplyFill(command.Buy, fill(100, 2))

	assert.Equal(t, Long, p.Side)
	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(2)))
	assert.True(t, p.AvgEntryPrice.Decimal.Equal(decimal.NewFromInt(100)))
}

func TestPositionExtendRecomputesAverage(t *testing.T) {
	p := New(testKey(t), currency.USD)
	p.ApplyFill(command.Buy, fill(100, 2))
	p.ApplyFill(command.Buy, fill(110, 2))

	assert.Equal(t, Long, p.Side)
	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(4)))
	assert.True(t, p.AvgEntryPrice.Decimal.Equal(decimal.NewFromInt(105)), "expected weighted average 105, got %s", p.AvgEntryPrice.Decimal)
}

func TestPositionReduceBooksRealizedPnL(t *testing.T) {
	p := New(testKey(t), currency.USD)
	p.ApplyFill(command.Buy, fill(100, 4))
	p.ApplyFill(command.Sell, fill(110, 2))

	assert.Equal(t, Long, p.Side)
	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(2)))
	assert.True(t, p.RealizedPnL.Decimal.Equal(decimal.NewFromInt(20)), "expected +20 realized pnl, got %s", p.RealizedPnL.Decimal)
}

func TestPositionCloseThroughFlat(t *testing.T) {
	p := New(testKey(t), currency.USD)
	p.ApplyFill(command.Buy, fill(100, 2))
	p.ApplyFill(command.Sell, fill(100, 2))

	assert.Equal(t, Flat, p.Side)
	assert.True(t, p.Quantity.IsZero())
}

func TestPositionSideFlipOpensNewPosition(t *testing.T) {
	p := New(testKey(t), currency.USD)
	p.ApplyFill(command.Buy, fill(100, 2))
	p.ApplyFill(command.Sell, fill(110, 5))

	assert.Equal(t, Short, p.Side)
	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(3)), "expected 3 remaining short, got %s", p.Quantity)
	assert.True(t, p.AvgEntryPrice.Decimal.Equal(decimal.NewFromInt(110)))
	assert.True(t, p.RealizedPnL.Decimal.Equal(decimal.NewFromInt(20)), "expected +20 from closing the long leg, got %s", p.RealizedPnL.Decimal)
}

func TestPositionMarkToMarket(t *testing.T) {
	p := New(testKey(t), currency.USD)
	p.ApplyFill(command.Buy, fill(100, 2))
	p.MarkToMarket(money.NewPrice(decimal.NewFromInt(105), 2))

	assert.True(t, p.UnrealizedPnL.Decimal.Equal(decimal.NewFromInt(10)))

	p2 := New(testKey(t), currency.USD)
	p2.MarkToMarket(money.NewPrice(decimal.NewFromInt(105), 2))
	assert.True(t, p2.UnrealizedPnL.Decimal.IsZero())
}
