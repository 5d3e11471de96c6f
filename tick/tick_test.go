package tick

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiom-trade/exengine/command"
	"github.com/axiom-trade/exengine/identifiers"
)

func testSecurity() identifiers.Security {
	sec, _ := identifiers.NewSecurity("BTC-USD", "BINANCE", identifiers.AssetClassCrypto, identifiers.AssetTypeSpot)
	return sec
}

func TestQuoteTickRoundTrip(t *testing.T) {
	sec := testSecurity()
	q := QuoteTick{
		Sec:       sec,
		BidPrice:  decimal.NewFromFloat(100.5),
		AskPrice:  decimal.NewFromFloat(100.7),
		BidSize:   decimal.NewFromFloat(2.25),
		AskSize:   decimal.NewFromFloat(3.1),
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	row := q.Serialize()
	assert.Len(t, strings.Split(row, ","), 5)

	parsed, err := ParseQuoteTick(row, sec)
	require.NoError(t, err)
	assert.True(t, q.BidPrice.Equal(parsed.BidPrice))
	assert.True(t, q.AskPrice.Equal(parsed.AskPrice))
	assert.True(t, q.BidSize.Equal(parsed.BidSize))
	assert.True(t, q.AskSize.Equal(parsed.AskSize))
	assert.Equal(t, sec, parsed.Sec)
	assert.True(t, q.Timestamp.Equal(parsed.Timestamp))
}

func TestTradeTickRoundTrip(t *testing.T) {
	sec := testSecurity()
	tt := TradeTick{
		Sec:          sec,
		Price:        decimal.NewFromFloat(99.99),
		Size:         decimal.NewFromFloat(1.5),
		Side:         command.Sell,
		TradeMatchID: identifiers.TradeMatchID("m-1"),
		Timestamp:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	row := tt.Serialize()
	assert.Len(t, strings.Split(row, ","), 5)

	parsed, err := ParseTradeTick(row, sec)
	require.NoError(t, err)
	assert.True(t, tt.Price.Equal(parsed.Price))
	assert.True(t, tt.Size.Equal(parsed.Size))
	assert.Equal(t, command.Sell, parsed.Side)
	assert.Equal(t, tt.TradeMatchID, parsed.TradeMatchID)
	assert.True(t, tt.Timestamp.Equal(parsed.Timestamp))
}

func TestParseQuoteTickRejectsMalformedRow(t *testing.T) {
	_, err := ParseQuoteTick("100,1", testSecurity())
	require.Error(t, err)

	_, err = ParseQuoteTick("100,101,1,1,1,1", testSecurity())
	require.Error(t, err)
}

func TestParseTradeTickRejectsUnknownSide(t *testing.T) {
	_, err := ParseTradeTick("100,1,HOLD,m-1,1700000000000", testSecurity())
	require.Error(t, err)
}

func TestQuoteTickMidAndSpread(t *testing.T) {
	q := QuoteTick{BidPrice: decimal.NewFromInt(100), AskPrice: decimal.NewFromInt(102)}
	assert.True(t, q.Mid().Equal(decimal.NewFromInt(101)))
	assert.True(t, q.Spread().Equal(decimal.NewFromInt(2)))

	empty := QuoteTick{}
	assert.True(t, empty.Mid().IsZero())
	assert.True(t, empty.Spread().IsZero())
}

