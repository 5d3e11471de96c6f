package account

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/axiom-trade/exengine/currency"
	"github.com/axiom-trade/exengine/event"
	"github.com/axiom-trade/exengine/identifiers"
	"github.com/axiom-trade/exengine/money"
)

func TestAccountApplyFoldsState(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e := event.AccountState{
		Header:     event.NewHeader("", identifiers.Venue("BINANCE"), ts),
		Balance:    money.NewMoney(decimal.NewFromInt(1000), currency.USD),
		UsedMargin: money.NewMoney(decimal.NewFromInt(200), currency.USD),
		FreeMargin: money.NewMoney(decimal.NewFromInt(800), currency.USD),
		MarginCall: true,
	}

	var a Account
	a.Apply(e)

	assert.Equal(t, identifiers.Venue("BINANCE"), a.Venue)
	assert.True(t, a.Balance.Decimal.Equal(decimal.NewFromInt(1000)))
	assert.True(t, a.UsedMargin.Decimal.Equal(decimal.NewFromInt(200)))
	assert.True(t, a.FreeMargin.Decimal.Equal(decimal.NewFromInt(800)))
	assert.True(t, a.MarginCall)
	assert.True(t, ts.Equal(a.UpdatedAt))
}

func TestAccountApplyOverwritesPreviousState(t *testing.T) {
	var a Account
	a.Apply(event.AccountState{
		Header:     event.NewHeader("", identifiers.Venue("BINANCE"), time.Now().Add(-time.Hour)),
		MarginCall: true,
	})
	a.Apply(event.AccountState{
		Header:     event.NewHeader("", identifiers.Venue("BINANCE"), time.Now()),
		MarginCall: false,
	})
	assert.False(t, a.MarginCall)
}
