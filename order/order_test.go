package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiom-trade/exengine/command"
	"github.com/axiom-trade/exengine/event"
	"github.com/axiom-trade/exengine/identifiers"
	"github.com/axiom-trade/exengine/money"
	"github.com/axiom-trade/exengine/orderstate"
)

func testSecurity() identifiers.Security {
	sec, err := identifiers.NewSecurity("BTC-USD", "BINANCE", identifiers.AssetClassCrypto, identifiers.AssetTypeSpot)
	if err != nil {
		panic(err)
	}
	return sec
}

func newTestOrder(t *testing.T) *Order {
	t.Helper()
	qty := money.NewQuantity(decimal.NewFromInt(10), 4)
	px := money.NewPrice(decimal.NewFromInt(100), 2)
	return New(command.OrderSpec{
		ClientOrderID: identifiers.ClientOrderID("c-1"),
		Sec:           testSecurity(),
		Side:          command.Buy,
		Type:          command.Limit,
		Quantity:      qty,
		Price:         &px,
		TIF:           command.GTC,
	})
}

func TestOrderHappyPath(t *testing.T) {
	o := newTestOrder(t)
	require.Equal(t, orderstate.Initialized, o.State)

	now := time.Now()
	hdr := event.NewHeader(o.ClientOrderID, "BINANCE", now)

	require.NoError(t, o.Apply(event.OrderSubmitted{Header: hdr}))
	assert.Equal(t, orderstate.Submitted, o.State)

	require.NoError(t, o.Apply(event.OrderAccepted{Header: hdr, OrderID: identifiers.OrderID("o-1")}))
	assert.Equal(t, orderstate.Accepted, o.State)

	require.NoError(t, o.Apply(event.OrderWorking{Header: hdr, OrderID: o.OrderID}))
	assert.Equal(t, orderstate.Working, o.State)

	fillQty := money.NewQuantity(decimal.NewFromInt(4), 4)
	fillPx := money.NewPrice(decimal.NewFromInt(100), 2)
	cum := money.NewQuantity(decimal.NewFromInt(4), 4)
	leaves := money.NewQuantity(decimal.NewFromInt(6), 4)
	require.NoError(t, o.Apply(event.OrderPartiallyFilled{
		Header:    hdr,
		OrderID:   o.OrderID,
		Fill:      event.Fill{Price: fillPx, Quantity: fillQty},
		CumQty:    cum,
		LeavesQty: leaves,
	}))
	assert.Equal(t, orderstate.PartiallyFilled, o.State)
	assert.True(t, o.FilledQty.Decimal.Equal(decimal.NewFromInt(4)))
	assert.True(t, o.AvgPrice.Decimal.Equal(decimal.NewFromInt(100)))

	finalFillQty := money.NewQuantity(decimal.NewFromInt(6), 4)
	finalCum := money.NewQuantity(decimal.NewFromInt(10), 4)
	finalLeaves := money.NewQuantity(decimal.Zero, 4)
	require.NoError(t, o.Apply(event.OrderFilled{
		Header:    hdr,
		OrderID:   o.OrderID,
		Fill:      event.Fill{Price: fillPx, Quantity: finalFillQty},
		CumQty:    finalCum,
		LeavesQty: finalLeaves,
	}))
	assert.Equal(t, orderstate.Filled, o.State)
	assert.True(t, o.State.IsTerminal())
	assert.True(t, o.LeavesQty.Decimal.IsZero())
}

func TestOrderRejection(t *testing.T) {
	o := newTestOrder(t)
	hdr := event.NewHeader(o.ClientOrderID, "BINANCE", time.Now())
	require.NoError(t, o.Apply(event.OrderSubmitted{Header: hdr}))
	require.NoError(t, o.Apply(event.OrderRejected{Header: hdr, Reason: "insufficient margin"}))
	assert.Equal(t, orderstate.Rejected, o.State)
	assert.Equal(t, "insufficient margin", o.RejectReason)
}

func TestOrderStateViolation(t *testing.T) {
	o := newTestOrder(t)
	hdr := event.NewHeader(o.ClientOrderID, "BINANCE", time.Now())

	// OrderFilled cannot legally arrive while still INITIALIZED.
	err := o.Apply(event.OrderFilled{Header: hdr, OrderID: identifiers.OrderID("o-1")})
	require.Error(t, err)
	var sv *StateViolation
	require.ErrorAs(t, err, &sv)
	assert.Equal(t, orderstate.Initialized, sv.From)
	assert.Equal(t, orderstate.Invalid, o.State)
}

func TestOrderTerminalIsSticky(t *testing.T) {
	o := newTestOrder(t)
	hdr := event.NewHeader(o.ClientOrderID, "BINANCE", time.Now())
	require.NoError(t, o.Apply(event.OrderSubmitted{Header: hdr}))
	require.NoError(t, o.Apply(event.OrderRejected{Header: hdr, Reason: "no"}))

	err := o.Apply(event.OrderAccepted{Header: hdr, OrderID: identifiers.OrderID("o-1")})
	require.Error(t, err)
	assert.Equal(t, orderstate.Rejected, o.State)
}

func TestOrderOverfillIsInvalid(t *testing.T) {
	o := newTestOrder(t)
	hdr := event.NewHeader(o.ClientOrderID, "BINANCE", time.Now())
	require.NoError(t, o.Apply(event.OrderSubmitted{Header: hdr}))
	require.NoError(t, o.Apply(event.OrderAccepted{Header: hdr, OrderID: identifiers.OrderID("o-1")}))
	require.NoError(t, o.Apply(event.OrderWorking{Header: hdr, OrderID: o.OrderID}))

	overQty := money.NewQuantity(decimal.NewFromInt(999), 4)
	err := o.Apply(event.OrderFilled{
		Header:    hdr,
		OrderID:   o.OrderID,
		Fill:      event.Fill{Price: money.NewPrice(decimal.NewFromInt(100), 2), Quantity: overQty},
		CumQty:    overQty,
		LeavesQty: money.NewQuantity(decimal.Zero, 4),
	})
	require.Error(t, err)
	assert.Equal(t, orderstate.Invalid, o.State)
}
