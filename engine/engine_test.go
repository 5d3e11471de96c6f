package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiom-trade/exengine/command"
	"github.com/axiom-trade/exengine/event"
	"github.com/axiom-trade/exengine/execdb"
	"github.com/axiom-trade/exengine/identifiers"
	"github.com/axiom-trade/exengine/money"
	"github.com/axiom-trade/exengine/order"
	"github.com/axiom-trade/exengine/orderstate"
)

// newTestOrder builds an order already advanced to WORKING through its
// legal FSM path, for tests that need a non-terminal order pre-seeded in
// a database rather than submitted live.
func newTestOrder(id identifiers.ClientOrderID, sec identifiers.Security) *order.Order {
	o := order.New(command.OrderSpec{
		ClientOrderID: id,
		Sec:           sec,
		Side:          command.Buy,
		Type:          command.Market,
		Quantity:      money.NewQuantity(decimal.NewFromInt(1), 4),
		TIF:           command.GTC,
	})
	hdr := event.NewHeader(id, sec.Venue, time.Now())
	_ = o.Apply(event.OrderSubmitted{Header: hdr})
	_ = o.Apply(event.OrderAccepted{Header: hdr, OrderID: identifiers.OrderID("venue-1")})
	_ = o.Apply(event.OrderWorking{Header: hdr, OrderID: identifiers.OrderID("venue-1")})
	return o
}

type fakeClient struct {
	venue   identifiers.Venue
	events  chan event.Event
	submits []command.OrderSpec
}

func newFakeClient(venue identifiers.Venue) *fakeClient {
	return &fakeClient{venue: venue, events: make(chan event.Event, 16)}
}

func (f *fakeClient) Venue() identifiers.Venue    { return f.venue }
func (f *fakeClient) Connect(ctx context.Context) error { return nil }
func (f *fakeClient) Disconnect() error           { close(f.events); return nil }
func (f *fakeClient) Events() <-chan event.Event  { return f.events }

func (f *fakeClient) SubmitOrder(ctx context.Context, o command.OrderSpec) error {
	f.submits = append(f.submits, o)
	hdr := event.NewHeader(o.ClientOrderID, f.venue, time.Now())
	f.events <- event.OrderSubmitted{Header: hdr}
	f.events <- event.OrderAccepted{Header: hdr, OrderID: identifiers.OrderID("venue-1")}
	return nil
}
func (f *fakeClient) SubmitBracketOrder(ctx context.Context, b command.SubmitBracketOrder) error {
	return nil
}
func (f *fakeClient) CancelOrder(ctx context.Context, c command.CancelOrder) error { return nil }
func (f *fakeClient) ModifyOrder(ctx context.Context, m command.ModifyOrder) error { return nil }
func (f *fakeClient) StateReport(ctx context.Context, ids []identifiers.ClientOrderID) (event.ExecutionStateReport, error) {
	return event.NewExecutionStateReport(f.venue, time.Now()), nil
}

func testSpec(t *testing.T) command.OrderSpec {
	t.Helper()
	sec, err := identifiers.NewSecurity("BTC-USD", "BINANCE", identifiers.AssetClassCrypto, identifiers.AssetTypeSpot)
	require.NoError(t, err)
	qty := money.NewQuantity(decimal.NewFromInt(1), 4)
	return command.OrderSpec{
		ClientOrderID: identifiers.ClientOrderID("t-1"),
		Sec:           sec,
		Side:          command.Buy,
		Type:          command.Market,
		Quantity:      qty,
		TIF:           command.GTC,
	}
}

func TestEngineSubmitAndAccept(t *testing.T) {
	e := New(execdb.NewMemory(), 16)
	fc := newFakeClient("BINANCE")
	require.NoError(t, e.RegisterClient(fc))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, e.Start(ctx))

	spec := testSpec(t)
	require.NoError(t, e.Execute(command.SubmitOrder{Order: spec}))

	assert.Eventually(t, func() bool {
		o, ok := e.Order(spec.ClientOrderID)
		return ok && o.State == orderstate.Accepted
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, e.Stop(context.Background()))
}

func TestEngineRejectsUserShutdown(t *testing.T) {
	e := New(execdb.NewMemory(), 16)
	err := e.Execute(command.Shutdown{})
	require.Error(t, err)
}

func TestEngineRejectsInvalidCommand(t *testing.T) {
	e := New(execdb.NewMemory(), 16)
	fc := newFakeClient("BINANCE")
	require.NoError(t, e.RegisterClient(fc))

	bad := testSpec(t)
	bad.Quantity = money.NewQuantity(decimal.Zero, 4)
	err := e.Execute(command.SubmitOrder{Order: bad})
	require.Error(t, err)
}

func TestEngineQsizeReflectsBacklog(t *testing.T) {
	e := New(execdb.NewMemory(), 4)
	fc := newFakeClient("BINANCE")
	require.NoError(t, e.RegisterClient(fc))
	assert.Equal(t, 0, e.Qsize())
}

// TestEngineExecuteBlocksOnFullQueue verifies the queue-full path
// suspends instead of dropping the command with an error (spec.md §5's
// sole suspension point), and that the blocked call still lands once the
// consumer frees a slot.
func TestEngineExecuteBlocksOnFullQueue(t *testing.T) {
	e := New(execdb.NewMemory(), 1)
	fc := newFakeClient("BINANCE")
	require.NoError(t, e.RegisterClient(fc))

	// Fill the single queue slot directly, bypassing Start/consume so the
	// slot stays occupied until we choose to drain it.
	e.queue <- message{ev: event.OrderSubmitted{Header: event.NewHeader("pre-fill", "BINANCE", time.Now())}}

	done := make(chan error, 1)
	go func() {
		done <- e.Execute(command.SubmitOrder{Order: testSpec(t)})
	}()

	select {
	case <-done:
		t.Fatal("Execute returned before a queue slot was free")
	case <-time.After(50 * time.Millisecond):
	}

	<-e.queue // drain the pre-filled slot, freeing room for the blocked send

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Execute never unblocked after a slot freed")
	}
}

func TestEngineRejectsCommandsWhileGateClosed(t *testing.T) {
	e := New(execdb.NewMemory(), 16)
	fc := newFakeClient("BINANCE")
	require.NoError(t, e.RegisterClient(fc))
	e.SetGate(closedGate{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, e.Start(ctx))

	spec := testSpec(t)
	require.NoError(t, e.Execute(command.SubmitOrder{Order: spec}))

	assert.Eventually(t, func() bool {
		o, ok := e.Order(spec.ClientOrderID)
		return ok && o.State == orderstate.Rejected
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, fc.submits, "gated command must never reach the venue client")

	require.NoError(t, e.Stop(context.Background()))
}

type closedGate struct{}

func (closedGate) Allow() bool { return false }

func TestEngineStartRestoresPersistedState(t *testing.T) {
	db := execdb.NewMemory()
	sec, err := identifiers.NewSecurity("BTC-USD", "BINANCE", identifiers.AssetClassCrypto, identifiers.AssetTypeSpot)
	require.NoError(t, err)
	o := newTestOrder("restored-1", sec)
	require.NoError(t, db.AddOrder(o))

	e := New(db, 16)
	fc := newFakeClient("BINANCE")
	require.NoError(t, e.RegisterClient(fc))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, e.Start(ctx))

	restoredOrder, ok := e.Order("restored-1")
	require.True(t, ok)
	assert.Equal(t, orderstate.Working, restoredOrder.State)

	found := false
	for _, open := range e.OrdersOpen() {
		if open.ClientOrderID == "restored-1" {
			found = true
		}
	}
	assert.True(t, found, "restored order must be visible to OrdersOpen for reconciliation")

	require.NoError(t, e.Stop(context.Background()))
}
