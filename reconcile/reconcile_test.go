package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiom-trade/exengine/command"
	"github.com/axiom-trade/exengine/engine"
	"github.com/axiom-trade/exengine/event"
	"github.com/axiom-trade/exengine/execdb"
	"github.com/axiom-trade/exengine/identifiers"
	"github.com/axiom-trade/exengine/money"
	"github.com/axiom-trade/exengine/orderstate"
)

type stubClient struct {
	venue  identifiers.Venue
	events chan event.Event
	report event.ExecutionStateReport
}

func newStubClient(venue identifiers.Venue) *stubClient {
	return &stubClient{venue: venue, events: make(chan event.Event, 4)}
}

func (s *stubClient) Venue() identifiers.Venue               { return s.venue }
func (s *stubClient) Connect(ctx context.Context) error      { return nil }
func (s *stubClient) Disconnect() error                      { return nil }
func (s *stubClient) Events() <-chan event.Event             { return s.events }
func (s *stubClient) SubmitOrder(ctx context.Context, o command.OrderSpec) error { return nil }
func (s *stubClient) SubmitBracketOrder(ctx context.Context, b command.SubmitBracketOrder) error {
	return nil
}
func (s *stubClient) CancelOrder(ctx context.Context, c command.CancelOrder) error { return nil }
func (s *stubClient) ModifyOrder(ctx context.Context, m command.ModifyOrder) error { return nil }
func (s *stubClient) StateReport(ctx context.Context, ids []identifiers.ClientOrderID) (event.ExecutionStateReport, error) {
	return s.report, nil
}

func testSecurity() identifiers.Security {
	sec, _ := identifiers.NewSecurity("BTC-USD", "BINANCE", identifiers.AssetClassCrypto, identifiers.AssetTypeSpot)
	return sec
}

func TestReconcileDetectsDiscrepancy(t *testing.T) {
	eng := engine.New(execdb.NewMemory(), 16)
	sc := newStubClient("BINANCE")
	require.NoError(t, eng.RegisterClient(sc))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, eng.Start(ctx))

	spec := command.OrderSpec{
		ClientOrderID: identifiers.ClientOrderID("r-1"),
		Sec:           testSecurity(),
		Side:          command.Buy,
		Type:          command.Market,
		Quantity:      money.NewQuantity(decimal.NewFromInt(1), 4),
		TIF:           command.GTC,
	}
	require.NoError(t, eng.Execute(command.SubmitOrder{Order: spec}))

	assert.Eventually(t, func() bool {
		_, ok := eng.Order(spec.ClientOrderID)
		return ok
	}, time.Second, 5*time.Millisecond)

	report := event.NewExecutionStateReport("BINANCE", time.Now())
	report.States[spec.ClientOrderID] = orderstate.Working
	sc.report = report

	gate := NewGate(3, time.Minute)
	rec := New(eng, gate, DefaultConfig())

	discs, err := rec.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, discs, 1)
	assert.Equal(t, orderstate.Working, discs[0].Resolved)

	// Convergence happens through engine.Process on the consumer
	// goroutine, not synchronously inside Reconcile.
	assert.Eventually(t, func() bool {
		o, _ := eng.Order(spec.ClientOrderID)
		return o.State == orderstate.Working
	}, time.Second, 5*time.Millisecond)

	tripped, _ := gate.Tripped()
	assert.False(t, tripped)

	require.NoError(t, eng.Stop(context.Background()))
}

func TestReconcileUnknownSubmittedOrderIsRejected(t *testing.T) {
	eng := engine.New(execdb.NewMemory(), 16)
	sc := newStubClient("BINANCE")
	require.NoError(t, eng.RegisterClient(sc))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, eng.Start(ctx))

	spec := command.OrderSpec{
		ClientOrderID: identifiers.ClientOrderID("r-unknown"),
		Sec:           testSecurity(),
		Side:          command.Buy,
		Type:          command.Market,
		Quantity:      money.NewQuantity(decimal.NewFromInt(1), 4),
		TIF:           command.GTC,
	}
	require.NoError(t, eng.Execute(command.SubmitOrder{Order: spec}))
	assert.Eventually(t, func() bool {
		_, ok := eng.Order(spec.ClientOrderID)
		return ok
	}, time.Second, 5*time.Millisecond)

	// Drive the order to SUBMITTED, as if the client's wire ack arrived,
	// then the venue lost all memory of it (never reached the book).
	require.NoError(t, eng.Process(event.OrderSubmitted{
		Header: event.NewHeader(spec.ClientOrderID, "BINANCE", time.Now()),
	}))
	assert.Eventually(t, func() bool {
		o, _ := eng.Order(spec.ClientOrderID)
		return o.State == orderstate.Submitted
	}, time.Second, 5*time.Millisecond)

	// sc.report stays empty: the venue has never heard of this order.
	sc.report = event.NewExecutionStateReport("BINANCE", time.Now())

	gate := NewGate(3, time.Minute)
	rec := New(eng, gate, DefaultConfig())

	discs, err := rec.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, discs, 1)
	assert.Equal(t, orderstate.Rejected, discs[0].Resolved)

	assert.Eventually(t, func() bool {
		o, _ := eng.Order(spec.ClientOrderID)
		return o.State == orderstate.Rejected
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, eng.Stop(context.Background()))
}

func TestReconcileConvergesFillAccounting(t *testing.T) {
	eng := engine.New(execdb.NewMemory(), 16)
	sc := newStubClient("BINANCE")
	require.NoError(t, eng.RegisterClient(sc))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, eng.Start(ctx))

	spec := command.OrderSpec{
		ClientOrderID: identifiers.ClientOrderID("r-fill"),
		Sec:           testSecurity(),
		Side:          command.Buy,
		Type:          command.Limit,
		Price:         ptrPrice(money.NewPrice(decimal.NewFromInt(100), 2)),
		Quantity:      money.NewQuantity(decimal.NewFromInt(10), 4),
		TIF:           command.GTC,
	}
	require.NoError(t, eng.Execute(command.SubmitOrder{Order: spec}))
	assert.Eventually(t, func() bool {
		_, ok := eng.Order(spec.ClientOrderID)
		return ok
	}, time.Second, 5*time.Millisecond)

	// Venue reports the order fully filled while the local copy never
	// advanced past INITIALIZED (a missed ack/fill stream).
	report := event.NewExecutionStateReport("BINANCE", time.Now())
	report.States[spec.ClientOrderID] = orderstate.Filled
	report.FilledQty[spec.ClientOrderID] = money.NewQuantity(decimal.NewFromInt(10), 4)
	sc.report = report

	gate := NewGate(3, time.Minute)
	rec := New(eng, gate, DefaultConfig())

	_, err := rec.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		o, _ := eng.Order(spec.ClientOrderID)
		return o.State == orderstate.Filled
	}, time.Second, 5*time.Millisecond)

	o, _ := eng.Order(spec.ClientOrderID)
	assert.True(t, o.FilledQty.Decimal.Equal(decimal.NewFromInt(10)))
	assert.True(t, o.LeavesQty.Decimal.IsZero())
	assert.Len(t, o.Fills, 1)

	require.NoError(t, eng.Stop(context.Background()))
}

func ptrPrice(p money.Price) *money.Price { return &p }

func TestGateTripsAfterConsecutiveFailures(t *testing.T) {
	gate := NewGate(2, time.Minute)
	assert.True(t, gate.Allow())
	gate.RecordFailure("timeout")
	assert.True(t, gate.Allow())
	gate.RecordFailure("timeout")
	assert.False(t, gate.Allow())
	tripped, reason := gate.Tripped()
	assert.True(t, tripped)
	assert.Equal(t, "timeout", reason)
}

func TestGateResetsAfterCooldown(t *testing.T) {
	gate := NewGate(1, 10*time.Millisecond)
	gate.RecordFailure("boom")
	assert.False(t, gate.Allow())
	time.Sleep(20 * time.Millisecond)
	assert.True(t, gate.Allow())
}
