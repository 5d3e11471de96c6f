// Package order implements the Order entity and its finite state machine
// (spec.md §4.2). An Order starts life INITIALIZED from a command.OrderSpec
// and is driven forward exclusively by applying event.Event values the
// engine routes to it — nothing else may mutate its state.
//
// Grounded on execution/executor.go's Order/OrderState struct and its
// updatePosition quantity-weighted-average logic from the teacher repo,
// generalized from that file's two-state paper/live model into the full
// transition table spec.md §4.2 specifies.
package order

import (
	"fmt"
	"time"

	"github.com/axiom-trade/exengine/command"
	"github.com/axiom-trade/exengine/event"
	"github.com/axiom-trade/exengine/identifiers"
	"github.com/axiom-trade/exengine/money"
	"github.com/axiom-trade/exengine/orderstate"
)

// Order is the authoritative local record of one order's lifecycle.
type Order struct {
	ClientOrderID identifiers.ClientOrderID
	OrderID       identifiers.OrderID // assigned on OrderAccepted
	Sec           identifiers.Security
	StrategyID    identifiers.StrategyID

	Side     command.Side
	Type     command.Type
	TIF      command.TimeInForce
	Purpose  string

	Quantity     money.Quantity
	Price        *money.Price
	TriggerPrice *money.Price
	ExpireTime   *time.Time

	State orderstate.State

	FilledQty  money.Quantity
	LeavesQty  money.Quantity
	AvgPrice   money.Price
	Commission money.Money
	Fills      []event.Fill

	RejectReason string
	LastUpdated  time.Time
}

// New builds a freshly INITIALIZED order from a validated spec.
func New(spec command.OrderSpec) *Order {
	return &Order{
		ClientOrderID: spec.ClientOrderID,
		Sec:           spec.Sec,
		StrategyID:    spec.StrategyID,
		Side:          spec.Side,
		Type:          spec.Type,
		TIF:           spec.TIF,
		Purpose:       spec.Purpose,
		Quantity:      spec.Quantity,
		Price:         spec.Price,
		TriggerPrice:  spec.TriggerPrice,
		ExpireTime:    spec.ExpireTime,
		State:         orderstate.Initialized,
		LeavesQty:     spec.Quantity,
	}
}

// transitions enumerates the legal predecessor states for each event kind,
// the literal encoding of spec.md §4.2's table. Any event arriving while
// the order sits in a state not listed here is a state violation.
var transitions = map[event.Kind][]orderstate.State{
	event.KindOrderSubmitted:       {orderstate.Initialized},
	event.KindOrderRejected:        {orderstate.Submitted},
	event.KindOrderAccepted:        {orderstate.Submitted},
	event.KindOrderWorking:         {orderstate.Accepted, orderstate.Triggered},
	event.KindOrderTriggered:       {orderstate.Accepted},
	event.KindOrderModified:        {orderstate.Working, orderstate.Triggered, orderstate.PartiallyFilled},
	event.KindOrderCancelled:       {orderstate.Accepted, orderstate.Working, orderstate.Triggered, orderstate.PartiallyFilled},
	event.KindOrderExpired:         {orderstate.Working, orderstate.Triggered, orderstate.PartiallyFilled},
	event.KindOrderPartiallyFilled: {orderstate.Working, orderstate.Triggered, orderstate.PartiallyFilled},
	event.KindOrderFilled:          {orderstate.Working, orderstate.Triggered, orderstate.PartiallyFilled, orderstate.Accepted},
}

// StateViolation is returned by Apply when an event arrives in a state
// that cannot legally precede it. A non-terminal order is forced to
// orderstate.Invalid; a terminal order keeps its state. Either way the
// violation is surfaced to the caller for logging; the engine never
// panics on this path.
type StateViolation struct {
	ClientOrderID identifiers.ClientOrderID
	From          orderstate.State
	EventKind     event.Kind
}

func (e *StateViolation) Error() string {
	return fmt.Sprintf("order %s: event %s invalid from state %s", e.ClientOrderID, e.EventKind, e.From)
}

// Apply advances the order's FSM in response to ev, mutating the order in
// place. A non-nil error means the event was not applied: an order in a
// non-terminal state was forced to orderstate.Invalid, while an order
// already in a terminal state is left unchanged. Callers must not retry
// the same event.
func (o *Order) Apply(ev event.Event) error {
	if o.State.IsTerminal() {
		return &StateViolation{ClientOrderID: o.ClientOrderID, From: o.State, EventKind: ev.Kind()}
	}
	if allowed := transitions[ev.Kind()]; !stateIn(o.State, allowed) {
		from := o.State
		o.State = orderstate.Invalid
		return &StateViolation{ClientOrderID: o.ClientOrderID, From: from, EventKind: ev.Kind()}
	}

	switch e := ev.(type) {
	case event.OrderSubmitted:
		o.State = orderstate.Submitted
	case event.OrderRejected:
		o.State = orderstate.Rejected
		o.RejectReason = e.Reason
	case event.OrderAccepted:
		o.State = orderstate.Accepted
		o.OrderID = e.OrderID
	case event.OrderWorking:
		o.State = orderstate.Working
		if e.Price != nil {
			o.Price = e.Price
		}
	case event.OrderTriggered:
		o.State = orderstate.Triggered
	case event.OrderModified:
		if e.Price != nil {
			o.Price = e.Price
		}
		o.Quantity = e.Quantity
		o.LeavesQty = money.NewQuantity(e.Quantity.Decimal.Sub(o.FilledQty.Decimal), e.Quantity.Precision)
	case event.OrderCancelled:
		o.State = orderstate.Cancelled
	case event.OrderExpired:
		o.State = orderstate.Expired
	case event.OrderPartiallyFilled:
		if err := o.applyFill(e.Fill, e.CumQty, e.LeavesQty); err != nil {
			o.State = orderstate.Invalid
			return err
		}
		o.State = orderstate.PartiallyFilled
	case event.OrderFilled:
		if err := o.applyFill(e.Fill, e.CumQty, e.LeavesQty); err != nil {
			o.State = orderstate.Invalid
			return err
		}
		o.State = orderstate.Filled
	default:
		return &StateViolation{ClientOrderID: o.ClientOrderID, From: o.State, EventKind: ev.Kind()}
	}
	o.LastUpdated = ev.OccurredAt()
	return nil
}

// applyFill folds a Fill into the running average price and quantities,
// rejecting an over-fill as an integrity fault (spec §4.2 edge case:
// cum_qty must never exceed the order's original quantity).
func (o *Order) applyFill(f event.Fill, cumQty, leavesQty money.Quantity) error {
	if cumQty.Decimal.GreaterThan(o.Quantity.Decimal) {
		return fmt.Errorf("order %s: cumulative fill %s exceeds order quantity %s",
			o.ClientOrderID, cumQty.Decimal, o.Quantity.Decimal)
	}
	o.AvgPrice = money.WeightedAverage(o.AvgPrice, o.FilledQty, f.Price, f.Quantity)
	o.FilledQty = cumQty
	o.LeavesQty = leavesQty
	if o.Commission.Currency.Code == "" {
		o.Commission = f.Commission
	} else {
		o.Commission = o.Commission.Add(f.Commission)
	}
	o.Fills = append(o.Fills, f)
	return nil
}

func stateIn(s orderstate.State, set []orderstate.State) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}
