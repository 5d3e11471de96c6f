// Package event defines the tagged-variant event messages the execution
// engine consumes via Engine.Process — the canonical lifecycle events a
// client emits (§4.2/§4.3 of spec.md), the account state push, and the
// reconciliation snapshot (§3, ExecutionStateReport).
//
// Grounded on execution/executor.go's Fill/callback shapes from the
// teacher repo, reshaped into an explicit sum type (one concrete struct
// per Kind) instead of ad hoc callback arguments — the engine's dispatch
// switches on Kind() rather than holding one god-struct with optional
// fields for every possible transition.
package event

import (
	"time"

	"github.com/axiom-trade/exengine/identifiers"
	"github.com/axiom-trade/exengine/money"
	"github.com/axiom-trade/exengine/orderstate"
)

// Kind tags which concrete event type a message carries.
type Kind string

const (
	KindOrderSubmitted       Kind = "OrderSubmitted"
	KindOrderRejected        Kind = "OrderRejected"
	KindOrderAccepted        Kind = "OrderAccepted"
	KindOrderWorking         Kind = "OrderWorking"
	KindOrderModified        Kind = "OrderModified"
	KindOrderCancelled       Kind = "OrderCancelled"
	KindOrderExpired         Kind = "OrderExpired"
	KindOrderTriggered       Kind = "OrderTriggered"
	KindOrderPartiallyFilled Kind = "OrderPartiallyFilled"
	KindOrderFilled          Kind = "OrderFilled"
	KindAccountState         Kind = "AccountState"
)

// Event is implemented by every concrete event struct below.
type Event interface {
	Kind() Kind
	ClientOrder() identifiers.ClientOrderID
	Venue() identifiers.Venue
	OccurredAt() time.Time
}

type Header struct {
	ClientOrderID identifiers.ClientOrderID
	VenueName     identifiers.Venue
	Timestamp     time.Time
}

func (b Header) ClientOrder() identifiers.ClientOrderID { return b.ClientOrderID }
func (b Header) Venue() identifiers.Venue               { return b.VenueName }
func (b Header) OccurredAt() time.Time                  { return b.Timestamp }

// NewHeader is exported so client implementations outside this package can
// populate the common envelope fields without copying struct layout.
func NewHeader(clientOrderID identifiers.ClientOrderID, venue identifiers.Venue, ts time.Time) Header {
	return Header{ClientOrderID: clientOrderID, VenueName: venue, Timestamp: ts}
}

// OrderSubmitted records that a command was accepted onto a client's wire
// and is awaiting venue acknowledgement.
type OrderSubmitted struct{ Header }

func (OrderSubmitted) Kind() Kind { return KindOrderSubmitted }

// OrderRejected carries the venue's rejection reason; terminal.
type OrderRejected struct {
	Header
	Reason string
}

func (OrderRejected) Kind() Kind { return KindOrderRejected }

// OrderAccepted binds the venue-assigned OrderID.
type OrderAccepted struct {
	Header
	OrderID identifiers.OrderID
}

func (OrderAccepted) Kind() Kind { return KindOrderAccepted }

// OrderWorking announces the order is live in the venue's book.
type OrderWorking struct {
	Header
	OrderID identifiers.OrderID
	Price   *money.Price // absent for MARKET orders
}

func (OrderWorking) Kind() Kind { return KindOrderWorking }

// OrderModified replaces the working price/quantity.
type OrderModified struct {
	Header
	OrderID  identifiers.OrderID
	Price    *money.Price
	Quantity money.Quantity
}

func (OrderModified) Kind() Kind { return KindOrderModified }

// OrderCancelled is terminal.
type OrderCancelled struct {
	Header
	OrderID identifiers.OrderID
}

func (OrderCancelled) Kind() Kind { return KindOrderCancelled }

// OrderExpired is terminal (TIF expiry).
type OrderExpired struct {
	Header
	OrderID identifiers.OrderID
}

func (OrderExpired) Kind() Kind { return KindOrderExpired }

// OrderTriggered moves a STOP_LIMIT order into LIMIT-like behavior.
type OrderTriggered struct {
	Header
	OrderID identifiers.OrderID
}

func (OrderTriggered) Kind() Kind { return KindOrderTriggered }

// Fill is the payload shared by OrderPartiallyFilled and OrderFilled.
type Fill struct {
	ExecutionID  identifiers.ExecutionID
	TradeMatchID identifiers.TradeMatchID
	Price        money.Price
	Quantity     money.Quantity
	Commission   money.Money
}

// OrderPartiallyFilled is re-entrant: an order can receive many of these
// before a terminal OrderFilled.
type OrderPartiallyFilled struct {
	Header
	OrderID   identifiers.OrderID
	Fill      Fill
	CumQty    money.Quantity
	LeavesQty money.Quantity
}

func (OrderPartiallyFilled) Kind() Kind { return KindOrderPartiallyFilled }

// OrderFilled is terminal: leaves_qty=0.
type OrderFilled struct {
	Header
	OrderID   identifiers.OrderID
	Fill      Fill
	CumQty    money.Quantity
	LeavesQty money.Quantity
}

func (OrderFilled) Kind() Kind { return KindOrderFilled }

// AccountState is pushed by a client whenever venue-reported account
// metrics change.
type AccountState struct {
	Header
	Balance    money.Money
	UsedMargin money.Money
	FreeMargin money.Money
	MarginCall bool
}

func (AccountState) Kind() Kind { return KindAccountState }

// ExecutionStateReport is the snapshot a client returns from StateReport
// during reconciliation (spec §3/§4.5): the venue's ground truth for a
// set of orders at a point in time.
type ExecutionStateReport struct {
	Venue       identifiers.Venue
	GeneratedAt time.Time
	States      map[identifiers.ClientOrderID]orderstate.State
	FilledQty   map[identifiers.ClientOrderID]money.Quantity
}

// NewExecutionStateReport returns an empty report ready to be populated.
func NewExecutionStateReport(venue identifiers.Venue, generatedAt time.Time) ExecutionStateReport {
	return ExecutionStateReport{
		Venue:       venue,
		GeneratedAt: generatedAt,
		States:      make(map[identifiers.ClientOrderID]orderstate.State),
		FilledQty:   make(map[identifiers.ClientOrderID]money.Quantity),
	}
}
