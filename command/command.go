// Package command defines the tagged-variant command messages a strategy
// sends via Engine.Execute, plus the Shutdown sentinel the engine itself
// enqueues to unblock its consumer on stop (spec.md §9's redesign note:
// a typed Shutdown message instead of a distinguished nil value).
//
// Grounded on exec.Client's PlaceOrder/cancel surface from the teacher
// repo, turned into routed message values instead of direct method calls
// so the engine can interpose FIFO ordering between commands and events.
package command

import (
	"fmt"
	"time"

	"github.com/axiom-trade/exengine/identifiers"
	"github.com/axiom-trade/exengine/money"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Type is the order type.
type Type string

const (
	Market     Type = "MARKET"
	Limit      Type = "LIMIT"
	Stop       Type = "STOP"
	StopLimit  Type = "STOP_LIMIT"
)

// TimeInForce controls how long an order remains workable.
type TimeInForce string

const (
	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
	FOK TimeInForce = "FOK"
	GTD TimeInForce = "GTD"
)

// Kind tags which concrete command type a message carries.
type Kind string

const (
	KindSubmitOrder        Kind = "SubmitOrder"
	KindSubmitBracketOrder Kind = "SubmitBracketOrder"
	KindCancelOrder        Kind = "CancelOrder"
	KindModifyOrder        Kind = "ModifyOrder"
	KindShutdown           Kind = "Shutdown"
)

// Command is implemented by every concrete command struct below.
type Command interface {
	Kind() Kind
	Security() identifiers.Security
}

// OrderSpec fully describes an order to be submitted; shared by
// SubmitOrder and each leg of SubmitBracketOrder.
type OrderSpec struct {
	ClientOrderID identifiers.ClientOrderID
	Sec           identifiers.Security
	StrategyID    identifiers.StrategyID
	Side          Side
	Type          Type
	Quantity      money.Quantity
	Price         *money.Price // absent for MARKET
	TriggerPrice  *money.Price // STOP/STOP_LIMIT trigger
	TIF           TimeInForce
	ExpireTime    *time.Time
	Purpose       string
}

// Validate performs the synchronous boundary validation spec §7 requires
// ("Validation ... surfaced synchronously at the boundary; never
// enqueued").
func (o OrderSpec) Validate() error {
	if o.ClientOrderID.IsEmpty() {
		return fmt.Errorf("command: client_order_id must not be empty")
	}
	if o.Sec.Venue == "" {
		return fmt.Errorf("command: security %s has no venue", o.Sec)
	}
	if o.Side != Buy && o.Side != Sell {
		return fmt.Errorf("command: invalid side %q", o.Side)
	}
	if o.Quantity.IsZero() || o.Quantity.Decimal.IsNegative() {
		return fmt.Errorf("command: quantity must be positive, got %s", o.Quantity.Decimal)
	}
	switch o.Type {
	case Market:
		// no price required
	case Limit, Stop, StopLimit:
		if o.Price == nil && o.Type == Limit {
			return fmt.Errorf("command: %s order requires a price", o.Type)
		}
		if (o.Type == Stop || o.Type == StopLimit) && o.TriggerPrice == nil {
			return fmt.Errorf("command: %s order requires a trigger price", o.Type)
		}
	default:
		return fmt.Errorf("command: invalid order type %q", o.Type)
	}
	if o.TIF == GTD && o.ExpireTime == nil {
		return fmt.Errorf("command: GTD order requires an expire time")
	}
	return nil
}

// SubmitOrder asks a venue to accept a new order.
type SubmitOrder struct {
	Order OrderSpec
}

func (SubmitOrder) Kind() Kind                         { return KindSubmitOrder }
func (c SubmitOrder) Security() identifiers.Security   { return c.Order.Sec }

// SubmitBracketOrder asks a venue to accept an entry order plus its
// stop-loss and take-profit legs as one unit (spec §4.3); the client
// decides how to wire the OCO relationship at the venue.
type SubmitBracketOrder struct {
	Entry      OrderSpec
	StopLoss   OrderSpec
	TakeProfit OrderSpec
}

func (SubmitBracketOrder) Kind() Kind { return KindSubmitBracketOrder }
func (c SubmitBracketOrder) Security() identifiers.Security {
	return c.Entry.Sec
}

// Validate checks all three legs share a security and are individually
// valid.
func (c SubmitBracketOrder) Validate() error {
	if err := c.Entry.Validate(); err != nil {
		return fmt.Errorf("command: bracket entry leg: %w", err)
	}
	if err := c.StopLoss.Validate(); err != nil {
		return fmt.Errorf("command: bracket stop-loss leg: %w", err)
	}
	if err := c.TakeProfit.Validate(); err != nil {
		return fmt.Errorf("command: bracket take-profit leg: %w", err)
	}
	if c.StopLoss.Sec != c.Entry.Sec || c.TakeProfit.Sec != c.Entry.Sec {
		return fmt.Errorf("command: bracket legs must share a security")
	}
	return nil
}

// CancelOrder asks a venue to cancel a working order by client id.
type CancelOrder struct {
	ClientOrderID identifiers.ClientOrderID
	Sec           identifiers.Security
}

func (CancelOrder) Kind() Kind                       { return KindCancelOrder }
func (c CancelOrder) Security() identifiers.Security { return c.Sec }

// ModifyOrder asks a venue to replace quantity/price on a working order.
// Whether queue position is preserved is venue-specific and not
// prescribed by this engine (spec.md §9, Open Questions).
type ModifyOrder struct {
	ClientOrderID identifiers.ClientOrderID
	Sec           identifiers.Security
	Quantity      money.Quantity
	Price         *money.Price
}

func (ModifyOrder) Kind() Kind                       { return KindModifyOrder }
func (c ModifyOrder) Security() identifiers.Security { return c.Sec }

// Shutdown is the sentinel only the engine itself may enqueue (spec §4.4).
// Users of Execute/Process are forbidden from constructing one; the
// engine rejects any such attempt at the boundary.
type Shutdown struct{}

func (Shutdown) Kind() Kind                       { return KindShutdown }
func (Shutdown) Security() identifiers.Security   { return identifiers.Security{} }
