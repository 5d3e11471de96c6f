package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/axiom-trade/exengine/engine"
	"github.com/axiom-trade/exengine/event"
	"github.com/axiom-trade/exengine/identifiers"
	"github.com/axiom-trade/exengine/money"
	"github.com/axiom-trade/exengine/order"
	"github.com/axiom-trade/exengine/orderstate"
)

// TieBreakPolicy decides which state wins when the engine's local view
// of an order disagrees with the venue's ExecutionStateReport. The
// default (DefaultTieBreak) lets a local terminal state win outright —
// spec.md §9's Open Question decision — because a terminal state is
// derived from an event the venue itself already sent; policies may
// override this for venues known to revise terminal states (e.g. a late
// exchange-side cancel-reject).
type TieBreakPolicy func(local, venue orderstate.State) orderstate.State

// DefaultTieBreak prefers a local terminal state; otherwise it prefers
// whatever the venue reports, since the venue is ground truth for
// non-terminal progress the engine may have missed (a dropped ack, a
// fill that arrived while disconnected).
func DefaultTieBreak(local, venueState orderstate.State) orderstate.State {
	if local.IsTerminal() {
		return local
	}
	return venueState
}

// Config controls one reconciliation pass.
type Config struct {
	PollInterval time.Duration
	Timeout      time.Duration
	TieBreak     TieBreakPolicy
}

// DefaultConfig matches the teacher's circuit-breaker-adjacent defaults:
// frequent enough to catch a missed ack quickly, bounded so a wedged
// venue doesn't block startup forever.
func DefaultConfig() Config {
	return Config{
		PollInterval: 500 * time.Millisecond,
		Timeout:      10 * time.Second,
		TieBreak:     DefaultTieBreak,
	}
}

// Reconciler runs the convergence loop between the engine's local order
// view and each registered venue's ExecutionStateReport.
//
// Grounded on execution/reconciler.go's RecoverPositions startup recovery
// pass from the teacher repo, generalized from "load positions from
// database once at startup" into a recurring converge-or-gate loop
// driven by live StateReport calls instead of a one-shot DB read.
type Reconciler struct {
	eng    *engine.Engine
	gate   *Gate
	config Config
}

// New builds a Reconciler over eng, gated by gate.
func New(eng *engine.Engine, gate *Gate, config Config) *Reconciler {
	if config.TieBreak == nil {
		config.TieBreak = DefaultTieBreak
	}
	return &Reconciler{eng: eng, gate: gate, config: config}
}

// Discrepancy records one order whose local and venue-reported states
// disagreed, and which state won after applying the tie-break policy.
type Discrepancy struct {
	ClientOrderID identifiers.ClientOrderID
	Local         orderstate.State
	Venue         orderstate.State
	Resolved      orderstate.State
}

// Reconcile collects every non-terminal order, groups it by venue,
// requests a StateReport from each venue's client, and for every
// disagreement it finds enqueues the real lifecycle/fill events needed
// to converge the local order onto the resolved state through
// engine.Process — the reconciler itself never mutates order.Order
// directly (spec.md §5: only the consumer task mutates order state). It
// returns the list of discrepancies found, or an error if any venue has
// no registered client or its state report could not be obtained
// (including when the pass times out).
func (r *Reconciler) Reconcile(ctx context.Context) ([]Discrepancy, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	byVenue := make(map[identifiers.Venue][]*order.Order)
	for _, o := range r.eng.OrdersOpen() {
		byVenue[o.Sec.Venue] = append(byVenue[o.Sec.Venue], o)
	}

	if len(byVenue) == 0 {
		r.gate.RecordSuccess()
		return nil, nil
	}

	type result struct {
		discrepancies []Discrepancy
		err           error
	}
	results := make(chan result, len(byVenue))

	for venue, orders := range byVenue {
		go func(venue identifiers.Venue, orders []*order.Order) {
			discs, err := r.reconcileVenue(ctx, venue, orders)
			results <- result{discrepancies: discs, err: err}
		}(venue, orders)
	}

	var all []Discrepancy
	var firstErr error
	for i := 0; i < len(byVenue); i++ {
		res := <-results
		if res.err != nil && firstErr == nil {
			firstErr = res.err
		}
		all = append(all, res.discrepancies...)
	}

	if firstErr != nil {
		r.gate.RecordFailure(firstErr.Error())
		return all, fmt.Errorf("reconcile: %w", firstErr)
	}
	r.gate.RecordSuccess()
	return all, nil
}

func (r *Reconciler) reconcileVenue(ctx context.Context, venue identifiers.Venue, orders []*order.Order) ([]Discrepancy, error) {
	c, ok := r.eng.Client(venue)
	if !ok {
		return nil, fmt.Errorf("no client registered for venue %s", venue)
	}

	ids := make([]identifiers.ClientOrderID, len(orders))
	for i, o := range orders {
		ids[i] = o.ClientOrderID
	}

	report, err := c.StateReport(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("state report from %s: %w", venue, err)
	}

	var discs []Discrepancy
	for _, o := range orders {
		venueState, known := report.States[o.ClientOrderID]
		if !known {
			// spec.md §4.5's tie-break table: an order unknown to the
			// venue whose local state is still SUBMITTED never made it
			// onto the venue's book and is treated as REJECTED.
			if o.State == orderstate.Submitted {
				discs = append(discs, Discrepancy{
					ClientOrderID: o.ClientOrderID,
					Local:         o.State,
					Venue:         orderstate.Rejected,
					Resolved:      orderstate.Rejected,
				})
				r.emit(o, event.OrderRejected{
					Header: hdr(o),
					Reason: "unknown to venue",
				})
			}
			continue
		}

		reportedFilled, hasFilled := report.FilledQty[o.ClientOrderID]
		resolved := r.config.TieBreak(o.State, venueState)
		needsFill := hasFilled && reportedFilled.Decimal.GreaterThan(o.FilledQty.Decimal)

		if !needsFill && resolved == o.State {
			// Already converged: re-running reconcile against an
			// unchanged report must not re-emit anything (spec.md §8
			// invariant 5, reconcile_state idempotency).
			continue
		}

		discs = append(discs, Discrepancy{
			ClientOrderID: o.ClientOrderID,
			Local:         o.State,
			Venue:         venueState,
			Resolved:      resolved,
		})

		log.Warn().
			Str("client_order_id", string(o.ClientOrderID)).
			Str("local", string(o.State)).
			Str("venue", string(venueState)).
			Str("resolved", string(resolved)).
			Msg("reconciliation found a state discrepancy, synthesizing convergence events")

		if needsFill {
			r.converge(o, bridgeEvents(o, orderstate.Working)...)
			r.emit(o, buildFillEvent(o, resolved, reportedFilled))
		} else {
			r.converge(o, stateOnlyEvents(o, resolved)...)
		}
	}
	return discs, nil
}

// converge enqueues a sequence of bridging events, stopping early (and
// logging) if any enqueue fails — a later reconciliation pass will pick
// up wherever this one left off.
func (r *Reconciler) converge(o *order.Order, events ...event.Event) {
	for _, ev := range events {
		if !r.emit(o, ev) {
			return
		}
	}
}

func (r *Reconciler) emit(o *order.Order, ev event.Event) bool {
	if err := r.eng.Process(ev); err != nil {
		log.Error().Err(err).
			Str("client_order_id", string(o.ClientOrderID)).
			Str("event", string(ev.Kind())).
			Msg("reconciliation: failed to enqueue convergence event")
		return false
	}
	return true
}

// fsmOrder is the lattice of pre-terminal states reconciliation knows how
// to bridge through, in ascending order. Stop-order TRIGGERED branches
// are intentionally excluded: reconciliation always bridges via WORKING,
// which is a legal predecessor for every event a bridge might need next.
var fsmOrder = []orderstate.State{
	orderstate.Initialized,
	orderstate.Submitted,
	orderstate.Accepted,
	orderstate.Working,
}

func indexOf(s orderstate.State, set []orderstate.State) int {
	for i, x := range set {
		if x == s {
			return i
		}
	}
	return -1
}

// bridgeEvents returns the ordered lifecycle events needed to legally
// advance o from its current state up to (and including) upTo, so that a
// subsequent synthesized event (a fill, a cancel) finds the order in a
// state the §4.2 transition table accepts.
func bridgeEvents(o *order.Order, upTo orderstate.State) []event.Event {
	curIdx := indexOf(o.State, fsmOrder)
	targetIdx := indexOf(upTo, fsmOrder)
	if curIdx < 0 || targetIdx < 0 || curIdx >= targetIdx {
		return nil
	}

	var out []event.Event
	cur := o.State
	for indexOf(cur, fsmOrder) < targetIdx {
		switch cur {
		case orderstate.Initialized:
			out = append(out, event.OrderSubmitted{Header: hdr(o)})
			cur = orderstate.Submitted
		case orderstate.Submitted:
			out = append(out, event.OrderAccepted{Header: hdr(o), OrderID: fallbackOrderID(o)})
			cur = orderstate.Accepted
		case orderstate.Accepted:
			out = append(out, event.OrderWorking{Header: hdr(o), OrderID: fallbackOrderID(o), Price: o.Price})
			cur = orderstate.Working
		default:
			return out
		}
	}
	return out
}

// stateOnlyEvents returns the event(s) needed to converge o onto resolved
// when no new fill quantity is involved.
func stateOnlyEvents(o *order.Order, resolved orderstate.State) []event.Event {
	switch resolved {
	case orderstate.Accepted:
		return bridgeEvents(o, orderstate.Accepted)
	case orderstate.Working:
		return bridgeEvents(o, orderstate.Working)
	case orderstate.Cancelled:
		return append(bridgeEvents(o, orderstate.Working),
			event.OrderCancelled{Header: hdr(o), OrderID: fallbackOrderID(o)})
	case orderstate.Expired:
		return append(bridgeEvents(o, orderstate.Working),
			event.OrderExpired{Header: hdr(o), OrderID: fallbackOrderID(o)})
	case orderstate.Rejected:
		if o.State == orderstate.Submitted {
			return []event.Event{event.OrderRejected{Header: hdr(o), Reason: "reconciliation: venue reports rejected"}}
		}
		// REJECTED is only a legal successor of SUBMITTED; an order the
		// venue disowns after being accepted is represented as
		// cancelled instead, the closest legal terminal state.
		return append(bridgeEvents(o, orderstate.Working),
			event.OrderCancelled{Header: hdr(o), OrderID: fallbackOrderID(o)})
	default:
		return nil
	}
}

// buildFillEvent synthesizes the fill event needed to bring o's
// cumulative filled quantity up to reportedFilled (spec.md §4.5 step 3 /
// scenario 4: "the client synthesizes the missing fill event"). The fill
// price is approximated from the order's own working price since
// ExecutionStateReport only carries a cumulative filled quantity, not
// per-fill execution prices; a venue client wired with richer state
// reports can override this by emitting its own fill events directly
// through engine.Process instead of waiting on reconciliation.
func buildFillEvent(o *order.Order, resolved orderstate.State, reportedFilled money.Quantity) event.Event {
	delta := reportedFilled.Decimal.Sub(o.FilledQty.Decimal)
	leaves := money.NewQuantity(o.Quantity.Decimal.Sub(reportedFilled.Decimal), o.Quantity.Precision)

	fill := event.Fill{
		ExecutionID: identifiers.ExecutionID(fmt.Sprintf("reconcile-%s-%s", o.ClientOrderID, reportedFilled.Decimal.String())),
		Price:       fillPrice(o),
		Quantity:    money.NewQuantity(delta, o.Quantity.Precision),
	}

	if resolved == orderstate.Filled {
		return event.OrderFilled{
			Header:    hdr(o),
			OrderID:   fallbackOrderID(o),
			Fill:      fill,
			CumQty:    reportedFilled,
			LeavesQty: leaves,
		}
	}
	return event.OrderPartiallyFilled{
		Header:    hdr(o),
		OrderID:   fallbackOrderID(o),
		Fill:      fill,
		CumQty:    reportedFilled,
		LeavesQty: leaves,
	}
}

func fillPrice(o *order.Order) money.Price {
	if o.Price != nil {
		return *o.Price
	}
	return o.AvgPrice
}

func fallbackOrderID(o *order.Order) identifiers.OrderID {
	if o.OrderID != "" {
		return o.OrderID
	}
	return identifiers.OrderID(o.ClientOrderID)
}

func hdr(o *order.Order) event.Header {
	return event.NewHeader(o.ClientOrderID, o.Sec.Venue, time.Now())
}

// RunForever polls Reconcile on config.PollInterval until ctx is
// cancelled, logging an error for every failed pass. While the gate is
// tripped, passes are skipped until its cooldown lets Allow reset it.
func (r *Reconciler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.gate.Allow() {
				continue
			}
			if _, err := r.Reconcile(ctx); err != nil {
				log.Error().Err(err).Msg("reconciliation pass failed")
			}
		}
	}
}
