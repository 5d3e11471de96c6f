// Package portfolio is a pure projection over the event stream the engine
// forwards (spec.md §4.6): it never talks to a venue client itself, only
// folds OrderFilled/OrderPartiallyFilled/AccountState events into
// position and account state.
//
// Grounded on core/engine.go's in-memory positions map and
// risk/manager.go's equity tracking from the teacher repo, split out of
// the engine entirely so order routing and portfolio accounting can be
// tested independently — the teacher's Engine did both in one struct.
package portfolio

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/axiom-trade/exengine/account"
	"github.com/axiom-trade/exengine/currency"
	"github.com/axiom-trade/exengine/event"
	"github.com/axiom-trade/exengine/eventlog"
	"github.com/axiom-trade/exengine/identifiers"
	"github.com/axiom-trade/exengine/order"
	"github.com/axiom-trade/exengine/position"
)

// OrderLookup resolves the order a fill event belongs to, so the
// projection can learn its StrategyID and Side without engine carrying
// portfolio-shaped state itself.
type OrderLookup interface {
	Order(id identifiers.ClientOrderID) (*order.Order, bool)
}

// Portfolio maintains positions per (StrategyID, Security) and accounts
// per Venue, deduplicating fills by (Venue, ExecutionID) against an
// eventlog.Store (spec.md §9's Open Question decision).
type Portfolio struct {
	mu        sync.RWMutex
	positions map[position.Key]*position.Position
	accounts  map[identifiers.Venue]*account.Account

	orders  OrderLookup
	journal *eventlog.Store
	quote   currency.Currency
}

// New builds an empty Portfolio. orders resolves fills back to their
// owning order; journal deduplicates fills; quote is the currency new
// positions denominate PnL in.
func New(orders OrderLookup, journal *eventlog.Store, quote currency.Currency) *Portfolio {
	return &Portfolio{
		positions: make(map[position.Key]*position.Position),
		accounts:  make(map[identifiers.Venue]*account.Account),
		orders:    orders,
		journal:   journal,
		quote:     quote,
	}
}

// Seed loads positions and accounts restored by the engine at startup
// (engine.Engine.LoadedPositions/LoadedAccounts) into the projection, so
// a restart doesn't present an empty book until the next fill arrives.
func (p *Portfolio) Seed(positions []*position.Position, accounts []*account.Account) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pos := range positions {
		p.positions[pos.Key] = pos
	}
	for _, a := range accounts {
		p.accounts[a.Venue] = a
	}
}

// HandleEvent is an engine.EventHandler: register it via Engine.OnEvent
// to keep the portfolio in sync with the order stream.
func (p *Portfolio) HandleEvent(ev event.Event) {
	switch e := ev.(type) {
	case event.OrderPartiallyFilled:
		p.applyFill(ev.ClientOrder(), ev.Venue(), e.Fill)
	case event.OrderFilled:
		p.applyFill(ev.ClientOrder(), ev.Venue(), e.Fill)
	case event.AccountState:
		p.applyAccountState(e)
	}
}

func (p *Portfolio) applyFill(clientOrderID identifiers.ClientOrderID, venue identifiers.Venue, f event.Fill) {
	if p.journal != nil {
		seen, err := p.journal.Seen(venue, f.ExecutionID)
		if err != nil {
			log.Error().Err(err).Msg("portfolio: eventlog lookup failed, folding fill anyway")
		} else if seen {
			log.Warn().
				Str("venue", string(venue)).
				Str("execution_id", string(f.ExecutionID)).
				Msg("portfolio: duplicate execution id dropped")
			return
		}
	}

	o, ok := p.orders.Order(clientOrderID)
	if !ok {
		log.Warn().Str("client_order_id", string(clientOrderID)).Msg("portfolio: fill for unknown order")
		return
	}

	key := position.Key{StrategyID: o.StrategyID, Sec: o.Sec}
	p.mu.Lock()
	pos, ok := p.positions[key]
	if !ok {
		pos = position.New(key, p.quote)
		p.positions[key] = pos
	}
	pos.ApplyFill(o.Side, f)
	p.mu.Unlock()

	if p.journal != nil {
		if err := p.journal.Record(venue, f.ExecutionID, clientOrderID); err != nil {
			log.Error().Err(err).Msg("portfolio: record execution id failed")
		}
	}
}

func (p *Portfolio) applyAccountState(e event.AccountState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.accounts[e.VenueName]
	if !ok {
		a = &account.Account{}
		p.accounts[e.VenueName] = a
	}
	a.Apply(e)
}

// Position returns the current position for key, if any fills have been
// folded into it yet.
func (p *Portfolio) Position(key position.Key) (*position.Position, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, ok := p.positions[key]
	return pos, ok
}

// Positions returns a snapshot of every tracked position.
func (p *Portfolio) Positions() []*position.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*position.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos)
	}
	return out
}

// Account returns the current account state for venue, if any push has
// arrived yet.
func (p *Portfolio) Account(venue identifiers.Venue) (*account.Account, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.accounts[venue]
	return a, ok
}
