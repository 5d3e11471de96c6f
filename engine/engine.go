// Package engine implements the execution engine's single-consumer
// message loop (spec.md §4.4/§5): a bounded FIFO queue of commands and
// events, drained by exactly one goroutine so order state transitions
// never race.
//
// Grounded on core/engine.go's mainLoop (single goroutine draining a tick
// channel until stopCh closes) and core/router.go's per-market dispatch
// table from the teacher repo, generalized from "route ticks to
// strategies" into "route commands to venue clients and fold venue
// events into order state".
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/axiom-trade/exengine/account"
	"github.com/axiom-trade/exengine/client"
	"github.com/axiom-trade/exengine/command"
	"github.com/axiom-trade/exengine/event"
	"github.com/axiom-trade/exengine/execdb"
	"github.com/axiom-trade/exengine/identifiers"
	"github.com/axiom-trade/exengine/order"
	"github.com/axiom-trade/exengine/position"
)

// Gate reports whether the engine may currently route commands to venue
// clients. *reconcile.Gate satisfies this structurally; engine cannot
// import reconcile directly since reconcile already imports engine.
type Gate interface{ Allow() bool }

// LifecycleState is the engine's own coarse state, distinct from any
// single order's FSM state.
type LifecycleState int32

const (
	PreInitialized LifecycleState = iota
	Initialized
	Running
	Stopped
	Disposed
)

func (s LifecycleState) String() string {
	switch s {
	case PreInitialized:
		return "PRE_INITIALIZED"
	case Initialized:
		return "INITIALIZED"
	case Running:
		return "RUNNING"
	case Stopped:
		return "STOPPED"
	case Disposed:
		return "DISPOSED"
	default:
		return "UNKNOWN"
	}
}

// message is the tagged envelope the single consumer goroutine dequeues;
// exactly one of Command or Event is set.
type message struct {
	cmd command.Command
	ev  event.Event
}

// EventHandler is invoked by the consumer goroutine for every event after
// it has been folded into local order state — the hook a portfolio
// projection or reconciliation pass registers to observe the stream.
type EventHandler func(event.Event)

// Engine is the execution engine: one bounded queue, one consumer, a
// registry of venue clients, and the authoritative local order cache.
type Engine struct {
	qsize int
	queue chan message

	mu      sync.RWMutex
	clients map[identifiers.Venue]client.ExecutionClient
	orders  map[identifiers.ClientOrderID]*order.Order

	db execdb.Database

	gate Gate

	loadedPositions []*position.Position
	loadedAccounts  []*account.Account

	state    atomic.Int32
	done     chan struct{}
	handlers []EventHandler

	clientCancel map[identifiers.Venue]context.CancelFunc
}

// New constructs an Engine in PRE_INITIALIZED state with a bounded queue
// of qsize messages.
func New(db execdb.Database, qsize int) *Engine {
	e := &Engine{
		qsize:        qsize,
		queue:        make(chan message, qsize),
		clients:      make(map[identifiers.Venue]client.ExecutionClient),
		orders:       make(map[identifiers.ClientOrderID]*order.Order),
		db:           db,
		done:         make(chan struct{}),
		clientCancel: make(map[identifiers.Venue]context.CancelFunc),
	}
	e.state.Store(int32(PreInitialized))
	return e
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() LifecycleState { return LifecycleState(e.state.Load()) }

// Qsize returns the number of messages currently queued, for backpressure
// monitoring.
func (e *Engine) Qsize() int { return len(e.queue) }

// SetGate wires the reconciliation circuit breaker that dispatchCommand
// consults before routing a command to its venue client (spec §7):
// while the gate is closed, commands are rejected instead of reaching
// the venue. Must be called before Start, or racily thereafter only if
// the caller accepts a few commands slipping through ungated.
func (e *Engine) SetGate(g Gate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gate = g
}

// LoadedPositions returns the positions restored from the database at
// Start, for a caller (the portfolio projection) to seed itself with.
func (e *Engine) LoadedPositions() []*position.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loadedPositions
}

// LoadedAccounts returns the accounts restored from the database at
// Start, for a caller (the portfolio projection) to seed itself with.
func (e *Engine) LoadedAccounts() []*account.Account {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loadedAccounts
}

// OnEvent registers a handler invoked for every AccountState event and
// for every order event whose order the engine knows, after order state
// has been updated. Events for unknown orders are logged and dropped
// without reaching handlers. Handlers run on the consumer goroutine and
// must not block.
func (e *Engine) OnEvent(h EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, h)
}

// RegisterClient attaches a venue client and starts forwarding its
// Events() stream into the engine's queue. The engine must not yet be
// RUNNING when a client is registered, matching the teacher's
// construct-then-Start ordering.
func (e *Engine) RegisterClient(c client.ExecutionClient) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if LifecycleState(e.state.Load()) == Running {
		return fmt.Errorf("engine: cannot register client %s while running", c.Venue())
	}
	e.clients[c.Venue()] = c
	e.state.CompareAndSwap(int32(PreInitialized), int32(Initialized))
	return nil
}

// DeregisterClient removes a venue client; safe to call while running.
// It stops forwarding the client's Events() stream at once, so events
// the client emits afterwards (including those for in-flight commands)
// no longer reach the engine. The client itself is not disconnected.
func (e *Engine) DeregisterClient(venue identifiers.Venue) {
	e.mu.Lock()
	cancel, ok := e.clientCancel[venue]
	delete(e.clients, venue)
	delete(e.clientCancel, venue)
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

// Start connects every registered client, spins up one forwarding
// goroutine per client plus the single consumer goroutine, and moves the
// engine to RUNNING.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if LifecycleState(e.state.Load()) == Running {
		e.mu.Unlock()
		return fmt.Errorf("engine: already running")
	}
	clients := make([]client.ExecutionClient, 0, len(e.clients))
	for _, c := range e.clients {
		clients = append(clients, c)
	}
	e.mu.Unlock()

	if e.db != nil {
		if err := e.restoreState(); err != nil {
			return err
		}
	}

	for _, c := range clients {
		if err := c.Connect(ctx); err != nil {
			return fmt.Errorf("engine: connect %s: %w", c.Venue(), err)
		}
		clientCtx, cancel := context.WithCancel(ctx)
		e.mu.Lock()
		e.clientCancel[c.Venue()] = cancel
		e.mu.Unlock()
		go e.forwardEvents(clientCtx, c)
	}

	e.state.Store(int32(Running))
	go e.consume()
	log.Info().Int("clients", len(clients)).Msg("execution engine started")
	return nil
}

// restoreState loads every durably persisted order, position, and
// account so OrdersOpen() (and therefore reconciliation) has something
// to work with immediately after a restart (spec §4.1/§6), instead of
// waiting for a venue client to push fresh events.
func (e *Engine) restoreState() error {
	orders, err := e.db.LoadOrders()
	if err != nil {
		return fmt.Errorf("engine: load orders: %w", err)
	}
	positions, err := e.db.LoadPositions()
	if err != nil {
		return fmt.Errorf("engine: load positions: %w", err)
	}
	accounts, err := e.db.LoadAccounts()
	if err != nil {
		return fmt.Errorf("engine: load accounts: %w", err)
	}

	e.mu.Lock()
	for _, o := range orders {
		e.orders[o.ClientOrderID] = o
	}
	e.loadedPositions = positions
	e.loadedAccounts = accounts
	e.mu.Unlock()

	log.Info().
		Int("orders", len(orders)).
		Int("positions", len(positions)).
		Int("accounts", len(accounts)).
		Msg("engine: restored persisted state")
	return nil
}

func (e *Engine) forwardEvents(ctx context.Context, c client.ExecutionClient) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.Events():
			if !ok {
				return
			}
			if err := e.Process(ev); err != nil {
				log.Error().Err(err).Str("venue", string(c.Venue())).Msg("engine: drop event, queue closed")
				return
			}
		}
	}
}

// Execute enqueues a command for the consumer to route to its venue
// client. Validation happens synchronously here, at the boundary (spec
// §7): a command that fails validation is rejected before it ever
// touches the queue. Callers must never construct command.Shutdown
// themselves; only Stop does.
func (e *Engine) Execute(cmd command.Command) error {
	if cmd.Kind() == command.KindShutdown {
		return fmt.Errorf("engine: command.Shutdown may only be enqueued by Stop")
	}
	if err := validateCommand(cmd); err != nil {
		return fmt.Errorf("engine: validation failed: %w", err)
	}
	return e.enqueue(message{cmd: cmd})
}

// Process enqueues an event for the consumer to fold into order state.
// Exposed directly so tests can drive the FSM without a live client.
func (e *Engine) Process(ev event.Event) error {
	return e.enqueue(message{ev: ev})
}

// enqueue is the engine's one suspension point (spec §5): execute/process
// block until a queue slot opens rather than reject the caller's command,
// so submission order at the client matches submission order onto the
// queue. A stopped engine (e.done closed by consume on command.Shutdown)
// unblocks a parked sender instead of leaking it forever.
func (e *Engine) enqueue(msg message) error {
	select {
	case e.queue <- msg:
		return nil
	default:
	}
	log.Warn().Int("qsize", e.qsize).Msg("engine: queue full, execute/process blocking for a free slot")
	select {
	case e.queue <- msg:
		return nil
	case <-e.done:
		return fmt.Errorf("engine: stopped while waiting for a queue slot")
	}
}

func validateCommand(cmd command.Command) error {
	switch c := cmd.(type) {
	case command.SubmitOrder:
		return c.Order.Validate()
	case command.SubmitBracketOrder:
		return c.Validate()
	case command.CancelOrder:
		if c.ClientOrderID.IsEmpty() {
			return fmt.Errorf("cancel order: client_order_id must not be empty")
		}
	case command.ModifyOrder:
		if c.ClientOrderID.IsEmpty() {
			return fmt.Errorf("modify order: client_order_id must not be empty")
		}
	}
	return nil
}

// Stop enqueues command.Shutdown and blocks until the consumer goroutine
// has drained the queue and exited.
func (e *Engine) Stop(ctx context.Context) error {
	if LifecycleState(e.state.Load()) != Running {
		return nil
	}
	select {
	case e.queue <- message{cmd: command.Shutdown{}}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-e.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	e.state.Store(int32(Stopped))
	return nil
}

// Kill forces the engine to DISPOSED without waiting for the queue to
// drain, for use when a fatal error has already been raised (spec §7).
func (e *Engine) Kill() {
	e.state.Store(int32(Disposed))
	e.mu.Lock()
	for _, cancel := range e.clientCancel {
		cancel()
	}
	e.mu.Unlock()
}

func (e *Engine) consume() {
	defer close(e.done)
	for msg := range e.queue {
		if msg.cmd != nil && msg.cmd.Kind() == command.KindShutdown {
			return
		}
		if msg.cmd != nil {
			e.dispatchCommand(msg.cmd)
		}
		if msg.ev != nil {
			e.dispatchEvent(msg.ev)
		}
	}
}

func (e *Engine) dispatchCommand(cmd command.Command) {
	sec := cmd.Security()
	e.mu.RLock()
	c, ok := e.clients[sec.Venue]
	gate := e.gate
	e.mu.RUnlock()
	if !ok {
		log.Error().Str("venue", string(sec.Venue)).Msg("engine: no client registered for venue")
		return
	}

	if gate != nil && !gate.Allow() {
		log.Warn().Str("kind", string(cmd.Kind())).Msg("engine: reconciliation gate closed, rejecting command")
		e.rejectGated(cmd)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch m := cmd.(type) {
	case command.SubmitOrder:
		e.trackNewOrder(order.New(m.Order))
		if err := c.SubmitOrder(ctx, m.Order); err != nil {
			log.Error().Err(err).Str("client_order_id", string(m.Order.ClientOrderID)).Msg("engine: submit order failed")
		}
	case command.SubmitBracketOrder:
		e.trackNewOrder(order.New(m.Entry))
		e.trackNewOrder(order.New(m.StopLoss))
		e.trackNewOrder(order.New(m.TakeProfit))
		if err := c.SubmitBracketOrder(ctx, m); err != nil {
			log.Error().Err(err).Msg("engine: submit bracket order failed")
		}
	case command.CancelOrder:
		if err := c.CancelOrder(ctx, m); err != nil {
			log.Error().Err(err).Str("client_order_id", string(m.ClientOrderID)).Msg("engine: cancel order failed")
		}
	case command.ModifyOrder:
		if err := c.ModifyOrder(ctx, m); err != nil {
			log.Error().Err(err).Str("client_order_id", string(m.ClientOrderID)).Msg("engine: modify order failed")
		}
	}
}

// rejectGated answers a command with a rejection instead of routing it to
// a venue client while reconciliation is degraded (spec §7, end-to-end
// scenario 5: "subsequent execute() calls yield rejection events until a
// later successful reconcile"). Only order submission gets a synthetic
// terminal event; cancel/modify against an already-working order has no
// legal "rejected" transition to bridge to, so those are simply dropped
// with a warning for the caller's next reconcile pass to surface.
func (e *Engine) rejectGated(cmd command.Command) {
	switch m := cmd.(type) {
	case command.SubmitOrder:
		e.trackNewOrder(order.New(m.Order))
		e.rejectNewOrder(m.Order.ClientOrderID, m.Order.Sec.Venue)
	case command.SubmitBracketOrder:
		e.trackNewOrder(order.New(m.Entry))
		e.trackNewOrder(order.New(m.StopLoss))
		e.trackNewOrder(order.New(m.TakeProfit))
		e.rejectNewOrder(m.Entry.ClientOrderID, m.Entry.Sec.Venue)
		e.rejectNewOrder(m.StopLoss.ClientOrderID, m.StopLoss.Sec.Venue)
		e.rejectNewOrder(m.TakeProfit.ClientOrderID, m.TakeProfit.Sec.Venue)
	case command.CancelOrder:
		log.Warn().Str("client_order_id", string(m.ClientOrderID)).Msg("engine: cancel dropped while reconciliation gate closed")
	case command.ModifyOrder:
		log.Warn().Str("client_order_id", string(m.ClientOrderID)).Msg("engine: modify dropped while reconciliation gate closed")
	}
}

func (e *Engine) rejectNewOrder(id identifiers.ClientOrderID, venue identifiers.Venue) {
	now := time.Now()
	e.dispatchEvent(event.OrderSubmitted{Header: event.NewHeader(id, venue, now)})
	e.dispatchEvent(event.OrderRejected{Header: event.NewHeader(id, venue, now), Reason: "reconciliation gate closed"})
}

func (e *Engine) trackNewOrder(o *order.Order) {
	e.mu.Lock()
	e.orders[o.ClientOrderID] = o
	e.mu.Unlock()
	if e.db != nil {
		if err := e.db.AddOrder(o); err != nil {
			log.Error().Err(err).Str("client_order_id", string(o.ClientOrderID)).Msg("engine: persist new order")
		}
	}
}

func (e *Engine) dispatchEvent(ev event.Event) {
	if ev.Kind() == event.KindAccountState {
		// Account pushes belong to no order; they go straight to the handlers.
		e.mu.RLock()
		handlers := append([]EventHandler(nil), e.handlers...)
		e.mu.RUnlock()
		for _, h := range handlers {
			h(ev)
		}
		return
	}

	e.mu.Lock()
	o, ok := e.orders[ev.ClientOrder()]
	e.mu.Unlock()
	if !ok {
		log.Warn().Str("client_order_id", string(ev.ClientOrder())).Msg("engine: event for unknown order")
		return
	}

	if err := o.Apply(ev); err != nil {
		log.Error().Err(err).Str("client_order_id", string(o.ClientOrderID)).Msg("engine: order state violation")
	}
	if e.db != nil {
		if err := e.db.UpdateOrder(o); err != nil {
			log.Error().Err(err).Str("client_order_id", string(o.ClientOrderID)).Msg("engine: persist order update")
		}
	}

	e.mu.RLock()
	handlers := append([]EventHandler(nil), e.handlers...)
	e.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

// Order returns the engine's local copy of an order by client id.
func (e *Engine) Order(id identifiers.ClientOrderID) (*order.Order, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, ok := e.orders[id]
	return o, ok
}

// OrdersOpen returns every order not yet in a terminal state, the set
// the reconciliation protocol polls venues about (spec §4.5).
func (e *Engine) OrdersOpen() []*order.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*order.Order, 0)
	for _, o := range e.orders {
		if !o.State.IsTerminal() {
			out = append(out, o)
		}
	}
	return out
}

// Client returns the registered client for venue, if any.
func (e *Engine) Client(venue identifiers.Venue) (client.ExecutionClient, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.clients[venue]
	return c, ok
}
