// Package execdb defines the execution database abstraction spec.md §4.1
// names: the durable store of orders, positions, and accounts the engine
// consults on startup and writes through during normal operation.
//
// Grounded on execution/executor.go's Executor, which kept orders and
// positions in sync.RWMutex-guarded maps; Database generalizes that cache
// into an interface so a persistence package can back it with GORM while
// tests use the in-memory implementation below.
package execdb

import (
	"fmt"
	"sync"

	"github.com/axiom-trade/exengine/account"
	"github.com/axiom-trade/exengine/identifiers"
	"github.com/axiom-trade/exengine/order"
	"github.com/axiom-trade/exengine/position"
)

// Database is the execution engine's durable state boundary (spec §4.1).
// Implementations must be safe for concurrent use; the engine's consumer
// goroutine is the only writer, but reconciliation and read-side queries
// may run concurrently from other goroutines.
type Database interface {
	AddOrder(o *order.Order) error
	UpdateOrder(o *order.Order) error
	Order(id identifiers.ClientOrderID) (*order.Order, bool)
	Orders() []*order.Order
	OrdersOpen() []*order.Order

	UpsertPosition(p *position.Position) error
	Position(key position.Key) (*position.Position, bool)
	Positions() []*position.Position

	UpdateAccount(a *account.Account) error
	Account(venue identifiers.Venue) (*account.Account, bool)
	Accounts() []*account.Account

	LoadOrders() ([]*order.Order, error)
	LoadPositions() ([]*position.Position, error)
	LoadAccounts() ([]*account.Account, error)

	Close() error
}

// Memory is an in-memory Database, suitable for tests and for backtests
// where no durable store is wired.
type Memory struct {
	mu        sync.RWMutex
	orders    map[identifiers.ClientOrderID]*order.Order
	positions map[position.Key]*position.Position
	accounts  map[identifiers.Venue]*account.Account
}

// NewMemory returns an empty in-memory Database.
func NewMemory() *Memory {
	return &Memory{
		orders:    make(map[identifiers.ClientOrderID]*order.Order),
		positions: make(map[position.Key]*position.Position),
		accounts:  make(map[identifiers.Venue]*account.Account),
	}
}

func (m *Memory) AddOrder(o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[o.ClientOrderID]; exists {
		return fmt.Errorf("execdb: order %s already exists", o.ClientOrderID)
	}
	m.orders[o.ClientOrderID] = o
	return nil
}

func (m *Memory) UpdateOrder(o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[o.ClientOrderID]; !exists {
		return fmt.Errorf("execdb: order %s not found", o.ClientOrderID)
	}
	m.orders[o.ClientOrderID] = o
	return nil
}

func (m *Memory) Order(id identifiers.ClientOrderID) (*order.Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	return o, ok
}

func (m *Memory) Orders() []*order.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*order.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	return out
}

func (m *Memory) OrdersOpen() []*order.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*order.Order, 0)
	for _, o := range m.orders {
		if !o.State.IsTerminal() {
			out = append(out, o)
		}
	}
	return out
}

func (m *Memory) UpsertPosition(p *position.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.Key] = p
	return nil
}

func (m *Memory) Position(key position.Key) (*position.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[key]
	return p, ok
}

func (m *Memory) Positions() []*position.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*position.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out
}

func (m *Memory) UpdateAccount(a *account.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.Venue] = a
	return nil
}

func (m *Memory) Account(venue identifiers.Venue) (*account.Account, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[venue]
	return a, ok
}

func (m *Memory) Accounts() []*account.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*account.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	return out
}

func (m *Memory) LoadOrders() ([]*order.Order, error)       { return m.Orders(), nil }
func (m *Memory) LoadPositions() ([]*position.Position, error) { return m.Positions(), nil }
func (m *Memory) LoadAccounts() ([]*account.Account, error) { return m.Accounts(), nil }
func (m *Memory) Close() error                              { return nil }
