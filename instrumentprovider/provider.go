// Package instrumentprovider is an in-memory Security -> Instrument
// registry, the source of contract metadata the engine never infers
// from wire data on its own (spec.md §6).
//
// Grounded on core/symbols.go's SymbolManager (RWMutex-guarded map,
// Add/Get/ActiveMarkets) from the teacher repo, keyed here by
// identifiers.Security instead of a bare market id string.
package instrumentprovider

import (
	"fmt"
	"sync"

	"github.com/axiom-trade/exengine/identifiers"
	"github.com/axiom-trade/exengine/instrument"
)

// Provider is an in-memory instrument registry.
type Provider struct {
	mu          sync.RWMutex
	instruments map[identifiers.Security]*instrument.Instrument
}

// New returns an empty Provider.
func New() *Provider {
	return &Provider{instruments: make(map[identifiers.Security]*instrument.Instrument)}
}

// Add registers or replaces the instrument for its Security.
func (p *Provider) Add(i *instrument.Instrument) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.instruments[i.Security] = i
}

// Get returns the instrument for sec, or an error if none is registered.
func (p *Provider) Get(sec identifiers.Security) (*instrument.Instrument, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	i, ok := p.instruments[sec]
	if !ok {
		return nil, fmt.Errorf("instrumentprovider: no instrument registered for %s", sec)
	}
	return i, nil
}

// All returns every registered instrument.
func (p *Provider) All() []*instrument.Instrument {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*instrument.Instrument, 0, len(p.instruments))
	for _, i := range p.instruments {
		out = append(out, i)
	}
	return out
}

// Count returns the number of registered instruments.
func (p *Provider) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.instruments)
}
