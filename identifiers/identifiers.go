// Package identifiers defines the small immutable value types that name
// things across the execution engine: securities, venues, and the handful
// of order/fill identifiers that flow through commands and events.
//
// Kept in its own package, the way the teacher repo's types package holds
// shared value types, specifically to avoid import cycles between order,
// event, command, client, and engine.
package identifiers

import (
	"fmt"

	"github.com/google/uuid"
)

// AssetClass is the broad category of a tradable instrument.
type AssetClass string

const (
	AssetClassFX       AssetClass = "FX"
	AssetClassEquity   AssetClass = "EQUITY"
	AssetClassCrypto   AssetClass = "CRYPTO"
	AssetClassCommodity AssetClass = "COMMODITY"
	AssetClassIndex    AssetClass = "INDEX"
)

// AssetType narrows an AssetClass to a tradable contract shape.
type AssetType string

const (
	AssetTypeSpot     AssetType = "SPOT"
	AssetTypeSwap     AssetType = "SWAP"
	AssetTypeFuture   AssetType = "FUTURE"
	AssetTypeOption   AssetType = "OPTION"
	AssetTypeCFD      AssetType = "CFD"
)

// Venue is a trading counterparty or exchange; the namespace an OrderID
// lives in.
type Venue string

// Security is the globally unique identity of a tradable contract.
// Equality and hash are defined over all four components; Security is a
// comparable struct so plain `==` and use as a map key both do the right
// thing.
type Security struct {
	Symbol     string
	Venue      Venue
	AssetClass AssetClass
	AssetType  AssetType
}

// NewSecurity validates and constructs a Security.
func NewSecurity(symbol string, venue Venue, class AssetClass, typ AssetType) (Security, error) {
	if symbol == "" {
		return Security{}, fmt.Errorf("identifiers: symbol must not be empty")
	}
	if venue == "" {
		return Security{}, fmt.Errorf("identifiers: venue must not be empty")
	}
	return Security{Symbol: symbol, Venue: venue, AssetClass: class, AssetType: typ}, nil
}

// String renders the stable "<symbol>.<venue>" form from spec §6.
func (s Security) String() string {
	return fmt.Sprintf("%s.%s", s.Symbol, s.Venue)
}

// ClientOrderID is the strategy-assigned order identifier, unique within a
// process lifetime.
type ClientOrderID string

// IsEmpty reports whether the id was never assigned.
func (id ClientOrderID) IsEmpty() bool { return id == "" }

// OrderID is the venue-assigned order identifier, bound on acceptance.
type OrderID string

// IsEmpty reports whether the venue has not yet bound an id.
func (id OrderID) IsEmpty() bool { return id == "" }

// ExecutionID identifies a single fill event reported by a venue.
type ExecutionID string

// TradeMatchID identifies a matched trade at the venue, distinct from the
// fill/execution id (a single fill can reference a match shared with the
// counterparty side of the book).
type TradeMatchID string

// StrategyID names the strategy that owns a position.
type StrategyID string

// NewCorrelationID returns a fresh UUIDv4 correlation id, per spec §6.
func NewCorrelationID() string {
	return uuid.NewString()
}
