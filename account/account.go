// Package account tracks one venue's account metrics as pushed by
// event.AccountState, mirroring spec.md §3's account value object.
//
// Grounded on risk/manager.go's equity/margin bookkeeping from the teacher
// repo, narrowed to a pure projection over AccountState events rather than
// a component that also makes risk decisions.
package account

import (
	"time"

	"github.com/axiom-trade/exengine/event"
	"github.com/axiom-trade/exengine/identifiers"
	"github.com/axiom-trade/exengine/money"
)

// Account is one venue's account state as last reported.
type Account struct {
	Venue      identifiers.Venue
	Balance    money.Money
	UsedMargin money.Money
	FreeMargin money.Money
	MarginCall bool
	UpdatedAt  time.Time
}

// Apply folds an AccountState push into the account record.
func (a *Account) Apply(e event.AccountState) {
	a.Venue = e.VenueName
	a.Balance = e.Balance
	a.UsedMargin = e.UsedMargin
	a.FreeMargin = e.FreeMargin
	a.MarginCall = e.MarginCall
	a.UpdatedAt = e.Timestamp
}
