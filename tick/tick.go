// Package tick defines the QuoteTick/TradeTick market data value objects
// (spec.md §3/§6), with a strict fixed-field wire form for the replay
// file format. No other package in this module imports it.
//
// Grounded on feeds/orderbook.go's Level{Price, Size} pair and its
// parseLevelsInterface row-validation style from the teacher repo,
// adapted from an in-memory book update into a serializable tick value.
package tick

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/axiom-trade/exengine/command"
	"github.com/axiom-trade/exengine/identifiers"
)

// QuoteTick is a top-of-book snapshot for one Security at one instant.
// Sec is carried on the value but is never part of the wire row itself —
// the security a row belongs to is known out-of-band (the channel or
// file a row arrived on), matching spec.md §6's "appended after the
// security id" phrasing: the id is the row's addressing key, not one of
// its five fields.
type QuoteTick struct {
	Sec       identifiers.Security
	BidPrice  decimal.Decimal
	AskPrice  decimal.Decimal
	BidSize   decimal.Decimal
	AskSize   decimal.Decimal
	Timestamp time.Time
}

// TradeTick is a single executed trade print for one Security.
type TradeTick struct {
	Sec          identifiers.Security
	Price        decimal.Decimal
	Size         decimal.Decimal
	Side         command.Side
	TradeMatchID identifiers.TradeMatchID
	Timestamp    time.Time
}

// Serialize renders a QuoteTick as the fixed 5-field wire row spec.md §6
// mandates: bid,ask,bid_size,ask_size,unix_ms.
func (q QuoteTick) Serialize() string {
	return strings.Join([]string{
		q.BidPrice.String(),
		q.AskPrice.String(),
		q.BidSize.String(),
		q.AskSize.String(),
		strconv.FormatInt(q.Timestamp.UnixMilli(), 10),
	}, ",")
}

// ParseQuoteTick parses one row produced by Serialize for the given
// Security. Parsing is strict (spec §8's round-trip law): any row that
// does not have exactly 5 comma-separated fields is rejected outright.
func ParseQuoteTick(row string, sec identifiers.Security) (QuoteTick, error) {
	fields := strings.Split(row, ",")
	if len(fields) != 5 {
		return QuoteTick{}, fmt.Errorf("tick: quote row has %d fields, want 5: %q", len(fields), row)
	}

	bidPx, err := decimal.NewFromString(fields[0])
	if err != nil {
		return QuoteTick{}, fmt.Errorf("tick: invalid bid %q: %w", fields[0], err)
	}
	askPx, err := decimal.NewFromString(fields[1])
	if err != nil {
		return QuoteTick{}, fmt.Errorf("tick: invalid ask %q: %w", fields[1], err)
	}
	bidSz, err := decimal.NewFromString(fields[2])
	if err != nil {
		return QuoteTick{}, fmt.Errorf("tick: invalid bid_size %q: %w", fields[2], err)
	}
	askSz, err := decimal.NewFromString(fields[3])
	if err != nil {
		return QuoteTick{}, fmt.Errorf("tick: invalid ask_size %q: %w", fields[3], err)
	}
	ts, err := parseUnixMs(fields[4])
	if err != nil {
		return QuoteTick{}, err
	}

	return QuoteTick{
		Sec:       sec,
		BidPrice:  bidPx,
		AskPrice:  askPx,
		BidSize:   bidSz,
		AskSize:   askSz,
		Timestamp: ts,
	}, nil
}

// Serialize renders a TradeTick as the fixed 5-field wire row spec.md §6
// mandates: price,size,side,match_id,unix_ms.
func (t TradeTick) Serialize() string {
	return strings.Join([]string{
		t.Price.String(),
		t.Size.String(),
		string(t.Side),
		string(t.TradeMatchID),
		strconv.FormatInt(t.Timestamp.UnixMilli(), 10),
	}, ",")
}

// ParseTradeTick parses one row produced by TradeTick.Serialize for the
// given Security, rejecting any row without exactly 5 fields or whose
// side is not BUY/SELL.
func ParseTradeTick(row string, sec identifiers.Security) (TradeTick, error) {
	fields := strings.Split(row, ",")
	if len(fields) != 5 {
		return TradeTick{}, fmt.Errorf("tick: trade row has %d fields, want 5: %q", len(fields), row)
	}

	price, err := decimal.NewFromString(fields[0])
	if err != nil {
		return TradeTick{}, fmt.Errorf("tick: invalid price %q: %w", fields[0], err)
	}
	size, err := decimal.NewFromString(fields[1])
	if err != nil {
		return TradeTick{}, fmt.Errorf("tick: invalid size %q: %w", fields[1], err)
	}
	side := command.Side(fields[2])
	if side != command.Buy && side != command.Sell {
		return TradeTick{}, fmt.Errorf("tick: invalid side %q, want BUY or SELL", fields[2])
	}
	ts, err := parseUnixMs(fields[4])
	if err != nil {
		return TradeTick{}, err
	}

	return TradeTick{
		Sec:          sec,
		Price:        price,
		Size:         size,
		Side:         side,
		TradeMatchID: identifiers.TradeMatchID(fields[3]),
		Timestamp:    ts,
	}, nil
}

func parseUnixMs(field string) (time.Time, error) {
	ms, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("tick: invalid unix_ms timestamp %q: %w", field, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// Mid returns the midpoint of bid and ask, or zero if either side is
// empty — matching the teacher's BestBid/BestAsk zero-on-empty idiom.
func (q QuoteTick) Mid() decimal.Decimal {
	if q.BidPrice.IsZero() || q.AskPrice.IsZero() {
		return decimal.Zero
	}
	return q.BidPrice.Add(q.AskPrice).Div(decimal.NewFromInt(2))
}

// Spread returns ask-bid, or zero if either side is empty.
func (q QuoteTick) Spread() decimal.Decimal {
	if q.BidPrice.IsZero() || q.AskPrice.IsZero() {
		return decimal.Zero
	}
	return q.AskPrice.Sub(q.BidPrice)
}
