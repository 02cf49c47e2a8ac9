// Package model defines the core domain types shared across the quote engine.
// Prices on the venue are integer ticks; quantities are signed integers
// (positive = buy / long, negative = sell / short).
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product identifies a tradable instrument.
type Product string

// OrderBook is the visible depth for one product on one tick.
// Both maps are price → resting quantity.
type OrderBook struct {
	Bids map[int]int `json:"bids"`
	Asks map[int]int `json:"asks"`
}

// BestBid returns the highest bid price present.
func (b OrderBook) BestBid() (int, bool) {
	best, ok := 0, false
	for price := range b.Bids {
		if !ok || price > best {
			best, ok = price, true
		}
	}
	return best, ok
}

// BestAsk returns the lowest ask price present.
func (b OrderBook) BestAsk() (int, bool) {
	best, ok := 0, false
	for price := range b.Asks {
		if !ok || price < best {
			best, ok = price, true
		}
	}
	return best, ok
}

// Top returns the best bid and ask. ok is false when either side is empty;
// a one-sided book is not tradable.
func (b OrderBook) Top() (Top, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return Top{}, false
	}
	return Top{Bid: bid, Ask: ask}, true
}

// Top is the inside market of a book.
type Top struct {
	Bid int `json:"bid"`
	Ask int `json:"ask"`
}

// Mid is the average of best bid and best ask.
func (t Top) Mid() float64 {
	return float64(t.Bid+t.Ask) / 2
}

// Spread is bestAsk - bestBid.
func (t Top) Spread() float64 {
	return float64(t.Ask - t.Bid)
}

// TickSnapshot is the host-supplied market state for a single tick.
// It is treated as immutable for the duration of one decision pass.
type TickSnapshot struct {
	Timestamp  int64                 `json:"timestamp"`
	Books      map[Product]OrderBook `json:"books"`
	Positions  map[Product]int       `json:"positions"`
	TraderData string                `json:"trader_data"`
}

// Order is a limit order. Quantity is signed: +buy, -sell.
type Order struct {
	Product  Product `json:"product"`
	Price    int     `json:"price"`
	Quantity int     `json:"quantity"`
}

// Side returns "BUY" or "SELL".
func (o Order) Side() string {
	if o.Quantity < 0 {
		return "SELL"
	}
	return "BUY"
}

// TickResult is what the engine hands back to the host each tick.
// Conversions is always 0.
type TickResult struct {
	Orders      map[Product][]Order `json:"orders"`
	Conversions int                 `json:"conversions"`
	TraderData  string              `json:"trader_data"`
}

// PricePoint is one (tick time, mid-price) observation.
type PricePoint struct {
	Time  int64   `json:"time"`
	Price float64 `json:"price"`
}

// Checkpoint is the persisted estimator state of one product, written by
// the host after each tick so a restarted process can resume the session.
type Checkpoint struct {
	Product   Product         `json:"product" db:"product"`
	FairValue decimal.Decimal `json:"fair_value" db:"fair_value"`
	History   []PricePoint    `json:"history" db:"history"`
	Tick      int64           `json:"tick" db:"tick"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// DecisionRecord is an append-only journal entry of one product decision.
type DecisionRecord struct {
	ID                string          `json:"id" db:"id"`
	Tick              int64           `json:"tick" db:"tick"`
	Product           Product         `json:"product" db:"product"`
	Mode              string          `json:"mode" db:"mode"`
	Mid               decimal.Decimal `json:"mid" db:"mid"`
	FairValue         decimal.Decimal `json:"fair_value" db:"fair_value"`
	AdjustedFairValue decimal.Decimal `json:"adjusted_fair_value" db:"adjusted_fair_value"`
	Threshold         decimal.Decimal `json:"threshold" db:"threshold"`
	Position          int             `json:"position" db:"position"`
	Orders            []Order         `json:"orders" db:"orders"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}
