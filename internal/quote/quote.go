// Package quote sizes and builds the orders for a selected trading mode.
package quote

import (
	"errors"
	"fmt"
	"math"

	"github.com/atmx/quote-engine/internal/decision"
	"github.com/atmx/quote-engine/internal/limit"
	"github.com/atmx/quote-engine/internal/model"
)

// SizeMethod selects how order quantity is chosen.
type SizeMethod string

const (
	// SizeStatic always quotes the base size.
	SizeStatic SizeMethod = "static"
	// SizeInventory scales the base size down as |position| approaches
	// the limit, never below half of base.
	SizeInventory SizeMethod = "inventory"
)

// OffsetMethod selects the market-making half-spread.
type OffsetMethod string

const (
	// OffsetStatic always uses the base offset.
	OffsetStatic OffsetMethod = "static"
	// OffsetSpread widens the base offset by half of the observed spread
	// in excess of the minimum viable spread.
	OffsetSpread OffsetMethod = "spread"
)

// floorFraction is the smallest share of base size inventory sizing returns.
const floorFraction = 0.5

var (
	ErrInvalidSize   = errors.New("quote: base order size must be positive")
	ErrInvalidOffset = errors.New("quote: offset and min spread must be non-negative")
	ErrUnknownMethod = errors.New("quote: unknown sizing or offset method")
)

// Params configures sizing and offset policies for one product.
type Params struct {
	Size       SizeMethod
	BaseSize   int
	Breakpoint int // |position| below which inventory sizing uses full size

	Offset     OffsetMethod
	BaseOffset float64
	MinSpread  float64
}

// Validate checks the parameters.
func (p Params) Validate() error {
	switch p.Size {
	case SizeStatic, SizeInventory:
	default:
		return fmt.Errorf("%w: size %q", ErrUnknownMethod, p.Size)
	}
	switch p.Offset {
	case OffsetStatic, OffsetSpread:
	default:
		return fmt.Errorf("%w: offset %q", ErrUnknownMethod, p.Offset)
	}
	if p.BaseSize <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSize, p.BaseSize)
	}
	if p.BaseOffset < 0 || p.MinSpread < 0 || p.Breakpoint < 0 {
		return ErrInvalidOffset
	}
	return nil
}

// SizeFor returns the per-order quantity for the given position.
//
// Inventory sizing: scale = 1 - (|p| - bp) / (L - bp), size =
// floor(max(base·scale, base·0.5)). A breakpoint at or beyond the limit
// has no usable denominator; scale collapses to 0 and the floor applies.
func (p Params) SizeFor(position, positionLimit int) int {
	if p.Size != SizeInventory {
		return p.BaseSize
	}
	inventory := position
	if inventory < 0 {
		inventory = -inventory
	}
	if inventory < p.Breakpoint {
		return p.BaseSize
	}

	scale := 0.0
	if denom := positionLimit - p.Breakpoint; denom > 0 {
		scale = 1 - float64(inventory-p.Breakpoint)/float64(denom)
	}
	base := float64(p.BaseSize)
	size := math.Floor(math.Max(base*scale, base*floorFraction))
	return max(0, int(size))
}

// OffsetFor returns the market-making half-spread for the inside market.
func (p Params) OffsetFor(top model.Top) float64 {
	if p.Offset != OffsetSpread {
		return p.BaseOffset
	}
	return p.BaseOffset + 0.5*math.Max(0, top.Spread()-p.MinSpread)
}

// RoundPrice rounds to the nearest integer tick, halves to even.
func RoundPrice(price float64) int {
	return int(math.RoundToEven(price))
}

// Quoter builds orders for one product.
type Quoter struct {
	product model.Product
	params  Params
	limiter *limit.PositionLimiter
}

// NewQuoter creates a quoter bound to the product's position limiter.
func NewQuoter(product model.Product, params Params, limiter *limit.PositionLimiter) (*Quoter, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if limiter == nil {
		return nil, limit.ErrInvalidLimit
	}
	return &Quoter{product: product, params: params, limiter: limiter}, nil
}

// Orders builds the order list for mode. Directional modes return at most
// one order; market making returns up to two. Every quantity is clamped to
// the limiter headroom and non-positive legs are dropped. A leg that would
// still leave the position outside the limit, which only happens when the
// reported position already is, is not emitted.
func (q *Quoter) Orders(mode decision.Mode, top model.Top, position int) []model.Order {
	limitMax := q.limiter.Max
	size := q.params.SizeFor(position, limitMax)

	orders := make([]model.Order, 0, 2)
	switch mode {
	case decision.UnwindLong:
		orders = q.sell(orders, top.Bid, min(size, position), position)

	case decision.CoverShort:
		abs := position
		if abs < 0 {
			abs = -abs
		}
		orders = q.buy(orders, top.Ask, min(size, limitMax-abs), position)

	default:
		mid := top.Mid()
		offset := q.params.OffsetFor(top)
		if position < limitMax {
			orders = q.buy(orders, RoundPrice(mid-offset), size, position)
		}
		if position > -limitMax {
			orders = q.sell(orders, RoundPrice(mid+offset), size, position)
		}
	}
	return orders
}

func (q *Quoter) buy(orders []model.Order, price, qty, position int) []model.Order {
	if qty <= 0 {
		return orders
	}
	return q.place(orders, price, q.limiter.Clamp(position, qty), position)
}

func (q *Quoter) sell(orders []model.Order, price, qty, position int) []model.Order {
	if qty <= 0 {
		return orders
	}
	return q.place(orders, price, q.limiter.Clamp(position, -qty), position)
}

func (q *Quoter) place(orders []model.Order, price, signedQty, position int) []model.Order {
	if signedQty == 0 {
		return orders
	}
	if err := q.limiter.CheckLimit(position, signedQty); err != nil {
		return orders
	}
	return append(orders, model.Order{Product: q.product, Price: price, Quantity: signedQty})
}
