package quote

import (
	"errors"
	"testing"

	"github.com/atmx/quote-engine/internal/decision"
	"github.com/atmx/quote-engine/internal/limit"
	"github.com/atmx/quote-engine/internal/model"
)

func staticParams(size int, offset float64) Params {
	return Params{Size: SizeStatic, BaseSize: size, Offset: OffsetStatic, BaseOffset: offset}
}

func newQuoter(t *testing.T, params Params, positionLimit int) *Quoter {
	t.Helper()
	l, err := limit.NewPositionLimiter(positionLimit)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	q, err := NewQuoter("KELP", params, l)
	if err != nil {
		t.Fatalf("quoter: %v", err)
	}
	return q
}

// --- Validation ---

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   error
	}{
		{"zero size", staticParams(0, 0.5), ErrInvalidSize},
		{"negative offset", staticParams(18, -1), ErrInvalidOffset},
		{"unknown size method", Params{Size: "kelly", BaseSize: 1, Offset: OffsetStatic}, ErrUnknownMethod},
		{"unknown offset method", Params{Size: SizeStatic, BaseSize: 1, Offset: "vwap"}, ErrUnknownMethod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.params.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if err := staticParams(18, 0.5).Validate(); err != nil {
		t.Errorf("valid params rejected: %v", err)
	}
}

// --- Sizing ---

func TestSizeFor_Inventory(t *testing.T) {
	p := Params{Size: SizeInventory, BaseSize: 30, Breakpoint: 10, Offset: OffsetStatic}
	tests := []struct {
		position int
		want     int
	}{
		{0, 30},
		{9, 30},
		{-9, 30},
		{10, 30},  // scale = 1
		{20, 22},  // scale = 0.75 → 22.5
		{-20, 22}, // symmetric
		{30, 15},  // scale = 0.5
		{40, 15},  // scale = 0.25, floored at half
		{50, 15},
	}
	for _, tt := range tests {
		if got := p.SizeFor(tt.position, 50); got != tt.want {
			t.Errorf("SizeFor(%d) = %d, want %d", tt.position, got, tt.want)
		}
	}
}

func TestSizeFor_BreakpointAtLimit(t *testing.T) {
	p := Params{Size: SizeInventory, BaseSize: 20, Breakpoint: 50, Offset: OffsetStatic}
	if got := p.SizeFor(50, 50); got != 10 {
		t.Errorf("degenerate denominator should floor to half size, got %d", got)
	}
	p.Breakpoint = 80
	if got := p.SizeFor(-30, 50); got != 20 {
		t.Errorf("below breakpoint should use base size, got %d", got)
	}
}

func TestSizeFor_Static(t *testing.T) {
	p := staticParams(18, 0.5)
	for _, pos := range []int{-50, 0, 49} {
		if got := p.SizeFor(pos, 50); got != 18 {
			t.Errorf("static size changed at position %d: %d", pos, got)
		}
	}
}

// --- Offset ---

func TestOffsetFor(t *testing.T) {
	p := Params{Size: SizeStatic, BaseSize: 1, Offset: OffsetSpread, BaseOffset: 2, MinSpread: 2}
	tests := []struct {
		top  model.Top
		want float64
	}{
		{model.Top{Bid: 9997, Ask: 10003}, 4},  // spread 6: 2 + 0.5·4
		{model.Top{Bid: 9999, Ask: 10001}, 2},  // spread at minimum
		{model.Top{Bid: 10000, Ask: 10001}, 2}, // tighter than minimum
	}
	for _, tt := range tests {
		if got := p.OffsetFor(tt.top); got != tt.want {
			t.Errorf("OffsetFor(%+v) = %f, want %f", tt.top, got, tt.want)
		}
	}
	if got := staticParams(1, 0.5).OffsetFor(model.Top{Bid: 1, Ask: 100}); got != 0.5 {
		t.Errorf("static offset should ignore spread, got %f", got)
	}
}

func TestRoundPrice(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{2029.5, 2030},
		{2030.5, 2030},
		{2028.0, 2028},
		{2029.0, 2029},
		{2026.5, 2026},
		{9996.4, 9996},
		{9996.6, 9997},
	}
	for _, tt := range tests {
		if got := RoundPrice(tt.in); got != tt.want {
			t.Errorf("RoundPrice(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// --- Order emission ---

func TestOrders_MarketMakeTwoSidedIntegerMid(t *testing.T) {
	q := newQuoter(t, staticParams(18, 0.5), 50)
	orders := q.Orders(decision.MarketMake, model.Top{Bid: 2029, Ask: 2031}, 0)
	if len(orders) != 2 {
		t.Fatalf("expected two legs, got %+v", orders)
	}
	if orders[0].Price != 2030 || orders[0].Quantity != 18 {
		t.Errorf("unexpected buy leg %+v", orders[0])
	}
	if orders[1].Price != 2030 || orders[1].Quantity != -18 {
		t.Errorf("unexpected sell leg %+v", orders[1])
	}
}

func TestOrders_MarketMakeTwoSidedHalfMid(t *testing.T) {
	q := newQuoter(t, staticParams(18, 0.5), 50)
	orders := q.Orders(decision.MarketMake, model.Top{Bid: 2027, Ask: 2030}, 0)
	if len(orders) != 2 {
		t.Fatalf("expected two legs, got %+v", orders)
	}
	if orders[0].Price != 2028 || orders[1].Price != 2029 {
		t.Errorf("expected buy 2028 / sell 2029, got %d / %d", orders[0].Price, orders[1].Price)
	}
}

func TestOrders_MarketMakeAtLongLimit(t *testing.T) {
	q := newQuoter(t, staticParams(18, 0.5), 50)
	orders := q.Orders(decision.MarketMake, model.Top{Bid: 2029, Ask: 2031}, 50)
	if len(orders) != 1 || orders[0].Quantity >= 0 {
		t.Fatalf("expected only a sell leg at the long limit, got %+v", orders)
	}
}

func TestOrders_MarketMakeAtShortLimit(t *testing.T) {
	q := newQuoter(t, staticParams(18, 0.5), 50)
	orders := q.Orders(decision.MarketMake, model.Top{Bid: 2029, Ask: 2031}, -50)
	if len(orders) != 1 || orders[0].Quantity <= 0 {
		t.Fatalf("expected only a buy leg at the short limit, got %+v", orders)
	}
}

func TestOrders_MarketMakeTrimmedNearLimit(t *testing.T) {
	q := newQuoter(t, staticParams(18, 0.5), 50)
	orders := q.Orders(decision.MarketMake, model.Top{Bid: 2029, Ask: 2031}, 40)
	if len(orders) != 2 {
		t.Fatalf("expected two legs, got %+v", orders)
	}
	if orders[0].Quantity != 10 {
		t.Errorf("buy leg should be trimmed to headroom 10, got %d", orders[0].Quantity)
	}
	if orders[1].Quantity != -18 {
		t.Errorf("sell leg should keep full size, got %d", orders[1].Quantity)
	}
}

func TestOrders_MarketMakeSpreadOffset(t *testing.T) {
	q := newQuoter(t, Params{Size: SizeStatic, BaseSize: 30, Offset: OffsetSpread, BaseOffset: 2, MinSpread: 2}, 50)
	orders := q.Orders(decision.MarketMake, model.Top{Bid: 9997, Ask: 10003}, 0)
	if len(orders) != 2 || orders[0].Price != 9996 || orders[1].Price != 10004 {
		t.Errorf("expected quotes 9996 / 10004, got %+v", orders)
	}
}

func TestOrders_UnwindLong(t *testing.T) {
	q := newQuoter(t, staticParams(18, 0.5), 50)
	top := model.Top{Bid: 10011, Ask: 10013}

	orders := q.Orders(decision.UnwindLong, top, 20)
	if len(orders) != 1 || orders[0].Price != 10011 || orders[0].Quantity != -18 {
		t.Errorf("expected sell 18 at best bid, got %+v", orders)
	}

	orders = q.Orders(decision.UnwindLong, top, 5)
	if len(orders) != 1 || orders[0].Quantity != -5 {
		t.Errorf("expected sell capped at position 5, got %+v", orders)
	}
}

func TestOrders_CoverShort(t *testing.T) {
	q := newQuoter(t, staticParams(18, 0.5), 50)
	top := model.Top{Bid: 9985, Ask: 9987}

	orders := q.Orders(decision.CoverShort, top, -20)
	if len(orders) != 1 || orders[0].Price != 9987 || orders[0].Quantity != 18 {
		t.Errorf("expected buy 18 at best ask, got %+v", orders)
	}

	orders = q.Orders(decision.CoverShort, top, -45)
	if len(orders) != 1 || orders[0].Quantity != 5 {
		t.Errorf("expected buy capped at L-|p| = 5, got %+v", orders)
	}

	if orders = q.Orders(decision.CoverShort, top, -50); len(orders) != 0 {
		t.Errorf("expected no order when L-|p| = 0, got %+v", orders)
	}
}

func TestOrders_PositionBeyondLimit(t *testing.T) {
	q := newQuoter(t, staticParams(18, 0.5), 50)
	top := model.Top{Bid: 10011, Ask: 10013}

	// Selling 18 from 80 still leaves 62 > 50.
	for _, mode := range []decision.Mode{decision.UnwindLong, decision.MarketMake} {
		if orders := q.Orders(mode, top, 80); len(orders) != 0 {
			t.Errorf("%s: expected no orders from position 80, got %+v", mode, orders)
		}
	}

	// Selling 18 from 60 lands at 42, inside the limit.
	orders := q.Orders(decision.UnwindLong, top, 60)
	if len(orders) != 1 || orders[0].Quantity != -18 {
		t.Errorf("expected sell 18 from position 60, got %+v", orders)
	}
}

func TestOrders_NeverBreachLimit(t *testing.T) {
	const limitMax = 50
	paramsSet := []Params{
		staticParams(18, 0.5),
		staticParams(80, 0.5),
		{Size: SizeInventory, BaseSize: 30, Breakpoint: 10, Offset: OffsetSpread, BaseOffset: 2, MinSpread: 2},
	}
	modes := []decision.Mode{decision.MarketMake, decision.UnwindLong, decision.CoverShort}
	top := model.Top{Bid: 9998, Ask: 10002}
	l, _ := limit.NewPositionLimiter(limitMax)

	for _, p := range paramsSet {
		q := newQuoter(t, p, limitMax)
		for pos := -limitMax; pos <= limitMax; pos++ {
			for _, mode := range modes {
				orders := q.Orders(mode, top, pos)
				if mode != decision.MarketMake && len(orders) > 1 {
					t.Fatalf("%s emitted %d orders", mode, len(orders))
				}
				if len(orders) > 2 {
					t.Fatalf("market_make emitted %d orders", len(orders))
				}
				for _, o := range orders {
					if o.Quantity == 0 {
						t.Fatalf("zero-quantity order emitted: %+v", o)
					}
					if err := l.CheckLimit(pos, o.Quantity); err != nil {
						t.Fatalf("mode=%s pos=%d order=%+v: %v", mode, pos, o, err)
					}
				}
			}
		}
	}
}
