package strategy

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/atmx/quote-engine/internal/config"
	"github.com/atmx/quote-engine/internal/decision"
	"github.com/atmx/quote-engine/internal/fairvalue"
	"github.com/atmx/quote-engine/internal/model"
)

const (
	resin = model.Product(config.Resin)
	kelp  = model.Product(config.Kelp)
)

func newEngine(t *testing.T, preset string) *Engine {
	t.Helper()
	cfg, err := config.Preset(preset)
	if err != nil {
		t.Fatalf("preset: %v", err)
	}
	e, err := NewEngine(cfg, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func book(bid, ask int) model.OrderBook {
	return model.OrderBook{
		Bids: map[int]int{bid: 10, bid - 1: 5},
		Asks: map[int]int{ask: -10, ask + 1: -5},
	}
}

func snapshot(ts int64, books map[model.Product]model.OrderBook, positions map[model.Product]int) model.TickSnapshot {
	return model.TickSnapshot{Timestamp: ts, Books: books, Positions: positions}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	if _, err := NewEngine(config.Config{}); !errors.Is(err, config.ErrNoProducts) {
		t.Errorf("expected ErrNoProducts, got %v", err)
	}

	cfg, _ := config.Preset(config.PresetMeanRevert)
	cfg.Products[0].Alpha = 0
	if _, err := NewEngine(cfg); !errors.Is(err, fairvalue.ErrInvalidAlpha) {
		t.Errorf("expected ErrInvalidAlpha, got %v", err)
	}
}

func TestProducts_ConfigOrder(t *testing.T) {
	e := newEngine(t, config.PresetMeanRevert)
	got := e.Products()
	if len(got) != 2 || got[0] != resin || got[1] != kelp {
		t.Errorf("unexpected product order %v", got)
	}
}

func TestRun_MarketMake(t *testing.T) {
	e := newEngine(t, config.PresetMeanRevert)

	res := e.Run(snapshot(100,
		map[model.Product]model.OrderBook{resin: book(9999, 10003)},
		nil,
	))

	if res.Conversions != 0 {
		t.Errorf("conversions should be 0, got %d", res.Conversions)
	}
	orders := res.Orders[resin]
	if len(orders) != 2 {
		t.Fatalf("expected two-sided quote, got %+v", orders)
	}
	// mid 10001, offset 0.5: 10000.5 → 10000, 10001.5 → 10002
	if orders[0].Price != 10000 || orders[0].Quantity != 18 {
		t.Errorf("unexpected buy %+v", orders[0])
	}
	if orders[1].Price != 10002 || orders[1].Quantity != -18 {
		t.Errorf("unexpected sell %+v", orders[1])
	}

	fv, _ := e.FairValue(resin)
	if !almostEqual(fv, 10000.1) {
		t.Errorf("fair value = %v, want 10000.1", fv)
	}

	out := e.Outcomes()
	if len(out) != 1 || out[0].Mode != decision.MarketMake || out[0].Tick != 100 {
		t.Errorf("unexpected outcomes %+v", out)
	}
}

func TestRun_UnwindLong(t *testing.T) {
	e := newEngine(t, config.PresetMeanRevert)

	// fair 0.9·10000 + 0.1·10020 = 10002, no inventory skew, mid 10020 > 10012
	res := e.Run(snapshot(100,
		map[model.Product]model.OrderBook{resin: book(10019, 10021)},
		map[model.Product]int{resin: 20},
	))

	orders := res.Orders[resin]
	if len(orders) != 1 {
		t.Fatalf("expected a single unwind order, got %+v", orders)
	}
	if orders[0].Price != 10019 || orders[0].Quantity != -18 {
		t.Errorf("unexpected unwind order %+v", orders[0])
	}
	out := e.Outcomes()[0]
	if out.Mode != decision.UnwindLong || !almostEqual(out.AdjustedFairValue, 10002) {
		t.Errorf("unexpected outcome %+v", out)
	}
}

func TestRun_CoverShort(t *testing.T) {
	e := newEngine(t, config.PresetMeanRevert)

	// fair 9998, no inventory skew, mid 9980 < 9988
	res := e.Run(snapshot(100,
		map[model.Product]model.OrderBook{resin: book(9979, 9981)},
		map[model.Product]int{resin: -30},
	))

	orders := res.Orders[resin]
	if len(orders) != 1 || orders[0].Price != 9981 || orders[0].Quantity != 18 {
		t.Fatalf("unexpected cover orders %+v", orders)
	}
	if e.Outcomes()[0].Mode != decision.CoverShort {
		t.Errorf("expected cover_short, got %s", e.Outcomes()[0].Mode)
	}
}

func TestRun_InventorySkewByPreset(t *testing.T) {
	// fair 0.9·10000 + 0.1·10009.5 = 10000.95 for both presets.
	books := map[model.Product]model.OrderBook{resin: book(10008, 10011)}
	positions := map[model.Product]int{resin: 20}

	// Unskewed: 10009.5 is inside 10000.95 ± 10, so both sides are quoted.
	e := newEngine(t, config.PresetMeanRevert)
	res := e.Run(snapshot(100, books, positions))
	out := e.Outcomes()[0]
	if out.Mode != decision.MarketMake || !almostEqual(out.AdjustedFairValue, out.FairValue) {
		t.Errorf("mean_revert: expected unskewed market making, got %+v", out)
	}
	if len(res.Orders[resin]) != 2 {
		t.Errorf("mean_revert: expected two legs, got %+v", res.Orders[resin])
	}

	// Skewed by 0.1·20: 10009.5 > 9998.95 + 3, unwind 20 units at the bid.
	e = newEngine(t, config.PresetDynamic)
	res = e.Run(snapshot(100, books, positions))
	out = e.Outcomes()[0]
	if out.Mode != decision.UnwindLong || !almostEqual(out.AdjustedFairValue, out.FairValue-2) {
		t.Errorf("dynamic: expected skewed unwind, got %+v", out)
	}
	orders := res.Orders[resin]
	if len(orders) != 1 || orders[0].Price != 10008 || orders[0].Quantity != -20 {
		t.Errorf("dynamic: unexpected unwind orders %+v", orders)
	}
}

func TestRun_KelpRoundsHalfToEven(t *testing.T) {
	e := newEngine(t, config.PresetMeanRevert)

	res := e.Run(snapshot(0,
		map[model.Product]model.OrderBook{kelp: book(2029, 2031)},
		nil,
	))

	orders := res.Orders[kelp]
	if len(orders) != 2 || orders[0].Price != 2030 || orders[1].Price != 2030 {
		t.Errorf("mid 2030 ± 0.5 should round to 2030 on both legs, got %+v", orders)
	}
}

func TestRun_OneSidedBookSkipped(t *testing.T) {
	e := newEngine(t, config.PresetMeanRevert)
	before := e.Snapshot()

	res := e.Run(snapshot(100, map[model.Product]model.OrderBook{
		resin: {Bids: map[int]int{9998: 5}},
		kelp:  {Asks: map[int]int{2030: -5}},
	}, nil))

	for _, p := range []model.Product{resin, kelp} {
		if orders, ok := res.Orders[p]; !ok || len(orders) != 0 {
			t.Errorf("%s: expected an empty order list, got %+v (present=%v)", p, orders, ok)
		}
	}
	if len(e.Outcomes()) != 0 {
		t.Errorf("expected no outcomes, got %+v", e.Outcomes())
	}
	after := e.Snapshot()
	for _, p := range []model.Product{resin, kelp} {
		if after[p].FairValue != before[p].FairValue {
			t.Errorf("%s: fair value moved on a skipped tick", p)
		}
	}
}

func TestRun_MissingProductEmpty(t *testing.T) {
	e := newEngine(t, config.PresetMeanRevert)

	res := e.Run(snapshot(100,
		map[model.Product]model.OrderBook{kelp: book(2027, 2030), "SQUID_INK": book(1, 3)},
		nil,
	))

	if orders, ok := res.Orders[resin]; !ok || len(orders) != 0 {
		t.Errorf("resin should have an empty order list without a book, got %+v", orders)
	}
	if len(res.Orders) != 2 {
		t.Errorf("expected one entry per configured product, got %+v", res.Orders)
	}
	if _, ok := res.Orders["SQUID_INK"]; ok {
		t.Error("unconfigured products must be ignored")
	}
	if _, ok := res.Orders[kelp]; !ok {
		t.Error("kelp should be quoted")
	}
}

func TestRun_TraderDataTrace(t *testing.T) {
	e := newEngine(t, config.PresetMeanRevert)

	res := e.Run(snapshot(100, map[model.Product]model.OrderBook{
		resin: book(9999, 10003),
		kelp:  book(2027, 2030),
	}, nil))

	lines := strings.Split(strings.TrimSpace(res.TraderData), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected one trace line per product, got %q", res.TraderData)
	}
	if !strings.HasPrefix(lines[0], "RAINFOREST_RESIN:") || !strings.HasPrefix(lines[1], "KELP:") {
		t.Errorf("trace lines out of order: %q", lines)
	}
	if !strings.Contains(lines[0], "mode=market_make") || !strings.Contains(lines[0], "BUY 18@10000") {
		t.Errorf("unexpected resin trace %q", lines[0])
	}
}

func TestRun_StaticFairValueHolds(t *testing.T) {
	e := newEngine(t, config.PresetRegression)

	for ts := int64(0); ts < 5; ts++ {
		e.Run(snapshot(ts*100, map[model.Product]model.OrderBook{kelp: book(2040, 2044)}, nil))
	}
	fv, _ := e.FairValue(kelp)
	if fv != 2028.5 {
		t.Errorf("static fair value moved to %v", fv)
	}
}

func TestRun_RegressionColdStartUsesMid(t *testing.T) {
	e := newEngine(t, config.PresetRegression)

	e.Run(snapshot(0, map[model.Product]model.OrderBook{resin: book(10004, 10008)}, nil))
	out := e.Outcomes()[0]
	if out.FairValue != 10006 || out.Threshold != 10 {
		t.Errorf("cold start should trade off mid with base threshold, got %+v", out)
	}
}

func TestRun_RegressionForecastInTrace(t *testing.T) {
	e := newEngine(t, config.PresetRegression)

	var res model.TickResult
	for ts := int64(0); ts < 10; ts++ {
		res = e.Run(snapshot(ts, map[model.Product]model.OrderBook{resin: book(9998+int(ts), 10002+int(ts))}, nil))
		if ts < 9 && e.Outcomes()[0].Fitted {
			t.Fatalf("tick %d: fitted below min points", ts)
		}
	}

	// Mids 10000..10009 lie on a line; the forecast for t=10 is 10010.
	out := e.Outcomes()[0]
	if !out.Fitted || math.Abs(out.Predicted-10010) > 1e-6 {
		t.Fatalf("expected forecast 10010, got %+v", out)
	}
	if math.Abs(out.FairValue-10009.1) > 1e-6 {
		t.Errorf("expected blended fair value 10009.1, got %v", out.FairValue)
	}
	if !strings.Contains(res.TraderData, "pred=10010.00") {
		t.Errorf("trace should carry the forecast: %q", res.TraderData)
	}
}

func TestSnapshotRestore(t *testing.T) {
	src := newEngine(t, config.PresetRegression)
	for ts := int64(0); ts < 12; ts++ {
		src.Run(snapshot(ts, map[model.Product]model.OrderBook{resin: book(9998+int(ts), 10002+int(ts))}, nil))
	}

	dst := newEngine(t, config.PresetRegression)
	dst.Restore(src.Snapshot())
	dst.Restore(map[model.Product]fairvalue.State{"UNKNOWN": {FairValue: 1}})

	next := snapshot(12, map[model.Product]model.OrderBook{resin: book(10010, 10014)}, nil)
	a := src.Run(next)
	b := dst.Run(next)

	if src.Outcomes()[0].FairValue != dst.Outcomes()[0].FairValue {
		t.Errorf("restored engine diverged: %v vs %v", src.Outcomes()[0].FairValue, dst.Outcomes()[0].FairValue)
	}
	if a.TraderData != b.TraderData {
		t.Errorf("restored engine produced different trace:\n%s\n%s", a.TraderData, b.TraderData)
	}
}

func TestRun_NeverBreachesLimit(t *testing.T) {
	for _, preset := range []string{config.PresetMeanRevert, config.PresetRegression, config.PresetDynamic} {
		e := newEngine(t, preset)
		for pos := -50; pos <= 50; pos += 5 {
			for _, mid := range []int{9960, 9990, 10000, 10010, 10040} {
				res := e.Run(snapshot(int64(pos*100+mid),
					map[model.Product]model.OrderBook{resin: book(mid-1, mid+1)},
					map[model.Product]int{resin: pos},
				))
				for _, o := range res.Orders[resin] {
					if o.Quantity == 0 {
						t.Fatalf("%s: zero quantity order %+v", preset, o)
					}
					if next := pos + o.Quantity; next > 50 || next < -50 {
						t.Fatalf("%s: pos %d + %d breaches limit", preset, pos, o.Quantity)
					}
				}
			}
		}
	}
}
