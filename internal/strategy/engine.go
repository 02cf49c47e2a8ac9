// Package strategy runs the per-tick decision pipeline for every
// configured product: estimate fair value, pick a mode, build orders.
//
// An Engine owns all per-product state. It performs no I/O and never
// blocks; callers must not invoke Run concurrently.
package strategy

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/atmx/quote-engine/internal/config"
	"github.com/atmx/quote-engine/internal/decision"
	"github.com/atmx/quote-engine/internal/fairvalue"
	"github.com/atmx/quote-engine/internal/limit"
	"github.com/atmx/quote-engine/internal/model"
	"github.com/atmx/quote-engine/internal/quote"
)

// Outcome is the decision for one product on one tick.
type Outcome struct {
	Product           model.Product
	Tick              int64
	Mid               float64
	FairValue         float64
	AdjustedFairValue float64
	Threshold         float64
	Position          int
	Mode              decision.Mode
	Orders            []model.Order

	// Predicted is the regression forecast for the next tick; only set
	// when Fitted.
	Predicted float64
	Fitted    bool
}

type productState struct {
	cfg       config.Product
	estimator *fairvalue.Estimator
	quoter    *quote.Quoter
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for per-product decision traces.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Engine is the decision engine for a fixed set of products.
type Engine struct {
	order    []model.Product
	products map[model.Product]*productState
	logger   *slog.Logger

	last []Outcome
}

// NewEngine validates cfg and builds one estimator and quoter per product.
func NewEngine(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("strategy: %w", err)
	}

	e := &Engine{
		products: make(map[model.Product]*productState, len(cfg.Products)),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, pc := range cfg.Products {
		product := model.Product(pc.Symbol)

		est, err := fairvalue.NewEstimator(pc.EstimatorParams(), pc.InitialFairValue)
		if err != nil {
			return nil, fmt.Errorf("strategy: %s: %w", product, err)
		}
		limiter, err := limit.NewPositionLimiter(pc.PositionLimit)
		if err != nil {
			return nil, fmt.Errorf("strategy: %s: %w", product, err)
		}
		q, err := quote.NewQuoter(product, pc.QuoteParams(), limiter)
		if err != nil {
			return nil, fmt.Errorf("strategy: %s: %w", product, err)
		}

		e.order = append(e.order, product)
		e.products[product] = &productState{cfg: pc, estimator: est, quoter: q}
	}
	return e, nil
}

// Products returns the configured products in iteration order.
func (e *Engine) Products() []model.Product {
	out := make([]model.Product, len(e.order))
	copy(out, e.order)
	return out
}

// Run makes one decision pass over every configured product. Products
// without a two-sided book are skipped with an empty order list and their
// state is left untouched.
func (e *Engine) Run(snap model.TickSnapshot) model.TickResult {
	result := model.TickResult{
		Orders:      make(map[model.Product][]model.Order, len(e.order)),
		Conversions: 0,
	}
	e.last = e.last[:0]

	var trace strings.Builder
	for _, product := range e.order {
		book, ok := snap.Books[product]
		if !ok {
			result.Orders[product] = []model.Order{}
			continue
		}
		out, ok := e.Decide(product, book, snap.Positions[product], snap.Timestamp)
		if !ok {
			e.logger.Debug("one-sided book, skipping", "product", product, "tick", snap.Timestamp)
			result.Orders[product] = []model.Order{}
			continue
		}
		result.Orders[product] = out.Orders
		e.last = append(e.last, out)
		writeTrace(&trace, out)
	}
	result.TraderData = trace.String()
	return result
}

// Decide runs estimate → decide → size/emit for a single product and
// mutates its estimator state. ok is false, with no state change, when
// the product is unknown or either side of the book is empty.
func (e *Engine) Decide(product model.Product, book model.OrderBook, position int, tick int64) (Outcome, bool) {
	ps, ok := e.products[product]
	if !ok {
		return Outcome{}, false
	}
	top, ok := book.Top()
	if !ok {
		return Outcome{}, false
	}

	mid := top.Mid()
	est := ps.estimator.Update(tick, mid)
	adjusted := decision.AdjustFairValue(est.FairValue, position, ps.cfg.InventoryFactor)
	mode := decision.Select(mid, adjusted, est.Threshold, position)
	orders := ps.quoter.Orders(mode, top, position)

	out := Outcome{
		Product:           product,
		Tick:              tick,
		Mid:               mid,
		FairValue:         est.FairValue,
		AdjustedFairValue: adjusted,
		Threshold:         est.Threshold,
		Position:          position,
		Mode:              mode,
		Orders:            orders,
		Predicted:         est.Predicted,
		Fitted:            est.Fitted,
	}

	e.logger.Debug("decision",
		"product", product,
		"tick", tick,
		"mid", mid,
		"fair_value", est.FairValue,
		"adjusted", adjusted,
		"threshold", est.Threshold,
		"predicted", est.Predicted,
		"position", position,
		"mode", mode.String(),
		"orders", len(orders),
	)
	return out, true
}

// Outcomes returns the decisions made by the last Run.
func (e *Engine) Outcomes() []Outcome {
	out := make([]Outcome, len(e.last))
	copy(out, e.last)
	return out
}

// FairValue returns the current fair value of a product.
func (e *Engine) FairValue(product model.Product) (float64, bool) {
	ps, ok := e.products[product]
	if !ok {
		return 0, false
	}
	return ps.estimator.FairValue(), true
}

// ProductConfig returns the configuration record of a product.
func (e *Engine) ProductConfig(product model.Product) (config.Product, bool) {
	ps, ok := e.products[product]
	if !ok {
		return config.Product{}, false
	}
	return ps.cfg, true
}

// Snapshot copies the estimator state of every product.
func (e *Engine) Snapshot() map[model.Product]fairvalue.State {
	out := make(map[model.Product]fairvalue.State, len(e.products))
	for product, ps := range e.products {
		out[product] = ps.estimator.Snapshot()
	}
	return out
}

// Restore loads estimator states. Unknown products are ignored and
// products missing from states keep their current state.
func (e *Engine) Restore(states map[model.Product]fairvalue.State) {
	for product, s := range states {
		if ps, ok := e.products[product]; ok {
			ps.estimator.Restore(s)
		}
	}
}

func writeTrace(b *strings.Builder, out Outcome) {
	fmt.Fprintf(b, "%s: mid=%.2f fv=%.2f adj=%.2f th=%.2f",
		out.Product, out.Mid, out.FairValue, out.AdjustedFairValue, out.Threshold)
	if out.Fitted {
		fmt.Fprintf(b, " pred=%.2f", out.Predicted)
	}
	fmt.Fprintf(b, " pos=%d mode=%s", out.Position, out.Mode)
	for _, o := range out.Orders {
		fmt.Fprintf(b, " %s %d@%d", o.Side(), abs(o.Quantity), o.Price)
	}
	b.WriteByte('\n')
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
