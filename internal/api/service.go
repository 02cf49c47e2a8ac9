// Package api provides the HTTP host around the strategy engine: it feeds
// tick snapshots in, returns the orders, persists estimator checkpoints and
// the decision journal, and broadcasts every decision over WebSocket.
//
// Persisted and broadcast prices use shopspring/decimal strings; the engine
// itself works in float64.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	"github.com/atmx/quote-engine/internal/fairvalue"
	"github.com/atmx/quote-engine/internal/metrics"
	"github.com/atmx/quote-engine/internal/model"
	"github.com/atmx/quote-engine/internal/store"
	"github.com/atmx/quote-engine/internal/strategy"
)

const (
	defaultDecisionLimit = 50
	maxDecisionLimit     = 500
	persistTimeout       = 5 * time.Second
	persistWorkers       = 4
)

// Service drives the engine. Ticks are serialized with a mutex; the engine
// is single-threaded and its state is checkpointed after every tick.
type Service struct {
	engine  *strategy.Engine
	store   store.Store
	wsHub   *WSHub // optional WebSocket hub for real-time broadcasts
	session string
	mu      sync.Mutex

	// lastTick is the newest timestamp processed in this session, -1
	// before the first tick.
	lastTick int64
}

// NewService creates a new service around an engine.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(engine *strategy.Engine, st store.Store, hub *WSHub) *Service {
	return &Service{
		engine:   engine,
		store:    st,
		wsHub:    hub,
		session:  uuid.New().String(),
		lastTick: -1,
	}
}

// Session returns the id of this process's trading session.
func (s *Service) Session() string {
	return s.session
}

// Routes mounts the API handlers on r.
func (s *Service) Routes(r chi.Router) {
	if s.wsHub != nil {
		r.Get("/ws", s.wsHub.HandleWS)
	}
	r.Post("/ticks", s.ProcessTick)
	r.Get("/products", s.ListProducts)
	r.Get("/products/{product}/state", s.GetProductState)
	r.Get("/products/{product}/decisions", s.GetDecisions)
}

// Restore loads stored checkpoints into the engine. Checkpoints of
// products that are no longer configured are ignored.
func (s *Service) Restore(ctx context.Context) error {
	checkpoints, err := s.store.LoadCheckpoints(ctx)
	if err != nil {
		return err
	}

	states := make(map[model.Product]fairvalue.State, len(checkpoints))
	for _, cp := range checkpoints {
		states[cp.Product] = fairvalue.State{
			FairValue: cp.FairValue.InexactFloat64(),
			History:   cp.History,
		}
	}

	s.mu.Lock()
	s.engine.Restore(states)
	s.mu.Unlock()

	slog.Info("engine restored from checkpoints", "count", len(checkpoints))
	return nil
}

// --- Request/Response types ---

// ProductSummary is one entry of GET /products.
type ProductSummary struct {
	Symbol        model.Product   `json:"symbol"`
	FairValue     decimal.Decimal `json:"fair_value"`
	PositionLimit int             `json:"position_limit"`
	Estimation    string          `json:"estimation"`
	Sizing        string          `json:"sizing"`
	OffsetMode    string          `json:"offset_mode"`
}

// --- HTTP Handlers ---

// ProcessTick handles POST /api/v1/ticks
// Runs one decision pass and returns the orders for every product.
// Timestamps must be non-negative and non-decreasing within a session.
func (s *Service) ProcessTick(w http.ResponseWriter, r *http.Request) {
	var snap model.TickSnapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if snap.Timestamp < 0 {
		writeError(w, "timestamp must be non-negative", http.StatusBadRequest)
		return
	}

	// Serialize engine access.
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Timestamp < s.lastTick {
		writeError(w, "timestamp must not decrease: last tick was "+strconv.FormatInt(s.lastTick, 10), http.StatusBadRequest)
		return
	}
	s.lastTick = snap.Timestamp

	start := time.Now()
	result := s.engine.Run(snap)
	metrics.TickLatency.Observe(time.Since(start).Seconds())
	metrics.TicksTotal.Inc()

	outcomes := s.engine.Outcomes()
	states := s.engine.Snapshot()
	s.recordMetrics(outcomes)

	// The request may be cancelled once the response is out; the
	// checkpoint must still land.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), persistTimeout)
	defer cancel()
	s.persist(ctx, snap.Timestamp, outcomes, states)

	for _, out := range outcomes {
		if s.wsHub != nil {
			s.wsHub.Broadcast(newWSMessage(out))
		}
	}

	slog.Info("tick processed",
		"session", s.session,
		"tick", snap.Timestamp,
		"products", len(outcomes),
		"orders", countOrders(result),
		"latency", time.Since(start).String(),
	)

	writeJSON(w, http.StatusOK, result)
}

// ListProducts handles GET /api/v1/products
func (s *Service) ListProducts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	products := s.engine.Products()
	summaries := make([]ProductSummary, 0, len(products))
	for _, p := range products {
		cfg, _ := s.engine.ProductConfig(p)
		fv, _ := s.engine.FairValue(p)
		summaries = append(summaries, ProductSummary{
			Symbol:        p,
			FairValue:     decimal.NewFromFloat(fv),
			PositionLimit: cfg.PositionLimit,
			Estimation:    string(cfg.Estimation),
			Sizing:        string(cfg.Sizing),
			OffsetMode:    string(cfg.OffsetMode),
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

// GetProductState handles GET /api/v1/products/{product}/state
// Returns the latest persisted checkpoint, or the live estimator state if
// nothing has been persisted yet.
func (s *Service) GetProductState(w http.ResponseWriter, r *http.Request) {
	product := model.Product(chi.URLParam(r, "product"))
	if !s.configured(product) {
		writeError(w, "unknown product: "+string(product), http.StatusNotFound)
		return
	}

	cp, err := s.store.GetCheckpoint(r.Context(), product)
	if err == nil {
		writeJSON(w, http.StatusOK, cp)
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		writeError(w, "failed to load state", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	state := s.engine.Snapshot()[product]
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, model.Checkpoint{
		Product:   product,
		FairValue: decimal.NewFromFloat(state.FairValue),
		History:   nonNil(state.History),
		UpdatedAt: time.Now().UTC(),
	})
}

// GetDecisions handles GET /api/v1/products/{product}/decisions?limit=N
// Returns the decision journal, newest first.
func (s *Service) GetDecisions(w http.ResponseWriter, r *http.Request) {
	product := model.Product(chi.URLParam(r, "product"))
	if !s.configured(product) {
		writeError(w, "unknown product: "+string(product), http.StatusNotFound)
		return
	}

	limit := defaultDecisionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxDecisionLimit)
	}

	records, err := s.store.GetDecisionsByProduct(r.Context(), product, limit)
	if err != nil {
		writeError(w, "failed to load decisions", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []model.DecisionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// Health handles GET /health
func (s *Service) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "quote-engine",
		"session": s.session,
	})
}

// --- Tick side effects ---

func (s *Service) recordMetrics(outcomes []strategy.Outcome) {
	decided := make(map[model.Product]bool, len(outcomes))
	for _, out := range outcomes {
		product := string(out.Product)
		mode := out.Mode.String()
		decided[out.Product] = true

		metrics.DecisionsTotal.WithLabelValues(product, mode).Inc()
		metrics.FairValue.WithLabelValues(product).Set(out.FairValue)
		metrics.Threshold.WithLabelValues(product).Set(out.Threshold)
		metrics.Position.WithLabelValues(product).Set(float64(out.Position))
		for _, o := range out.Orders {
			side := o.Side()
			metrics.OrdersTotal.WithLabelValues(product, mode, side).Inc()
			metrics.OrderVolume.WithLabelValues(product, side).Add(float64(abs(o.Quantity)))
		}
	}
	for _, p := range s.engine.Products() {
		if !decided[p] {
			metrics.SkippedTotal.WithLabelValues(string(p)).Inc()
		}
	}
}

// persist writes one checkpoint and one decision record per decided
// product. Failures are logged; the orders are already final.
func (s *Service) persist(ctx context.Context, tick int64, outcomes []strategy.Outcome, states map[model.Product]fairvalue.State) {
	now := time.Now().UTC()
	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(persistWorkers)

	for _, out := range outcomes {
		state := states[out.Product]
		cp := &model.Checkpoint{
			Product:   out.Product,
			FairValue: decimal.NewFromFloat(state.FairValue),
			History:   state.History,
			Tick:      tick,
			UpdatedAt: now,
		}
		rec := newDecisionRecord(out, now)

		p.Go(func(ctx context.Context) error {
			if err := s.store.SaveCheckpoint(ctx, cp); err != nil {
				metrics.PersistenceErrors.WithLabelValues("checkpoint").Inc()
				slog.Error("checkpoint failed", "product", cp.Product, "tick", tick, "err", err)
				return err
			}
			return nil
		})
		p.Go(func(ctx context.Context) error {
			if err := s.store.InsertDecision(ctx, rec); err != nil {
				metrics.PersistenceErrors.WithLabelValues("decision").Inc()
				slog.Error("decision record failed", "product", rec.Product, "tick", tick, "err", err)
				return err
			}
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		slog.Warn("tick persisted with errors", "tick", tick, "err", err)
	}
}

func newDecisionRecord(out strategy.Outcome, now time.Time) *model.DecisionRecord {
	return &model.DecisionRecord{
		ID:                uuid.New().String(),
		Tick:              out.Tick,
		Product:           out.Product,
		Mode:              out.Mode.String(),
		Mid:               decimal.NewFromFloat(out.Mid),
		FairValue:         decimal.NewFromFloat(out.FairValue),
		AdjustedFairValue: decimal.NewFromFloat(out.AdjustedFairValue),
		Threshold:         decimal.NewFromFloat(out.Threshold),
		Position:          out.Position,
		Orders:            nonNilOrders(out.Orders),
		CreatedAt:         now,
	}
}

func newWSMessage(out strategy.Outcome) WSMessage {
	return WSMessage{
		Type:              "decision",
		Tick:              out.Tick,
		Product:           out.Product,
		Mode:              out.Mode.String(),
		Mid:               decimal.NewFromFloat(out.Mid).String(),
		FairValue:         decimal.NewFromFloat(out.FairValue).String(),
		AdjustedFairValue: decimal.NewFromFloat(out.AdjustedFairValue).String(),
		Threshold:         decimal.NewFromFloat(out.Threshold).String(),
		Position:          out.Position,
		Orders:            nonNilOrders(out.Orders),
	}
}

func (s *Service) configured(product model.Product) bool {
	_, ok := s.engine.ProductConfig(product)
	return ok
}

func countOrders(res model.TickResult) int {
	n := 0
	for _, orders := range res.Orders {
		n += len(orders)
	}
	return n
}

func nonNil(h []model.PricePoint) []model.PricePoint {
	if h == nil {
		return []model.PricePoint{}
	}
	return h
}

func nonNilOrders(o []model.Order) []model.Order {
	if o == nil {
		return []model.Order{}
	}
	return o
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
