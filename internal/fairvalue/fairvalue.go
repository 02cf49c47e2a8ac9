// Package fairvalue estimates a product's fair value tick by tick.
//
// Three methods are supported:
//   - ema: first-order low-pass filter, f = (1-α)·f + α·mid
//   - regression: OLS line over a bounded window of (time, mid) points,
//     predicted one tick ahead and blended with the instantaneous mid;
//     the residual standard deviation becomes the deviation threshold
//   - static: the configured fair value never moves
//
// An Estimator owns its state and is not safe for concurrent use.
package fairvalue

import (
	"errors"
	"fmt"

	"github.com/atmx/quote-engine/internal/model"
)

// Method selects how fair value is estimated.
type Method string

const (
	MethodEMA        Method = "ema"
	MethodRegression Method = "regression"
	MethodStatic     Method = "static"
)

var (
	// ErrInvalidAlpha is returned when α is outside (0, 1).
	ErrInvalidAlpha = errors.New("fairvalue: smoothing factor must be in (0, 1)")

	// ErrInvalidWindow is returned when the regression window or the
	// minimum point count is unusable.
	ErrInvalidWindow = errors.New("fairvalue: history window must be >= min points >= 1")

	// ErrInvalidThreshold is returned for a negative base threshold.
	ErrInvalidThreshold = errors.New("fairvalue: base threshold must be non-negative")

	// ErrUnknownMethod is returned for an unsupported estimation method.
	ErrUnknownMethod = errors.New("fairvalue: unknown estimation method")
)

// Params configures an Estimator.
type Params struct {
	Method        Method
	Alpha         float64
	BaseThreshold float64
	HistoryWindow int // regression only
	MinPoints     int // regression only
}

// Validate checks the parameters for the selected method.
func (p Params) Validate() error {
	switch p.Method {
	case MethodEMA, MethodRegression:
		if p.Alpha <= 0 || p.Alpha >= 1 {
			return fmt.Errorf("%w: got %g", ErrInvalidAlpha, p.Alpha)
		}
	case MethodStatic:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMethod, p.Method)
	}
	if p.BaseThreshold < 0 {
		return fmt.Errorf("%w: got %g", ErrInvalidThreshold, p.BaseThreshold)
	}
	if p.Method == MethodRegression {
		if p.MinPoints < 1 || p.HistoryWindow < p.MinPoints {
			return fmt.Errorf("%w: window=%d min_points=%d", ErrInvalidWindow, p.HistoryWindow, p.MinPoints)
		}
	}
	return nil
}

// Estimate is the output of one Update.
type Estimate struct {
	FairValue float64
	Threshold float64

	// Predicted is the regression line evaluated at t+1. Zero unless the
	// regression had enough points.
	Predicted float64
	Fitted    bool
}

// State is the persistent part of an Estimator.
type State struct {
	FairValue float64
	History   []model.PricePoint
}

// Estimator tracks fair value for a single product.
type Estimator struct {
	params    Params
	fairValue float64
	history   *Window
}

// NewEstimator creates an estimator seeded with the initial fair value and
// an empty history.
func NewEstimator(params Params, initial float64) (*Estimator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	e := &Estimator{params: params, fairValue: initial}
	if params.Method == MethodRegression {
		e.history = NewWindow(params.HistoryWindow)
	}
	return e, nil
}

// FairValue returns the latest fair value.
func (e *Estimator) FairValue() float64 {
	return e.fairValue
}

// Update folds the mid-price observed at tick t into the estimate.
func (e *Estimator) Update(t int64, mid float64) Estimate {
	switch e.params.Method {
	case MethodEMA:
		e.fairValue = Smooth(e.fairValue, mid, e.params.Alpha)
		return Estimate{FairValue: e.fairValue, Threshold: e.params.BaseThreshold}
	case MethodRegression:
		return e.updateRegression(t, mid)
	default:
		return Estimate{FairValue: e.fairValue, Threshold: e.params.BaseThreshold}
	}
}

func (e *Estimator) updateRegression(t int64, mid float64) Estimate {
	e.history.Push(model.PricePoint{Time: t, Price: mid})

	// Cold start: trade off the raw mid.
	if e.history.Len() < e.params.MinPoints {
		e.fairValue = mid
		return Estimate{FairValue: mid, Threshold: e.params.BaseThreshold}
	}

	points := e.history.Points()
	line := FitLine(points)
	predicted := line.At(float64(t + 1))

	threshold := e.params.BaseThreshold
	if sd, ok := ResidualStdDev(points, line); ok {
		threshold = sd
	}

	alpha := e.params.Alpha
	e.fairValue = (1-alpha)*mid + alpha*predicted
	return Estimate{
		FairValue: e.fairValue,
		Threshold: threshold,
		Predicted: predicted,
		Fitted:    true,
	}
}

// Snapshot copies the estimator state.
func (e *Estimator) Snapshot() State {
	s := State{FairValue: e.fairValue}
	if e.history != nil {
		s.History = e.history.Points()
	}
	return s
}

// Restore replaces the estimator state. History beyond the window keeps
// only the newest points.
func (e *Estimator) Restore(s State) {
	e.fairValue = s.FairValue
	if e.history == nil {
		return
	}
	e.history = NewWindow(e.params.HistoryWindow)
	for _, p := range s.History {
		e.history.Push(p)
	}
}

// Smooth is one exponential smoothing step. For α in (0,1) the result
// always lies between old and mid.
func Smooth(old, mid, alpha float64) float64 {
	return (1-alpha)*old + alpha*mid
}
