package fairvalue

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/atmx/quote-engine/internal/model"
)

// Line is price = Slope·time + Intercept.
type Line struct {
	Slope     float64
	Intercept float64
}

// At evaluates the line at time t.
func (l Line) At(t float64) float64 {
	return l.Slope*t + l.Intercept
}

// FitLine computes the ordinary least-squares line through points.
//
// Times are centred on their mean before fitting so that large tick
// timestamps do not swamp the cross products. When every point shares one
// timestamp the slope is undefined; the fit degrades to a flat line at the
// mean price.
func FitLine(points []model.PricePoint) Line {
	if len(points) == 0 {
		return Line{}
	}

	times, prices := split(points)
	meanT := stat.Mean(times, nil)
	for i := range times {
		times[i] -= meanT
	}
	if len(points) == 1 || stat.Variance(times, nil) == 0 {
		return Line{Intercept: stat.Mean(prices, nil)}
	}

	intercept, slope := stat.LinearRegression(times, prices, nil, false)
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return Line{Intercept: stat.Mean(prices, nil)}
	}
	return Line{Slope: slope, Intercept: intercept - slope*meanT}
}

// ResidualStdDev returns the sample (n-1) standard deviation of the
// residuals price_i - line(t_i). ok is false with fewer than two points.
func ResidualStdDev(points []model.PricePoint, line Line) (float64, bool) {
	if len(points) < 2 {
		return 0, false
	}

	residuals := make([]float64, len(points))
	for i, p := range points {
		residuals[i] = p.Price - line.At(float64(p.Time))
	}
	return stat.StdDev(residuals, nil), true
}

func split(points []model.PricePoint) (times, prices []float64) {
	times = make([]float64, len(points))
	prices = make([]float64, len(points))
	for i, p := range points {
		times[i] = float64(p.Time)
		prices[i] = p.Price
	}
	return times, prices
}
