package config

import (
	"fmt"

	"github.com/atmx/quote-engine/internal/fairvalue"
	"github.com/atmx/quote-engine/internal/quote"
)

// Preset names. Each is one parameterization of the same engine.
const (
	// PresetMeanRevert smooths both products with an EMA and quotes a
	// fixed size at ±0.5 around mid. Deviations are measured against the
	// raw fair value; inventory does not skew it.
	PresetMeanRevert = "mean_revert"

	// PresetRegression fits a rolling regression on RAINFOREST_RESIN and
	// holds KELP at a fixed fair value.
	PresetRegression = "regression"

	// PresetDynamic smooths with an EMA, throttles size by inventory and
	// widens quotes with the observed spread.
	PresetDynamic = "dynamic"
)

const (
	Resin = "RAINFOREST_RESIN"
	Kelp  = "KELP"
)

// Preset returns a fresh copy of the named preset.
func Preset(name string) (Config, error) {
	var products []Product
	switch name {
	case PresetMeanRevert:
		products = []Product{
			meanRevertProduct(Resin, 10000, 10),
			meanRevertProduct(Kelp, 2028.5, 2),
		}
	case PresetRegression:
		resin := regressionProduct(Resin, 10000, 10)
		resin.Estimation = fairvalue.MethodRegression
		resin.HistoryWindow = 50
		resin.MinPoints = 10

		kelp := regressionProduct(Kelp, 2028.5, 2)
		kelp.Estimation = fairvalue.MethodStatic
		products = []Product{resin, kelp}
	case PresetDynamic:
		products = []Product{
			dynamicProduct(Resin, 10000, 3, 30),
			dynamicProduct(Kelp, 2028.5, 2, 20),
		}
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return Config{Preset: name, Products: products, Server: Server{}.withDefaults()}, nil
}

func meanRevertProduct(symbol string, fair, threshold float64) Product {
	return Product{
		Symbol:           symbol,
		InitialFairValue: fair,
		PositionLimit:    50,
		BaseThreshold:    threshold,
		BaseOrderSize:    18,
		Alpha:            0.1,
		InventoryFactor:  0,
		Offset:           0.5,
		MinSpread:        0,
		Estimation:       fairvalue.MethodEMA,
		Sizing:           quote.SizeStatic,
		SizeBreakpoint:   10,
		OffsetMode:       quote.OffsetStatic,
	}
}

// regressionProduct quotes like meanRevertProduct but skews fair value by
// 0.1 per unit of inventory.
func regressionProduct(symbol string, fair, threshold float64) Product {
	p := meanRevertProduct(symbol, fair, threshold)
	p.InventoryFactor = 0.1
	return p
}

func dynamicProduct(symbol string, fair, threshold float64, size int) Product {
	return Product{
		Symbol:           symbol,
		InitialFairValue: fair,
		PositionLimit:    50,
		BaseThreshold:    threshold,
		BaseOrderSize:    size,
		Alpha:            0.1,
		InventoryFactor:  0.1,
		Offset:           2,
		MinSpread:        2,
		Estimation:       fairvalue.MethodEMA,
		Sizing:           quote.SizeInventory,
		SizeBreakpoint:   10,
		OffsetMode:       quote.OffsetSpread,
	}
}
