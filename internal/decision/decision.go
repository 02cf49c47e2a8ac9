// Package decision picks the trading mode for a product on one tick.
//
// Fair value is skewed against the current inventory before it is compared
// with the market mid. Directional modes only ever reduce an existing
// position; without one the engine falls back to market making.
package decision

// Mode is the trading mode selected for a product on one tick.
type Mode int

const (
	MarketMake Mode = iota
	UnwindLong
	CoverShort
)

// String returns the stable name used in logs, metrics and records.
func (m Mode) String() string {
	switch m {
	case UnwindLong:
		return "unwind_long"
	case CoverShort:
		return "cover_short"
	default:
		return "market_make"
	}
}

// AdjustFairValue skews fair value by inventory: f - k·p. A long position
// lowers the effective fair value, a short position raises it.
func AdjustFairValue(fairValue float64, position int, factor float64) float64 {
	return fairValue - factor*float64(position)
}

// Select compares mid against adjusted ± threshold. Rules are evaluated in
// priority order and exactly one mode is returned.
func Select(mid, adjusted, threshold float64, position int) Mode {
	switch {
	case mid > adjusted+threshold && position > 0:
		return UnwindLong
	case mid < adjusted-threshold && position < 0:
		return CoverShort
	default:
		return MarketMake
	}
}
