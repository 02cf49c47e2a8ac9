// Package limit enforces the per-product position limit.
//
// The limit is symmetric: a product's net position must stay within
// [-Max, Max] after any single order is applied in isolation.
package limit

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLimit is returned when the configured limit is not positive.
	ErrInvalidLimit = errors.New("limit: position limit must be positive")

	// ErrPositionLimitExceeded is returned when an order would push the
	// position outside [-Max, Max].
	ErrPositionLimitExceeded = errors.New("limit: position limit exceeded")
)

// PositionLimiter caps the absolute net position of one product.
type PositionLimiter struct {
	// Max is the largest absolute net position allowed.
	Max int
}

// NewPositionLimiter creates a limiter for the given maximum.
func NewPositionLimiter(maxPosition int) (*PositionLimiter, error) {
	if maxPosition <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, maxPosition)
	}
	return &PositionLimiter{Max: maxPosition}, nil
}

// BuyHeadroom is how many units can be bought from position p.
func (l *PositionLimiter) BuyHeadroom(position int) int {
	return max(0, l.Max-position)
}

// SellHeadroom is how many units can be sold from position p.
func (l *PositionLimiter) SellHeadroom(position int) int {
	return max(0, l.Max+position)
}

// Clamp trims a signed order quantity to the available headroom. The sign
// is preserved; a result of 0 means the order must not be sent.
func (l *PositionLimiter) Clamp(position, quantity int) int {
	switch {
	case quantity > 0:
		return min(quantity, l.BuyHeadroom(position))
	case quantity < 0:
		return -min(-quantity, l.SellHeadroom(position))
	default:
		return 0
	}
}

// CheckLimit validates that applying delta to position stays in bounds.
func (l *PositionLimiter) CheckLimit(position, delta int) error {
	next := position + delta
	if next > l.Max || next < -l.Max {
		return fmt.Errorf("%w: %d%+d outside ±%d", ErrPositionLimitExceeded, position, delta, l.Max)
	}
	return nil
}
