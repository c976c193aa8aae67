// Package grid generates and owns the price-level ladder a grid session trades on.
package grid

import (
	"errors"
	"fmt"
	"sort"

	"gridscalper/logger"
)

// ErrInvalidRange is returned when a grid cannot be built from the given bounds.
var ErrInvalidRange = errors.New("invalid grid range")

// Generate produces levelCount evenly spaced price levels between lower and
// upper, both inclusive. The generator is mode-agnostic: it returns bare price
// points and leaves side assignment to the caller.
func Generate(lower, upper float64, levelCount int) ([]float64, error) {
	if lower >= upper {
		return nil, fmt.Errorf("%w: lower bound %.8f >= upper bound %.8f", ErrInvalidRange, lower, upper)
	}
	if levelCount < 2 {
		return nil, fmt.Errorf("%w: need at least 2 levels, got %d", ErrInvalidRange, levelCount)
	}

	step := (upper - lower) / float64(levelCount-1)
	levels := make([]float64, levelCount)
	for i := 0; i < levelCount; i++ {
		levels[i] = lower + step*float64(i)
	}
	// Pin the last level to the exact upper bound against float drift
	levels[levelCount-1] = upper

	return levels, nil
}

// Session is one live grid: its levels, bounds, and the price it was centered
// on at generation time. A session is created when the bot activates a grid and
// destroyed on any reset-triggering exit condition.
type Session struct {
	Active     bool
	Levels     []float64
	LowerBound float64
	UpperBound float64
	Center     float64
}

// NewSession builds an active session of levelCount levels spanning width,
// re-centered on the given price. The configured [startPrice, endPrice] range
// defines the width only; every new session floats to the current market.
func NewSession(center, width float64, levelCount int) (*Session, error) {
	if width <= 0 {
		return nil, fmt.Errorf("%w: non-positive width %.8f", ErrInvalidRange, width)
	}
	lower := center - width/2
	upper := center + width/2

	levels, err := Generate(lower, upper, levelCount)
	if err != nil {
		return nil, err
	}

	logger.Infof("[Grid] Generated %d levels in [%.2f, %.2f] centered at %.2f", len(levels), lower, upper, center)

	return &Session{
		Active:     true,
		Levels:     levels,
		LowerBound: lower,
		UpperBound: upper,
		Center:     center,
	}, nil
}

// Width returns the price span of the session.
func (s *Session) Width() float64 {
	return s.UpperBound - s.LowerBound
}

// NextLevelAbove returns the nearest grid level strictly above price.
// The second return is false when no qualifying level exists.
func (s *Session) NextLevelAbove(price float64) (float64, bool) {
	if s == nil || !s.Active {
		return 0, false
	}
	idx := sort.SearchFloat64s(s.Levels, price)
	for idx < len(s.Levels) {
		if s.Levels[idx] > price {
			return s.Levels[idx], true
		}
		idx++
	}
	return 0, false
}

// NextLevelBelow returns the nearest grid level strictly below price.
func (s *Session) NextLevelBelow(price float64) (float64, bool) {
	if s == nil || !s.Active {
		return 0, false
	}
	for i := len(s.Levels) - 1; i >= 0; i-- {
		if s.Levels[i] < price {
			return s.Levels[i], true
		}
	}
	return 0, false
}

// Clear deactivates the session and discards its levels.
func (s *Session) Clear() {
	s.Active = false
	s.Levels = nil
	s.LowerBound = 0
	s.UpperBound = 0
	s.Center = 0
}
